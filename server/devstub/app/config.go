package app

import (
	cmnenv "signoff/server/common/env"
)

type Config struct {
	Env  string
	Port string

	RedisAddr string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	SignedURLTTLMinutes int
	DefaultExpiryDays   int
}

func LoadConfig() Config {
	return Config{
		Env:                 cmnenv.String("APP_ENV", "dev"),
		Port:                cmnenv.String("PORT", "8080"),
		RedisAddr:           cmnenv.String("REDIS_ADDR", "localhost:6379"),
		MinioEndpoint:       cmnenv.String("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:      cmnenv.String("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:      cmnenv.String("MINIO_SECRET_KEY", "minioadmin"),
		MinioUseSSL:         cmnenv.Bool("MINIO_USE_SSL", false),
		MinioBucket:         cmnenv.String("MINIO_BUCKET", "signoff-deliverables"),
		SignedURLTTLMinutes: cmnenv.Int("SIGNED_URL_TTL_MINUTES", 15),
		DefaultExpiryDays:   cmnenv.Int("DEFAULT_EXPIRY_DAYS", 30),
	}
}
