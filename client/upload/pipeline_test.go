package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signoff/client/api"
	"signoff/client/cache"
	"signoff/client/domain"
	"signoff/client/draft"
	"signoff/client/localstore"
)

type backendStub struct {
	t *testing.T

	mu          sync.Mutex
	putBody     []byte
	putMimeType string
	confirmed   bool
	failConfirm bool
	failSign    bool
	failPut     bool
}

func (b *backendStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/storage/sign-url", func(w http.ResponseWriter, r *http.Request) {
		if b.failSign {
			w.WriteHeader(http.StatusConflict)
			return
		}
		require.Equal(b.t, "Bearer admin-tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"uploadUrl": "http://" + r.Host + "/bucket/projects/p1/obj",
			"key":       "projects/p1/obj",
		})
	})
	mux.HandleFunc("PUT /bucket/projects/p1/obj", func(w http.ResponseWriter, r *http.Request) {
		if b.failPut {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, err := io.ReadAll(r.Body)
		require.NoError(b.t, err)
		b.mu.Lock()
		b.putBody = body
		b.putMimeType = r.Header.Get("Content-Type")
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/storage/confirm", func(w http.ResponseWriter, r *http.Request) {
		if b.failConfirm {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var req map[string]any
		require.NoError(b.t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(b.t, "projects/p1/obj", req["key"])
		b.mu.Lock()
		b.confirmed = true
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"attachment": map[string]any{"id": "f1", "fileName": req["filename"], "size": req["size"]},
		})
	})
	return mux
}

func newPipeline(t *testing.T, backend *backendStub) (*Pipeline, *draft.Store, *cache.Store, func()) {
	t.Helper()
	srv := httptest.NewServer(backend.handler())

	local, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	drafts := draft.NewStore(local)
	store := cache.NewStore()
	return NewPipeline(api.NewClient(srv.URL), drafts, store), drafts, store, srv.Close
}

func testDraft() domain.UploadDraft {
	return domain.UploadDraft{
		Name:     "logo.bin",
		MimeType: "application/octet-stream",
		Content:  []byte("deliverable bytes"),
	}
}

func TestUploadRunsAllThreePhases(t *testing.T) {
	backend := &backendStub{t: t}
	p, drafts, store, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	key := cache.AdminKey("admin-tok")
	store.Set(key, domain.Project{ID: "p1"})

	d := testDraft()
	require.NoError(t, drafts.Save(d))

	asset, err := p.Upload(context.Background(), "admin-tok", d)
	require.NoError(t, err)
	assert.Equal(t, "f1", asset.ID)

	backend.mu.Lock()
	assert.Equal(t, d.Content, backend.putBody)
	assert.Equal(t, d.MimeType, backend.putMimeType)
	assert.True(t, backend.confirmed)
	backend.mu.Unlock()

	// Success commits the local side: draft gone, owner view marked stale.
	_, ok := drafts.Load()
	assert.False(t, ok)
	assert.True(t, store.Stale(key))
	assert.Equal(t, 100, p.Progress())
}

func TestMissingCredentialFailsBeforeAnyPhase(t *testing.T) {
	backend := &backendStub{t: t}
	p, _, _, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	_, err := p.Upload(context.Background(), "", testDraft())
	assert.True(t, errors.Is(err, api.ErrAuthMissing))
}

func TestSignFailureWrapsCredentialSentinel(t *testing.T) {
	backend := &backendStub{t: t, failSign: true}
	p, drafts, store, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	key := cache.AdminKey("admin-tok")
	store.Set(key, domain.Project{ID: "p1"})
	require.NoError(t, drafts.Save(testDraft()))

	_, err := p.Upload(context.Background(), "admin-tok", testDraft())
	assert.True(t, errors.Is(err, api.ErrCredentialRequest))

	_, ok := drafts.Load()
	assert.True(t, ok)
	assert.False(t, store.Stale(key))
}

func TestTransferFailureWrapsTransferSentinel(t *testing.T) {
	backend := &backendStub{t: t, failPut: true}
	p, _, _, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	_, err := p.Upload(context.Background(), "admin-tok", testDraft())
	assert.True(t, errors.Is(err, api.ErrTransfer))
}

func TestConfirmFailureLeavesDraftAndCacheUntouched(t *testing.T) {
	backend := &backendStub{t: t, failConfirm: true}
	p, drafts, store, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	key := cache.AdminKey("admin-tok")
	store.Set(key, domain.Project{ID: "p1"})
	require.NoError(t, drafts.Save(testDraft()))

	_, err := p.Upload(context.Background(), "admin-tok", testDraft())
	assert.True(t, errors.Is(err, api.ErrConfirmation))

	// The bytes reached the bucket but no FileAsset exists; the retry path
	// needs the draft intact and the cache unmarked.
	_, ok := drafts.Load()
	assert.True(t, ok)
	assert.False(t, store.Stale(key))
}

func TestConcurrentUploadIsRejected(t *testing.T) {
	backend := &backendStub{t: t}
	p, _, _, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	p.uploading.Store(true)
	_, err := p.Upload(context.Background(), "admin-tok", testDraft())
	assert.True(t, errors.Is(err, ErrUploadInFlight))
}

func TestProgressIsMonotonicAndResetsPerAttempt(t *testing.T) {
	backend := &backendStub{t: t}
	p, _, _, closeSrv := newPipeline(t, backend)
	defer closeSrv()

	var reported []int
	p.OnProgress(func(percent int) { reported = append(reported, percent) })

	_, err := p.Upload(context.Background(), "admin-tok", testDraft())
	require.NoError(t, err)

	require.NotEmpty(t, reported)
	assert.Equal(t, 0, reported[0])
	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1])
	}
	assert.Equal(t, 100, reported[len(reported)-1])

	// A fresh attempt starts from zero even though the previous one hit 100.
	reported = reported[:0]
	_, err = p.Upload(context.Background(), "admin-tok", testDraft())
	require.NoError(t, err)
	require.NotEmpty(t, reported)
	assert.Equal(t, 0, reported[0])
}
