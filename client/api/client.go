// Package api is the JSON-over-HTTP client for the signoff backend. The
// backend is consumed as an opaque service; admin calls carry the opaque
// bearer capability token, nothing more.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"signoff/client/domain"
	"signoff/server/common/env"
)

const BasePath = "/api"

const defaultHTTPTimeout = 10 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: env.DurationMillis("SIGNOFF_HTTP_TIMEOUT_MS", defaultHTTPTimeout)},
	}
}

// dataEnvelope wraps project payloads the way the backend does.
type dataEnvelope struct {
	Data domain.Project `json:"data"`
}

type UploadCredentials struct {
	UploadURL  string `json:"uploadUrl"`
	StorageKey string `json:"key"`
}

type DownloadHandle struct {
	URL      string `json:"url"`
	FileName string `json:"filename"`
}

func (c *Client) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	var resp dataEnvelope
	err := c.do(ctx, http.MethodPost, BasePath+"/projects", "", map[string]any{"name": name}, &resp)
	if err != nil {
		return domain.Project{}, err
	}
	return resp.Data, nil
}

func (c *Client) GetAdminProject(ctx context.Context, adminToken string) (domain.Project, error) {
	var resp dataEnvelope
	err := c.do(ctx, http.MethodGet, BasePath+"/projects/admin/me", adminToken, nil, &resp)
	if err != nil {
		return domain.Project{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return resp.Data, nil
}

func (c *Client) GetPublicProject(ctx context.Context, publicToken string) (domain.Project, error) {
	var resp dataEnvelope
	err := c.do(ctx, http.MethodGet, BasePath+"/projects/view/"+url.PathEscape(publicToken), "", nil, &resp)
	if err != nil {
		return domain.Project{}, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	return resp.Data, nil
}

func (c *Client) SubmitDecision(ctx context.Context, publicToken string, decision domain.DecisionType, comment string) (domain.Project, error) {
	payload := map[string]any{"decision": decision, "comment": comment}
	var resp dataEnvelope
	err := c.do(ctx, http.MethodPost, BasePath+"/projects/"+url.PathEscape(publicToken)+"/status", "", payload, &resp)
	if err != nil {
		return domain.Project{}, err
	}
	return resp.Data, nil
}

func (c *Client) UpdateExpiration(ctx context.Context, adminToken string, days int) error {
	var resp map[string]any
	return c.do(ctx, http.MethodPatch, BasePath+"/projects/admin/expiration", adminToken, map[string]any{"days": days}, &resp)
}

func (c *Client) DeleteProject(ctx context.Context, adminToken string) error {
	var resp map[string]any
	return c.do(ctx, http.MethodDelete, BasePath+"/projects/admin/me", adminToken, nil, &resp)
}

func (c *Client) RequestUploadCredentials(ctx context.Context, adminToken, filename, mimeType string, size int64) (UploadCredentials, error) {
	payload := map[string]any{"filename": filename, "mimeType": mimeType, "size": size}
	var resp UploadCredentials
	err := c.do(ctx, http.MethodPost, BasePath+"/storage/sign-url", adminToken, payload, &resp)
	if err != nil {
		return UploadCredentials{}, err
	}
	return resp, nil
}

func (c *Client) ConfirmUpload(ctx context.Context, adminToken, storageKey, filename string, size int64, mimeType string) (domain.FileAsset, error) {
	payload := map[string]any{"key": storageKey, "filename": filename, "size": size, "mimeType": mimeType}
	var resp struct {
		Attachment domain.FileAsset `json:"attachment"`
	}
	err := c.do(ctx, http.MethodPost, BasePath+"/storage/confirm", adminToken, payload, &resp)
	if err != nil {
		return domain.FileAsset{}, err
	}
	return resp.Attachment, nil
}

func (c *Client) DeleteFile(ctx context.Context, adminToken, fileID, projectID string) error {
	var resp map[string]any
	return c.do(ctx, http.MethodPost, BasePath+"/storage/"+url.PathEscape(fileID), adminToken, map[string]any{"projectId": projectID}, &resp)
}

// GetDownloadHandle resolves a short-lived signed URL for a file. token may be
// empty on the admin side where the bearer header is enough; wantAttachment
// asks the backend for a content-disposition that forces a save.
func (c *Client) GetDownloadHandle(ctx context.Context, fileID, token string, wantAttachment bool) (DownloadHandle, error) {
	path := BasePath + "/storage/download/" + url.PathEscape(fileID) + "?download=" + strconv.FormatBool(wantAttachment)
	var resp DownloadHandle
	err := c.do(ctx, http.MethodGet, path, token, nil, &resp)
	if err != nil {
		return DownloadHandle{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, payload, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("backend base url is not configured")
	}
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed path=%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Path: strippedPath(path)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func strippedPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
