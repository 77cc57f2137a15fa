package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signoff/client/domain"
)

func TestGetAdminProjectSendsBearerAndDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/projects/admin/me", r.URL.Path)
		assert.Equal(t, "Bearer admin-tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "p1", "name": "launch", "status": "PENDING"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	project, err := c.GetAdminProject(context.Background(), "admin-tok")
	require.NoError(t, err)
	assert.Equal(t, "p1", project.ID)
	assert.Equal(t, domain.StatusPending, project.Status)
}

func TestGetPublicProjectOmitsAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/view/pub-tok", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "p1"}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetPublicProject(context.Background(), "pub-tok")
	require.NoError(t, err)
}

func TestSubmitDecisionBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/pub-tok/status", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CHANGES_REQUESTED", body["decision"])
		assert.Equal(t, "crop is wrong", body["comment"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "p1", "status": "CHANGES_REQUESTED"},
		})
	}))
	defer srv.Close()

	project, err := NewClient(srv.URL).SubmitDecision(context.Background(), "pub-tok", domain.DecisionChangesRequested, "crop is wrong")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusChangesRequested, project.Status)
}

func TestRequestUploadCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/storage/sign-url", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "logo.png", body["filename"])
		assert.Equal(t, "image/png", body["mimeType"])
		assert.EqualValues(t, 42, body["size"])
		_ = json.NewEncoder(w).Encode(map[string]any{"uploadUrl": "http://upload.test/x", "key": "projects/p1/x"})
	}))
	defer srv.Close()

	creds, err := NewClient(srv.URL).RequestUploadCredentials(context.Background(), "admin-tok", "logo.png", "image/png", 42)
	require.NoError(t, err)
	assert.Equal(t, "http://upload.test/x", creds.UploadURL)
	assert.Equal(t, "projects/p1/x", creds.StorageKey)
}

func TestConfirmUploadDecodesAttachment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/storage/confirm", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"attachment": map[string]any{"id": "f1", "fileName": "logo.png", "size": 42},
		})
	}))
	defer srv.Close()

	asset, err := NewClient(srv.URL).ConfirmUpload(context.Background(), "admin-tok", "projects/p1/x", "logo.png", 42, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "f1", asset.ID)
	assert.EqualValues(t, 42, asset.Size)
}

func TestGetDownloadHandleQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/storage/download/f1", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("download"))
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "http://signed.test/f1", "filename": "logo.png"})
	}))
	defer srv.Close()

	handle, err := NewClient(srv.URL).GetDownloadHandle(context.Background(), "f1", "tok", false)
	require.NoError(t, err)
	assert.Equal(t, "http://signed.test/f1", handle.URL)
	assert.Equal(t, "logo.png", handle.FileName)
}

func TestNonSuccessStatusBecomesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RequestUploadCredentials(context.Background(), "admin-tok", "logo.png", "image/png", 42)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.Code)
	assert.Equal(t, "/api/storage/sign-url", statusErr.Path)
}

func TestFetchFailuresWrapSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).GetAdminProject(context.Background(), "admin-tok")
	assert.True(t, errors.Is(err, ErrFetchFailed))
}
