// Package upload drives the three-phase deliverable commit: request
// transfer credentials, stream the bytes to the signed target, confirm with
// the backend. All three phases complete or the operation failed and no
// partial FileAsset exists anywhere.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"signoff/client/api"
	"signoff/client/cache"
	"signoff/client/domain"
	"signoff/client/draft"
	"signoff/server/common/env"
	commonlog "signoff/server/common/log"
)

// ErrUploadInFlight guards the single-slot deliverable: the backend does not
// promise idempotent concurrent sign+confirm pairs for the same project.
var ErrUploadInFlight = errors.New("an upload is already in progress")

const defaultTransferTimeout = 5 * time.Minute

type Pipeline struct {
	api    *api.Client
	drafts *draft.Store
	store  *cache.Store

	transfer *http.Client

	uploading  atomic.Bool
	progress   atomic.Int32
	onProgress func(percent int)
}

func NewPipeline(apiClient *api.Client, drafts *draft.Store, store *cache.Store) *Pipeline {
	return &Pipeline{
		api:      apiClient,
		drafts:   drafts,
		store:    store,
		transfer: &http.Client{Timeout: env.DurationMillis("SIGNOFF_TRANSFER_TIMEOUT_MS", defaultTransferTimeout)},
	}
}

func (p *Pipeline) IsUploading() bool {
	return p.uploading.Load()
}

// Progress is the integer percentage of the current attempt, monotonically
// non-decreasing within an attempt and reset to 0 when a new one starts.
func (p *Pipeline) Progress() int {
	return int(p.progress.Load())
}

// OnProgress installs a progress callback. Set it before Upload; the
// pipeline invokes it from the transfer goroutine.
func (p *Pipeline) OnProgress(fn func(percent int)) {
	p.onProgress = fn
}

// Upload runs the three phases. On success the owner's cache entry is
// invalidated (the signed URL and asset metadata come from the re-read) and
// the draft is cleared. On any failure the draft stays intact and the cache
// is untouched, so a retry is possible without re-selecting the file.
func (p *Pipeline) Upload(ctx context.Context, adminToken string, d domain.UploadDraft) (domain.FileAsset, error) {
	if adminToken == "" {
		return domain.FileAsset{}, api.ErrAuthMissing
	}
	if !p.uploading.CompareAndSwap(false, true) {
		return domain.FileAsset{}, ErrUploadInFlight
	}
	defer p.uploading.Store(false)

	p.setProgress(0)
	size := int64(len(d.Content))

	creds, err := p.api.RequestUploadCredentials(ctx, adminToken, d.Name, d.MimeType, size)
	if err != nil {
		commonlog.Errorf("event=upload phase=sign status=failed name=%s error=%v", d.Name, err)
		return domain.FileAsset{}, fmt.Errorf("%w: %w", api.ErrCredentialRequest, err)
	}

	if err := p.put(ctx, creds.UploadURL, d, size); err != nil {
		commonlog.Errorf("event=upload phase=transfer status=failed name=%s error=%v", d.Name, err)
		return domain.FileAsset{}, fmt.Errorf("%w: %w", api.ErrTransfer, err)
	}

	asset, err := p.api.ConfirmUpload(ctx, adminToken, creds.StorageKey, d.Name, size, d.MimeType)
	if err != nil {
		commonlog.Errorf("event=upload phase=confirm status=failed name=%s key=%s error=%v", d.Name, creds.StorageKey, err)
		return domain.FileAsset{}, fmt.Errorf("%w: %w", api.ErrConfirmation, err)
	}

	p.store.Invalidate(cache.AdminKey(adminToken))
	p.drafts.Clear()
	commonlog.Infof("event=upload status=ok name=%s size=%d file_id=%s", d.Name, size, asset.ID)
	return asset, nil
}

func (p *Pipeline) put(ctx context.Context, uploadURL string, d domain.UploadDraft, size int64) error {
	body := &progressReader{
		r:     bytes.NewReader(d.Content),
		total: size,
		report: func(percent int) {
			p.setProgress(percent)
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", d.MimeType)

	resp, err := p.transfer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("transfer target status %d", resp.StatusCode)
	}
	return nil
}

func (p *Pipeline) setProgress(percent int) {
	for {
		current := p.progress.Load()
		if percent != 0 && int32(percent) <= current {
			return
		}
		if p.progress.CompareAndSwap(current, int32(percent)) {
			break
		}
	}
	if p.onProgress != nil {
		p.onProgress(percent)
	}
}

// progressReader reports bytes-acknowledged over total as an integer
// percentage while the transfer drains it.
type progressReader struct {
	r      *bytes.Reader
	total  int64
	sent   int64
	report func(percent int)
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 && pr.total > 0 {
		pr.sent += int64(n)
		pr.report(int(pr.sent * 100 / pr.total))
	}
	return n, err
}
