// Package draft caches an unconfirmed file selection so it survives a
// restart. The draft is distinct from a FileAsset: it is purely local and
// lives only between selection and either confirmed upload or cancellation.
package draft

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/disintegration/imaging"

	"signoff/client/domain"
	"signoff/client/localstore"
	commonlog "signoff/server/common/log"
)

// Drafts above this size are never persisted; the in-memory selection still
// works for the current run, it just will not survive a restart. Keeps the
// persisted store well under small storage quotas.
const MaxPersistBytes = 4 * 1024 * 1024

const previewEdge = 320

type persistedDraft struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Base64 string `json:"base64"`
}

type Store struct {
	local *localstore.Store

	mu          sync.Mutex
	previewPath string
}

func NewStore(local *localstore.Store) *Store {
	return &Store{local: local}
}

// Save persists the draft and refreshes the preview handle. Oversized drafts
// skip persistence silently; the preview is still produced because the
// selection itself is live.
func (s *Store) Save(d domain.UploadDraft) error {
	s.refreshPreview(d)

	if int64(len(d.Content)) > MaxPersistBytes {
		commonlog.Debugf("event=draft action=save status=skipped name=%s size=%d", d.Name, len(d.Content))
		return nil
	}

	raw, err := json.Marshal(persistedDraft{
		Name:   d.Name,
		Type:   d.MimeType,
		Base64: base64.StdEncoding.EncodeToString(d.Content),
	})
	if err != nil {
		return err
	}
	return s.local.Set(localstore.KeyUploadDraft, string(raw))
}

// Load reconstructs the saved draft byte for byte. Corrupt or unparsable
// stored data clears the entry and reports absent; it never errors out.
func (s *Store) Load() (domain.UploadDraft, bool) {
	raw, ok := s.local.Get(localstore.KeyUploadDraft)
	if !ok {
		return domain.UploadDraft{}, false
	}

	var p persistedDraft
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		commonlog.Warnf("event=draft action=load status=corrupt error=%v", err)
		s.local.Remove(localstore.KeyUploadDraft)
		return domain.UploadDraft{}, false
	}
	content, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		commonlog.Warnf("event=draft action=load status=corrupt error=%v", err)
		s.local.Remove(localstore.KeyUploadDraft)
		return domain.UploadDraft{}, false
	}

	d := domain.UploadDraft{Name: p.Name, MimeType: p.Type, Content: content}
	s.refreshPreview(d)
	return d, true
}

// Clear drops the draft and releases any preview handle.
func (s *Store) Clear() {
	s.local.Remove(localstore.KeyUploadDraft)
	s.releasePreview()
}

// PreviewPath exposes the transient preview image for the current draft,
// present only for image-typed drafts.
func (s *Store) PreviewPath() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.previewPath == "" {
		return "", false
	}
	return s.previewPath, true
}

// refreshPreview releases the previous handle before creating a new one, so
// repeated selections never leak handles.
func (s *Store) refreshPreview(d domain.UploadDraft) {
	s.releasePreview()
	if !strings.HasPrefix(d.MimeType, "image/") {
		return
	}

	img, _, err := image.Decode(bytes.NewReader(d.Content))
	if err != nil {
		commonlog.Debugf("event=draft action=preview status=undecodable name=%s error=%v", d.Name, err)
		return
	}
	thumb := imaging.Thumbnail(img, previewEdge, previewEdge, imaging.Lanczos)

	f, err := os.CreateTemp("", "signoff_preview_*.jpg")
	if err != nil {
		commonlog.Warnf("event=draft action=preview status=failed error=%v", err)
		return
	}
	if err := imaging.Encode(f, thumb, imaging.JPEG); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		commonlog.Warnf("event=draft action=preview status=failed error=%v", err)
		return
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return
	}

	s.mu.Lock()
	s.previewPath = f.Name()
	s.mu.Unlock()
}

func (s *Store) releasePreview() {
	s.mu.Lock()
	path := s.previewPath
	s.previewPath = ""
	s.mu.Unlock()
	if path != "" {
		_ = os.Remove(path)
	}
}
