package draft

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signoff/client/domain"
	"signoff/client/localstore"
)

func newStores(t *testing.T) (*localstore.Store, *Store) {
	t.Helper()
	local, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	return local, NewStore(local)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSaveLoadRoundtripIsByteIdentical(t *testing.T) {
	local, s := newStores(t)

	content := []byte("%PDF-1.7 not really a pdf but bytes are bytes \x00\x01\x02")
	d := domain.UploadDraft{Name: "brief.pdf", MimeType: "application/pdf", Content: content}
	require.NoError(t, s.Save(d))

	// A second store over the same directory simulates a restart.
	restarted := NewStore(local)
	got, ok := restarted.Load()
	require.True(t, ok)
	assert.Equal(t, "brief.pdf", got.Name)
	assert.Equal(t, "application/pdf", got.MimeType)
	assert.Equal(t, content, got.Content)
}

func TestOversizedDraftIsNotPersisted(t *testing.T) {
	local, s := newStores(t)

	big := domain.UploadDraft{
		Name:     "raw.psd",
		MimeType: "application/octet-stream",
		Content:  make([]byte, MaxPersistBytes+1),
	}
	require.NoError(t, s.Save(big))

	restarted := NewStore(local)
	_, ok := restarted.Load()
	assert.False(t, ok)
}

func TestCorruptEntryClearsItself(t *testing.T) {
	local, s := newStores(t)

	require.NoError(t, local.Set(localstore.KeyUploadDraft, "{not json"))
	_, ok := s.Load()
	assert.False(t, ok)

	_, ok = local.Get(localstore.KeyUploadDraft)
	assert.False(t, ok)
}

func TestCorruptBase64ClearsItself(t *testing.T) {
	local, s := newStores(t)

	require.NoError(t, local.Set(localstore.KeyUploadDraft, `{"name":"a","type":"text/plain","base64":"!!!"}`))
	_, ok := s.Load()
	assert.False(t, ok)

	_, ok = local.Get(localstore.KeyUploadDraft)
	assert.False(t, ok)
}

func TestClearRemovesDraftAndPreview(t *testing.T) {
	_, s := newStores(t)

	require.NoError(t, s.Save(domain.UploadDraft{Name: "logo.png", MimeType: "image/png", Content: pngBytes(t)}))
	path, ok := s.PreviewPath()
	require.True(t, ok)
	_, err := os.Stat(path)
	require.NoError(t, err)

	s.Clear()
	_, ok = s.Load()
	assert.False(t, ok)
	_, ok = s.PreviewPath()
	assert.False(t, ok)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestReplacingDraftReleasesPreviousPreview(t *testing.T) {
	_, s := newStores(t)
	t.Cleanup(s.Clear)

	require.NoError(t, s.Save(domain.UploadDraft{Name: "a.png", MimeType: "image/png", Content: pngBytes(t)}))
	first, ok := s.PreviewPath()
	require.True(t, ok)

	require.NoError(t, s.Save(domain.UploadDraft{Name: "b.png", MimeType: "image/png", Content: pngBytes(t)}))
	second, ok := s.PreviewPath()
	require.True(t, ok)

	assert.NotEqual(t, first, second)
	_, err := os.Stat(first)
	assert.True(t, os.IsNotExist(err))
}

func TestNonImageDraftHasNoPreview(t *testing.T) {
	_, s := newStores(t)

	require.NoError(t, s.Save(domain.UploadDraft{Name: "notes.txt", MimeType: "text/plain", Content: []byte("hi")}))
	_, ok := s.PreviewPath()
	assert.False(t, ok)
}
