package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStore(filepath.Join(dir, "clipboard-history.json"), filepath.Join(dir, "clipboard-images"))
}

func hashes(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ContentHash
	}
	return out
}

func texts(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Text
	}
	return out
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 1, ClampLimit(-5))
	assert.Equal(t, 1, ClampLimit(0))
	assert.Equal(t, 15, ClampLimit(15))
	assert.Equal(t, 500, ClampLimit(501))
}

func TestPromoteOrInsert(t *testing.T) {
	s := newTestStore(t)

	s.PromoteOrInsert(NewTextItem("hello", t0))
	s.PromoteOrInsert(NewTextItem("world", t0.Add(time.Second)))
	s.PromoteOrInsert(NewTextItem("hello", t0.Add(2*time.Second)))

	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, []string{"hello", "world"}, texts(items))
	assert.Equal(t, t0.Add(2*time.Second), items[0].CapturedAt)
	assert.Equal(t, 0, s.FindIndexByHash(HashText("hello")))
	assert.Equal(t, 1, s.FindIndexByHash(HashText("world")))
	assert.Equal(t, -1, s.FindIndexByHash(HashText("missing")))
}

func TestPromoteOrInsertKeepsTimestampsNonDecreasing(t *testing.T) {
	s := newTestStore(t)

	s.PromoteOrInsert(NewTextItem("later", t0.Add(time.Minute)))
	s.PromoteOrInsert(NewTextItem("earlier clock", t0))

	items := s.Items()
	require.Len(t, items, 2)
	assert.False(t, items[0].CapturedAt.Before(items[1].CapturedAt))
}

func TestTrimAndPersistRoundTrip(t *testing.T) {
	s := newTestStore(t)
	for i, text := range []string{"a", "b", "c"} {
		s.PromoteOrInsert(NewTextItem(text, t0.Add(time.Duration(i)*time.Second)))
	}

	require.NoError(t, s.TrimAndPersist(2))
	assert.Equal(t, []string{"c", "b"}, texts(s.Items()))

	reloaded := NewStore(s.Path(), s.BlobDir())
	items := reloaded.Load(15)
	assert.Equal(t, hashes(s.Items()), hashes(items))
}

func TestTrimAndPersistSweepsEvictedBlobs(t *testing.T) {
	s := newTestStore(t)

	hashA := HashImage([]byte("png-a"))
	pathA, err := s.WriteBlob(hashA, []byte("png-a"))
	require.NoError(t, err)
	s.PromoteOrInsert(NewImageItem(hashA, ImageRef{Path: pathA, Width: 2, Height: 3}, t0))

	s.PromoteOrInsert(NewTextItem("b", t0.Add(time.Second)))
	s.PromoteOrInsert(NewTextItem("c", t0.Add(2*time.Second)))

	// A stray file that was never referenced
	require.NoError(t, os.WriteFile(filepath.Join(s.BlobDir(), "image_stray.png"), []byte("x"), 0644))

	require.NoError(t, s.TrimAndPersist(2))

	assert.NoFileExists(t, pathA)
	assert.NoFileExists(t, filepath.Join(s.BlobDir(), "image_stray.png"))
}

func TestWriteBlobIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	hash := HashImage([]byte("original"))

	path, err := s.WriteBlob(hash, []byte("original"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.BlobDir(), BlobName(hash)), path)

	_, err = s.WriteBlob(hash, []byte("different bytes"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	assert.Empty(t, s.Load(15))
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0644))
	assert.Empty(t, s.Load(15))
}

func TestLoadNormalizesRecords(t *testing.T) {
	s := newTestStore(t)

	blobHash := HashImage([]byte("img"))
	blobPath, err := s.WriteBlob(blobHash, []byte("img"))
	require.NoError(t, err)

	doc := []map[string]any{
		// Legacy numeric kind and PascalCase fields, hash missing
		{"Kind": 0, "Text": "old", "CapturedAtUtc": t0},
		{"kind": "text", "contentHash": HashText("new"), "text": "new", "capturedAtUtc": t0.Add(time.Hour), "extra": true},
		// Duplicate of "new", older
		{"kind": "text", "contentHash": HashText("new"), "text": "new", "capturedAtUtc": t0.Add(-time.Hour)},
		// Blank text
		{"kind": "text", "text": "   ", "capturedAtUtc": t0},
		// Missing blob
		{"kind": "image", "contentHash": "image:gone", "imagePath": filepath.Join(s.BlobDir(), "gone.png"), "capturedAtUtc": t0},
		// Valid image without a hash
		{"kind": "image", "imagePath": blobPath, "imagePixelWidth": 4, "imagePixelHeight": 5, "capturedAtUtc": t0.Add(time.Minute)},
		// Unknown kind
		{"kind": "video", "capturedAtUtc": t0},
	}
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), data, 0644))

	items := s.Load(15)
	require.Len(t, items, 3)

	assert.Equal(t, "new", items[0].Text)
	assert.Equal(t, KindImage, items[1].Kind)
	assert.Equal(t, blobHash, items[1].ContentHash)
	assert.Equal(t, "Image 4x5", items[1].Preview())
	assert.Equal(t, "old", items[2].Text)
	assert.Equal(t, HashText("old"), items[2].ContentHash)
}

func TestLoadTruncatesToLimit(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		s.PromoteOrInsert(NewTextItem(string(rune('a'+i)), t0.Add(time.Duration(i)*time.Second)))
	}
	require.NoError(t, s.TrimAndPersist(500))

	reloaded := NewStore(s.Path(), s.BlobDir())
	items := reloaded.Load(3)
	assert.Equal(t, []string{"j", "i", "h"}, texts(items))

	assert.Len(t, reloaded.Load(0), 1, "limit is clamped to at least one")
}

func TestKindJSON(t *testing.T) {
	data, err := json.Marshal(KindImage)
	require.NoError(t, err)
	assert.Equal(t, `"image"`, string(data))

	var k Kind
	require.NoError(t, json.Unmarshal([]byte(`1`), &k))
	assert.Equal(t, KindImage, k)
	require.NoError(t, json.Unmarshal([]byte(`"Text"`), &k))
	assert.Equal(t, KindText, k)
	assert.Error(t, json.Unmarshal([]byte(`7`), &k))
}
