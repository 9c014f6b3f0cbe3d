package capture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"markestedt/membrain/history"
)

type fakeSource struct {
	image    []byte
	imageErr error
	files    []string
	text     string
	textErr  error
}

func (f *fakeSource) ReadImage() ([]byte, error)   { return f.image, f.imageErr }
func (f *fakeSource) ReadFiles() ([]string, error) { return f.files, nil }
func (f *fakeSource) ReadText() (string, error)    { return f.text, f.textErr }

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func newTestWatcher(t *testing.T, src Source) (*Watcher, *history.Store, *Gate) {
	t.Helper()
	dir := t.TempDir()
	store := history.NewStore(filepath.Join(dir, "clipboard-history.json"), filepath.Join(dir, "clipboard-images"))
	gate := &Gate{}
	w := NewWatcher(src, store, gate)
	w.SetClock(func() time.Time { return now })
	return w, store, gate
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x * 10), A: 255})
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestHandleChangeText(t *testing.T) {
	src := &fakeSource{text: "  hello\r\n"}
	w, store, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	require.Len(t, res.Captured, 1)
	assert.Equal(t, "hello", res.Captured[0].Text)
	assert.Equal(t, history.HashText("hello"), res.Captured[0].ContentHash)
	assert.Equal(t, now, res.Captured[0].CapturedAt)
	assert.Equal(t, 1, store.Len())
}

func TestHandleChangeBlankText(t *testing.T) {
	src := &fakeSource{text: " \t\r\n "}
	w, store, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	assert.Empty(t, res.Captured)
	assert.Equal(t, 0, store.Len())
}

func TestHandleChangeSwallowsErrors(t *testing.T) {
	src := &fakeSource{imageErr: errors.New("clipboard locked"), textErr: errors.New("clipboard locked")}
	w, store, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	assert.Empty(t, res.Captured)
	assert.Equal(t, 0, store.Len())
}

func TestHandleChangeImageWinsOverText(t *testing.T) {
	src := &fakeSource{image: encodePNG(t, testImage(4, 3)), text: "ignored"}
	w, store, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	require.Len(t, res.Captured, 1)
	item := res.Captured[0]
	assert.Equal(t, history.KindImage, item.Kind)
	require.NotNil(t, item.Image)
	assert.Equal(t, 4, item.Image.Width)
	assert.Equal(t, 3, item.Image.Height)
	assert.FileExists(t, item.Image.Path)
	assert.Equal(t, history.BlobName(item.ContentHash), filepath.Base(item.Image.Path))

	stored, err := os.ReadFile(item.Image.Path)
	require.NoError(t, err)
	assert.Equal(t, history.HashImage(stored), item.ContentHash)
	assert.Equal(t, 1, store.Len())
}

func TestHandleChangeCorruptImageFallsThroughToText(t *testing.T) {
	src := &fakeSource{image: []byte("not an image"), text: "fallback"}
	w, _, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	require.Len(t, res.Captured, 1)
	assert.Equal(t, "fallback", res.Captured[0].Text)
}

func TestHandleChangeFileDrop(t *testing.T) {
	dir := t.TempDir()

	first := filepath.Join(dir, "first.png")
	require.NoError(t, os.WriteFile(first, encodePNG(t, testImage(2, 2)), 0644))

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, testImage(5, 5), nil))
	second := filepath.Join(dir, "second.JPG")
	require.NoError(t, os.WriteFile(second, jpg.Bytes(), 0644))

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("text"), 0644))

	src := &fakeSource{files: []string{first, notes, second, filepath.Join(dir, "missing.png")}, text: "ignored"}
	w, store, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	require.Len(t, res.Captured, 2)

	// Walked in reverse, each promoted to the front in turn
	assert.Equal(t, 5, res.Captured[0].Image.Width)
	assert.Equal(t, 2, res.Captured[1].Image.Width)
	items := store.Items()
	assert.Equal(t, 2, items[0].Image.Width)
	assert.Equal(t, 5, items[1].Image.Width)
}

func TestHandleChangeFileDropWithoutImagesFallsThrough(t *testing.T) {
	dir := t.TempDir()
	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("text"), 0644))

	src := &fakeSource{files: []string{notes}, text: notes}
	w, _, _ := newTestWatcher(t, src)

	res := w.HandleChange()
	require.Len(t, res.Captured, 1)
	assert.Equal(t, history.KindText, res.Captured[0].Kind)
}

func TestHandleChangeSuppressed(t *testing.T) {
	src := &fakeSource{text: "b"}
	w, store, gate := newTestWatcher(t, src)
	gate.Arm(history.HashText("b"))

	res := w.HandleChange()
	assert.Empty(t, res.Captured)
	assert.Equal(t, 1, res.Suppressed)
	assert.Equal(t, 0, store.Len())

	// Consumed once; the next identical change is captured
	res = w.HandleChange()
	assert.Len(t, res.Captured, 1)
}

func TestIsImageFile(t *testing.T) {
	for _, p := range []string{"a.png", "b.JPEG", "c.tif", "d.webp"} {
		assert.True(t, IsImageFile(p), p)
	}
	for _, p := range []string{"a.txt", "noext", "b.png.bak"} {
		assert.False(t, IsImageFile(p), p)
	}
}
