// Package capture turns clipboard change notifications into history items.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Decoders for file-drop images
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"markestedt/membrain/history"
)

// ImageExtensions lists the file-drop extensions treated as images.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".webp", ".tif", ".tiff"}

// Source reads the current clipboard contents by format. A format that is not
// present returns a zero value and no error.
type Source interface {
	ReadImage() ([]byte, error)
	ReadFiles() ([]string, error)
	ReadText() (string, error)
}

// History is the part of the history store the watcher writes to.
type History interface {
	PromoteOrInsert(item history.Item)
	WriteBlob(hash string, png []byte) (string, error)
}

// Result describes what one change notification produced.
type Result struct {
	Captured   []history.Item
	Suppressed int
}

// Watcher extracts content from the clipboard on each change notification.
type Watcher struct {
	source  Source
	history History
	gate    *Gate
	now     func() time.Time
}

// NewWatcher creates a watcher that feeds history and filters through gate.
func NewWatcher(source Source, h History, gate *Gate) *Watcher {
	return &Watcher{
		source:  source,
		history: h,
		gate:    gate,
		now:     time.Now,
	}
}

// SetClock overrides the capture timestamp source.
func (w *Watcher) SetClock(now func() time.Time) {
	w.now = now
}

// HandleChange inspects the clipboard in priority order (image, image files,
// text) and inserts what it finds. Read failures are logged and treated as
// nothing to capture; the next notification retries naturally.
func (w *Watcher) HandleChange() Result {
	var res Result

	data, err := w.source.ReadImage()
	if err != nil {
		slog.Debug("Clipboard image unavailable", "error", err)
	} else if len(data) > 0 {
		if item, err := w.imageItem(data); err != nil {
			slog.Debug("Failed to capture clipboard image", "error", err)
		} else {
			w.offer(item, &res)
			return res
		}
	}

	if w.captureFiles(&res) {
		return res
	}

	text, err := w.source.ReadText()
	if err != nil {
		slog.Debug("Clipboard text unavailable", "error", err)
		return res
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return res
	}
	w.offer(history.NewTextItem(text, w.now()), &res)
	return res
}

// captureFiles handles a file-drop list. It returns true only if at least
// one file was inserted, so a list of non-images falls through to text.
func (w *Watcher) captureFiles(res *Result) bool {
	files, err := w.source.ReadFiles()
	if err != nil {
		slog.Debug("Clipboard file list unavailable", "error", err)
		return false
	}

	captured := false
	for i := len(files) - 1; i >= 0; i-- {
		path := files[i]
		if !IsImageFile(path) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		item, err := w.imageItem(data)
		if err != nil {
			slog.Debug("Skipping unreadable image file", "path", path, "error", err)
			continue
		}
		if w.offer(item, res) {
			captured = true
		}
	}
	return captured
}

// offer passes item through the gate and into history.
func (w *Watcher) offer(item history.Item, res *Result) bool {
	if w.gate != nil && w.gate.TryConsume(item.ContentHash) {
		res.Suppressed++
		return false
	}
	w.history.PromoteOrInsert(item)
	res.Captured = append(res.Captured, item)
	return true
}

// imageItem canonicalises encoded image bytes to PNG, stores the blob and
// builds the item.
func (w *Watcher) imageItem(data []byte) (history.Item, error) {
	encoded, width, height, err := CanonicalPNG(data)
	if err != nil {
		return history.Item{}, err
	}

	hash := history.HashImage(encoded)
	path, err := w.history.WriteBlob(hash, encoded)
	if err != nil {
		return history.Item{}, err
	}

	return history.NewImageItem(hash, history.ImageRef{
		Path:   path,
		Width:  width,
		Height: height,
	}, w.now()), nil
}

// CanonicalPNG decodes any supported image format and re-encodes it as PNG.
func CanonicalPNG(data []byte) ([]byte, int, int, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode png: %w", err)
	}

	b := img.Bounds()
	return buf.Bytes(), b.Dx(), b.Dy(), nil
}

// IsImageFile reports whether path has a supported image extension.
func IsImageFile(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range ImageExtensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
