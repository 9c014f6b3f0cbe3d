// Package history holds the ordered, deduplicated list of captured clipboard
// items and its on-disk representation.
//
// A Store is not safe for concurrent use. It is owned by a single goroutine
// (the agent loop) and every mutation happens there.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"markestedt/membrain/fileutil"
)

const (
	MinLimit = 1
	MaxLimit = 500
)

// ClampLimit bounds a retention limit to [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	if n < MinLimit {
		return MinLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Store is the in-memory history list backed by a JSON file and a directory
// of content-addressed PNG blobs.
type Store struct {
	path    string
	blobDir string
	items   []Item
}

// NewStore creates a store persisting to historyPath with image blobs under blobDir.
func NewStore(historyPath, blobDir string) *Store {
	return &Store{
		path:    historyPath,
		blobDir: blobDir,
	}
}

// Path returns the history file location.
func (s *Store) Path() string { return s.path }

// BlobDir returns the image blob directory.
func (s *Store) BlobDir() string { return s.blobDir }

// Load replaces the in-memory list with the persisted one. A missing or
// unreadable file yields an empty history; individual bad records are dropped.
func (s *Store) Load(limit int) []Item {
	s.items = nil

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to read history, starting empty", "path", s.path, "error", err)
		}
		return s.Items()
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("History file is corrupt, starting empty", "path", s.path, "error", err)
		return s.Items()
	}

	items := make([]Item, 0, len(records))
	for _, raw := range records {
		var r record
		if err := json.Unmarshal(raw, &r); err != nil {
			slog.Debug("Dropping unreadable history record", "error", err)
			continue
		}
		if it, ok := s.normalize(r); ok {
			items = append(items, it)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CapturedAt.After(items[j].CapturedAt)
	})

	seen := make(map[string]bool, len(items))
	deduped := items[:0]
	for _, it := range items {
		if seen[it.ContentHash] {
			continue
		}
		seen[it.ContentHash] = true
		deduped = append(deduped, it)
	}

	limit = ClampLimit(limit)
	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	s.items = deduped

	slog.Debug("History loaded", "path", s.path, "items", len(s.items))
	return s.Items()
}

func (s *Store) normalize(r record) (Item, bool) {
	switch r.Kind {
	case KindImage:
		if strings.TrimSpace(r.ImagePath) == "" {
			return Item{}, false
		}
		path := r.ImagePath
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.blobDir, path)
		}
		if !fileutil.Exists(path) {
			return Item{}, false
		}
		hash := r.ContentHash
		if hash == "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return Item{}, false
			}
			hash = HashImage(data)
		}
		return NewImageItem(hash, ImageRef{
			Path:   path,
			Width:  r.ImagePixelWidth,
			Height: r.ImagePixelHeight,
		}, r.CapturedAtUtc), true

	case KindText:
		if strings.TrimSpace(r.Text) == "" {
			return Item{}, false
		}
		it := NewTextItem(r.Text, r.CapturedAtUtc)
		if r.ContentHash != "" {
			it.ContentHash = r.ContentHash
		}
		return it, true
	}
	return Item{}, false
}

// Items returns a copy of the list, most recent first.
func (s *Store) Items() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of items.
func (s *Store) Len() int { return len(s.items) }

// At returns the item at index i.
func (s *Store) At(i int) (Item, bool) {
	if i < 0 || i >= len(s.items) {
		return Item{}, false
	}
	return s.items[i], true
}

// FindIndexByHash returns the index of the item with the given hash, or -1.
func (s *Store) FindIndexByHash(hash string) int {
	for i, it := range s.items {
		if it.ContentHash == hash {
			return i
		}
	}
	return -1
}

// PromoteOrInsert puts item at the front, removing any existing entry with
// the same hash. CapturedAt never goes backwards relative to the current head.
func (s *Store) PromoteOrInsert(item Item) {
	if i := s.FindIndexByHash(item.ContentHash); i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	if len(s.items) > 0 && item.CapturedAt.Before(s.items[0].CapturedAt) {
		item.CapturedAt = s.items[0].CapturedAt
	}
	s.items = append([]Item{item}, s.items...)
}

// Trim evicts items beyond limit and returns what was evicted.
func (s *Store) Trim(limit int) []Item {
	limit = ClampLimit(limit)
	if len(s.items) <= limit {
		return nil
	}
	evicted := make([]Item, len(s.items)-limit)
	copy(evicted, s.items[limit:])
	s.items = s.items[:limit]
	return evicted
}

// TrimAndPersist trims to limit, writes the whole list and deletes image
// blobs no longer referenced.
func (s *Store) TrimAndPersist(limit int) error {
	s.Trim(limit)

	records := make([]record, 0, len(s.items))
	for _, it := range s.items {
		records = append(records, toRecord(it))
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	if err := fileutil.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	s.sweepOrphans()
	return nil
}

// BlobPath returns where the image with the given hash is stored.
func (s *Store) BlobPath(hash string) string {
	return filepath.Join(s.blobDir, BlobName(hash))
}

// WriteBlob stores PNG bytes under their content hash. An existing blob is
// left untouched.
func (s *Store) WriteBlob(hash string, png []byte) (string, error) {
	path := s.BlobPath(hash)
	if fileutil.Exists(path) {
		return path, nil
	}
	if err := fileutil.WriteFileAtomic(path, png, 0644); err != nil {
		return "", fmt.Errorf("failed to write image blob: %w", err)
	}
	return path, nil
}

func (s *Store) sweepOrphans() {
	entries, err := os.ReadDir(s.blobDir)
	if err != nil {
		return
	}

	used := make(map[string]bool)
	for _, it := range s.items {
		if it.Kind == KindImage && it.Image != nil {
			used[strings.ToLower(filepath.Base(it.Image.Path))] = true
		}
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".png") {
			continue
		}
		if used[strings.ToLower(name)] {
			continue
		}
		if err := os.Remove(filepath.Join(s.blobDir, name)); err != nil {
			slog.Debug("Failed to remove orphaned image", "file", name, "error", err)
		}
	}
}
