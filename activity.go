package main

import (
	"log/slog"
	"os"
	"strings"

	"markestedt/membrain/history"
	"markestedt/membrain/storage"
)

// activity sits between the watcher and the history store and records each
// capture in the activity log. db may be nil.
type activity struct {
	store *history.Store
	db    *storage.DB
}

func newActivity(store *history.Store, db *storage.DB) *activity {
	return &activity{store: store, db: db}
}

// PromoteOrInsert records a capture or, for content already in history, a
// promotion.
func (r *activity) PromoteOrInsert(item history.Item) {
	typ := storage.EventCapture
	if r.store.FindIndexByHash(item.ContentHash) >= 0 {
		typ = storage.EventPromote
	}
	r.store.PromoteOrInsert(item)
	r.record(typ, item.ContentHash, r.size(item))
}

func (r *activity) WriteBlob(hash string, png []byte) (string, error) {
	return r.store.WriteBlob(hash, png)
}

func (r *activity) record(typ storage.EventType, hash string, size int64) {
	if r.db == nil || hash == "" {
		return
	}
	kind, _, _ := strings.Cut(hash, ":")
	if err := r.db.SaveEvent(&storage.Event{
		Type:        typ,
		Kind:        kind,
		ContentHash: hash,
		SizeBytes:   size,
	}); err != nil {
		slog.Debug("Failed to record activity", "type", typ, "error", err)
	}
}

func (r *activity) size(item history.Item) int64 {
	if item.Kind == history.KindText {
		return int64(len(item.Text))
	}
	if item.Image == nil {
		return 0
	}
	info, err := os.Stat(item.Image.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}
