package interview

import (
	"sync/atomic"
	"time"
)

type editorSnapshot struct {
	code      string
	updatedAt time.Time
}

// EditorState holds the latest code reported by the shared editor. Each
// update replaces the whole snapshot in one atomic store, so readers never
// observe a partial write.
type EditorState struct {
	snap atomic.Pointer[editorSnapshot]
}

// Update replaces the code unconditionally.
func (e *EditorState) Update(code string, at time.Time) {
	e.snap.Store(&editorSnapshot{code: code, updatedAt: at})
}

// Snapshot returns the current code and when it was last updated. Both are
// zero before the first update.
func (e *EditorState) Snapshot() (string, time.Time) {
	s := e.snap.Load()
	if s == nil {
		return "", time.Time{}
	}
	return s.code, s.updatedAt
}

// Clear forgets the code.
func (e *EditorState) Clear() {
	e.snap.Store(nil)
}
