package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadSession tracks the in-progress reassembly of one draft order's
// chunked file uploads. Sessions are in-memory records; the chunk bytes
// themselves live in session-scoped temporary object storage.
//
// UploadSession itself carries no locking. Concurrent access for a given
// session is serialized by the upload manager's per-session lock.
type UploadSession struct {
	ID          uuid.UUID
	Draft       OrderDraft
	OrderNumber string // allocated at session creation so commit retries are idempotent
	Files       map[string]*FileProgress
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// FileProgress records which chunks of a declared file have been received.
type FileProgress struct {
	ChunksReceived map[int]struct{}
	TotalChunks    int
	// Combined is set once all chunks have been concatenated in index order
	// into a single validated blob. A file counts as complete only when
	// Combined is true, not merely when every chunk has arrived, so that a
	// failed combine can be retried by resubmitting any chunk.
	Combined bool
}

// NewUploadSession creates a session for the given draft with one empty
// FileProgress per declared item.
func NewUploadSession(draft OrderDraft, ttl time.Duration) *UploadSession {
	now := time.Now().UTC()
	files := make(map[string]*FileProgress, len(draft.Items))
	for _, item := range draft.Items {
		files[item.Filename] = &FileProgress{ChunksReceived: make(map[int]struct{})}
	}
	return &UploadSession{
		ID:          uuid.New(),
		Draft:       draft,
		OrderNumber: NewOrderNumber(),
		Files:       files,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Expired reports whether the session's TTL has passed at the given time.
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// AllChunksReceived reports whether every declared chunk of the file has
// arrived. TotalChunks is zero until the first chunk is accepted.
func (p *FileProgress) AllChunksReceived() bool {
	return p.TotalChunks > 0 && len(p.ChunksReceived) == p.TotalChunks
}

// OrderReady reports whether every declared file of the session has been
// fully received and combined. The caller must hold the session's lock.
func (s *UploadSession) OrderReady() bool {
	for _, progress := range s.Files {
		if !progress.Combined {
			return false
		}
	}
	return len(s.Files) > 0
}
