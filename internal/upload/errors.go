package upload

import "errors"

// Errors surfaced to the request layer.
var (
	// ErrSessionNotFound is returned when the session id is unknown or the
	// session has expired. Expired sessions are swept lazily: the first
	// touch after expiry deletes them and returns this error.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrSessionNotReady is returned by CommitSession when at least one
	// declared file has not been fully received and combined.
	ErrSessionNotReady = errors.New("upload session not ready to commit")

	// ErrChunkWriteFailed is returned when a chunk could not be persisted
	// to temporary storage after bounded retries. The chunk is not recorded
	// as received; the client is expected to resubmit it.
	ErrChunkWriteFailed = errors.New("chunk write failed")

	// ErrCombineFailed is returned when reassembling a fully received file
	// fails for a transient storage reason. Received chunks are kept;
	// resubmitting any chunk of the file re-triggers the combine.
	ErrCombineFailed = errors.New("file combine failed")
)
