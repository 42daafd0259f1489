package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/cache"
	"github.com/phrazzld/printflow-api/internal/domain"
	"github.com/phrazzld/printflow-api/internal/objectstore"
	"github.com/phrazzld/printflow-api/internal/store"
	"github.com/phrazzld/printflow-api/internal/task"
)

// ManagerConfig holds the tunables of the session manager.
type ManagerConfig struct {
	// SessionTTL is how long a session may stay open after creation.
	// If zero, defaults to 30 minutes.
	SessionTTL time.Duration

	// ChunkRetryAttempts bounds the internal retries of a failing chunk
	// write before ErrChunkWriteFailed surfaces. If zero, defaults to 3.
	ChunkRetryAttempts int

	// ChunkRetryDelay is the pause between chunk write retries.
	// If zero, defaults to 100ms.
	ChunkRetryDelay time.Duration
}

// DefaultManagerConfig returns the session tunables used in production.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		SessionTTL:         30 * time.Minute,
		ChunkRetryAttempts: 3,
		ChunkRetryDelay:    100 * time.Millisecond,
	}
}

// ChunkResult reports the session's progress after a chunk is accepted.
type ChunkResult struct {
	// FileComplete is true once every chunk of the file has been received
	// and the combined blob has been validated and stored.
	FileComplete bool

	// OrderReady is true once every declared file of the session is
	// complete. The client is expected to call CommitSession next.
	OrderReady bool
}

// session pairs the domain record with its lock and commit stash. All field
// access after creation happens under mu.
type session struct {
	mu   sync.Mutex
	data *domain.UploadSession

	// committedOrder survives a commit whose database write failed, so a
	// retried commit reuses the same order instead of minting a new one.
	committedOrder *domain.Order
}

// Manager owns all in-flight upload sessions. Mutations of a given session
// are serialized behind that session's lock; different sessions proceed in
// parallel. The manager itself holds only a short-lived lock on the session
// index.
type Manager struct {
	objects objectstore.Store
	orders  store.OrderStore
	queue   task.Queue
	caches  *cache.Pipeline
	config  ManagerConfig
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*session

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewManager creates a session manager.
func NewManager(
	objects objectstore.Store,
	orders store.OrderStore,
	queue task.Queue,
	caches *cache.Pipeline,
	config ManagerConfig,
	logger *slog.Logger,
) *Manager {
	if config.SessionTTL <= 0 {
		config.SessionTTL = 30 * time.Minute
	}
	if config.ChunkRetryAttempts <= 0 {
		config.ChunkRetryAttempts = 3
	}
	if config.ChunkRetryDelay <= 0 {
		config.ChunkRetryDelay = 100 * time.Millisecond
	}
	return &Manager{
		objects:  objects,
		orders:   orders,
		queue:    queue,
		caches:   caches,
		config:   config,
		logger:   logger,
		sessions: make(map[uuid.UUID]*session),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

// SetClock overrides the manager's time source. Tests use it to simulate
// session expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// BeginSession validates the draft and opens a session for it. The returned
// session carries the id the client uses for every subsequent call.
func (m *Manager) BeginSession(ctx context.Context, draft domain.OrderDraft) (*domain.UploadSession, error) {
	if err := draft.Validate(); err != nil {
		return nil, err
	}

	s := domain.NewUploadSession(draft, m.config.SessionTTL)

	m.mu.Lock()
	m.sessions[s.ID] = &session{data: s}
	m.mu.Unlock()

	m.logger.Info("upload session opened",
		"session_id", s.ID,
		"order_number", s.OrderNumber,
		"declared_files", len(s.Files),
		"expires_at", s.ExpiresAt)
	return s, nil
}

// AcceptChunk records one chunk of one file. Resubmitting an already
// received index is a no-op, which lets clients retry blindly; a resubmit
// after all chunks arrived re-triggers a combine that previously failed.
func (m *Manager) AcceptChunk(ctx context.Context, sessionID uuid.UUID, filename string, chunkIndex, totalChunks int, data []byte) (ChunkResult, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return ChunkResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check membership and expiry under the session lock: an in-flight
	// accept racing a commit or the sweep must fail fast rather than
	// silently write into the evicted session's storage.
	if !m.active(sessionID) {
		return ChunkResult{}, ErrSessionNotFound
	}
	if s.data.Expired(m.clock()()) {
		m.evict(ctx, sessionID)
		return ChunkResult{}, ErrSessionNotFound
	}

	progress, ok := s.data.Files[filename]
	if !ok {
		return ChunkResult{}, fmt.Errorf("%w: file %q was not declared by the session", domain.ErrValidation, filename)
	}
	if totalChunks <= 0 {
		return ChunkResult{}, fmt.Errorf("%w: total chunks must be positive", domain.ErrValidation)
	}
	if progress.TotalChunks != 0 && progress.TotalChunks != totalChunks {
		return ChunkResult{}, fmt.Errorf("%w: total chunks changed from %d to %d for %q",
			domain.ErrValidation, progress.TotalChunks, totalChunks, filename)
	}
	if chunkIndex < 0 || chunkIndex >= totalChunks {
		return ChunkResult{}, fmt.Errorf("%w: chunk index %d out of range [0,%d)", domain.ErrValidation, chunkIndex, totalChunks)
	}
	progress.TotalChunks = totalChunks

	if _, dup := progress.ChunksReceived[chunkIndex]; !dup {
		if err := m.writeChunk(ctx, chunkKey(sessionID, filename, chunkIndex), data); err != nil {
			return ChunkResult{}, err
		}
		progress.ChunksReceived[chunkIndex] = struct{}{}
	}

	if progress.AllChunksReceived() && !progress.Combined {
		if err := m.combine(ctx, s.data, filename, progress); err != nil {
			return ChunkResult{}, err
		}
	}

	return ChunkResult{
		FileComplete: progress.Combined,
		OrderReady:   s.data.OrderReady(),
	}, nil
}

// CommitSession turns a ready session into a durable order: uploads each
// combined file under its final key, creates the order and items
// transactionally, enqueues the thumbnail and notification tasks, and
// deletes the session. If the database write fails the session stays open
// and a retried commit reuses the same order, so no duplicate is created.
func (m *Manager) CommitSession(ctx context.Context, sessionID uuid.UUID) (*domain.Order, error) {
	s, err := m.lookup(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A commit that queued behind a winning commit of the same session
	// must observe the eviction, not re-run the fan-out on stale state.
	if !m.active(sessionID) {
		return nil, ErrSessionNotFound
	}
	if s.data.Expired(m.clock()()) {
		m.evict(ctx, sessionID)
		return nil, ErrSessionNotFound
	}
	if !s.data.OrderReady() {
		return nil, ErrSessionNotReady
	}

	order := s.committedOrder
	if order == nil {
		order, err = domain.NewOrder(s.data.OrderNumber, s.data.Draft)
		if err != nil {
			return nil, err
		}
		for i := range order.Items {
			order.Items[i].FileKey = finalKey(order.OrderNumber, s.data.Draft.Items[i].Filename)
		}
		s.committedOrder = order
	}

	// Final puts are idempotent overwrites, safe on commit retry.
	for i, item := range s.data.Draft.Items {
		blob, err := m.objects.Get(ctx, combinedKey(sessionID, item.Filename))
		if err != nil {
			return nil, fmt.Errorf("failed to read combined file %q: %w", item.Filename, err)
		}
		if err := m.objects.Put(ctx, order.Items[i].FileKey, blob); err != nil {
			return nil, fmt.Errorf("failed to store order file %q: %w", item.Filename, err)
		}
	}

	if err := m.orders.CreateWithItems(ctx, order); err != nil {
		// A duplicate order number means a previous commit attempt already
		// persisted this session's order; treat it as success.
		if !errors.Is(err, store.ErrOrderNumberExists) {
			return nil, fmt.Errorf("failed to persist order %s: %w", order.OrderNumber, err)
		}
	}

	m.enqueueOrderTasks(ctx, order)
	m.caches.InvalidateOrderList()

	m.evict(ctx, sessionID)

	m.logger.Info("upload session committed",
		"session_id", sessionID,
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"items", len(order.Items))
	return order, nil
}

// ExpireSessions sweeps every session whose TTL has passed, discarding its
// temporary chunk storage. Returns how many sessions were expired.
func (m *Manager) ExpireSessions(ctx context.Context) int {
	now := m.clock()()

	m.mu.Lock()
	var expired []uuid.UUID
	for id, s := range m.sessions {
		if s.data.Expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.evict(ctx, id)
		m.logger.Info("upload session expired", "session_id", id)
	}
	return len(expired)
}

// SessionCount reports the number of open sessions.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// lookup returns the live session or ErrSessionNotFound, sweeping it lazily
// when the TTL has passed.
func (m *Manager) lookup(ctx context.Context, id uuid.UUID) (*session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	now := m.now()
	m.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.data.Expired(now) {
		m.evict(ctx, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// active reports whether the session is still in the index. Callers
// holding a session lock use it to detect an eviction that happened while
// they were queued on that lock.
func (m *Manager) active(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// clock returns the current time source under the index lock.
func (m *Manager) clock() func() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// evict drops the session from the index and discards its temporary
// storage. Storage cleanup is best-effort; orphaned keys are harmless.
func (m *Manager) evict(ctx context.Context, id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	prefix := sessionPrefix(id)
	keys, err := m.objects.List(ctx, prefix)
	if err != nil {
		m.logger.Warn("failed to list session storage for cleanup",
			"session_id", id, "error", err)
		return
	}
	for _, key := range keys {
		if err := m.objects.Delete(ctx, key); err != nil {
			m.logger.Warn("failed to delete session object",
				"session_id", id, "key", key, "error", err)
		}
	}
}

// writeChunk persists one chunk with bounded retry before surfacing
// ErrChunkWriteFailed.
func (m *Manager) writeChunk(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= m.config.ChunkRetryAttempts; attempt++ {
		lastErr = m.objects.Put(ctx, key, data)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < m.config.ChunkRetryAttempts {
			m.sleep(ctx, m.config.ChunkRetryDelay)
		}
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrChunkWriteFailed, key, m.config.ChunkRetryAttempts, lastErr)
}

// combine concatenates the file's chunks in index order, validates the
// result, stores it under the session's combined key, and deletes the
// fragments. An invalid result rolls the file back so the client can
// replace it; a transient storage failure keeps the received chunks, and a
// resubmitted chunk re-triggers the combine. The caller holds the session
// lock.
func (m *Manager) combine(ctx context.Context, data *domain.UploadSession, filename string, progress *domain.FileProgress) error {
	var blob []byte
	for i := 0; i < progress.TotalChunks; i++ {
		chunk, err := m.objects.Get(ctx, chunkKey(data.ID, filename, i))
		if err != nil {
			return fmt.Errorf("%w: reading chunk %d of %q: %v", ErrCombineFailed, i, filename, err)
		}
		blob = append(blob, chunk...)
	}

	if err := ValidateCombinedFile(blob); err != nil {
		m.rollbackFile(ctx, data.ID, filename, progress)
		m.logger.Warn("combined file rejected",
			"session_id", data.ID,
			"filename", filename,
			"error", err)
		return err
	}

	if err := m.objects.Put(ctx, combinedKey(data.ID, filename), blob); err != nil {
		return fmt.Errorf("%w: storing combined %q: %v", ErrCombineFailed, filename, err)
	}

	for i := 0; i < progress.TotalChunks; i++ {
		if err := m.objects.Delete(ctx, chunkKey(data.ID, filename, i)); err != nil {
			m.logger.Warn("failed to delete chunk fragment",
				"session_id", data.ID,
				"filename", filename,
				"chunk_index", i,
				"error", err)
		}
	}

	progress.Combined = true
	m.logger.Info("file combined",
		"session_id", data.ID,
		"filename", filename,
		"size_bytes", len(blob))
	return nil
}

// rollbackFile resets a rejected file to empty so the client can resubmit
// it from scratch.
func (m *Manager) rollbackFile(ctx context.Context, sessionID uuid.UUID, filename string, progress *domain.FileProgress) {
	for i := range progress.ChunksReceived {
		if err := m.objects.Delete(ctx, chunkKey(sessionID, filename, i)); err != nil {
			m.logger.Warn("failed to delete rejected chunk",
				"session_id", sessionID,
				"filename", filename,
				"chunk_index", i,
				"error", err)
		}
	}
	progress.ChunksReceived = make(map[int]struct{})
	progress.TotalChunks = 0
	progress.Combined = false
}

// enqueueOrderTasks enqueues one thumbnail task per item plus the two
// notifications. Enqueue failures are logged, never returned: the order is
// already durable, and the periodic sweep re-enqueues missing thumbnails.
func (m *Manager) enqueueOrderTasks(ctx context.Context, order *domain.Order) {
	for _, item := range order.Items {
		t, err := task.New(task.KindThumbnail, task.ThumbnailPayload{FileKey: item.FileKey})
		if err == nil {
			err = m.queue.Enqueue(ctx, t)
		}
		if err != nil {
			m.logger.Error("failed to enqueue thumbnail task",
				"order_number", order.OrderNumber,
				"file_key", item.FileKey,
				"error", err)
		}
	}
	for _, kind := range []task.Kind{task.KindNotifyCustomer, task.KindNotifyProduction} {
		t, err := task.New(kind, task.NotificationPayload{OrderID: order.ID})
		if err == nil {
			err = m.queue.Enqueue(ctx, t)
		}
		if err != nil {
			m.logger.Error("failed to enqueue notification task",
				"order_number", order.OrderNumber,
				"task_kind", kind,
				"error", err)
		}
	}
}

func sessionPrefix(id uuid.UUID) string {
	return fmt.Sprintf("sessions/%s/", id)
}

func chunkKey(id uuid.UUID, filename string, index int) string {
	return fmt.Sprintf("sessions/%s/%s/chunk.%06d", id, filename, index)
}

func combinedKey(id uuid.UUID, filename string) string {
	return fmt.Sprintf("sessions/%s/%s/combined", id, filename)
}

func finalKey(orderNumber, filename string) string {
	return fmt.Sprintf("orders/%s/%s", orderNumber, filename)
}

// sleepCtx pauses for d, returning early when ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
