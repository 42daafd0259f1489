package cache

import (
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/printflow-api/internal/domain"
)

// orderListKey is the single key under which the admin listing snapshot is
// cached.
const orderListKey = "orders"

// Options bounds the pipeline caches.
type Options struct {
	// OrderTTL bounds the age of a cached single-order lookup.
	OrderTTL time.Duration

	// OrderListTTL bounds the age of the cached admin listing snapshot.
	OrderListTTL time.Duration

	// ThumbnailMissTTL bounds how long a cached "thumbnail does not exist"
	// result is trusted, so a thumbnail generated shortly after a miss is
	// discovered promptly. Positive existence results never age out:
	// thumbnails are immutable once created.
	ThumbnailMissTTL time.Duration

	// ThumbnailCapacity bounds the existence cache; the oldest entries are
	// evicted past it.
	ThumbnailCapacity int
}

// DefaultOptions returns the cache bounds used in production.
func DefaultOptions() Options {
	return Options{
		OrderTTL:          5 * time.Minute,
		OrderListTTL:      30 * time.Second,
		ThumbnailMissTTL:  15 * time.Second,
		ThumbnailCapacity: 2048,
	}
}

// Pipeline owns the three read-side caches of the ingestion pipeline.
// Mutating operations call the Invalidate methods synchronously before
// reporting success; readers call the getters and fall back to the source
// of truth on a miss.
type Pipeline struct {
	existence *Cache[bool]
	orders    *Cache[*domain.Order]
	orderList *Cache[[]*domain.Order]
	missTTL   time.Duration
}

// NewPipeline creates the pipeline caches with the given bounds.
func NewPipeline(opts Options) *Pipeline {
	return &Pipeline{
		existence: New[bool](0, opts.ThumbnailCapacity),
		orders:    New[*domain.Order](opts.OrderTTL, 0),
		orderList: New[[]*domain.Order](opts.OrderListTTL, 0),
		missTTL:   opts.ThumbnailMissTTL,
	}
}

// SetClock replaces the time source of every cache. Tests use this to
// simulate TTL expiry.
func (p *Pipeline) SetClock(now func() time.Time) {
	p.existence.SetClock(now)
	p.orders.SetClock(now)
	p.orderList.SetClock(now)
}

// ThumbnailExists reports the cached existence of the derived artifact
// under key. The second return value reports whether the cache had an
// unexpired answer at all.
func (p *Pipeline) ThumbnailExists(key string) (exists, known bool) {
	return p.existence.Get(key)
}

// MarkThumbnail records whether the derived artifact under key exists.
// Positive results are kept until evicted by capacity; negative results
// expire after the configured miss TTL.
func (p *Pipeline) MarkThumbnail(key string, exists bool) {
	if exists {
		p.existence.Set(key, true)
		return
	}
	p.existence.SetWithTTL(key, false, p.missTTL)
}

// GetOrder returns the cached order, if present and unexpired.
func (p *Pipeline) GetOrder(id uuid.UUID) (*domain.Order, bool) {
	return p.orders.Get(id.String())
}

// PutOrder caches a single-order lookup.
func (p *Pipeline) PutOrder(order *domain.Order) {
	p.orders.Set(order.ID.String(), order)
}

// GetOrderList returns the cached admin listing snapshot, if unexpired.
func (p *Pipeline) GetOrderList() ([]*domain.Order, bool) {
	return p.orderList.Get(orderListKey)
}

// PutOrderList caches the admin listing snapshot.
func (p *Pipeline) PutOrderList(orders []*domain.Order) {
	p.orderList.Set(orderListKey, orders)
}

// InvalidateOrder drops the cached entry for one order and the listing
// snapshot. Called synchronously by every operation that mutates the order.
func (p *Pipeline) InvalidateOrder(id uuid.UUID) {
	p.orders.Delete(id.String())
	p.orderList.Delete(orderListKey)
}

// InvalidateOrderList drops only the listing snapshot. Called by mutations
// that add or remove orders without touching an existing cached entry.
func (p *Pipeline) InvalidateOrderList() {
	p.orderList.Delete(orderListKey)
}
