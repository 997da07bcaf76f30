// Package dedupe tracks processed event ids so that webhook deliveries are
// handled at most once within a retention window.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/larkgate/pkg/logger"
	"github.com/okian/larkgate/pkg/metrics"
)

// fullWarnEvery spaces out the warning logged while the store is full.
const fullWarnEvery = 1000

// DefaultTTL is how long a processed event id is remembered.
const DefaultTTL = 10 * time.Minute

// Deduper records seen event IDs to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// IsProcessed reports whether id is currently retained. No side effects.
	IsProcessed(ctx context.Context, id string) bool

	// MarkProcessed records id with the current time. Recording an id that
	// is already retained is a no-op.
	MarkProcessed(ctx context.Context, id string)

	// Unrecord removes an ID so a later delivery can be processed. Only used
	// when an accepted event never reached the background pipeline.
	Unrecord(ctx context.Context, id string)

	// CleanupExpired drops every id recorded more than ttl ago and returns
	// how many were dropped.
	CleanupExpired(ctx context.Context, ttl time.Duration) int

	Size() int64
}

// node is an entry in the insertion-ordered list.
type node struct {
	id         string
	recordedAt time.Time
	prev, next *node
}

func (n *node) reset() {
	n.id = ""
	n.recordedAt = time.Time{}
	n.prev, n.next = nil, nil
}

// inMemoryDeduper keeps ids in a map plus a doubly linked list ordered by
// record time (oldest at head). Because the clock only moves forward the
// list stays sorted, so expiry and size eviction both pop from the head.
type inMemoryDeduper struct {
	mu       sync.Mutex
	seen     map[string]*node
	head     *node
	tail     *node
	ttl      time.Duration
	maxSize  int // 0 or negative means unbounded
	now      func() time.Time
	size     atomic.Int64
	nodePool sync.Pool

	// full counts unexpired ids evicted for capacity.
	full   int64
	logger logger.Logger
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		ttl:     DefaultTTL,
		maxSize: 100_000,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*node)
	d.logger = logger.Get().Named("dedupe")
	d.nodePool = sync.Pool{New: func() interface{} { return &node{} }}
	return d
}

func (d *inMemoryDeduper) expired(n *node, now time.Time) bool {
	return d.ttl > 0 && now.Sub(n.recordedAt) > d.ttl
}

// SeenAndRecord is the check-and-insert used by the webhook gate.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if n, ok := d.seen[id]; ok {
		if !d.expired(n, now) {
			return true
		}
		d.removeLocked(n)
	}
	d.insertLocked(id, now)
	return false
}

func (d *inMemoryDeduper) IsProcessed(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.seen[id]
	return ok && !d.expired(n, d.now())
}

func (d *inMemoryDeduper) MarkProcessed(ctx context.Context, id string) {
	_ = d.SeenAndRecord(ctx, id)
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n, ok := d.seen[id]; ok {
		d.removeLocked(n)
	}
}

func (d *inMemoryDeduper) CleanupExpired(_ context.Context, ttl time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := d.now().Add(-ttl)
	removed := 0
	for d.head != nil && d.head.recordedAt.Before(cutoff) {
		d.removeLocked(d.head)
		removed++
	}
	return removed
}

// Size returns the current number of entries in the deduper.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// insertLocked appends id at the tail, evicting the oldest entry first when
// the store is at capacity. Must be called with d.mu held.
func (d *inMemoryDeduper) insertLocked(id string, now time.Time) {
	if d.maxSize > 0 && len(d.seen) >= d.maxSize && d.head != nil {
		oldest := d.head
		if !d.expired(oldest, now) {
			d.evictFullLocked(oldest, now)
		}
		d.removeLocked(oldest)
	}

	n := d.nodePool.Get().(*node)
	n.id = id
	n.recordedAt = now
	n.prev = d.tail
	if d.tail != nil {
		d.tail.next = n
	} else {
		d.head = n
	}
	d.tail = n
	d.seen[id] = n
	d.size.Add(1)
}

// evictFullLocked reports that n is dropped while still inside the
// retention window, so a redelivery of n.id would be processed again.
func (d *inMemoryDeduper) evictFullLocked(n *node, now time.Time) {
	metrics.RecordDedupeCapacityEviction()
	d.full++
	if d.full%fullWarnEvery == 1 {
		d.logger.Warn(context.Background(), "dedupe store full, evicting unexpired ids",
			logger.Int("max_size", d.maxSize),
			logger.Duration("oldest_age", now.Sub(n.recordedAt)),
			logger.Int64("evicted_total", d.full),
		)
	}
}

// removeLocked unlinks n and returns it to the pool. Must be called with d.mu held.
func (d *inMemoryDeduper) removeLocked(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		d.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		d.tail = n.prev
	}
	delete(d.seen, n.id)
	n.reset()
	d.nodePool.Put(n)
	d.size.Add(-1)
}
