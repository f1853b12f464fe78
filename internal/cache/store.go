// ABOUTME: Task cache entry contract and store interface
// ABOUTME: Fresh/stale/beyond-stale semantics shared by the memory and redis backends

package cache

import (
	"context"
	"time"

	"github.com/flowctl/engine/pkg/types"
)

// Entry is the stored cache value (§3, §4.5): result plus freshness
// bookkeeping. staleTtl must be >= ttl; the backing store is given a max
// absolute expiration of staleTtl.
type Entry struct {
	Result       *types.TaskExecutionResult
	CreatedAtUtc time.Time
	TTL          time.Duration
	StaleTTL     time.Duration
}

// Age returns how long ago the entry was created.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAtUtc)
}

// IsStale reports age > ttl.
func (e Entry) IsStale(now time.Time) bool {
	return e.Age(now) > e.TTL
}

// IsBeyondStaleTTL reports age > staleTtl.
func (e Entry) IsBeyondStaleTTL(now time.Time) bool {
	return e.Age(now) > e.StaleTTL
}

// Metadata is returned by GetWithMetadata: the entry (nil when beyond
// stale) plus the derived freshness flags.
type Metadata struct {
	Entry            *Entry
	IsStale          bool
	IsBeyondStaleTTL bool
}

// Store is the task cache backing interface (§4.5). Get returns the
// result only while fresh (age <= ttl); GetWithMetadata additionally
// surfaces stale-but-usable entries for the stale-while-revalidate path
// (§4.7). Pattern invalidation is optional (§9); single-key invalidation
// is required.
type Store interface {
	Get(ctx context.Context, key string) (*types.TaskExecutionResult, bool, error)
	GetWithMetadata(ctx context.Context, key string) (Metadata, error)
	Set(ctx context.Context, key string, entry Entry) error
	Invalidate(ctx context.Context, key string) error
	InvalidatePattern(ctx context.Context, pattern string) error
}
