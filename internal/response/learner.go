// Package response maintains per-client response-time estimates used to
// time automated chase tasks. Each client key carries one exponentially
// weighted moving average that is updated on every observed sample.
package response

import (
	"context"
	"sync"
	"time"
)

const (
	// emaAlpha weights new samples against the running average.
	emaAlpha = 0.3
	// maxCount caps the stored sample count.
	maxCount = 1000

	// DefaultChaseDelay is returned for clients with no samples yet.
	DefaultChaseDelay = 48 * time.Hour
	minChaseDelay     = 24 * time.Hour
	maxChaseDelay     = 72 * time.Hour
	// chaseFactor schedules the follow-up somewhat before the client's
	// typical response time.
	chaseFactor = 0.75
)

// ClientResponseStat is the persisted estimate for one client key.
type ClientResponseStat struct {
	Count     int       `json:"count"`
	AvgMs     float64   `json:"avg_ms"`
	LastMs    int64     `json:"last_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists ClientResponseStat records across evaluation ticks.
// Get returns nil with no error for an unknown client key.
type Store interface {
	Get(ctx context.Context, clientKey string) (*ClientResponseStat, error)
	Put(ctx context.Context, clientKey string, stat ClientResponseStat) error
}

// Learner updates and queries response stats. Updates to a given client
// key are serialized through a per-key mutex so concurrent stage-change
// notifications cannot corrupt the running average.
type Learner struct {
	store Store
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewLearner(store Store) *Learner {
	return &Learner{
		store: store,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
}

func (l *Learner) keyLock(clientKey string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[clientKey]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[clientKey] = lock
	}
	return lock
}

// Observe folds a new response-time sample into the client's EMA. The
// first sample seeds the average directly.
func (l *Learner) Observe(ctx context.Context, clientKey string, sample time.Duration) (ClientResponseStat, error) {
	lock := l.keyLock(clientKey)
	lock.Lock()
	defer lock.Unlock()

	sampleMs := sample.Milliseconds()

	stat, err := l.store.Get(ctx, clientKey)
	if err != nil {
		return ClientResponseStat{}, err
	}

	var next ClientResponseStat
	if stat == nil {
		next = ClientResponseStat{Count: 1, AvgMs: float64(sampleMs)}
	} else {
		next = ClientResponseStat{
			Count: min(stat.Count+1, maxCount),
			AvgMs: emaAlpha*float64(sampleMs) + (1-emaAlpha)*stat.AvgMs,
		}
	}
	next.LastMs = sampleMs
	next.UpdatedAt = l.now().UTC()

	if err := l.store.Put(ctx, clientKey, next); err != nil {
		return ClientResponseStat{}, err
	}
	return next, nil
}

// RecommendChaseDelay returns how long to wait before chasing a client
// for feedback: 75% of the learned average, clamped to 24-72h. Clients
// with no history get the 48h default. Store errors also fall back to
// the default so task scheduling never fails on a stats hiccup.
func (l *Learner) RecommendChaseDelay(ctx context.Context, clientKey string) time.Duration {
	stat, err := l.store.Get(ctx, clientKey)
	if err != nil || stat == nil || stat.Count == 0 {
		return DefaultChaseDelay
	}

	delay := time.Duration(chaseFactor * stat.AvgMs * float64(time.Millisecond))
	if delay < minChaseDelay {
		return minChaseDelay
	}
	if delay > maxChaseDelay {
		return maxChaseDelay
	}
	return delay
}
