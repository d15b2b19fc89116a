package ratelimiter

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	bucketKeyPrefix   = "rl:bucket:"
	lastFillKeyPrefix = "rl:fill:"
)

// Limiter is a token bucket per source key. The gateway keys it by
// connection id to throttle inbound frames.
type Limiter interface {
	Allow(sourceKey string) bool
	Remaining(sourceKey string) int
	Forget(sourceKey string)
	GetMaxBurst() int
}

type RateLimiter struct {
	maxRatePerMillisecond float64
	maxBurst              int
	cache                 GetterSetter
	cacheTTL              time.Duration
	clock                 clock.Clock
	// per-key locks keep read-refill-write atomic for each source
	locks sync.Map // map[string]*sync.Mutex
}

func (rl *RateLimiter) getLock(sourceKey string) *sync.Mutex {
	lock, _ := rl.locks.LoadOrStore(sourceKey, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

type bucketState struct {
	tokens   int
	lastFill int64 // Unix milliseconds
}

func (rl *RateLimiter) full(now int64) bucketState {
	return bucketState{tokens: rl.maxBurst, lastFill: now}
}

func (rl *RateLimiter) getState(sourceKey string, now int64) bucketState {
	bucket, bucketErr := rl.cache.Get(bucketKeyPrefix + sourceKey)
	lastFill, fillErr := rl.cache.Get(lastFillKeyPrefix + sourceKey)

	if errors.Is(bucketErr, ErrCacheMiss) || errors.Is(fillErr, ErrCacheMiss) {
		return rl.full(now)
	}
	// fail open on cache errors
	if bucketErr != nil || fillErr != nil {
		return rl.full(now)
	}

	return bucketState{tokens: int(bucket), lastFill: lastFill}
}

func (rl *RateLimiter) setState(sourceKey string, state bucketState) {
	_ = rl.cache.SetWithExpiration(bucketKeyPrefix+sourceKey, int64(state.tokens), rl.cacheTTL)
	_ = rl.cache.SetWithExpiration(lastFillKeyPrefix+sourceKey, state.lastFill, rl.cacheTTL)
}

// refillTokens adds whole tokens for the elapsed time and only advances
// lastFill by the time those tokens account for, so slow rates still
// accumulate between frequent calls.
func (rl *RateLimiter) refillTokens(state bucketState, now int64) bucketState {
	elapsed := now - state.lastFill
	if elapsed <= 0 || rl.maxRatePerMillisecond <= 0 {
		return state
	}

	added := int(float64(elapsed) * rl.maxRatePerMillisecond)
	if added == 0 {
		return state
	}

	if state.tokens+added >= rl.maxBurst {
		return rl.full(now)
	}

	return bucketState{
		tokens:   state.tokens + added,
		lastFill: state.lastFill + int64(float64(added)/rl.maxRatePerMillisecond),
	}
}

func (rl *RateLimiter) Remaining(sourceKey string) int {
	lock := rl.getLock(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	now := rl.clock.Now().UnixMilli()
	state := rl.getState(sourceKey, now)
	newState := rl.refillTokens(state, now)

	if newState != state {
		rl.setState(sourceKey, newState)
	}

	return newState.tokens
}

func (rl *RateLimiter) GetMaxBurst() int {
	return rl.maxBurst
}

func (rl *RateLimiter) Allow(sourceKey string) bool {
	lock := rl.getLock(sourceKey)
	lock.Lock()
	defer lock.Unlock()

	now := rl.clock.Now().UnixMilli()
	state := rl.getState(sourceKey, now)
	newState := rl.refillTokens(state, now)

	if newState.tokens > 0 {
		newState.tokens--
		rl.setState(sourceKey, newState)
		return true
	}

	if newState != state {
		rl.setState(sourceKey, newState)
	}

	return false
}

// Forget drops all state for sourceKey.
func (rl *RateLimiter) Forget(sourceKey string) {
	_ = rl.cache.Delete(bucketKeyPrefix + sourceKey)
	_ = rl.cache.Delete(lastFillKeyPrefix + sourceKey)
	rl.locks.Delete(sourceKey)
}

type Options struct {
	MaxRatePerSecond int
	MaxBurst         int
	Cache            GetterSetter
	CacheTTL         time.Duration
	Clock            clock.Clock
}

func New(options Options) *RateLimiter {
	if options.Clock == nil {
		options.Clock = clock.New()
	}

	if options.Cache == nil {
		options.Cache = NewInMemory(options.Clock)
	}

	if options.CacheTTL == 0 {
		options.CacheTTL = 10 * time.Minute
	}

	if options.MaxBurst <= 0 {
		options.MaxBurst = options.MaxRatePerSecond
	}

	return &RateLimiter{
		maxRatePerMillisecond: float64(options.MaxRatePerSecond) / 1000.0,
		maxBurst:              options.MaxBurst,
		cache:                 options.Cache,
		cacheTTL:              options.CacheTTL,
		clock:                 options.Clock,
	}
}
