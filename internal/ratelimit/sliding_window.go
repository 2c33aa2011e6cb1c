package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// slidingWindowScript counts events in the trailing window using a sorted set
// of event timestamps. Atomic so concurrent ingestion across processes shares
// one counter.
const slidingWindowScript = `
local window_ms = tonumber(ARGV[1])
local max_events = tonumber(ARGV[2])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)
local cutoff = now - window_ms

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", cutoff)

local count = redis.call("ZCARD", KEYS[1])
local allowed = 0
if count < max_events then
  allowed = 1
  redis.call("ZADD", KEYS[1], now, now .. "-" .. math.random(1000000))
  count = count + 1
end

redis.call("PEXPIRE", KEYS[1], window_ms)

return {allowed, max_events - count, now}
`

// SlidingWindow is a redis-backed sliding time-window counter.
type SlidingWindow struct {
	client *redis.Client
	script *redis.Script
}

type Result struct {
	Allowed   bool
	Remaining int
	CheckedAt time.Time
}

func NewSlidingWindow(client *redis.Client) *SlidingWindow {
	if client == nil {
		return nil
	}
	return &SlidingWindow{
		client: client,
		script: redis.NewScript(slidingWindowScript),
	}
}

func (w *SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, maxEvents int) (*Result, error) {
	if w == nil || w.client == nil {
		return &Result{Allowed: false}, errors.New("rate limiter not configured")
	}
	if key == "" {
		return &Result{Allowed: false}, errors.New("rate limiter key is empty")
	}
	if window <= 0 {
		return &Result{Allowed: false}, errors.New("rate limiter window must be positive")
	}
	if maxEvents <= 0 {
		return &Result{Allowed: false}, errors.New("rate limiter max events must be positive")
	}

	res, err := w.script.Run(
		ctx,
		w.client,
		[]string{key},
		int64(window/time.Millisecond),
		maxEvents,
	).Slice()
	if err != nil {
		return &Result{Allowed: false}, err
	}
	if len(res) < 3 {
		return &Result{Allowed: false}, errors.New("invalid rate limit script response")
	}

	return &Result{
		Allowed:   castToInt(res[0]) == 1,
		Remaining: int(castToInt(res[1])),
		CheckedAt: time.UnixMilli(castToInt(res[2])),
	}, nil
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
