package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/meterflow/internal/config"
)

const keyIngestOrg = "ingest:org:%s"

// IngestLimiter bounds event ingestion per organization before the write
// path. Owned by the service layer and injected explicitly; there is no
// package-level limiter state.
type IngestLimiter struct {
	enabled bool

	window    *SlidingWindow
	windowDur time.Duration
	maxEvents int
}

func NewIngestLimiter(cfg config.Config) (*IngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestWindowSeconds <= 0 || limitCfg.IngestMaxEvents <= 0 {
		return nil, errors.New("ingest rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &IngestLimiter{
		enabled:   true,
		window:    NewSlidingWindow(client),
		windowDur: time.Duration(limitCfg.IngestWindowSeconds) * time.Second,
		maxEvents: limitCfg.IngestMaxEvents,
	}, nil
}

func (l *IngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// AllowOrg reports whether the organization may ingest another event now.
func (l *IngestLimiter) AllowOrg(ctx context.Context, orgID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	res, err := l.window.Allow(ctx, fmt.Sprintf(keyIngestOrg, strings.TrimSpace(orgID)), l.windowDur, l.maxEvents)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
