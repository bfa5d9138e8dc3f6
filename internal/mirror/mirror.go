// Package mirror keeps a live copy of the telemetry stream in Redis for
// dashboards that read state out-of-band: the latest snapshot under a
// plain key, a capped history in a sorted set and a capped alert list.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

const (
	pingTimeout = 5 * time.Second
	historyCap  = 1000
	alertCap    = 100
)

// Mirror writes snapshots and alerts to Redis. It satisfies store.Sink.
// When Redis is unreachable the mirror runs offline and skips writes; a
// failed write mid-run flips it offline as well. Restart to recover.
type Mirror struct {
	client *redis.Client
	prefix string

	mu        sync.RWMutex
	connected bool
}

// New always returns a usable mirror. An unreachable Redis only costs the
// mirrored state, never daemon startup.
func New(cfg config.Mirror) *Mirror {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	m := &Mirror{
		client: client,
		prefix: cfg.Prefix,
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().
			Str("address", cfg.Address).
			Err(err).
			Msg("Redis unreachable, mirror running offline")

		return m
	}

	m.connected = true
	logger.Info().Str("address", cfg.Address).Msg("Redis mirror connected")

	return m
}

func (m *Mirror) SaveSnapshot(ctx context.Context, snapshot vehicle.Snapshot) error {
	if !m.online() {
		return nil
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.New().Wrap(errors.ErrPublishFailed, err)
	}

	pipe := m.client.Pipeline()
	pipe.Set(ctx, m.key("latest"), payload, 0)
	pipe.ZAdd(ctx, m.key("history"), &redis.Z{
		Score:  float64(snapshot.Timestamp.UnixMilli()),
		Member: payload,
	})
	pipe.ZRemRangeByRank(ctx, m.key("history"), 0, -(historyCap + 1))

	if _, err := pipe.Exec(ctx); err != nil {
		return m.markOffline(err)
	}

	metrics.MirrorWrites.Inc()

	return nil
}

func (m *Mirror) SaveAlert(ctx context.Context, alert vehicle.Alert) error {
	if !m.online() {
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return errors.New().Wrap(errors.ErrPublishFailed, err)
	}

	pipe := m.client.Pipeline()
	pipe.LPush(ctx, m.key("alerts"), payload)
	pipe.LTrim(ctx, m.key("alerts"), 0, alertCap-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return m.markOffline(err)
	}

	metrics.MirrorWrites.Inc()

	return nil
}

func (m *Mirror) Close() error {
	if err := m.client.Close(); err != nil {
		return errors.New().Wrap(errors.ErrShutdownFailed, err)
	}

	logger.Debug().Msg("Redis mirror closed")

	return nil
}

func (m *Mirror) online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.connected
}

func (m *Mirror) markOffline(err error) error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	metrics.MirrorFailures.Inc()
	logger.Warn().Err(err).Msg("Redis mirror write failed, going offline")

	return errors.New().Wrap(errors.ErrPublishFailed, err)
}

func (m *Mirror) key(suffix string) string {
	return fmt.Sprintf("%s:%s", m.prefix, suffix)
}
