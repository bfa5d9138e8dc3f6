package mirror_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/mirror"
	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

// The mirror must plug into the store's sink set.
var _ store.Sink = (*mirror.Mirror)(nil)

// Port 1 on loopback refuses connections immediately, so the mirror comes
// up offline without waiting out the ping timeout.
func offlineMirror(t *testing.T) *mirror.Mirror {
	t.Helper()

	m := mirror.New(config.Mirror{
		Address: "127.0.0.1:1",
		Prefix:  "vehicled",
	})
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func TestOfflineMirrorSkipsWrites(t *testing.T) {
	m := offlineMirror(t)
	ctx := context.Background()

	require.NoError(t, m.SaveSnapshot(ctx, vehicle.DefaultSnapshot(time.Now())))
	require.NoError(t, m.SaveAlert(ctx, vehicle.Alert{
		ID:       "a-1",
		Type:     vehicle.AlertHighSpeedStress,
		Severity: vehicle.SeverityWarning,
	}))
}

func TestOfflineMirrorClosesCleanly(t *testing.T) {
	m := mirror.New(config.Mirror{
		Address: "127.0.0.1:1",
		Prefix:  "vehicled",
	})
	assert.NoError(t, m.Close())
}
