// Package feed ingests external telemetry datagrams over UDP. It is the
// high-frequency companion to the HTTP inject endpoint: one JSON patch per
// packet, no reply, malformed packets dropped.
package feed

import (
	"context"
	"encoding/json"
	"net"

	"codeberg.org/mutker/vehicled/internal/config"
	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
	"codeberg.org/mutker/vehicled/internal/metrics"
	"codeberg.org/mutker/vehicled/internal/store"
	"codeberg.org/mutker/vehicled/internal/vehicle"
)

// maxDatagramSize comfortably fits a full patch with every field set.
const maxDatagramSize = 4096

// Listener applies telemetry patches received over UDP to the store.
type Listener struct {
	listen string
	store  *store.Store
	conn   net.PacketConn
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg config.Feed, st *store.Store) *Listener {
	return &Listener{
		listen: cfg.Listen,
		store:  st,
		done:   make(chan struct{}),
	}
}

// Start binds the socket and launches the read loop. Bind errors surface
// here so a bad address fails startup instead of dying silently later.
func (l *Listener) Start() error {
	errFactory := errors.New()

	conn, err := net.ListenPacket("udp", l.listen)
	if err != nil {
		return errFactory.WithData(errors.ErrInitFeed, struct {
			Listen string
			Error  string
		}{
			Listen: l.listen,
			Error:  err.Error(),
		})
	}
	l.conn = conn

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.run(ctx)

	logger.Info().
		Str("listen", conn.LocalAddr().String()).
		Msg("External feed listening")

	return nil
}

// Addr reports the bound address. Handy when listening on port 0.
func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

// Shutdown closes the socket to unblock the read loop and waits for it to
// drain. Safe to call when Start never ran.
func (l *Listener) Shutdown() {
	if l.conn == nil {
		return
	}

	l.cancel()
	if err := l.conn.Close(); err != nil {
		logger.Debug().Err(err).Msg("Failed to close feed socket")
	}
	<-l.done

	logger.Debug().Msg("External feed stopped")
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)

	buf := make([]byte, maxDatagramSize)
	for {
		n, remote, err := l.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn().Err(err).Msg("Feed read failed")

			continue
		}

		l.apply(ctx, buf[:n], remote)
	}
}

// apply merges one datagram into the store. Garbage on the wire is
// expected, so malformed packets only log at debug.
func (l *Listener) apply(ctx context.Context, payload []byte, remote net.Addr) {
	var patch vehicle.Patch
	if err := json.Unmarshal(payload, &patch); err != nil {
		logger.Debug().
			Str("remote", remote.String()).
			Err(err).
			Msg("Dropping malformed feed datagram")

		return
	}

	merged := l.store.Inject(ctx, patch)
	metrics.Injects.Inc()

	logger.Debug().
		Str("remote", remote.String()).
		Float64("speed", merged.Speed).
		Msg("Feed telemetry applied")
}
