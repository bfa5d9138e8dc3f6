// Package discovery advertises the daemon over mDNS so dashboards on the
// same network find it without configuration.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"

	"codeberg.org/mutker/vehicled/internal/errors"
	"codeberg.org/mutker/vehicled/internal/logger"
)

const (
	serviceType   = "_vehicled._tcp"
	serviceDomain = "local."
)

// Service holds a live mDNS registration.
type Service struct {
	server *zeroconf.Server
}

// Advertise registers the HTTP endpoint under _vehicled._tcp. The instance
// name carries the hostname so several vehicles stay distinguishable on
// one network.
func Advertise(listen, version string) (*Service, error) {
	errFactory := errors.New()

	_, portRaw, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitDiscovery, err)
	}
	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitDiscovery, err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "vehicled"
	}
	instance := fmt.Sprintf("%s-vehicled", hostname)

	server, err := zeroconf.Register(
		instance,
		serviceType,
		serviceDomain,
		port,
		[]string{"version=" + version},
		nil,
	)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitDiscovery, err)
	}

	logger.Info().
		Str("instance", instance).
		Str("service", serviceType).
		Int("port", port).
		Msg("mDNS advertisement registered")

	return &Service{server: server}, nil
}

// Shutdown withdraws the advertisement.
func (s *Service) Shutdown() {
	s.server.Shutdown()
	logger.Debug().Msg("mDNS advertisement withdrawn")
}
