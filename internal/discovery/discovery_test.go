package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codeberg.org/mutker/vehicled/internal/discovery"
)

func TestAdvertiseRejectsBadListenAddress(t *testing.T) {
	_, err := discovery.Advertise("no-port-here", "test")
	assert.Error(t, err)

	_, err = discovery.Advertise("127.0.0.1:not-a-port", "test")
	assert.Error(t, err)
}
