package httputil

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryClientConfig(t *testing.T) {
	cfg := DirectoryClientConfig(8, 3*time.Second)
	assert.Equal(t, 8, cfg.MaxIdleConnsPerHost)
	assert.Equal(t, 16, cfg.MaxConnsPerHost)
	assert.Equal(t, 3*time.Second, cfg.ResponseTimeout)

	// zero values keep defaults
	assert.Equal(t, DefaultClientConfig(), DirectoryClientConfig(0, 0))
}

func TestNewOptimizedClient(t *testing.T) {
	client := NewOptimizedClient(DirectoryClientConfig(4, time.Second))

	assert.Equal(t, time.Second, client.Timeout)
	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 4, transport.MaxIdleConnsPerHost)
	assert.True(t, transport.ForceAttemptHTTP2)
}
