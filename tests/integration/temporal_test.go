//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
)

// TestTemporalConnectivity verifies the Temporal frontend is reachable. It is
// opt-in: set REVIEWGEN_TEST_TEMPORAL_HOST_PORT to the frontend address of a
// dev server (localhost:7234 with docker-compose.test.yml) to enable it.
func TestTemporalConnectivity(t *testing.T) {
	hostPort := os.Getenv("REVIEWGEN_TEST_TEMPORAL_HOST_PORT")
	if hostPort == "" {
		t.Skip("REVIEWGEN_TEST_TEMPORAL_HOST_PORT not set; skipping Temporal connectivity check")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: "default",
	})
	require.NoError(t, err, "dial Temporal at %s", hostPort)
	defer c.Close()

	_, err = c.CheckHealth(ctx, &client.CheckHealthRequest{})
	require.NoError(t, err, "Temporal frontend health check")
}
