package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(t.Context(), Config{ServiceName: "rso-bots"})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LogHandler)
	require.NotNil(t, p.TracerProvider)
	assert.NoError(t, p.Shutdown(t.Context()))
}

func TestSetup_Enabled(t *testing.T) {
	p, err := Setup(t.Context(), Config{Endpoint: "127.0.0.1:4317", ServiceName: "rso-bots"})
	require.NoError(t, err)
	assert.True(t, p.Enabled())
	assert.IsType(t, &sdktrace.TracerProvider{}, p.TracerProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.Shutdown(ctx)
	assert.Empty(t, p.shutdown)
}

func TestHasScheme(t *testing.T) {
	assert.True(t, hasScheme("http://collector:4317"))
	assert.False(t, hasScheme("collector:4317"))
}
