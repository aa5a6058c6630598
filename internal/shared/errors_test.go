package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUpstreamErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("update sales date: %w", NewUpstreamError("quota exceeded", nil))

	require.ErrorIs(t, err, ErrUpstreamRejected)
	require.EqualError(t, err, "update sales date: quota exceeded")

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, "quota exceeded", upstream.Message)
}

func TestUpstreamErrorDefaultsMessageAndUnwraps(t *testing.T) {
	transport := errors.New("dial tcp: connection refused")
	err := NewUpstreamError("", transport)

	require.Equal(t, "failed to update order-management system", err.Error())
	require.ErrorIs(t, err, transport)
	require.ErrorIs(t, err, ErrUpstreamRejected)
	require.NotErrorIs(t, err, ErrNotFound)
}
