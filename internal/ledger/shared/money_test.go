package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRound2(t *testing.T) {
	require.Equal(t, 10.57, Round2(10.567))
	require.Equal(t, 10.43, Round2(10.432))
	require.Equal(t, -3.33, Round2(-3.3349))
	require.Equal(t, 0.0, Round2(0))
}

func TestAmountsEqual(t *testing.T) {
	require.True(t, AmountsEqual(100.00, 100.00))
	require.True(t, AmountsEqual(100.00, 100.009))
	require.False(t, AmountsEqual(100.00, 100.02))
	// The classic float sum still balances within tolerance.
	require.True(t, AmountsEqual(0.1+0.2, 0.3))
}
