package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForReturnsNilForUnconfiguredEndpoint(t *testing.T) {
	l := New(map[string]int{"llm": 60})
	require.NotNil(t, l.For("llm"))
	require.Nil(t, l.For("gstin"))
}

func TestForIgnoresNonPositiveRates(t *testing.T) {
	l := New(map[string]int{"whatsapp": 0, "gstin": -5})
	require.Nil(t, l.For("whatsapp"))
	require.Nil(t, l.For("gstin"))
}

func TestForOnNilRegistryIsUnlimited(t *testing.T) {
	var l *Limiters
	require.Nil(t, l.For("llm"))
}

func TestNewBurstMatchesPerMinuteRate(t *testing.T) {
	l := New(map[string]int{"bankstatement": 10})
	lim := l.For("bankstatement")
	require.NotNil(t, lim)
	require.Equal(t, 10, lim.Burst())
}
