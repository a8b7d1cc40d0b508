package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCentsFromString(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"19.99", 1999},
		{"0.05", 5},
		{"5", 500},
		{"5.5", 550},
		{"0", 0},
		{"-3.50", -350},
		{" 10.00 ", 1000},
	}
	for _, tc := range cases {
		got, err := CentsFromString(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "abc", "1.999", "1.x", "1.-5", "1.+5", "+1.00", "1e2"} {
		_, err := CentsFromString(bad)
		require.Error(t, err, bad)
	}
}

func TestStringFromCents(t *testing.T) {
	require.Equal(t, "19.99", StringFromCents(1999))
	require.Equal(t, "0.05", StringFromCents(5))
	require.Equal(t, "0.00", StringFromCents(0))
	require.Equal(t, "-3.50", StringFromCents(-350))
	require.Equal(t, "100.00", StringFromCents(10000))
}

func TestRoundTrip(t *testing.T) {
	// POS cents -> stored string -> cents again must be lossless.
	got, err := CentsFromString(StringFromCents(1999))
	require.NoError(t, err)
	require.Equal(t, int64(1999), got)
}

func TestRoundHalfUp(t *testing.T) {
	require.Equal(t, int64(371), RoundHalfUp(371.25))  // 45.00 * 0.0825
	require.Equal(t, int64(372), RoundHalfUp(371.5))
	require.Equal(t, int64(371), RoundHalfUp(371.49))
	require.Equal(t, int64(-372), RoundHalfUp(-371.5))
}

func TestPercentOf(t *testing.T) {
	require.Equal(t, int64(500), PercentOf(5000, 1000)) // 10% of $50.00
	require.Equal(t, int64(1), PercentOf(10, 1000))     // rounds up from 1.0
	require.Equal(t, int64(333), PercentOf(9999, 333))  // 3.33% of $99.99 = 332.9667 -> 333
}
