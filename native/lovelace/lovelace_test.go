package lovelace

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromADA(t *testing.T) {
	cases := []struct {
		raw  string
		want Lovelace
	}{
		{"1", 1_000_000},
		{"0", 0},
		{"2.5", 2_500_000},
		{"0.000001", 1},
		{".75", 750_000},
		{" 12.345678 ", 12_345_678},
	}
	for _, tc := range cases {
		got, err := FromADA(tc.raw)
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}

func TestFromADARejectsInvalidInput(t *testing.T) {
	for _, raw := range []string{"", "-1", "1.0000001", "abc", "1.2.3", "1.-5"} {
		_, err := FromADA(raw)
		require.Error(t, err, raw)
	}
}

func TestFromWholeOverflow(t *testing.T) {
	_, err := FromWhole(math.MaxInt64 / 10)
	require.True(t, errors.Is(err, ErrOverflow))
}

func TestSumDetectsOverflow(t *testing.T) {
	total, err := Sum(500, 10, 40)
	require.NoError(t, err)
	require.Equal(t, Lovelace(550), total)

	_, err = Sum(math.MaxInt64, 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestRendering(t *testing.T) {
	require.Equal(t, "1500000", Lovelace(1_500_000).String())
	require.Equal(t, "1.500000", Lovelace(1_500_000).ADA())
	require.Equal(t, "-0.000010", Lovelace(-10).ADA())

	parsed, err := Parse("42")
	require.NoError(t, err)
	require.Equal(t, Lovelace(42), parsed)
}
