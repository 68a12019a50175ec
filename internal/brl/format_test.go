package brl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMoney(t *testing.T) {
	require.Equal(t, "R$ 1.234,56", Money(1234.56))
	require.Equal(t, "R$ 11.999,00", Money(11999))
	require.Equal(t, "R$ 0,01", Money(0.01))
	require.Equal(t, "R$ 12.000,00", Money(12000))
}

func TestDate(t *testing.T) {
	require.Equal(t, "28/01/2024", Date(time.Date(2024, 1, 28, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "", Date(time.Time{}))
}

func TestMonthYear(t *testing.T) {
	require.Equal(t, "jan/26", MonthYear(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "dez/24", MonthYear(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
}
