package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-gateway/src/logger"
)

// -----------------------------------------------------------------------------

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewLogger(nil, "test")
}

// -----------------------------------------------------------------------------

func TestGetCalendarByMicKnownVenue(t *testing.T) {
	cal := GetCalendarByMic("XNYS")
	require.NotNil(t, cal)
	assert.False(t, cal.Fallback)

	// Christmas 2025 is not a trading day anywhere on NYSE.
	xmas := time.Date(2025, 12, 25, 15, 0, 0, 0, time.UTC)
	assert.False(t, cal.IsTradingDay(xmas))
}

func TestGetCalendarSuffixMapping(t *testing.T) {
	lse := GetCalendar("VOD.L")
	require.NotNil(t, lse)

	nyse := GetCalendar("AAPL")
	require.NotNil(t, nyse)

	// Unknown suffix falls back to the NYSE calendar.
	odd := GetCalendar("FOO.ZZ")
	require.NotNil(t, odd)
}

func TestTradingCalendarFallbackWeekdays(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	cal := &TradingCalendar{Fallback: true, Timezone: ny}

	// 2025-06-02 is a Monday, 2025-06-01 a Sunday.
	monday := time.Date(2025, 6, 2, 12, 0, 0, 0, ny)
	sunday := time.Date(2025, 6, 1, 12, 0, 0, 0, ny)
	assert.True(t, cal.IsTradingDay(monday))
	assert.False(t, cal.IsTradingDay(sunday))

	// Inside regular hours.
	assert.True(t, cal.IsOpenOnMinute(time.Date(2025, 6, 2, 10, 0, 0, 0, ny)))
	assert.True(t, cal.IsOpenOnMinute(time.Date(2025, 6, 2, 9, 30, 0, 0, ny)))
	// Before the open and after the close.
	assert.False(t, cal.IsOpenOnMinute(time.Date(2025, 6, 2, 9, 29, 0, 0, ny)))
	assert.False(t, cal.IsOpenOnMinute(time.Date(2025, 6, 2, 16, 0, 0, 0, ny)))
}

// -----------------------------------------------------------------------------

func TestMarketSchedulerTrackAndGate(t *testing.T) {
	ms := NewMarketScheduler(testLogger(t))
	assert.False(t, ms.AnyMarketOpen())

	ms.Track(1, "XNYS")
	ms.Track(2, "XNYS")
	ms.Track(3, "XLON")

	// Shared calendar per MIC.
	assert.Equal(t, 2, ms.VenueCount())

	// Unregistered securities never block the feed.
	assert.True(t, ms.IsOpen(999))
}
