package utils

import (
	"sync"
	"time"

	"trade-gateway/src/logger"
)

// MarketScheduler gates feed polling on venue hours. Securities register
// with their exchange MIC; calendars are shared per MIC.
type MarketScheduler struct {
	calendars map[string]*TradingCalendar // keyed by MIC
	byID      map[int64]*TradingCalendar  // security id -> venue calendar
	logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(l *logger.Logger) *MarketScheduler {
	return &MarketScheduler{
		calendars: make(map[string]*TradingCalendar),
		byID:      make(map[int64]*TradingCalendar),
		logger:    l,
	}
}

// -----------------------------------------------------------------------------

// Track registers a security under its venue MIC.
func (ms *MarketScheduler) Track(securityID int64, mic string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cal, ok := ms.calendars[mic]
	if !ok {
		cal = GetCalendarByMic(mic)
		ms.calendars[mic] = cal
	}
	ms.byID[securityID] = cal
}

// -----------------------------------------------------------------------------

// IsOpen reports whether the security's venue is open right now.
// Unregistered securities are treated as open so the feed never starves.
func (ms *MarketScheduler) IsOpen(securityID int64) bool {
	ms.mu.RLock()
	cal, ok := ms.byID[securityID]
	ms.mu.RUnlock()

	if !ok {
		return true
	}
	return cal.IsOpenOnMinute(time.Now().UTC())
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked venue is currently open.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := time.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if len(ms.calendars) == 0 {
		return false
	}

	for _, cal := range ms.calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// VenueCount returns the number of distinct venue calendars in use.
func (ms *MarketScheduler) VenueCount() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.calendars)
}
