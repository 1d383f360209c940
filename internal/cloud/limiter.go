package cloud

import (
	"time"

	"golang.org/x/time/rate"
)

// AlertLimiter caps how often alerts are published. A nil *AlertLimiter
// allows everything.
type AlertLimiter struct {
	limiter *rate.Limiter
}

// NewAlertLimiter allows one alert per every, with bursts of up to burst.
// every <= 0 disables limiting.
func NewAlertLimiter(every time.Duration, burst int) *AlertLimiter {
	if every <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &AlertLimiter{limiter: rate.NewLimiter(rate.Every(every), burst)}
}

// Allow reports whether an alert may be sent at now.
func (l *AlertLimiter) Allow(now time.Time) bool {
	if l == nil {
		return true
	}
	return l.limiter.AllowN(now, 1)
}
