package api

import (
	"time"

	"golang.org/x/time/rate"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithUpdateRateLimit limits update requests to perMinute per client address.
// Zero or less disables the limit.
func WithUpdateRateLimit(perMinute int) Option {
	return func(s *Server) {
		if perMinute > 0 {
			s.updateLimiter = NewIPRateLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}
