package http

import (
	"time"

	"github.com/vtfk/departuretime/internal/adapters/valkey"
	"github.com/vtfk/departuretime/internal/core/ports"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Departures ports.DepartureQuerier
	Cache      *valkey.Storage // optional rate-limit storage
	Options    Options
}

// Options tune routing and request limits.
type Options struct {
	RoutePrefix     string
	RequestTimeout  time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 15 * time.Second
	}
	if o.RateLimitMax <= 0 {
		o.RateLimitMax = 120
	}
	if o.RateLimitWindow <= 0 {
		o.RateLimitWindow = time.Minute
	}
	return o
}
