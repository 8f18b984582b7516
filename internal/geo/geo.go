// Package geo models the single-shot "where am I" capability the view
// consumes. The device itself lives outside the service; callers supply a
// Locator that knows how to reach it.
package geo

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	ErrDenied      = errors.New("geolocation permission denied")
	ErrUnavailable = errors.New("geolocation unavailable")
	ErrTimeout     = errors.New("geolocation timed out")
)

type Position struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the position as "lat,lng" using the shortest decimal form.
func (p Position) String() string {
	return strconv.FormatFloat(p.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(p.Longitude, 'f', -1, 64)
}

type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// DefaultOptions is a low-accuracy lookup that gives up after 5s and accepts
// a fix up to a minute old.
var DefaultOptions = Options{
	HighAccuracy: false,
	Timeout:      5 * time.Second,
	MaximumAge:   60 * time.Second,
}

type Locator interface {
	CurrentPosition(ctx context.Context, opts Options) (Position, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, opts Options) (Position, error)

func (f LocatorFunc) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	return f(ctx, opts)
}

// Reported is a Locator backed by whatever the client already determined:
// either a position or the reason it has none.
type Reported struct {
	Position *Position
	Err      error
	// ObservedAt is when the client took the fix; zero means "just now".
	ObservedAt time.Time
}

func (r Reported) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Position{}, ErrTimeout
		}
		return Position{}, err
	}

	if r.Err != nil {
		return Position{}, r.Err
	}
	if r.Position == nil {
		return Position{}, ErrUnavailable
	}
	if opts.MaximumAge > 0 && !r.ObservedAt.IsZero() && time.Since(r.ObservedAt) > opts.MaximumAge {
		return Position{}, ErrUnavailable
	}
	return *r.Position, nil
}

// ParseError maps the reason strings a client reports to sentinel errors.
func ParseError(reason string) error {
	switch reason {
	case "":
		return nil
	case "denied":
		return ErrDenied
	case "timeout":
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}
