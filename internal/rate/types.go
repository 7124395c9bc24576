package rate

import "time"

// Window represents a provider rate-limit bucket.
type Window int

const (
	Minute Window = iota
	Hour
)

func (w Window) String() string {
	switch w {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	default:
		return "unknown"
	}
}

func (w Window) Duration() time.Duration {
	if w == Hour {
		return time.Hour
	}
	return time.Minute
}

// Headers names the response headers a provider reports its limits in.
// Empty names are ignored.
type Headers struct {
	Remaining  string
	RetryAfter string
}

// StandardHeaders returns the header mapping most cloud APIs use.
func StandardHeaders() Headers {
	return Headers{
		Remaining:  "X-RateLimit-Remaining",
		RetryAfter: "Retry-After",
	}
}

// Declaration defines a provider's client-side limits.
type Declaration struct {
	provider string
	limits   map[Window]int
	headers  Headers
	// Cooldown applied after a 429 without Retry-After.
	backoff time.Duration
}

// Provider creates a new declaration for a provider.
func Provider(name string) Declaration {
	return Declaration{provider: name, backoff: 30 * time.Second}
}

func (d Declaration) ProviderName() string {
	return d.provider
}

func (d Declaration) MaxRequestsPer(window Window, limit int) Declaration {
	limits := make(map[Window]int, len(d.limits)+1)
	for w, l := range d.limits {
		limits[w] = l
	}
	limits[window] = limit
	d.limits = limits
	return d
}

func (d Declaration) ReadHeaders(headers Headers) Declaration {
	d.headers = headers
	return d
}

func (d Declaration) BackoffOnThrottle(backoff time.Duration) Declaration {
	d.backoff = backoff
	return d
}

func (d Declaration) Limits() map[Window]int {
	return d.limits
}

func (d Declaration) HasLimits() bool {
	return len(d.limits) > 0
}

// RateLimited is implemented by integrations that declare upstream limits.
type RateLimited interface {
	RateLimits() Declaration
}
