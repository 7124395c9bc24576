package unisenza

import "github.com/joshp123/unisenza-bridge/internal/hass"

const (
	Domain = "unisenza_plus"
	Title  = "Unisenza Plus"

	DefaultMinTemp  = 5.0
	DefaultMaxTemp  = 30.0
	TemperatureStep = 0.5
	Version         = "0.1.0"

	DefaultMaxRequestsPerMinute = 60

	errInvalidAuth   = "invalid_auth"
	errCannotConnect = "cannot_connect"
)

// Platforms are forwarded on every entry setup.
var Platforms = []hass.Platform{hass.PlatformClimate}
