package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrUnknownMarketplace is returned when the run filter names no enabled marketplace
	ErrUnknownMarketplace = errors.New("marketplace is unknown or disabled")

	// ErrNoEnabledMarketplaces is returned when nothing is enabled
	ErrNoEnabledMarketplaces = errors.New("no enabled marketplaces")
)
