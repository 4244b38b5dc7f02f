package common

import (
	"errors"
	"fmt"
	"strings"
)

// ProviderKind selects which archive strategy serves a request
type ProviderKind int

const (
	// QuadtreeIndexed is the Google Earth TimeMachine archive (one query per tile)
	QuadtreeIndexed ProviderKind = iota
	// DateLayered is the Esri World Imagery Wayback archive (one query per layer)
	DateLayered
)

// Provider name constants for consistent naming across the application
const (
	// ProviderGoogleEarth is the internal identifier for Google Earth imagery
	ProviderGoogleEarth = "google_earth"

	// ProviderEsriWayback is the internal identifier for Esri Wayback imagery
	ProviderEsriWayback = "esri_wayback"

	// DisplayNameGoogleEarth is the human-readable name shown in the console
	DisplayNameGoogleEarth = "Google Earth"

	// DisplayNameEsriWayback is the human-readable name shown in the console
	DisplayNameEsriWayback = "Esri Wayback"
)

// Zoom limits per provider
const (
	MinZoom            = 1
	MaxZoomEsri        = 23
	MaxZoomGoogleEarth = 21
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrZoomOutOfRange  = errors.New("zoom level out of range")
)

// ParseProviderKind accepts the names used on the command line
func ParseProviderKind(name string) (ProviderKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "google", "tm", "timemachine", "keyhole", ProviderGoogleEarth:
		return QuadtreeIndexed, nil
	case "esri", "wayback", ProviderEsriWayback:
		return DateLayered, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be 'google' or 'esri')", ErrUnknownProvider, name)
	}
}

// String returns the internal identifier
func (k ProviderKind) String() string {
	if k == DateLayered {
		return ProviderEsriWayback
	}
	return ProviderGoogleEarth
}

// DisplayName returns the human-readable provider name
func (k ProviderKind) DisplayName() string {
	if k == DateLayered {
		return DisplayNameEsriWayback
	}
	return DisplayNameGoogleEarth
}

// MaxZoom returns the deepest level the provider serves
func (k ProviderKind) MaxZoom() int {
	if k == DateLayered {
		return MaxZoomEsri
	}
	return MaxZoomGoogleEarth
}

// ValidateZoomForProvider validates zoom level against provider-specific limits
func ValidateZoomForProvider(zoom int, kind ProviderKind) error {
	if zoom < MinZoom || zoom > kind.MaxZoom() {
		return fmt.Errorf("%w: %d not in [%d, %d] for %s",
			ErrZoomOutOfRange, zoom, MinZoom, kind.MaxZoom(), kind.DisplayName())
	}
	return nil
}
