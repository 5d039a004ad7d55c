// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"fmt"
	"math"
)

// coordFactor converts E7 fixed-point coordinates to degrees.
const coordFactor = 1e7

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Degrees returns the latitude and longitude as floating-point degrees.
func (p Point) Degrees() (lat, lon float64) {
	return float64(p.Latitude) / coordFactor, float64(p.Longitude) / coordFactor
}

// Equal reports whether two points have identical coordinates.
func (p Point) Equal(other Point) bool {
	return p.Latitude == other.Latitude && p.Longitude == other.Longitude
}

func (p Point) String() string {
	lat, lon := p.Degrees()
	return fmt.Sprintf("(%.7f, %.7f)", lat, lon)
}

// Distance returns the great-circle distance between two points in meters,
// computed with the haversine formula and truncated toward zero.
func Distance(a, b Point) int32 {
	latA, lonA := a.Degrees()
	latB, lonB := b.Degrees()

	latARad := latA * math.Pi / 180
	latBRad := latB * math.Pi / 180
	dLat := (latB - latA) * math.Pi / 180
	dLon := (lonB - lonA) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latARad)*math.Cos(latBRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return int32(earthRadiusMeters * c)
}

// Contains reports whether the point lies inside the rectangle, boundary
// included. Corner ordering does not matter.
func (r Rectangle) Contains(p Point) bool {
	left := min(r.Lo.Longitude, r.Hi.Longitude)
	right := max(r.Lo.Longitude, r.Hi.Longitude)
	bottom := min(r.Lo.Latitude, r.Hi.Latitude)
	top := max(r.Lo.Latitude, r.Hi.Latitude)

	return p.Longitude >= left && p.Longitude <= right &&
		p.Latitude >= bottom && p.Latitude <= top
}

// Exists reports whether the feature is a real named feature rather than
// the empty-name miss sentinel.
func (f Feature) Exists() bool {
	return f.Name != ""
}
