// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistance(t *testing.T) {
	berkshire := Point{Latitude: 409146138, Longitude: -746188906}

	tests := []struct {
		name     string
		a, b     Point
		expected int32
	}{
		{
			name:     "same point",
			a:        berkshire,
			b:        berkshire,
			expected: 0,
		},
		{
			// One degree of longitude at the equator: 6371000 * pi/180,
			// truncated.
			name:     "one degree longitude at equator",
			a:        Point{Latitude: 0, Longitude: 0},
			b:        Point{Latitude: 0, Longitude: 10000000},
			expected: 111194,
		},
		{
			name:     "one degree latitude",
			a:        Point{Latitude: 0, Longitude: 0},
			b:        Point{Latitude: 10000000, Longitude: 0},
			expected: 111194,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, Distance(test.a, test.b))
			assert.Equal(t, test.expected, Distance(test.b, test.a), "distance must be symmetric")
		})
	}
}

func TestDistanceNonNegative(t *testing.T) {
	points := []Point{
		{Latitude: 409146138, Longitude: -746188906},
		{Latitude: 407838351, Longitude: -746143763},
		{Latitude: -900000000, Longitude: 1800000000},
		{Latitude: 900000000, Longitude: -1800000000},
	}
	for _, a := range points {
		for _, b := range points {
			assert.GreaterOrEqual(t, Distance(a, b), int32(0))
		}
	}
}

func TestRectangleContains(t *testing.T) {
	rect := Rectangle{
		Lo: Point{Latitude: 400000000, Longitude: -750000000},
		Hi: Point{Latitude: 420000000, Longitude: -730000000},
	}
	// Same area with the corners swapped; containment must not care.
	swapped := Rectangle{Lo: rect.Hi, Hi: rect.Lo}

	tests := []struct {
		name     string
		p        Point
		expected bool
	}{
		{"interior", Point{Latitude: 410000000, Longitude: -740000000}, true},
		{"lo corner", rect.Lo, true},
		{"hi corner", rect.Hi, true},
		{"on latitude edge", Point{Latitude: 400000000, Longitude: -740000000}, true},
		{"north of rect", Point{Latitude: 420000001, Longitude: -740000000}, false},
		{"west of rect", Point{Latitude: 410000000, Longitude: -750000001}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, rect.Contains(test.p))
			assert.Equal(t, test.expected, swapped.Contains(test.p), "corner order must not matter")
		})
	}
}

func TestPointEqual(t *testing.T) {
	a := Point{Latitude: 1, Longitude: 2}
	assert.True(t, a.Equal(Point{Latitude: 1, Longitude: 2}))
	assert.False(t, a.Equal(Point{Latitude: 2, Longitude: 1}))
	assert.False(t, a.Equal(Point{Latitude: 1, Longitude: 3}))
}

func TestFeatureExists(t *testing.T) {
	assert.True(t, Feature{Name: "trail"}.Exists())
	assert.False(t, Feature{Location: Point{Latitude: 1, Longitude: 1}}.Exists())
}

func TestPointString(t *testing.T) {
	p := Point{Latitude: 409146138, Longitude: -746188906}
	assert.Equal(t, "(40.9146138, -74.6188906)", p.String())
}
