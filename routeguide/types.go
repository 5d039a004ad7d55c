// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package routeguide implements the route guide demo service: feature
// lookup, area listing, route statistics, and location-keyed chat over a
// static set of geographic features.
package routeguide

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// Point is a position on the Earth's surface. Latitude and longitude are
// E7 fixed-point degrees: degrees multiplied by 1e7 and stored as int32.
type Point struct {
	Latitude  int32 `arrow:"latitude" json:"latitude"`
	Longitude int32 `arrow:"longitude" json:"longitude"`
}

var pointSchema = arrow.NewSchema([]arrow.Field{
	{Name: "latitude", Type: arrow.PrimitiveTypes.Int32},
	{Name: "longitude", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// ArrowSchema implements rgrpc.ArrowSerializable.
func (Point) ArrowSchema() *arrow.Schema { return pointSchema }

// Rectangle is a latitude-longitude aligned area. The corners carry no
// ordering requirement; containment normalizes them.
type Rectangle struct {
	Lo Point `arrow:"lo" json:"lo"`
	Hi Point `arrow:"hi" json:"hi"`
}

var pointStructType = arrow.StructOf(
	arrow.Field{Name: "latitude", Type: arrow.PrimitiveTypes.Int32},
	arrow.Field{Name: "longitude", Type: arrow.PrimitiveTypes.Int32},
)

var rectangleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "lo", Type: pointStructType},
	{Name: "hi", Type: pointStructType},
}, nil)

// ArrowSchema implements rgrpc.ArrowSerializable.
func (Rectangle) ArrowSchema() *arrow.Schema { return rectangleSchema }

// Feature is a named point of interest. A Feature with an empty Name is
// the miss sentinel: it marks a queried location with nothing there.
type Feature struct {
	Name     string `arrow:"name" json:"name"`
	Location Point  `arrow:"location" json:"location"`
}

var featureSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String},
	{Name: "location", Type: pointStructType},
}, nil)

// ArrowSchema implements rgrpc.ArrowSerializable.
func (Feature) ArrowSchema() *arrow.Schema { return featureSchema }

// RouteNote is a chat message pinned to a location.
type RouteNote struct {
	Location Point  `arrow:"location" json:"location"`
	Message  string `arrow:"message" json:"message"`
}

// ArrowSchema implements rgrpc.ArrowSerializable.
func (RouteNote) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "location", Type: pointStructType},
		{Name: "message", Type: arrow.BinaryTypes.String},
	}, nil)
}

// Wire schemas for the streaming methods. Stream batches are flat columns
// rather than embedded IPC payloads so multi-row batches stay columnar.
var (
	// FeatureRowSchema is the list_features output: one feature per row.
	FeatureRowSchema = arrow.NewSchema([]arrow.Field{
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "latitude", Type: arrow.PrimitiveTypes.Int32},
		{Name: "longitude", Type: arrow.PrimitiveTypes.Int32},
	}, nil)

	// PointRowSchema is the record_route input: one visited point per row.
	PointRowSchema = arrow.NewSchema([]arrow.Field{
		{Name: "latitude", Type: arrow.PrimitiveTypes.Int32},
		{Name: "longitude", Type: arrow.PrimitiveTypes.Int32},
	}, nil)

	// NoteRowSchema carries route_chat notes in both directions.
	NoteRowSchema = arrow.NewSchema([]arrow.Field{
		{Name: "latitude", Type: arrow.PrimitiveTypes.Int32},
		{Name: "longitude", Type: arrow.PrimitiveTypes.Int32},
		{Name: "message", Type: arrow.BinaryTypes.String},
	}, nil)

	// SummaryRowSchema is the single record_route result row.
	SummaryRowSchema = arrow.NewSchema([]arrow.Field{
		{Name: "point_count", Type: arrow.PrimitiveTypes.Int32},
		{Name: "feature_count", Type: arrow.PrimitiveTypes.Int32},
		{Name: "distance", Type: arrow.PrimitiveTypes.Int32},
		{Name: "elapsed_time", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
)

// RouteSummary aggregates one record_route call.
type RouteSummary struct {
	// PointCount is the number of points received.
	PointCount int32 `arrow:"point_count" json:"point_count"`
	// FeatureCount is the number of received points with a named feature.
	FeatureCount int32 `arrow:"feature_count" json:"feature_count"`
	// Distance is the cumulative path length in meters.
	Distance int32 `arrow:"distance" json:"distance"`
	// ElapsedTime is the call duration in whole seconds.
	ElapsedTime int32 `arrow:"elapsed_time" json:"elapsed_time"`
}

// ArrowSchema implements rgrpc.ArrowSerializable.
func (RouteSummary) ArrowSchema() *arrow.Schema { return SummaryRowSchema }
