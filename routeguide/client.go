// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/Query-farm/route-guide/rgrpc"
)

// Client is a typed route guide client over an rg_rpc transport.
type Client struct {
	rpc *rgrpc.Client
}

// NewClient wraps a transport pair in a route guide client.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{rpc: rgrpc.NewClient(r, w)}
}

// RPC exposes the underlying rg_rpc client, for log handlers and
// introspection.
func (c *Client) RPC() *rgrpc.Client {
	return c.rpc
}

// GetFeature looks up the feature at a point. A miss returns the
// empty-name sentinel, never an error.
func (c *Client) GetFeature(p Point) (Feature, error) {
	return rgrpc.Call[Feature](c.rpc, "get_feature", GetFeatureParams{
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
	})
}

// ListFeatures returns all named features inside the rectangle, in server
// database order.
func (c *Client) ListFeatures(rect Rectangle) ([]Feature, error) {
	stream, err := c.rpc.OpenProducer("list_features", ListFeaturesParams{Rect: rect})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var features []Feature
	for {
		batch, err := stream.Next()
		if err == io.EOF {
			return features, nil
		}
		if err != nil {
			return nil, err
		}
		names := batch.Column(0).(*array.String)
		lats := batch.Column(1).(*array.Int32)
		lons := batch.Column(2).(*array.Int32)
		for i := 0; i < int(batch.NumRows()); i++ {
			features = append(features, Feature{
				Name:     names.Value(i),
				Location: Point{Latitude: lats.Value(i), Longitude: lons.Value(i)},
			})
		}
		batch.Release()
	}
}

// RecordRoute streams the points and returns the server's summary.
func (c *Client) RecordRoute(points []Point) (RouteSummary, error) {
	var zero RouteSummary
	stream, err := c.rpc.OpenCollector("record_route", RecordRouteParams{}, PointRowSchema)
	if err != nil {
		return zero, err
	}

	for _, p := range points {
		batch := pointBatch(p)
		err := stream.Send(batch)
		batch.Release()
		if err != nil {
			return zero, err
		}
	}

	result, err := stream.CloseAndRecv()
	if err != nil {
		return zero, err
	}
	defer result.Release()

	return RouteSummary{
		PointCount:   result.Column(0).(*array.Int32).Value(0),
		FeatureCount: result.Column(1).(*array.Int32).Value(0),
		Distance:     result.Column(2).(*array.Int32).Value(0),
		ElapsedTime:  result.Column(3).(*array.Int32).Value(0),
	}, nil
}

// RouteChat is an open note exchange. Send returns the prior notes at the
// sent note's location; Close ends the call.
type RouteChat struct {
	stream *rgrpc.ExchangeStream
}

// OpenRouteChat starts a route_chat call.
func (c *Client) OpenRouteChat() (*RouteChat, error) {
	stream, err := c.rpc.OpenExchange("route_chat", RouteChatParams{}, NoteRowSchema)
	if err != nil {
		return nil, err
	}
	return &RouteChat{stream: stream}, nil
}

// Send delivers one note and returns the earlier notes at its location, in
// arrival order. The reply may be empty.
func (rc *RouteChat) Send(note RouteNote) ([]RouteNote, error) {
	batch := noteBatch(note)
	out, err := rc.stream.Exchange(batch)
	batch.Release()
	if err != nil {
		return nil, err
	}
	defer out.Release()

	lats := out.Column(0).(*array.Int32)
	lons := out.Column(1).(*array.Int32)
	msgs := out.Column(2).(*array.String)

	var notes []RouteNote
	for i := 0; i < int(out.NumRows()); i++ {
		notes = append(notes, RouteNote{
			Location: Point{Latitude: lats.Value(i), Longitude: lons.Value(i)},
			Message:  msgs.Value(i),
		})
	}
	return notes, nil
}

// Close ends the chat call.
func (rc *RouteChat) Close() error {
	return rc.stream.Close()
}

func pointBatch(p Point) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	latB := array.NewInt32Builder(mem)
	defer latB.Release()
	lonB := array.NewInt32Builder(mem)
	defer lonB.Release()
	latB.Append(p.Latitude)
	lonB.Append(p.Longitude)

	cols := []arrow.Array{latB.NewArray(), lonB.NewArray()}
	defer releaseAll(cols)
	return array.NewRecordBatch(PointRowSchema, cols, 1)
}

func noteBatch(n RouteNote) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	latB := array.NewInt32Builder(mem)
	defer latB.Release()
	lonB := array.NewInt32Builder(mem)
	defer lonB.Release()
	msgB := array.NewStringBuilder(mem)
	defer msgB.Release()
	latB.Append(n.Location.Latitude)
	lonB.Append(n.Location.Longitude)
	msgB.Append(n.Message)

	cols := []arrow.Array{latB.NewArray(), lonB.NewArray(), msgB.NewArray()}
	defer releaseAll(cols)
	return array.NewRecordBatch(NoteRowSchema, cols, 1)
}
