// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/Query-farm/route-guide/rgrpc"
)

// listFeaturesState walks a precomputed match list, one feature per tick.
type listFeaturesState struct {
	matches []Feature
	next    int
}

func (s *listFeaturesState) Produce(ctx context.Context, out *rgrpc.OutputCollector, callCtx *rgrpc.CallContext) error {
	if s.next >= len(s.matches) {
		return out.Finish()
	}
	f := s.matches[s.next]
	s.next++

	mem := memory.NewGoAllocator()
	nameB := array.NewStringBuilder(mem)
	defer nameB.Release()
	latB := array.NewInt32Builder(mem)
	defer latB.Release()
	lonB := array.NewInt32Builder(mem)
	defer lonB.Release()

	nameB.Append(f.Name)
	latB.Append(f.Location.Latitude)
	lonB.Append(f.Location.Longitude)

	cols := []arrow.Array{nameB.NewArray(), latB.NewArray(), lonB.NewArray()}
	defer releaseAll(cols)
	return out.EmitArrays(cols, 1)
}

// recordRouteState accumulates route statistics across input batches. The
// clock is injected so elapsed time is testable; start is captured at call
// initialization.
type recordRouteState struct {
	store *FeatureStore
	now   func() time.Time
	start time.Time

	prev         *Point
	pointCount   int32
	featureCount int32
	distance     int32
}

func (s *recordRouteState) Collect(ctx context.Context, input arrow.RecordBatch, callCtx *rgrpc.CallContext) error {
	lats, lons, err := pointColumns(input)
	if err != nil {
		return err
	}
	for i := 0; i < int(input.NumRows()); i++ {
		p := Point{Latitude: lats.Value(i), Longitude: lons.Value(i)}
		s.pointCount++
		if _, ok := s.store.At(p); ok {
			s.featureCount++
		}
		if s.prev != nil {
			s.distance += Distance(*s.prev, p)
		}
		prev := p
		s.prev = &prev
	}
	return nil
}

func (s *recordRouteState) Summarize(ctx context.Context, out *rgrpc.OutputCollector, callCtx *rgrpc.CallContext) error {
	elapsed := int32(s.now().Sub(s.start) / time.Second)

	mem := memory.NewGoAllocator()
	builders := make([]*array.Int32Builder, 4)
	for i := range builders {
		builders[i] = array.NewInt32Builder(mem)
		defer builders[i].Release()
	}
	builders[0].Append(s.pointCount)
	builders[1].Append(s.featureCount)
	builders[2].Append(s.distance)
	builders[3].Append(elapsed)

	cols := make([]arrow.Array, 4)
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	defer releaseAll(cols)
	return out.EmitArrays(cols, 1)
}

// routeChatState buffers every note seen during the call. Each incoming
// note is answered with the earlier notes at the same location, in arrival
// order; a note never matches itself because the buffer is searched before
// the note is appended.
type routeChatState struct {
	notes []RouteNote
}

func (s *routeChatState) Exchange(ctx context.Context, input arrow.RecordBatch, out *rgrpc.OutputCollector, callCtx *rgrpc.CallContext) error {
	lats, lons, msgs, err := noteColumns(input)
	if err != nil {
		return err
	}

	var replies []RouteNote
	for i := 0; i < int(input.NumRows()); i++ {
		note := RouteNote{
			Location: Point{Latitude: lats.Value(i), Longitude: lons.Value(i)},
			Message:  msgs.Value(i),
		}
		for _, prior := range s.notes {
			if prior.Location.Equal(note.Location) {
				replies = append(replies, prior)
			}
		}
		s.notes = append(s.notes, note)
	}

	mem := memory.NewGoAllocator()
	latB := array.NewInt32Builder(mem)
	defer latB.Release()
	lonB := array.NewInt32Builder(mem)
	defer lonB.Release()
	msgB := array.NewStringBuilder(mem)
	defer msgB.Release()

	for _, r := range replies {
		latB.Append(r.Location.Latitude)
		lonB.Append(r.Location.Longitude)
		msgB.Append(r.Message)
	}

	cols := []arrow.Array{latB.NewArray(), lonB.NewArray(), msgB.NewArray()}
	defer releaseAll(cols)
	return out.EmitArrays(cols, int64(len(replies)))
}

// pointColumns extracts latitude/longitude columns from a point batch.
func pointColumns(batch arrow.RecordBatch) (lats, lons *array.Int32, err error) {
	if batch.NumCols() < 2 {
		return nil, nil, fmt.Errorf("expected latitude and longitude columns, got %d columns", batch.NumCols())
	}
	lats, ok := batch.Column(0).(*array.Int32)
	if !ok {
		return nil, nil, fmt.Errorf("latitude column: expected int32, got %s", batch.Column(0).DataType())
	}
	lons, ok = batch.Column(1).(*array.Int32)
	if !ok {
		return nil, nil, fmt.Errorf("longitude column: expected int32, got %s", batch.Column(1).DataType())
	}
	return lats, lons, nil
}

// noteColumns extracts the columns of a route note batch.
func noteColumns(batch arrow.RecordBatch) (lats, lons *array.Int32, msgs *array.String, err error) {
	lats, lons, err = pointColumns(batch)
	if err != nil {
		return nil, nil, nil, err
	}
	if batch.NumCols() < 3 {
		return nil, nil, nil, fmt.Errorf("expected message column, got %d columns", batch.NumCols())
	}
	msgs, ok := batch.Column(2).(*array.String)
	if !ok {
		return nil, nil, nil, fmt.Errorf("message column: expected string, got %s", batch.Column(2).DataType())
	}
	return lats, lons, msgs, nil
}

func releaseAll(arrays []arrow.Array) {
	for _, a := range arrays {
		a.Release()
	}
}
