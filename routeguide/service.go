// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"context"
	"time"

	"github.com/Query-farm/route-guide/rgrpc"
)

// ServiceName is the logical name reported to observability hooks.
const ServiceName = "RouteGuide"

// Service exposes the route guide methods over an rg_rpc server.
type Service struct {
	store *FeatureStore
	now   func() time.Time
}

// NewService creates a service over the given feature store.
func NewService(store *FeatureStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Register registers all route guide methods on the server.
func (svc *Service) Register(server *rgrpc.Server) {
	server.SetServiceName(ServiceName)
	rgrpc.Unary(server, "get_feature", svc.getFeature)
	rgrpc.Producer(server, "list_features", FeatureRowSchema, svc.listFeatures)
	rgrpc.Collector(server, "record_route", SummaryRowSchema, PointRowSchema, svc.recordRoute)
	rgrpc.Exchange(server, "route_chat", NoteRowSchema, NoteRowSchema, svc.routeChat)
}

// GetFeatureParams locate a single point.
type GetFeatureParams struct {
	Latitude  int32 `rgrpc:"latitude,int32"`
	Longitude int32 `rgrpc:"longitude,int32"`
}

// getFeature returns the named feature at the exact point, or the
// empty-name sentinel carrying the queried location when nothing is there.
func (svc *Service) getFeature(ctx context.Context, callCtx *rgrpc.CallContext, p GetFeatureParams) (Feature, error) {
	point := Point{Latitude: p.Latitude, Longitude: p.Longitude}
	if f, ok := svc.store.At(point); ok {
		return f, nil
	}
	return Feature{Location: point}, nil
}

// ListFeaturesParams bound the area to list.
type ListFeaturesParams struct {
	Rect Rectangle `rgrpc:"rectangle,binary"`
}

// listFeatures streams the named features inside the rectangle, one per
// tick, in database order.
func (svc *Service) listFeatures(ctx context.Context, callCtx *rgrpc.CallContext, p ListFeaturesParams) (*rgrpc.StreamResult, error) {
	return &rgrpc.StreamResult{
		OutputSchema: FeatureRowSchema,
		State: &listFeaturesState{
			matches: svc.store.Within(p.Rect),
		},
	}, nil
}

// RecordRouteParams is empty: the route arrives on the input stream.
type RecordRouteParams struct{}

// recordRoute folds a client-streamed route into a single RouteSummary.
func (svc *Service) recordRoute(ctx context.Context, callCtx *rgrpc.CallContext, _ RecordRouteParams) (*rgrpc.StreamResult, error) {
	return &rgrpc.StreamResult{
		OutputSchema: SummaryRowSchema,
		InputSchema:  PointRowSchema,
		State: &recordRouteState{
			store: svc.store,
			now:   svc.now,
			start: svc.now(),
		},
	}, nil
}

// RouteChatParams is empty: notes arrive on the input stream.
type RouteChatParams struct{}

// routeChat answers each incoming note with the previously seen notes at
// the same location. The buffer lives for the duration of one call.
func (svc *Service) routeChat(ctx context.Context, callCtx *rgrpc.CallContext, _ RouteChatParams) (*rgrpc.StreamResult, error) {
	return &rgrpc.StreamResult{
		OutputSchema: NoteRowSchema,
		InputSchema:  NoteRowSchema,
		State:        &routeChatState{},
	}, nil
}
