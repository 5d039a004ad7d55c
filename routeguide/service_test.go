// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package routeguide

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Query-farm/route-guide/rgrpc"
)

// startService runs a real server over net.Pipe and returns a connected
// client. A non-nil clock replaces the service's time source.
func startService(t *testing.T, store *FeatureStore, clock func() time.Time) *Client {
	t.Helper()
	svc := NewService(store)
	if clock != nil {
		svc.now = clock
	}
	server := rgrpc.NewServer()
	svc.Register(server)

	clientConn, serverConn := net.Pipe()
	go server.Serve(serverConn, serverConn)
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	return NewClient(clientConn, clientConn)
}

func testStore() *FeatureStore {
	return NewFeatureStore([]Feature{
		{Name: "A", Location: Point{Latitude: 10, Longitude: 10}},
		{Name: "", Location: Point{Latitude: 20, Longitude: 20}},
		{Name: "B", Location: Point{Latitude: 30, Longitude: 30}},
	})
}

func TestGetFeatureHit(t *testing.T) {
	client := startService(t, testStore(), nil)

	f, err := client.GetFeature(Point{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	assert.Equal(t, "A", f.Name)
	assert.Equal(t, Point{Latitude: 10, Longitude: 10}, f.Location)
}

func TestGetFeatureMiss(t *testing.T) {
	client := startService(t, testStore(), nil)

	// An unnamed database entry and an absent point both answer with the
	// miss sentinel carrying the queried location.
	for _, p := range []Point{
		{Latitude: 20, Longitude: 20},
		{Latitude: 99, Longitude: 99},
	} {
		f, err := client.GetFeature(p)
		require.NoError(t, err)
		assert.False(t, f.Exists())
		assert.Equal(t, p, f.Location)
	}
}

func TestListFeatures(t *testing.T) {
	client := startService(t, testStore(), nil)

	features, err := client.ListFeatures(Rectangle{
		Lo: Point{Latitude: 0, Longitude: 0},
		Hi: Point{Latitude: 100, Longitude: 100},
	})
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "A", features[0].Name)
	assert.Equal(t, "B", features[1].Name)
}

func TestListFeaturesEmptyArea(t *testing.T) {
	client := startService(t, testStore(), nil)

	features, err := client.ListFeatures(Rectangle{
		Lo: Point{Latitude: 1000, Longitude: 1000},
		Hi: Point{Latitude: 2000, Longitude: 2000},
	})
	require.NoError(t, err)
	assert.Empty(t, features)
}

func TestRecordRoute(t *testing.T) {
	store := NewFeatureStore([]Feature{
		{Name: "Origin", Location: Point{Latitude: 0, Longitude: 0}},
	})
	// The clock is read once when the call starts and once when it is
	// summarized.
	t0 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return t0
		}
		return t0.Add(5 * time.Second)
	}
	client := startService(t, store, clock)

	summary, err := client.RecordRoute([]Point{
		{Latitude: 0, Longitude: 0},
		{Latitude: 0, Longitude: 10000000},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), summary.PointCount)
	assert.Equal(t, int32(1), summary.FeatureCount)
	assert.Equal(t, int32(111194), summary.Distance)
	assert.Equal(t, int32(5), summary.ElapsedTime)
}

func TestRecordRouteEmpty(t *testing.T) {
	client := startService(t, testStore(), nil)

	summary, err := client.RecordRoute(nil)
	require.NoError(t, err)
	assert.Equal(t, RouteSummary{ElapsedTime: summary.ElapsedTime}, summary)
	assert.GreaterOrEqual(t, summary.ElapsedTime, int32(0))
}

func TestRecordRouteRepeatedPoint(t *testing.T) {
	store := NewFeatureStore([]Feature{
		{Name: "Origin", Location: Point{Latitude: 0, Longitude: 0}},
	})
	client := startService(t, store, nil)

	// The same featureful point three times: each visit counts, and the
	// pairwise distances are zero.
	p := Point{Latitude: 0, Longitude: 0}
	summary, err := client.RecordRoute([]Point{p, p, p})
	require.NoError(t, err)
	assert.Equal(t, int32(3), summary.PointCount)
	assert.Equal(t, int32(3), summary.FeatureCount)
	assert.Equal(t, int32(0), summary.Distance)
}

func TestRouteChatReplay(t *testing.T) {
	client := startService(t, testStore(), nil)

	chat, err := client.OpenRouteChat()
	require.NoError(t, err)
	defer chat.Close()

	origin := Point{Latitude: 0, Longitude: 0}
	notes := []RouteNote{
		{Location: origin, Message: "First message"},
		{Location: Point{Latitude: 0, Longitude: 1}, Message: "Second message"},
		{Location: Point{Latitude: 1, Longitude: 0}, Message: "Third message"},
		{Location: origin, Message: "Fourth message"},
	}

	var replies [][]RouteNote
	for _, note := range notes {
		got, err := chat.Send(note)
		require.NoError(t, err)
		replies = append(replies, got)
	}

	// A note never matches itself, so only the fourth send gets a reply:
	// the first note at the same location.
	assert.Empty(t, replies[0])
	assert.Empty(t, replies[1])
	assert.Empty(t, replies[2])
	require.Len(t, replies[3], 1)
	assert.Equal(t, "First message", replies[3][0].Message)
	assert.Equal(t, origin, replies[3][0].Location)

	// A later note at the same location sees both earlier ones, in order.
	got, err := chat.Send(RouteNote{Location: origin, Message: "Fifth message"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "First message", got[0].Message)
	assert.Equal(t, "Fourth message", got[1].Message)
}

func TestRouteChatBufferIsPerCall(t *testing.T) {
	client := startService(t, testStore(), nil)
	origin := Point{Latitude: 0, Longitude: 0}

	chat, err := client.OpenRouteChat()
	require.NoError(t, err)
	_, err = chat.Send(RouteNote{Location: origin, Message: "only in call one"})
	require.NoError(t, err)
	require.NoError(t, chat.Close())

	chat, err = client.OpenRouteChat()
	require.NoError(t, err)
	defer chat.Close()
	got, err := chat.Send(RouteNote{Location: origin, Message: "call two"})
	require.NoError(t, err)
	assert.Empty(t, got, "notes must not leak across calls")
}

func TestSequentialCallsOnOneConnection(t *testing.T) {
	client := startService(t, testStore(), nil)

	f, err := client.GetFeature(Point{Latitude: 10, Longitude: 10})
	require.NoError(t, err)
	assert.Equal(t, "A", f.Name)

	features, err := client.ListFeatures(Rectangle{
		Lo: Point{Latitude: 0, Longitude: 0},
		Hi: Point{Latitude: 100, Longitude: 100},
	})
	require.NoError(t, err)
	assert.Len(t, features, 2)

	summary, err := client.RecordRoute([]Point{{Latitude: 10, Longitude: 10}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), summary.FeatureCount)

	f, err = client.GetFeature(Point{Latitude: 30, Longitude: 30})
	require.NoError(t, err)
	assert.Equal(t, "B", f.Name)
}
