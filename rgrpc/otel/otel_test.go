// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgotel_test

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Query-farm/route-guide/rgrpc"
	rgotel "github.com/Query-farm/route-guide/rgrpc/otel"
)

type pingParams struct {
	Value int64 `rgrpc:"value"`
}

func TestInstrumentServerRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	server := rgrpc.NewServer()
	server.SetServiceName("PingService")
	rgrpc.Unary(server, "ping", func(ctx context.Context, callCtx *rgrpc.CallContext, p pingParams) (int64, error) {
		return p.Value + 1, nil
	})

	cfg := rgotel.DefaultConfig()
	cfg.TracerProvider = tp
	cfg.EnableMetrics = false
	rgotel.InstrumentServer(server, cfg)

	clientConn, serverConn := net.Pipe()
	go server.Serve(serverConn, serverConn)
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	client := rgrpc.NewClient(clientConn, clientConn)

	result, err := rgrpc.Call[int64](client, "ping", pingParams{Value: 41})
	require.NoError(t, err)
	assert.Equal(t, int64(42), result)

	// A second call guarantees the first span has ended.
	_, err = rgrpc.Call[int64](client, "ping", pingParams{Value: 0})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.NotEmpty(t, spans)
	assert.Equal(t, "rg_rpc/ping", spans[0].Name())
}
