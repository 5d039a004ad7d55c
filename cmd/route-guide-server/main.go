// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// route-guide-server serves the route guide methods over rg_rpc. By
// default it speaks the protocol on stdin/stdout; -tcp and -unix run a
// socket listener instead, one connection at a time per accept loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Query-farm/route-guide/rgrpc"
	rgotel "github.com/Query-farm/route-guide/rgrpc/otel"
	"github.com/Query-farm/route-guide/routeguide"
)

func main() {
	dbPath := flag.String("db", os.Getenv("ROUTE_GUIDE_DB"),
		"path to the feature database (JSON, optionally .zst); also $ROUTE_GUIDE_DB")
	tcpAddr := flag.String("tcp", "", "listen on a TCP address instead of stdio")
	unixPath := flag.String("unix", "", "listen on a unix socket instead of stdio")
	enableOtel := flag.Bool("otel", false, "emit OpenTelemetry traces and metrics to stderr")
	debugErrors := flag.Bool("debug", false, "include stack traces in error responses")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "route-guide-server: no feature database; pass -db or set ROUTE_GUIDE_DB")
		os.Exit(2)
	}
	store, err := routeguide.Load(*dbPath)
	if err != nil {
		slog.Error("loading feature database", "path", *dbPath, "err", err)
		os.Exit(1)
	}
	slog.Info("feature database loaded", "path", *dbPath, "features", store.Len())

	server := rgrpc.NewServer()
	server.SetDebugErrors(*debugErrors)
	routeguide.NewService(store).Register(server)

	if *enableOtel {
		shutdown, err := setupOtel()
		if err != nil {
			slog.Error("setting up OpenTelemetry", "err", err)
			os.Exit(1)
		}
		defer shutdown()
		rgotel.InstrumentServer(server, rgotel.DefaultConfig())
	}

	switch {
	case *tcpAddr != "":
		serveListener(server, "tcp", *tcpAddr)
	case *unixPath != "":
		os.Remove(*unixPath)
		serveListener(server, "unix", *unixPath)
		os.Remove(*unixPath)
	default:
		server.RunStdio()
	}
}

// serveListener accepts connections and serves each one to completion.
func serveListener(server *rgrpc.Server, network, addr string) {
	listener, err := net.Listen(network, addr)
	if err != nil {
		slog.Error("failed to listen", "network", network, "addr", addr, "err", err)
		os.Exit(1)
	}
	slog.Info("listening", "network", network, "addr", listener.Addr().String())

	// Catch SIGTERM/SIGINT so the listener closes and the accept loop ends.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			break
		}
		go func(conn net.Conn) {
			defer conn.Close()
			server.Serve(conn, conn)
		}(conn)
	}
}

// setupOtel installs stdout trace and metric exporters writing to stderr,
// keeping stdout free for the stdio transport.
func setupOtel() (func(), error) {
	traceExp, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func() {
		ctx := context.Background()
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
	}, nil
}
