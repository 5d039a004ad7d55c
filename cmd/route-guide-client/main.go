// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// route-guide-client runs a canned demo against a route guide server: two
// feature lookups, an area listing, a recorded route of random database
// points, and a short chat. It spawns the server as a subprocess over
// stdio by default, or connects to a running one with -tcp.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/exec"

	"golang.org/x/sync/errgroup"

	"github.com/Query-farm/route-guide/rgrpc"
	"github.com/Query-farm/route-guide/routeguide"
)

func main() {
	dbPath := flag.String("db", os.Getenv("ROUTE_GUIDE_DB"),
		"path to the feature database; also $ROUTE_GUIDE_DB")
	serverBin := flag.String("server", "route-guide-server",
		"server binary to spawn over stdio")
	tcpAddr := flag.String("tcp", "", "connect to a running server instead of spawning one")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "route-guide-client: no feature database; pass -db or set ROUTE_GUIDE_DB")
		os.Exit(2)
	}
	store, err := routeguide.Load(*dbPath)
	if err != nil {
		slog.Error("loading feature database", "path", *dbPath, "err", err)
		os.Exit(1)
	}

	var g errgroup.Group
	var client *routeguide.Client

	if *tcpAddr != "" {
		conn, err := net.Dial("tcp", *tcpAddr)
		if err != nil {
			slog.Error("connecting", "addr", *tcpAddr, "err", err)
			os.Exit(1)
		}
		defer conn.Close()
		client = routeguide.NewClient(conn, conn)
	} else {
		cmd := exec.Command(*serverBin, "-db", *dbPath)
		stdin, err := cmd.StdinPipe()
		if err != nil {
			slog.Error("spawning server", "err", err)
			os.Exit(1)
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			slog.Error("spawning server", "err", err)
			os.Exit(1)
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			slog.Error("spawning server", "err", err)
			os.Exit(1)
		}
		if err := cmd.Start(); err != nil {
			slog.Error("starting server", "bin", *serverBin, "err", err)
			os.Exit(1)
		}
		defer func() {
			stdin.Close()
			cmd.Wait()
		}()

		g.Go(func() error { return forwardServerLogs(stderr) })
		client = routeguide.NewClient(stdout, stdin)
	}

	client.RPC().SetLogHandler(func(msg rgrpc.LogMessage) {
		slog.Info("server log", "level", msg.Level, "msg", msg.Message)
	})

	g.Go(func() error { return runDemo(client, store) })
	if err := g.Wait(); err != nil {
		slog.Error("demo failed", "err", err)
		os.Exit(1)
	}
}

// forwardServerLogs relays the subprocess's stderr lines to our logger.
func forwardServerLogs(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		slog.Info("server", "line", scanner.Text())
	}
	return nil
}

func runDemo(client *routeguide.Client, store *routeguide.FeatureStore) error {
	if err := getFeatureDemo(client, routeguide.Point{Latitude: 409146138, Longitude: -746188906}); err != nil {
		return err
	}
	// A point with no feature: the server answers with the miss sentinel.
	if err := getFeatureDemo(client, routeguide.Point{}); err != nil {
		return err
	}
	if err := listFeaturesDemo(client); err != nil {
		return err
	}
	if err := recordRouteDemo(client, store); err != nil {
		return err
	}
	return routeChatDemo(client)
}

func getFeatureDemo(client *routeguide.Client, p routeguide.Point) error {
	f, err := client.GetFeature(p)
	if err != nil {
		return fmt.Errorf("get_feature: %w", err)
	}
	if f.Exists() {
		fmt.Printf("Found feature %q at %s\n", f.Name, f.Location)
	} else {
		fmt.Printf("Found no feature at %s\n", f.Location)
	}
	return nil
}

func listFeaturesDemo(client *routeguide.Client) error {
	rect := routeguide.Rectangle{
		Lo: routeguide.Point{Latitude: 400000000, Longitude: -750000000},
		Hi: routeguide.Point{Latitude: 420000000, Longitude: -730000000},
	}
	features, err := client.ListFeatures(rect)
	if err != nil {
		return fmt.Errorf("list_features: %w", err)
	}
	fmt.Printf("Found %d features in %s - %s:\n", len(features), rect.Lo, rect.Hi)
	for _, f := range features {
		fmt.Printf("  %q at %s\n", f.Name, f.Location)
	}
	return nil
}

func recordRouteDemo(client *routeguide.Client, store *routeguide.FeatureStore) error {
	all := store.All()
	points := make([]routeguide.Point, 10)
	for i := range points {
		points[i] = all[rand.IntN(len(all))].Location
	}
	summary, err := client.RecordRoute(points)
	if err != nil {
		return fmt.Errorf("record_route: %w", err)
	}
	fmt.Printf("Route: %d points, %d features, %d meters, %d seconds\n",
		summary.PointCount, summary.FeatureCount, summary.Distance, summary.ElapsedTime)
	return nil
}

func routeChatDemo(client *routeguide.Client) error {
	chat, err := client.OpenRouteChat()
	if err != nil {
		return fmt.Errorf("route_chat: %w", err)
	}
	defer chat.Close()

	notes := []routeguide.RouteNote{
		{Location: routeguide.Point{Latitude: 0, Longitude: 0}, Message: "First message"},
		{Location: routeguide.Point{Latitude: 0, Longitude: 1}, Message: "Second message"},
		{Location: routeguide.Point{Latitude: 1, Longitude: 0}, Message: "Third message"},
		{Location: routeguide.Point{Latitude: 0, Longitude: 0}, Message: "Fourth message"},
	}
	for _, note := range notes {
		replies, err := chat.Send(note)
		if err != nil {
			return fmt.Errorf("route_chat send: %w", err)
		}
		fmt.Printf("Sent %q at %s\n", note.Message, note.Location)
		for _, r := range replies {
			fmt.Printf("  got %q at %s\n", r.Message, r.Location)
		}
	}
	return nil
}
