// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package rgrpc implements the rg_rpc protocol, an Apache Arrow IPC-based
// RPC layer used by the route guide demo service.
//
// Every request and response is an Arrow IPC stream. Parameters and
// results travel as RecordBatch columns; the control plane (method names,
// request IDs, log messages, error information) rides in per-batch custom
// metadata, keeping it human-readable while the data plane stays columnar.
//
// # Method shapes
//
// Four method shapes are supported:
//
//   - Unary: one request batch produces one result batch. Register with
//     [Unary] or [UnaryVoid].
//   - Producer: a request initiates a server-driven stream. The client
//     sends empty tick batches; each tick the server emits exactly one
//     data batch via [ProducerState.Produce], or ends the stream with
//     [OutputCollector.Finish]. Register with [Producer].
//   - Collector: the client streams data batches; when its input stream
//     ends the server emits exactly one result batch from
//     [CollectorState.Summarize]. Register with [Collector].
//   - Exchange: lockstep bidirectional streaming; every client batch is
//     answered by exactly one output batch (possibly zero rows) from
//     [ExchangeState.Exchange]. Register with [Exchange].
//
// # Struct tags
//
// Method parameters are Go structs annotated with `rgrpc` tags:
//
//	`rgrpc:"wire_name[,option[,option...]]"`
//
// Supported options:
//
//   - default=VALUE — value used when the client omits the parameter
//   - int32         — use Arrow Int32 instead of the default Int64
//   - float32       — use Arrow Float32 instead of the default Float64
//   - binary        — serialize an [ArrowSerializable] value as IPC bytes
//
// Pointer fields become nullable Arrow columns.
//
// # Transports
//
// [Server.RunStdio] and [Server.Serve] run the dispatch loop over any
// io.Reader/io.Writer pair: stdin/stdout for subprocess workers, an
// accepted net.Conn for TCP or unix-socket listeners, or net.Pipe ends in
// tests. [Client] speaks the same protocol from the caller's side.
package rgrpc
