// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// ProducerState is the per-call state of a producer stream. Produce is
// called once per client tick. It must either emit exactly one data batch
// via the collector or call [OutputCollector.Finish] to end the stream.
type ProducerState interface {
	Produce(ctx context.Context, out *OutputCollector, callCtx *CallContext) error
}

// CollectorState is the per-call state of a collector stream: the client
// streams data batches, the server answers once at end of input. Collect
// is called for each input batch in arrival order; Summarize is called
// exactly once after the client closes its input stream and must emit
// exactly one data batch. If the input stream fails, Summarize is never
// called and the call is aborted.
type CollectorState interface {
	Collect(ctx context.Context, input arrow.RecordBatch, callCtx *CallContext) error
	Summarize(ctx context.Context, out *OutputCollector, callCtx *CallContext) error
}

// ExchangeState is the per-call state of an exchange stream. Exchange is
// called once per input batch and must emit exactly one data batch, which
// may have zero rows. It must not call Finish: the stream ends when the
// client closes its input.
type ExchangeState interface {
	Exchange(ctx context.Context, input arrow.RecordBatch, out *OutputCollector, callCtx *CallContext) error
}

// StreamResult is returned by stream method handlers at call
// initialization. State must implement the interface matching the
// registered method shape.
type StreamResult struct {
	// OutputSchema is the Arrow schema of emitted data batches.
	OutputSchema *arrow.Schema
	// State is the per-call stream state object, exclusively owned by this
	// call and discarded when the call ends.
	State interface{}
	// InputSchema is the schema of client-sent input batches. Nil for
	// producer methods, whose input batches are empty ticks.
	InputSchema *arrow.Schema
}

// OutputCollector accumulates output batches for one Produce, Summarize,
// or Exchange invocation. It enforces that exactly one data batch is
// emitted per invocation (plus any number of log batches); batch order is
// preserved because logs must precede the data batch they annotate.
type OutputCollector struct {
	schema       *arrow.Schema
	batches      []annotatedBatch
	dataBatchIdx int // -1 if no data batch yet
	finished     bool
	producerMode bool
	serverID     string
}

// annotatedBatch is a batch with optional custom metadata.
type annotatedBatch struct {
	batch arrow.RecordBatch
	meta  *arrow.Metadata // nil for data batches
}

func newOutputCollector(schema *arrow.Schema, serverID string, producerMode bool) *OutputCollector {
	return &OutputCollector{
		schema:       schema,
		dataBatchIdx: -1,
		producerMode: producerMode,
		serverID:     serverID,
	}
}

// Emit adds a pre-built data batch. It is an error to emit more than one
// data batch per invocation. If the batch carries a different schema
// object than the output schema it is re-wrapped so the IPC writer accepts
// it.
func (o *OutputCollector) Emit(batch arrow.RecordBatch) error {
	if o.dataBatchIdx >= 0 {
		return fmt.Errorf("OutputCollector: only one data batch may be emitted per call")
	}
	if batch.Schema() != o.schema {
		original := batch
		batch = array.NewRecordBatch(o.schema, batch.Columns(), batch.NumRows())
		original.Release()
	}
	o.dataBatchIdx = len(o.batches)
	o.batches = append(o.batches, annotatedBatch{batch: batch})
	return nil
}

// EmitArrays builds a RecordBatch from arrays using the output schema and
// emits it.
func (o *OutputCollector) EmitArrays(arrays []arrow.Array, numRows int64) error {
	batch := array.NewRecordBatch(o.schema, arrays, numRows)
	return o.Emit(batch)
}

// Finish signals end-of-stream. Only producer streams may finish
// themselves; collector and exchange streams end with the client's input.
func (o *OutputCollector) Finish() error {
	if !o.producerMode {
		return fmt.Errorf("OutputCollector: Finish() is only allowed on producer streams")
	}
	o.finished = true
	return nil
}

// Finished reports whether Finish has been called.
func (o *OutputCollector) Finished() bool {
	return o.finished
}

// ClientLog queues a zero-row log batch with the given level and message.
func (o *OutputCollector) ClientLog(level LogLevel, message string, extras ...KV) {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(level), message}

	if len(extras) > 0 {
		extraMap := make(map[string]string, len(extras))
		for _, kv := range extras {
			extraMap[kv.Key] = kv.Value
		}
		extraJSON, _ := json.Marshal(extraMap)
		keys = append(keys, MetaLogExtra)
		vals = append(vals, string(extraJSON))
	}
	if o.serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, o.serverID)
	}

	meta := arrow.NewMetadata(keys, vals)
	batch := emptyBatch(o.schema)
	o.batches = append(o.batches, annotatedBatch{batch: batch, meta: &meta})
}

// validate checks that exactly one data batch was emitted.
func (o *OutputCollector) validate() error {
	if o.dataBatchIdx < 0 {
		return &RpcError{Type: "RuntimeError", Message: "No data batch was emitted"}
	}
	return nil
}
