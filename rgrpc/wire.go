// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Request is a parsed RPC request read from the wire.
type Request struct {
	Method    string
	Version   string
	RequestID string
	LogLevel  string
	Batch     arrow.RecordBatch
	Metadata  map[string]string
}

// ReadRequest reads one complete IPC stream from r and extracts the method
// name, protocol version, and parameter batch.
func ReadRequest(r io.Reader) (*Request, error) {
	reader, err := ipc.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading request IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("reading request batch: %w", err)
		}
		return nil, io.EOF
	}

	batch := reader.RecordBatch()
	batch.Retain() // keep the batch alive after the reader is released

	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}

	method, ok := meta.GetValue(MetaMethod)
	if !ok {
		batch.Release()
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: "Missing 'rg_rpc.method' in request batch custom_metadata",
		}
	}

	version, ok := meta.GetValue(MetaRequestVersion)
	if !ok {
		batch.Release()
		return nil, &RpcError{
			Type:    "VersionError",
			Message: "Missing 'rg_rpc.request_version' in request batch custom_metadata",
		}
	}
	if version != ProtocolVersion {
		batch.Release()
		return nil, &RpcError{
			Type:    "VersionError",
			Message: fmt.Sprintf("Unsupported request version %q, expected %q", version, ProtocolVersion),
		}
	}

	if batch.Schema().NumFields() > 0 && batch.NumRows() != 1 {
		batch.Release()
		return nil, &RpcError{
			Type:    "ProtocolError",
			Message: fmt.Sprintf("Expected 1 row in request batch, got %d", batch.NumRows()),
		}
	}

	requestID, _ := meta.GetValue(MetaRequestID)
	logLevel, _ := meta.GetValue(MetaLogLevel)

	// Read to end-of-stream so the transport is positioned at the next
	// request.
	for reader.Next() {
		// discard
	}

	metaMap := make(map[string]string)
	for i := range meta.Len() {
		metaMap[meta.Keys()[i]] = meta.Values()[i]
	}

	return &Request{
		Method:    method,
		Version:   version,
		RequestID: requestID,
		LogLevel:  logLevel,
		Batch:     batch,
		Metadata:  metaMap,
	}, nil
}

// WriteRequest writes a complete request IPC stream: a 1-row parameter
// batch with control metadata, then end-of-stream. The client side of
// ReadRequest.
func WriteRequest(w io.Writer, method string, params any, requestID string) error {
	schema, batch, err := serializeParams(params)
	if err != nil {
		return fmt.Errorf("serializing params for %q: %w", method, err)
	}
	defer batch.Release()

	keys := []string{MetaMethod, MetaRequestVersion}
	vals := []string{method, ProtocolVersion}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	meta := arrow.NewMetadata(keys, vals)

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), batch.NumRows(), meta)
	defer batchWithMeta.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	if err := writer.Write(batchWithMeta); err != nil {
		return fmt.Errorf("writing request batch: %w", err)
	}
	return writer.Close()
}

// emptyBatch creates a zero-row batch with the given schema.
func emptyBatch(schema *arrow.Schema) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	for i, f := range schema.Fields() {
		builder := array.NewBuilder(mem, f.Type)
		cols[i] = builder.NewArray()
		builder.Release()
	}
	batch := array.NewRecordBatch(schema, cols, 0)
	for _, c := range cols {
		c.Release()
	}
	return batch
}

// writeLogBatch writes a zero-row batch carrying log metadata.
func writeLogBatch(w *ipc.Writer, schema *arrow.Schema, msg LogMessage, serverID, requestID string) error {
	keys := []string{MetaLogLevel, MetaLogMessage}
	vals := []string{string(msg.Level), msg.Message}

	if len(msg.Extras) > 0 {
		extraJSON, err := json.Marshal(msg.Extras)
		if err != nil {
			extraJSON = []byte(`{}`)
		}
		keys = append(keys, MetaLogExtra)
		vals = append(vals, string(extraJSON))
	}
	if serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, serverID)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}

	meta := arrow.NewMetadata(keys, vals)
	batch := emptyBatch(schema)
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, meta)
	defer batchWithMeta.Release()

	return w.Write(batchWithMeta)
}

// writeErrorBatch writes a zero-row batch with EXCEPTION-level metadata.
func writeErrorBatch(w *ipc.Writer, schema *arrow.Schema, err error, serverID, requestID string, debug bool) error {
	keys := []string{MetaLogLevel, MetaLogMessage, MetaLogExtra}
	vals := []string{string(LogException), err.Error(), buildErrorExtra(err, debug)}

	if serverID != "" {
		keys = append(keys, MetaServerID)
		vals = append(vals, serverID)
	}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}

	meta := arrow.NewMetadata(keys, vals)
	batch := emptyBatch(schema)
	defer batch.Release()

	batchWithMeta := array.NewRecordBatchWithMetadata(schema, batch.Columns(), 0, meta)
	defer batchWithMeta.Release()

	return w.Write(batchWithMeta)
}

// writeUnaryResponse writes a complete response IPC stream: log batches
// followed by the result batch, then end-of-stream.
func writeUnaryResponse(w io.Writer, schema *arrow.Schema, logs []LogMessage,
	result arrow.RecordBatch, serverID, requestID string) error {

	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()

	for _, logMsg := range logs {
		if err := writeLogBatch(writer, schema, logMsg, serverID, requestID); err != nil {
			return fmt.Errorf("writing log batch: %w", err)
		}
	}
	return writer.Write(result)
}

// writeErrorResponse writes a complete IPC stream containing just an error
// batch.
func writeErrorResponse(w io.Writer, schema *arrow.Schema, err error, serverID, requestID string, debug bool) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(schema))
	defer writer.Close()
	return writeErrorBatch(writer, schema, err, serverID, requestID, debug)
}

// writeVoidResponse writes logs and a zero-row empty-schema result.
func writeVoidResponse(w io.Writer, logs []LogMessage, serverID, requestID string) error {
	schema := arrow.NewSchema(nil, nil)
	batch := emptyBatch(schema)
	defer batch.Release()
	return writeUnaryResponse(w, schema, logs, batch, serverID, requestID)
}

// batchLogLevel returns the rg_rpc.log_level metadata of a batch, or "".
// Zero-row batches with a log level are control batches (logs or errors),
// everything else is data.
func batchLogLevel(batch arrow.RecordBatch) (LogLevel, bool) {
	rb, ok := batch.(arrow.RecordBatchWithMetadata)
	if !ok {
		return "", false
	}
	level, ok := rb.Metadata().GetValue(MetaLogLevel)
	if !ok {
		return "", false
	}
	return LogLevel(level), true
}

// batchToError converts an EXCEPTION batch into an *RpcError.
func batchToError(batch arrow.RecordBatch) *RpcError {
	rb, _ := batch.(arrow.RecordBatchWithMetadata)
	meta := rb.Metadata()
	message, _ := meta.GetValue(MetaLogMessage)
	extra, _ := meta.GetValue(MetaLogExtra)
	requestID, _ := meta.GetValue(MetaRequestID)
	return parseErrorExtra(message, extra, requestID)
}

// batchToLogMessage converts a log batch into a LogMessage.
func batchToLogMessage(batch arrow.RecordBatch, level LogLevel) LogMessage {
	rb, _ := batch.(arrow.RecordBatchWithMetadata)
	meta := rb.Metadata()
	message, _ := meta.GetValue(MetaLogMessage)
	msg := LogMessage{Level: level, Message: message}
	if extra, ok := meta.GetValue(MetaLogExtra); ok && extra != "" {
		extras := make(map[string]string)
		if err := json.Unmarshal([]byte(extra), &extras); err == nil {
			msg.Extras = extras
		}
	}
	return msg
}
