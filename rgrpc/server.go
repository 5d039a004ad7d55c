// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"reflect"
	"sort"
	"strings"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// MethodType identifies how a registered method is dispatched.
type MethodType int

const (
	// MethodUnary is a request-response method with a single result.
	MethodUnary MethodType = iota
	// MethodProducer is a server-driven streaming method.
	MethodProducer
	// MethodCollector is a client-streamed method answered once at end of
	// input.
	MethodCollector
	// MethodExchange is a lockstep bidirectional streaming method.
	MethodExchange
)

// methodInfo stores the registration details for one RPC method.
type methodInfo struct {
	Name          string
	Type          MethodType
	ParamsType    reflect.Type      // Go struct type for parameters
	ResultType    reflect.Type      // Go type for unary result (nil for void)
	ParamsSchema  *arrow.Schema     // Arrow schema for parameter deserialization
	ResultSchema  *arrow.Schema     // Arrow schema for unary result serialization
	Handler       reflect.Value     // registered handler func
	ParamDefaults map[string]string // parameter defaults from struct tags
	OutputSchema  *arrow.Schema     // streaming methods: output batch schema
	InputSchema   *arrow.Schema     // collector/exchange: input batch schema
}

// Server dispatches incoming rg_rpc requests to registered methods.
type Server struct {
	methods      map[string]*methodInfo
	serverID     string
	serviceName  string
	dispatchHook DispatchHook
	debugErrors  bool
}

// NewServer creates a new RPC server with no methods registered.
func NewServer() *Server {
	return &Server{
		methods: make(map[string]*methodInfo),
	}
}

// SetServerID sets a server identifier included in response metadata.
func (s *Server) SetServerID(id string) {
	s.serverID = id
}

// SetServiceName sets a logical service name used by observability hooks.
func (s *Server) SetServiceName(name string) {
	s.serviceName = name
}

// ServiceName returns the logical service name, or "" if not set.
func (s *Server) ServiceName() string {
	return s.serviceName
}

// SetDispatchHook registers a hook called around each RPC dispatch.
func (s *Server) SetDispatchHook(hook DispatchHook) {
	s.dispatchHook = hook
}

// SetDebugErrors controls whether error responses include stack traces
// with file paths and function names. Enable for development; leave off
// for public-facing deployments.
func (s *Server) SetDebugErrors(enabled bool) {
	s.debugErrors = enabled
}

// Unary registers a unary method. P must be a struct with `rgrpc` tags.
func Unary[P any, R any](s *Server, name string, handler func(context.Context, *CallContext, P) (R, error)) {
	var p P
	var r R
	paramsType := reflect.TypeOf(p)
	resultType := reflect.TypeOf(r)

	paramsSchema, err := structToSchema(paramsType)
	if err != nil {
		panic(fmt.Sprintf("rgrpc: registering %q: invalid params type %T: %v", name, p, err))
	}
	rs, err := resultSchema(resultType)
	if err != nil {
		panic(fmt.Sprintf("rgrpc: registering %q: invalid result type %T: %v", name, r, err))
	}

	s.methods[name] = &methodInfo{
		Name:          name,
		Type:          MethodUnary,
		ParamsType:    paramsType,
		ResultType:    resultType,
		ParamsSchema:  paramsSchema,
		ResultSchema:  rs,
		Handler:       reflect.ValueOf(handler),
		ParamDefaults: extractDefaults(paramsType),
	}
}

// UnaryVoid registers a unary method that returns no value.
func UnaryVoid[P any](s *Server, name string, handler func(context.Context, *CallContext, P) error) {
	var p P
	paramsType := reflect.TypeOf(p)

	paramsSchema, err := structToSchema(paramsType)
	if err != nil {
		panic(fmt.Sprintf("rgrpc: registering %q: invalid params type %T: %v", name, p, err))
	}

	s.methods[name] = &methodInfo{
		Name:          name,
		Type:          MethodUnary,
		ParamsType:    paramsType,
		ResultType:    nil,
		ParamsSchema:  paramsSchema,
		ResultSchema:  arrow.NewSchema(nil, nil),
		Handler:       reflect.ValueOf(handler),
		ParamDefaults: extractDefaults(paramsType),
	}
}

// Producer registers a producer stream method. The handler's StreamResult
// state must implement [ProducerState].
func Producer[P any](s *Server, name string, outputSchema *arrow.Schema,
	handler func(context.Context, *CallContext, P) (*StreamResult, error)) {
	if outputSchema == nil {
		panic(fmt.Sprintf("rgrpc: registering %q: outputSchema must not be nil", name))
	}
	s.methods[name] = streamMethodInfo[P](name, MethodProducer, outputSchema, nil, handler)
}

// Collector registers a collector stream method. The handler's
// StreamResult state must implement [CollectorState].
func Collector[P any](s *Server, name string, outputSchema, inputSchema *arrow.Schema,
	handler func(context.Context, *CallContext, P) (*StreamResult, error)) {
	if outputSchema == nil {
		panic(fmt.Sprintf("rgrpc: registering %q: outputSchema must not be nil", name))
	}
	if inputSchema == nil {
		panic(fmt.Sprintf("rgrpc: registering %q: inputSchema must not be nil", name))
	}
	s.methods[name] = streamMethodInfo[P](name, MethodCollector, outputSchema, inputSchema, handler)
}

// Exchange registers an exchange stream method. The handler's StreamResult
// state must implement [ExchangeState].
func Exchange[P any](s *Server, name string, outputSchema, inputSchema *arrow.Schema,
	handler func(context.Context, *CallContext, P) (*StreamResult, error)) {
	if outputSchema == nil {
		panic(fmt.Sprintf("rgrpc: registering %q: outputSchema must not be nil", name))
	}
	if inputSchema == nil {
		panic(fmt.Sprintf("rgrpc: registering %q: inputSchema must not be nil", name))
	}
	s.methods[name] = streamMethodInfo[P](name, MethodExchange, outputSchema, inputSchema, handler)
}

func streamMethodInfo[P any](name string, mt MethodType, outputSchema, inputSchema *arrow.Schema,
	handler func(context.Context, *CallContext, P) (*StreamResult, error)) *methodInfo {
	var p P
	paramsType := reflect.TypeOf(p)
	paramsSchema, err := structToSchema(paramsType)
	if err != nil {
		panic(fmt.Sprintf("rgrpc: registering %q: invalid params type %T: %v", name, p, err))
	}
	return &methodInfo{
		Name:          name,
		Type:          mt,
		ParamsType:    paramsType,
		ParamsSchema:  paramsSchema,
		ResultSchema:  arrow.NewSchema(nil, nil),
		Handler:       reflect.ValueOf(handler),
		ParamDefaults: extractDefaults(paramsType),
		OutputSchema:  outputSchema,
		InputSchema:   inputSchema,
	}
}

// RunStdio runs the server loop on stdin/stdout. If either is a terminal a
// warning is printed to stderr.
func (s *Server) RunStdio() {
	// Ignore SIGPIPE so writes to closed pipes return errors instead of
	// killing the process; the serve loop already handles transport errors.
	signal.Ignore(syscall.SIGPIPE)

	if isTerminal(os.Stdin) || isTerminal(os.Stdout) {
		fmt.Fprintln(os.Stderr,
			"WARNING: This process communicates via Arrow IPC on stdin/stdout "+
				"and is not intended to be run interactively.\n"+
				"It should be launched as a subprocess or behind a socket listener.")
	}
	s.Serve(os.Stdin, os.Stdout)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Serve runs the server loop on the given reader/writer pair.
func (s *Server) Serve(r io.Reader, w io.Writer) {
	s.ServeWithContext(context.Background(), r, w)
}

// ServeWithContext runs the server loop until the transport closes or the
// context is cancelled.
func (s *Server) ServeWithContext(ctx context.Context, r io.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.serveOne(ctx, r, w)
		if err != nil {
			if err == io.EOF {
				return
			}
			if !isTransportClosed(err) {
				slog.Error("serve loop error", "err", err)
			}
			return
		}
	}
}

// serveOne handles one complete request-response cycle.
func (s *Server) serveOne(ctx context.Context, r io.Reader, w io.Writer) error {
	req, err := ReadRequest(r)
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		if rpcErr, ok := err.(*RpcError); ok {
			emptySchema := arrow.NewSchema(nil, nil)
			_ = writeErrorResponse(w, emptySchema, rpcErr, s.serverID, "", s.debugErrors)
			return nil // continue serving
		}
		return err // transport error, stop serving
	}
	defer req.Batch.Release()

	if req.Method == describeMethod {
		return s.serveDescribe(w)
	}

	info, ok := s.methods[req.Method]
	if !ok {
		errMsg := fmt.Sprintf("Unknown method: '%s'. Available methods: %v", req.Method, s.availableMethods())
		emptySchema := arrow.NewSchema(nil, nil)
		_ = writeErrorResponse(w, emptySchema, &RpcError{
			Type:    "AttributeError",
			Message: errMsg,
		}, s.serverID, req.RequestID, s.debugErrors)
		return nil
	}

	dispatchInfo := DispatchInfo{
		Method:            req.Method,
		MethodType:        methodTypeString(info.Type),
		ServerID:          s.serverID,
		RequestID:         req.RequestID,
		TransportMetadata: req.Metadata,
	}

	var hookToken HookToken
	var hookActive bool
	stats := &CallStatistics{}

	if s.dispatchHook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("dispatch hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = s.dispatchHook.OnDispatchStart(ctx, dispatchInfo)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	var handlerErr error
	var transportErr error
	switch info.Type {
	case MethodUnary:
		handlerErr, transportErr = s.serveUnary(ctx, w, req, info, stats)
	case MethodCollector:
		handlerErr, transportErr = s.serveCollect(ctx, r, w, req, info, stats)
	case MethodProducer, MethodExchange:
		handlerErr, transportErr = s.serveStream(ctx, r, w, req, info, stats)
	}

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("dispatch hook end panic", "err", rv)
				}
			}()
			s.dispatchHook.OnDispatchEnd(ctx, hookToken, dispatchInfo, stats, handlerErr)
		}()
	}

	return transportErr
}

// newCallContext builds the request-scoped context for handler calls.
func (s *Server) newCallContext(ctx context.Context, req *Request) *CallContext {
	callCtx := &CallContext{
		Ctx:       ctx,
		RequestID: req.RequestID,
		ServerID:  s.serverID,
		Method:    req.Method,
		LogLevel:  LogLevel(req.LogLevel),
	}
	if callCtx.LogLevel == "" {
		callCtx.LogLevel = LogTrace // allow all, the client filters
	}
	return callCtx
}

// serveUnary dispatches a unary call. handlerErr is the application error
// reported to hooks; transportErr stops the serve loop.
func (s *Server) serveUnary(ctx context.Context, w io.Writer, req *Request, info *methodInfo, stats *CallStatistics) (handlerErr, transportErr error) {
	params, err := deserializeParams(req.Batch, info.ParamsType)
	if err != nil {
		handlerErr = &RpcError{Type: "TypeError", Message: fmt.Sprintf("parameter deserialization: %v", err)}
		_ = writeErrorResponse(w, info.ResultSchema, handlerErr, s.serverID, req.RequestID, s.debugErrors)
		return handlerErr, nil
	}

	stats.RecordInput(req.Batch.NumRows(), batchBufferSize(req.Batch))
	callCtx := s.newCallContext(ctx, req)

	results := info.Handler.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(callCtx),
		params,
	})

	var resultVal reflect.Value
	var callErr error
	if info.ResultType == nil {
		if !results[0].IsNil() {
			callErr = results[0].Interface().(error)
		}
	} else {
		resultVal = results[0]
		if !results[1].IsNil() {
			callErr = results[1].Interface().(error)
		}
	}

	logs := callCtx.drainLogs()

	if callErr != nil {
		// Logs and the error batch share one IPC stream.
		ipcW := ipc.NewWriter(w, ipc.WithSchema(info.ResultSchema))
		for _, logMsg := range logs {
			if err := writeLogBatch(ipcW, info.ResultSchema, logMsg, s.serverID, req.RequestID); err != nil {
				slog.Error("failed to write log batch", "err", err)
			}
		}
		if err := writeErrorBatch(ipcW, info.ResultSchema, callErr, s.serverID, req.RequestID, s.debugErrors); err != nil {
			slog.Error("failed to write error batch", "err", err)
		}
		if err := ipcW.Close(); err != nil {
			slog.Error("failed to close IPC writer", "err", err)
		}
		return callErr, nil
	}

	if info.ResultType == nil {
		return nil, writeVoidResponse(w, logs, s.serverID, req.RequestID)
	}

	resultBatch, err := serializeResult(info.ResultSchema, resultVal.Interface())
	if err != nil {
		handlerErr = &RpcError{Type: "SerializationError", Message: fmt.Sprintf("result serialization: %v", err)}
		_ = writeErrorResponse(w, info.ResultSchema, handlerErr, s.serverID, req.RequestID, s.debugErrors)
		return handlerErr, nil
	}
	defer resultBatch.Release()

	stats.RecordOutput(resultBatch.NumRows(), batchBufferSize(resultBatch))
	return nil, writeUnaryResponse(w, info.ResultSchema, logs, resultBatch, s.serverID, req.RequestID)
}

// initStream deserializes params and runs the stream handler, writing an
// error response and draining input when initialization fails. The
// returned state is nil when an error response was already written.
func (s *Server) initStream(ctx context.Context, r io.Reader, w io.Writer, req *Request, info *methodInfo) (interface{}, *CallContext, error) {
	params, err := deserializeParams(req.Batch, info.ParamsType)
	if err != nil {
		initErr := &RpcError{Type: "TypeError", Message: fmt.Sprintf("parameter deserialization: %v", err)}
		s.failStream(r, w, info.OutputSchema, initErr, req.RequestID, info.Type == MethodCollector)
		return nil, nil, initErr
	}

	callCtx := s.newCallContext(ctx, req)

	results := info.Handler.Call([]reflect.Value{
		reflect.ValueOf(ctx),
		reflect.ValueOf(callCtx),
		params,
	})
	if !results[1].IsNil() {
		initErr := results[1].Interface().(error)
		s.failStream(r, w, info.OutputSchema, initErr, req.RequestID, info.Type == MethodCollector)
		return nil, nil, initErr
	}

	streamResult := results[0].Interface().(*StreamResult)
	state := streamResult.State

	var implements bool
	switch info.Type {
	case MethodProducer:
		_, implements = state.(ProducerState)
	case MethodCollector:
		_, implements = state.(CollectorState)
	case MethodExchange:
		_, implements = state.(ExchangeState)
	}
	if !implements {
		stateErr := &RpcError{
			Type:    "RuntimeError",
			Message: fmt.Sprintf("stream state %T does not implement the %s interface", state, methodTypeString(info.Type)),
		}
		s.failStream(r, w, info.OutputSchema, stateErr, req.RequestID, info.Type == MethodCollector)
		return nil, nil, stateErr
	}
	return state, callCtx, nil
}

// failStream writes an error batch in the expected output stream format so
// the client can read it during the normal streaming protocol, and drains
// the client's input so the transport is clean for the next request. The
// ordering depends on the shape: lockstep clients (producer, exchange)
// read after their first write, so the error goes out first; collector
// clients write their whole input before reading anything, so their input
// must be consumed first or both sides block writing.
func (s *Server) failStream(r io.Reader, w io.Writer, outputSchema *arrow.Schema, callErr error, requestID string, drainFirst bool) {
	if outputSchema == nil {
		outputSchema = arrow.NewSchema(nil, nil)
	}
	drain := func() {
		if inputReader, err := ipc.NewReader(r); err == nil {
			for inputReader.Next() {
				// discard
			}
			inputReader.Release()
		}
	}
	if drainFirst {
		drain()
	}
	outputWriter := ipc.NewWriter(w, ipc.WithSchema(outputSchema))
	if err := writeErrorBatch(outputWriter, outputSchema, callErr, s.serverID, requestID, s.debugErrors); err != nil {
		slog.Error("failed to write error batch", "err", err)
	}
	if err := outputWriter.Close(); err != nil {
		slog.Error("failed to close output writer", "err", err)
	}
	if !drainFirst {
		drain()
	}
}

// serveStream dispatches a producer or exchange method: a lockstep loop
// answering every client input batch (tick or data) with exactly one
// output batch, until the client closes its input or the producer
// finishes.
func (s *Server) serveStream(ctx context.Context, r io.Reader, w io.Writer, req *Request, info *methodInfo, stats *CallStatistics) (handlerErr, transportErr error) {
	state, callCtx, initErr := s.initStream(ctx, r, w, req, info)
	if initErr != nil {
		return initErr, nil
	}
	isProducer := info.Type == MethodProducer

	inputReader, err := ipc.NewReader(r)
	if err != nil {
		return nil, nil // transport error before the stream started
	}
	defer inputReader.Release()

	outputWriter := ipc.NewWriter(w, ipc.WithSchema(info.OutputSchema))

	for _, logMsg := range callCtx.drainLogs() {
		if err := writeLogBatch(outputWriter, info.OutputSchema, logMsg, s.serverID, req.RequestID); err != nil {
			slog.Error("failed to write init log batch", "err", err)
		}
	}

	var streamErr error
	for {
		if ctx.Err() != nil {
			break
		}
		if !inputReader.Next() {
			// Client closed the stream.
			break
		}
		inputBatch := inputReader.RecordBatch()
		stats.RecordInput(inputBatch.NumRows(), batchBufferSize(inputBatch))

		out := newOutputCollector(info.OutputSchema, s.serverID, isProducer)
		iterCtx := s.newCallContext(ctx, req)

		func() {
			defer func() {
				if rv := recover(); rv != nil {
					streamErr = &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("%v", rv)}
				}
			}()
			if isProducer {
				streamErr = state.(ProducerState).Produce(ctx, out, iterCtx)
			} else {
				streamErr = state.(ExchangeState).Exchange(ctx, inputBatch, out, iterCtx)
			}
		}()

		if streamErr != nil {
			if err := writeErrorBatch(outputWriter, info.OutputSchema, streamErr, s.serverID, req.RequestID, s.debugErrors); err != nil {
				slog.Error("failed to write stream error batch", "err", err)
			}
			break
		}

		if !out.Finished() {
			if err := out.validate(); err != nil {
				streamErr = err
				if writeErr := writeErrorBatch(outputWriter, info.OutputSchema, err, s.serverID, req.RequestID, s.debugErrors); writeErr != nil {
					slog.Error("failed to write validation error batch", "err", writeErr)
				}
				break
			}
		}

		transportErr = s.flushCollector(outputWriter, info.OutputSchema, out, stats)
		if transportErr != nil {
			break
		}
		if out.Finished() {
			break
		}
	}

	if err := outputWriter.Close(); err != nil {
		slog.Error("failed to close output writer", "err", err)
	}

	// Drain remaining input so the transport is clean for the next request.
	for inputReader.Next() {
		// discard
	}

	return streamErr, transportErr
}

// serveCollect dispatches a collector method: every client input batch is
// folded into the state, and exactly one result batch is written after the
// client closes its input. A failed input stream aborts the call with no
// result.
func (s *Server) serveCollect(ctx context.Context, r io.Reader, w io.Writer, req *Request, info *methodInfo, stats *CallStatistics) (handlerErr, transportErr error) {
	state, callCtx, initErr := s.initStream(ctx, r, w, req, info)
	if initErr != nil {
		return initErr, nil
	}
	collector := state.(CollectorState)

	inputReader, err := ipc.NewReader(r)
	if err != nil {
		return nil, nil
	}
	defer inputReader.Release()

	var collectErr error
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !inputReader.Next() {
			break
		}
		inputBatch := inputReader.RecordBatch()
		stats.RecordInput(inputBatch.NumRows(), batchBufferSize(inputBatch))

		func() {
			defer func() {
				if rv := recover(); rv != nil {
					collectErr = &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("%v", rv)}
				}
			}()
			collectErr = collector.Collect(ctx, inputBatch, callCtx)
		}()
		if collectErr != nil {
			break
		}
	}

	if collectErr != nil {
		// Drain the client's remaining input before writing anything: the
		// client may still be blocked writing, and on an unbuffered duplex
		// transport an eager error write would deadlock against it. The
		// existing reader is already mid-stream, so it is the only one that
		// can consume the rest.
		for inputReader.Next() {
			// discard
		}
		outputWriter := ipc.NewWriter(w, ipc.WithSchema(info.OutputSchema))
		for _, logMsg := range callCtx.drainLogs() {
			if err := writeLogBatch(outputWriter, info.OutputSchema, logMsg, s.serverID, req.RequestID); err != nil {
				slog.Error("failed to write log batch", "err", err)
			}
		}
		if err := writeErrorBatch(outputWriter, info.OutputSchema, collectErr, s.serverID, req.RequestID, s.debugErrors); err != nil {
			slog.Error("failed to write error batch", "err", err)
		}
		if err := outputWriter.Close(); err != nil {
			slog.Error("failed to close output writer", "err", err)
		}
		return collectErr, nil
	}
	if readErr := inputReader.Err(); readErr != nil {
		// Input stream failed mid-call: abort with no result.
		return nil, fmt.Errorf("reading collector input: %w", readErr)
	}

	out := newOutputCollector(info.OutputSchema, s.serverID, false)
	var sumErr error
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				sumErr = &RpcError{Type: "RuntimeError", Message: fmt.Sprintf("%v", rv)}
			}
		}()
		sumErr = collector.Summarize(ctx, out, callCtx)
	}()

	outputWriter := ipc.NewWriter(w, ipc.WithSchema(info.OutputSchema))
	for _, logMsg := range callCtx.drainLogs() {
		if err := writeLogBatch(outputWriter, info.OutputSchema, logMsg, s.serverID, req.RequestID); err != nil {
			slog.Error("failed to write log batch", "err", err)
		}
	}

	if sumErr == nil {
		sumErr = out.validate()
	}
	if sumErr != nil {
		if err := writeErrorBatch(outputWriter, info.OutputSchema, sumErr, s.serverID, req.RequestID, s.debugErrors); err != nil {
			slog.Error("failed to write error batch", "err", err)
		}
		if err := outputWriter.Close(); err != nil {
			slog.Error("failed to close output writer", "err", err)
		}
		return sumErr, nil
	}

	transportErr = s.flushCollector(outputWriter, info.OutputSchema, out, stats)
	if err := outputWriter.Close(); err != nil {
		slog.Error("failed to close output writer", "err", err)
	}
	return nil, transportErr
}

// flushCollector writes the collector's queued batches to the output
// writer, releasing them as it goes.
func (s *Server) flushCollector(outputWriter *ipc.Writer, outputSchema *arrow.Schema, out *OutputCollector, stats *CallStatistics) error {
	var transportErr error
	for i, ab := range out.batches {
		var writeErr error
		if ab.meta != nil {
			batchWithMeta := array.NewRecordBatchWithMetadata(
				outputSchema, ab.batch.Columns(), ab.batch.NumRows(), *ab.meta)
			writeErr = outputWriter.Write(batchWithMeta)
			batchWithMeta.Release()
		} else {
			stats.RecordOutput(ab.batch.NumRows(), batchBufferSize(ab.batch))
			writeErr = outputWriter.Write(ab.batch)
		}
		ab.batch.Release()
		if writeErr != nil {
			for _, remaining := range out.batches[i+1:] {
				remaining.batch.Release()
			}
			transportErr = fmt.Errorf("writing output batch: %w", writeErr)
			break
		}
	}
	return transportErr
}

// extractDefaults extracts default values from struct rgrpc tags.
func extractDefaults(t reflect.Type) map[string]string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	defaults := make(map[string]string)
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("rgrpc")
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)
		if info.Default != nil {
			defaults[info.Name] = *info.Default
		}
	}
	if len(defaults) == 0 {
		return nil
	}
	return defaults
}

// methodTypeString maps a MethodType to its DispatchInfo string.
func methodTypeString(t MethodType) string {
	switch t {
	case MethodProducer:
		return DispatchMethodProducer
	case MethodCollector:
		return DispatchMethodCollector
	case MethodExchange:
		return DispatchMethodExchange
	default:
		return DispatchMethodUnary
	}
}

// isTransportClosed reports whether err indicates a normally closed
// transport. A truncated message (io.ErrUnexpectedEOF) is a protocol
// failure, not a normal close, and must stay loud.
func isTransportClosed(err error) bool {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset")
}

func (s *Server) availableMethods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
