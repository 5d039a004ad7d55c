// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var valueSchema = arrow.NewSchema([]arrow.Field{
	{Name: "value", Type: arrow.PrimitiveTypes.Int64},
}, nil)

var totalSchema = arrow.NewSchema([]arrow.Field{
	{Name: "total", Type: arrow.PrimitiveTypes.Int64},
}, nil)

type countParams struct {
	Limit int64 `rgrpc:"limit"`
}

// countState emits 0..Limit-1, one row per tick.
type countState struct {
	limit int64
	next  int64
}

func (s *countState) Produce(ctx context.Context, out *OutputCollector, callCtx *CallContext) error {
	if s.next >= s.limit {
		return out.Finish()
	}
	batch := valueBatch(s.next)
	s.next++
	return out.Emit(batch)
}

// sumState folds input rows into a running total.
type sumState struct {
	total int64
}

func (s *sumState) Collect(ctx context.Context, input arrow.RecordBatch, callCtx *CallContext) error {
	vals := input.Column(0).(*array.Int64)
	for i := 0; i < int(input.NumRows()); i++ {
		s.total += vals.Value(i)
	}
	return nil
}

func (s *sumState) Summarize(ctx context.Context, out *OutputCollector, callCtx *CallContext) error {
	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.Append(s.total)
	arr := b.NewArray()
	defer arr.Release()
	return out.EmitArrays([]arrow.Array{arr}, 1)
}

// rejectState refuses every input batch.
type rejectState struct{}

func (rejectState) Collect(ctx context.Context, input arrow.RecordBatch, callCtx *CallContext) error {
	return &RpcError{Type: "ValueError", Message: "input rejected"}
}

func (rejectState) Summarize(ctx context.Context, out *OutputCollector, callCtx *CallContext) error {
	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.Append(0)
	arr := b.NewArray()
	defer arr.Release()
	return out.EmitArrays([]arrow.Array{arr}, 1)
}

// doubleState answers each batch with its values doubled.
type doubleState struct{}

func (doubleState) Exchange(ctx context.Context, input arrow.RecordBatch, out *OutputCollector, callCtx *CallContext) error {
	vals := input.Column(0).(*array.Int64)
	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	for i := 0; i < int(input.NumRows()); i++ {
		b.Append(vals.Value(i) * 2)
	}
	arr := b.NewArray()
	defer arr.Release()
	return out.EmitArrays([]arrow.Array{arr}, input.NumRows())
}

func valueBatch(vals ...int64) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	b := array.NewInt64Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	arr := b.NewArray()
	defer arr.Release()
	return array.NewRecordBatch(valueSchema, []arrow.Array{arr}, int64(len(vals)))
}

func newTestServer() *Server {
	server := NewServer()

	Unary(server, "echo", func(ctx context.Context, callCtx *CallContext, p echoParams) (string, error) {
		return fmt.Sprintf("%s/%d/%d", p.Name, p.Count, p.Scale), nil
	})
	Unary(server, "fail", func(ctx context.Context, callCtx *CallContext, p echoParams) (string, error) {
		return "", &RpcError{Type: "ValueError", Message: "rejected"}
	})
	Unary(server, "chatty", func(ctx context.Context, callCtx *CallContext, p echoParams) (string, error) {
		callCtx.ClientLog(LogInfo, "working on it")
		return "done", nil
	})
	Producer(server, "count_to", valueSchema,
		func(ctx context.Context, callCtx *CallContext, p countParams) (*StreamResult, error) {
			return &StreamResult{OutputSchema: valueSchema, State: &countState{limit: p.Limit}}, nil
		})
	Collector(server, "sum", totalSchema, valueSchema,
		func(ctx context.Context, callCtx *CallContext, p struct{}) (*StreamResult, error) {
			return &StreamResult{OutputSchema: totalSchema, InputSchema: valueSchema, State: &sumState{}}, nil
		})
	Collector(server, "sum_reject", totalSchema, valueSchema,
		func(ctx context.Context, callCtx *CallContext, p struct{}) (*StreamResult, error) {
			return &StreamResult{OutputSchema: totalSchema, InputSchema: valueSchema, State: rejectState{}}, nil
		})
	Exchange(server, "double", valueSchema, valueSchema,
		func(ctx context.Context, callCtx *CallContext, p struct{}) (*StreamResult, error) {
			return &StreamResult{OutputSchema: valueSchema, InputSchema: valueSchema, State: doubleState{}}, nil
		})

	return server
}

func pipeClient(t *testing.T, server *Server) *Client {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	go server.Serve(serverSide, serverSide)
	t.Cleanup(func() {
		clientSide.Close()
		serverSide.Close()
	})
	return NewClient(clientSide, clientSide)
}

func TestUnaryCall(t *testing.T) {
	client := pipeClient(t, newTestServer())

	result, err := Call[string](client, "echo", echoParams{Name: "a", Count: 3, Scale: 2})
	require.NoError(t, err)
	assert.Equal(t, "a/3/2", result)
}

func TestUnaryCallSequential(t *testing.T) {
	client := pipeClient(t, newTestServer())

	for i := int64(0); i < 3; i++ {
		result, err := Call[string](client, "echo", echoParams{Name: "n", Count: i})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("n/%d/0", i), result)
	}
}

func TestUnaryError(t *testing.T) {
	client := pipeClient(t, newTestServer())

	_, err := Call[string](client, "fail", echoParams{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRpc))

	var rpcErr *RpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "ValueError", rpcErr.Type)
}

func TestUnknownMethod(t *testing.T) {
	client := pipeClient(t, newTestServer())

	_, err := Call[string](client, "no_such_method", echoParams{})
	require.Error(t, err)
	var rpcErr *RpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "AttributeError", rpcErr.Type)
	assert.Contains(t, rpcErr.Message, "no_such_method")
}

func TestClientLogDelivery(t *testing.T) {
	client := pipeClient(t, newTestServer())

	var logs []LogMessage
	client.SetLogHandler(func(msg LogMessage) {
		logs = append(logs, msg)
	})

	result, err := Call[string](client, "chatty", echoParams{})
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	require.Len(t, logs, 1)
	assert.Equal(t, LogInfo, logs[0].Level)
	assert.Equal(t, "working on it", logs[0].Message)
}

func TestProducerStream(t *testing.T) {
	client := pipeClient(t, newTestServer())

	stream, err := client.OpenProducer("count_to", countParams{Limit: 3})
	require.NoError(t, err)
	defer stream.Close()

	var got []int64
	for {
		batch, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		vals := batch.Column(0).(*array.Int64)
		for i := 0; i < int(batch.NumRows()); i++ {
			got = append(got, vals.Value(i))
		}
		batch.Release()
	}
	assert.Equal(t, []int64{0, 1, 2}, got)
}

func TestProducerStreamEmpty(t *testing.T) {
	client := pipeClient(t, newTestServer())

	stream, err := client.OpenProducer("count_to", countParams{Limit: 0})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err)
}

func TestCollectorStream(t *testing.T) {
	client := pipeClient(t, newTestServer())

	stream, err := client.OpenCollector("sum", struct{}{}, valueSchema)
	require.NoError(t, err)

	for _, vals := range [][]int64{{1, 2}, {3}, {4, 5, 6}} {
		batch := valueBatch(vals...)
		err := stream.Send(batch)
		batch.Release()
		require.NoError(t, err)
	}

	result, err := stream.CloseAndRecv()
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, int64(1), result.NumRows())
	assert.Equal(t, int64(21), result.Column(0).(*array.Int64).Value(0))
}

func TestCollectorStreamNoInput(t *testing.T) {
	client := pipeClient(t, newTestServer())

	stream, err := client.OpenCollector("sum", struct{}{}, valueSchema)
	require.NoError(t, err)

	result, err := stream.CloseAndRecv()
	require.NoError(t, err)
	defer result.Release()

	assert.Equal(t, int64(0), result.Column(0).(*array.Int64).Value(0))
}

func TestCollectorStreamError(t *testing.T) {
	client := pipeClient(t, newTestServer())

	stream, err := client.OpenCollector("sum_reject", struct{}{}, valueSchema)
	require.NoError(t, err)

	batch := valueBatch(1, 2)
	err = stream.Send(batch)
	batch.Release()
	require.NoError(t, err)

	_, err = stream.CloseAndRecv()
	require.Error(t, err)
	var rpcErr *RpcError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, "ValueError", rpcErr.Type)
	assert.Equal(t, "input rejected", rpcErr.Message)

	// The connection stays usable after the failed call.
	result, err := Call[string](client, "echo", echoParams{Name: "next"})
	require.NoError(t, err)
	assert.Equal(t, "next/0/0", result)
}

// countingWriter records how many bytes the server wrote back.
type countingWriter struct {
	n int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += len(p)
	return len(p), nil
}

func TestCollectorInputFailureAbortsWithoutResult(t *testing.T) {
	server := newTestServer()
	pr, pw := io.Pipe()
	out := &countingWriter{}
	done := make(chan struct{})
	go func() {
		server.Serve(pr, out)
		close(done)
	}()

	require.NoError(t, WriteRequest(pw, "sum", struct{}{}, "req-1"))
	w := ipc.NewWriter(pw, ipc.WithSchema(valueSchema))
	batch := valueBatch(1, 2)
	err := w.Write(batch)
	batch.Release()
	require.NoError(t, err)

	// The input stream dies before end-of-stream.
	pw.CloseWithError(errors.New("connection dropped"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not abort the call")
	}
	assert.Zero(t, out.n, "nothing may be written after a failed input stream")
}

func TestExchangeStream(t *testing.T) {
	client := pipeClient(t, newTestServer())

	stream, err := client.OpenExchange("double", struct{}{}, valueSchema)
	require.NoError(t, err)
	defer stream.Close()

	in := valueBatch(1, 2, 3)
	out, err := stream.Exchange(in)
	in.Release()
	require.NoError(t, err)

	vals := out.Column(0).(*array.Int64)
	assert.Equal(t, int64(3), out.NumRows())
	assert.Equal(t, int64(2), vals.Value(0))
	assert.Equal(t, int64(4), vals.Value(1))
	assert.Equal(t, int64(6), vals.Value(2))
	out.Release()

	// Lockstep: the stream answers every batch, including zero-row ones.
	in = valueBatch()
	out, err = stream.Exchange(in)
	in.Release()
	require.NoError(t, err)
	assert.Equal(t, int64(0), out.NumRows())
	out.Release()
}

func TestDescribe(t *testing.T) {
	client := pipeClient(t, newTestServer())

	methods, err := client.Describe()
	require.NoError(t, err)

	byName := make(map[string]MethodDescription)
	for _, m := range methods {
		byName[m.Method] = m
	}
	assert.Equal(t, DispatchMethodUnary, byName["echo"].Type)
	assert.Equal(t, DispatchMethodProducer, byName["count_to"].Type)
	assert.Equal(t, DispatchMethodCollector, byName["sum"].Type)
	assert.Equal(t, DispatchMethodExchange, byName["double"].Type)
	assert.Equal(t, []string{"limit"}, byName["count_to"].Params)
}

func TestIsTransportClosed(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		closed bool
	}{
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("reading request: %w", io.EOF), true},
		{"closed pipe", io.ErrClosedPipe, true},
		{"net closed", net.ErrClosed, true},
		{"broken pipe text", errors.New("write tcp 127.0.0.1: broken pipe"), true},
		{"connection reset text", errors.New("read tcp 127.0.0.1: connection reset by peer"), true},
		{"unexpected eof", io.ErrUnexpectedEOF, false},
		{"wrapped unexpected eof", fmt.Errorf("decoding batch: %w", io.ErrUnexpectedEOF), false},
		{"unrelated", errors.New("schema mismatch"), false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.closed, isTransportClosed(test.err))
		})
	}
}

// hookRecorder verifies dispatch hooks fire with the right shape and error.
type hookRecorder struct {
	infos []DispatchInfo
	errs  []error
}

func (h *hookRecorder) OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken) {
	h.infos = append(h.infos, info)
	return ctx, nil
}

func (h *hookRecorder) OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error) {
	h.errs = append(h.errs, err)
}

func TestDispatchHook(t *testing.T) {
	server := newTestServer()
	hook := &hookRecorder{}
	server.SetDispatchHook(hook)
	client := pipeClient(t, server)

	_, err := Call[string](client, "echo", echoParams{Name: "x"})
	require.NoError(t, err)
	_, err = Call[string](client, "fail", echoParams{})
	require.Error(t, err)
	// The hook's end callback runs after the response is written; a third
	// call guarantees the first two dispatches have fully completed.
	_, err = Call[string](client, "echo", echoParams{})
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(hook.infos), 2)
	assert.Equal(t, "echo", hook.infos[0].Method)
	assert.Equal(t, DispatchMethodUnary, hook.infos[0].MethodType)
	require.GreaterOrEqual(t, len(hook.errs), 2)
	assert.NoError(t, hook.errs[0])
	assert.Error(t, hook.errs[1])
}
