// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"fmt"
	"io"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// Client speaks the rg_rpc protocol from the caller's side over an
// io.Reader/io.Writer pair: a subprocess's stdout/stdin, a net.Conn, or
// net.Pipe ends in tests.
//
// A Client is safe for sequential use only: the protocol multiplexes
// nothing, so one call must complete before the next begins. The internal
// mutex enforces this.
type Client struct {
	r          io.Reader
	w          io.Writer
	mu         sync.Mutex
	requestSeq atomic.Uint64
	logHandler func(LogMessage)
}

// NewClient creates a client over the given transport pair.
func NewClient(r io.Reader, w io.Writer) *Client {
	return &Client{r: r, w: w}
}

// SetLogHandler registers a callback invoked for every server log batch.
// Without a handler, log batches are silently discarded.
func (c *Client) SetLogHandler(h func(LogMessage)) {
	c.logHandler = h
}

func (c *Client) nextRequestID() string {
	return fmt.Sprintf("req-%d", c.requestSeq.Add(1))
}

func (c *Client) handleLog(msg LogMessage) {
	if c.logHandler != nil {
		c.logHandler(msg)
	}
}

// readResponse consumes one response IPC stream: log batches are routed to
// the log handler, an EXCEPTION batch becomes the returned error, and the
// single data batch is retained and returned. The stream is always drained
// to end-of-stream so the transport is clean for the next call.
func (c *Client) readResponse() (arrow.RecordBatch, error) {
	reader, err := ipc.NewReader(c.r)
	if err != nil {
		return nil, fmt.Errorf("reading response stream: %w", err)
	}
	defer reader.Release()

	var result arrow.RecordBatch
	var rpcErr *RpcError
	for reader.Next() {
		batch := reader.RecordBatch()
		if level, ok := batchLogLevel(batch); ok {
			if level == LogException {
				rpcErr = batchToError(batch)
			} else {
				c.handleLog(batchToLogMessage(batch, level))
			}
			continue
		}
		if result == nil {
			batch.Retain()
			result = batch
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		if result != nil {
			result.Release()
		}
		return nil, fmt.Errorf("reading response stream: %w", err)
	}
	if rpcErr != nil {
		if result != nil {
			result.Release()
		}
		return nil, rpcErr
	}
	if result == nil {
		return nil, fmt.Errorf("response stream ended without a result batch")
	}
	return result, nil
}

// roundTrip performs one unary request-response cycle and returns the raw
// result batch plus the request ID used.
func (c *Client) roundTrip(method string, params any) (arrow.RecordBatch, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	requestID := c.nextRequestID()
	if err := WriteRequest(c.w, method, params, requestID); err != nil {
		return nil, requestID, err
	}
	batch, err := c.readResponse()
	return batch, requestID, err
}

// Call invokes a unary method and decodes its single-row result.
func Call[R any](c *Client, method string, params any) (R, error) {
	var zero R
	batch, _, err := c.roundTrip(method, params)
	if err != nil {
		return zero, err
	}
	defer batch.Release()

	val, err := decodeResult(batch, reflect.TypeOf(zero))
	if err != nil {
		return zero, fmt.Errorf("decoding %q result: %w", method, err)
	}
	return val.Interface().(R), nil
}

// CallVoid invokes a unary method that returns no value.
func CallVoid(c *Client, method string, params any) error {
	batch, _, err := c.roundTrip(method, params)
	if err != nil {
		return err
	}
	batch.Release()
	return nil
}

// streamCall writes the request batch for a streaming method and returns
// the request ID. The caller holds the client mutex for the stream's
// lifetime.
func (c *Client) streamCall(method string, params any) (string, error) {
	requestID := c.nextRequestID()
	if err := WriteRequest(c.w, method, params, requestID); err != nil {
		return requestID, err
	}
	return requestID, nil
}

// ProducerStream is the client side of a producer method. Each Next sends
// a tick and returns the server's answering data batch; the caller owns
// the returned batch and must Release it.
type ProducerStream struct {
	c          *Client
	tickWriter *ipc.Writer
	respReader *ipc.Reader
	done       bool
	closed     bool
}

// OpenProducer starts a producer stream. The client holds its transport
// lock until Close is called.
func (c *Client) OpenProducer(method string, params any) (*ProducerStream, error) {
	c.mu.Lock()
	if _, err := c.streamCall(method, params); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	emptySchema := arrow.NewSchema(nil, nil)
	return &ProducerStream{
		c:          c,
		tickWriter: ipc.NewWriter(c.w, ipc.WithSchema(emptySchema)),
	}, nil
}

// Next requests the next batch. It returns io.EOF when the server finishes
// the stream.
func (p *ProducerStream) Next() (arrow.RecordBatch, error) {
	if p.done {
		return nil, io.EOF
	}

	tick := emptyBatch(arrow.NewSchema(nil, nil))
	err := p.tickWriter.Write(tick)
	tick.Release()
	if err != nil {
		p.done = true
		return nil, fmt.Errorf("writing tick: %w", err)
	}

	if p.respReader == nil {
		r, err := ipc.NewReader(p.c.r)
		if err != nil {
			p.done = true
			return nil, fmt.Errorf("reading producer stream: %w", err)
		}
		p.respReader = r
	}

	for p.respReader.Next() {
		batch := p.respReader.RecordBatch()
		if level, ok := batchLogLevel(batch); ok {
			if level == LogException {
				p.done = true
				return nil, batchToError(batch)
			}
			p.c.handleLog(batchToLogMessage(batch, level))
			continue
		}
		batch.Retain()
		return batch, nil
	}
	p.done = true
	if err := p.respReader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading producer stream: %w", err)
	}
	return nil, io.EOF
}

// Close ends the stream and releases the client for the next call.
func (p *ProducerStream) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.tickWriter.Close()
	if p.respReader != nil {
		for p.respReader.Next() {
			// discard
		}
		p.respReader.Release()
	}
	p.c.mu.Unlock()
	return err
}

// CollectorStream is the client side of a collector method: Send streams
// data batches, CloseAndRecv ends the input and returns the server's
// single result batch.
type CollectorStream struct {
	c           *Client
	inputWriter *ipc.Writer
	closed      bool
}

// OpenCollector starts a collector stream sending batches with the given
// schema.
func (c *Client) OpenCollector(method string, params any, inputSchema *arrow.Schema) (*CollectorStream, error) {
	c.mu.Lock()
	if _, err := c.streamCall(method, params); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return &CollectorStream{
		c:           c,
		inputWriter: ipc.NewWriter(c.w, ipc.WithSchema(inputSchema)),
	}, nil
}

// Send streams one data batch to the server.
func (s *CollectorStream) Send(batch arrow.RecordBatch) error {
	return s.inputWriter.Write(batch)
}

// CloseAndRecv ends the input stream and reads the server's result batch.
// The caller owns the returned batch.
func (s *CollectorStream) CloseAndRecv() (arrow.RecordBatch, error) {
	if s.closed {
		return nil, fmt.Errorf("collector stream already closed")
	}
	s.closed = true
	defer s.c.mu.Unlock()

	if err := s.inputWriter.Close(); err != nil {
		return nil, fmt.Errorf("closing collector input: %w", err)
	}
	return s.c.readResponse()
}

// ExchangeStream is the client side of an exchange method: every Exchange
// sends one batch and returns the server's answering batch.
type ExchangeStream struct {
	c           *Client
	inputWriter *ipc.Writer
	respReader  *ipc.Reader
	closed      bool
}

// OpenExchange starts an exchange stream sending batches with the given
// schema.
func (c *Client) OpenExchange(method string, params any, inputSchema *arrow.Schema) (*ExchangeStream, error) {
	c.mu.Lock()
	if _, err := c.streamCall(method, params); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	return &ExchangeStream{
		c:           c,
		inputWriter: ipc.NewWriter(c.w, ipc.WithSchema(inputSchema)),
	}, nil
}

// Exchange sends one batch and returns the server's answer, which may have
// zero rows. The caller owns the returned batch.
func (e *ExchangeStream) Exchange(batch arrow.RecordBatch) (arrow.RecordBatch, error) {
	if err := e.inputWriter.Write(batch); err != nil {
		return nil, fmt.Errorf("writing exchange batch: %w", err)
	}

	if e.respReader == nil {
		r, err := ipc.NewReader(e.c.r)
		if err != nil {
			return nil, fmt.Errorf("reading exchange stream: %w", err)
		}
		e.respReader = r
	}

	for e.respReader.Next() {
		out := e.respReader.RecordBatch()
		if level, ok := batchLogLevel(out); ok {
			if level == LogException {
				return nil, batchToError(out)
			}
			e.c.handleLog(batchToLogMessage(out, level))
			continue
		}
		out.Retain()
		return out, nil
	}
	if err := e.respReader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading exchange stream: %w", err)
	}
	return nil, io.EOF
}

// Close ends the input stream, drains the server's output, and releases
// the client for the next call.
func (e *ExchangeStream) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	err := e.inputWriter.Close()
	if e.respReader != nil {
		for e.respReader.Next() {
			// discard
		}
		e.respReader.Release()
	} else {
		// No batch was exchanged; consume the server's empty output stream.
		if r, rerr := ipc.NewReader(e.c.r); rerr == nil {
			for r.Next() {
				// discard
			}
			r.Release()
		}
	}
	e.c.mu.Unlock()
	return err
}
