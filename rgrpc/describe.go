// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// describeMethod is the reserved introspection method answered by every
// server without registration.
const describeMethod = "__describe__"

var describeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "method", Type: arrow.BinaryTypes.String},
	{Name: "type", Type: arrow.BinaryTypes.String},
	{Name: "params", Type: arrow.BinaryTypes.String},
}, nil)

// MethodDescription is one row of a __describe__ response.
type MethodDescription struct {
	Method string
	Type   string
	Params []string
}

// serveDescribe answers the reserved __describe__ method with one row per
// registered method: its name, shape, and comma-separated parameter names.
func (s *Server) serveDescribe(w io.Writer) error {
	mem := memory.NewGoAllocator()
	methodB := array.NewStringBuilder(mem)
	defer methodB.Release()
	typeB := array.NewStringBuilder(mem)
	defer typeB.Release()
	paramsB := array.NewStringBuilder(mem)
	defer paramsB.Release()

	for _, name := range s.availableMethods() {
		info := s.methods[name]
		methodB.Append(name)
		typeB.Append(methodTypeString(info.Type))

		paramNames := make([]string, 0, info.ParamsSchema.NumFields())
		for _, f := range info.ParamsSchema.Fields() {
			paramNames = append(paramNames, f.Name)
		}
		paramsB.Append(strings.Join(paramNames, ","))
	}

	cols := []arrow.Array{methodB.NewArray(), typeB.NewArray(), paramsB.NewArray()}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	batch := array.NewRecordBatch(describeSchema, cols, int64(len(s.methods)))
	defer batch.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(describeSchema))
	defer writer.Close()
	return writer.Write(batch)
}

// Describe asks the server for its registered methods.
func (c *Client) Describe() ([]MethodDescription, error) {
	batch, _, err := c.roundTrip(describeMethod, struct{}{})
	if err != nil {
		return nil, err
	}
	defer batch.Release()

	methods := batch.Column(0).(*array.String)
	types := batch.Column(1).(*array.String)
	params := batch.Column(2).(*array.String)

	out := make([]MethodDescription, 0, batch.NumRows())
	for i := 0; i < int(batch.NumRows()); i++ {
		d := MethodDescription{
			Method: methods.Value(i),
			Type:   types.Value(i),
		}
		if p := params.Value(i); p != "" {
			d.Params = strings.Split(p, ",")
		}
		out = append(out, d)
	}
	return out, nil
}
