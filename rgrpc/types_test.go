// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"reflect"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// coord is an ArrowSerializable payload for codec tests.
type coord struct {
	X int32 `arrow:"x"`
	Y int32 `arrow:"y"`
}

func (coord) ArrowSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int32},
		{Name: "y", Type: arrow.PrimitiveTypes.Int32},
	}, nil)
}

type kitchenSink struct {
	Name     string   `rgrpc:"name"`
	Count    int64    `rgrpc:"count"`
	Scale    int32    `rgrpc:"scale,int32"`
	Ratio    float64  `rgrpc:"ratio"`
	Narrow   float32  `rgrpc:"narrow,float32"`
	Enabled  bool     `rgrpc:"enabled"`
	Blob     []byte   `rgrpc:"blob"`
	Tags     []string `rgrpc:"tags"`
	Optional *int64   `rgrpc:"optional"`
	Where    coord    `rgrpc:"where,binary"`
	skipped  int
}

func TestStructToSchema(t *testing.T) {
	schema, err := structToSchema(reflect.TypeOf(kitchenSink{}))
	require.NoError(t, err)

	require.Equal(t, 10, schema.NumFields())
	assert.Equal(t, "name", schema.Field(0).Name)
	assert.Equal(t, arrow.BinaryTypes.String, schema.Field(0).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Int64, schema.Field(1).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Int32, schema.Field(2).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float64, schema.Field(3).Type)
	assert.Equal(t, arrow.PrimitiveTypes.Float32, schema.Field(4).Type)
	assert.Equal(t, arrow.FixedWidthTypes.Boolean, schema.Field(5).Type)
	assert.Equal(t, arrow.BinaryTypes.Binary, schema.Field(6).Type)
	assert.Equal(t, arrow.LIST, schema.Field(7).Type.ID())
	assert.True(t, schema.Field(8).Nullable)
	assert.Equal(t, arrow.BinaryTypes.Binary, schema.Field(9).Type)
}

func TestParamsRoundTrip(t *testing.T) {
	opt := int64(99)
	in := kitchenSink{
		Name:     "widget",
		Count:    7,
		Scale:    3,
		Ratio:    2.5,
		Narrow:   0.5,
		Enabled:  true,
		Blob:     []byte{0x01, 0x02},
		Tags:     []string{"a", "b"},
		Optional: &opt,
		Where:    coord{X: 4, Y: -5},
	}

	_, batch, err := serializeParams(in)
	require.NoError(t, err)
	defer batch.Release()

	val, err := deserializeParams(batch, reflect.TypeOf(kitchenSink{}))
	require.NoError(t, err)
	out := val.Interface().(kitchenSink)

	assert.Equal(t, in.Name, out.Name)
	assert.Equal(t, in.Count, out.Count)
	assert.Equal(t, in.Scale, out.Scale)
	assert.Equal(t, in.Ratio, out.Ratio)
	assert.Equal(t, in.Narrow, out.Narrow)
	assert.Equal(t, in.Enabled, out.Enabled)
	assert.Equal(t, in.Blob, out.Blob)
	assert.Equal(t, in.Tags, out.Tags)
	require.NotNil(t, out.Optional)
	assert.Equal(t, opt, *out.Optional)
	assert.Equal(t, in.Where, out.Where)
}

func TestParamsNilPointer(t *testing.T) {
	_, batch, err := serializeParams(kitchenSink{Name: "x"})
	require.NoError(t, err)
	defer batch.Release()

	val, err := deserializeParams(batch, reflect.TypeOf(kitchenSink{}))
	require.NoError(t, err)
	out := val.Interface().(kitchenSink)
	assert.Nil(t, out.Optional)
}

type clientSide struct {
	Name string `rgrpc:"name"`
}

type serverSide struct {
	Name  string `rgrpc:"name"`
	Limit int64  `rgrpc:"limit,default=100"`
}

func TestParamsDefaultApplied(t *testing.T) {
	// The client sends a subset of the server's parameters; the missing
	// column takes its declared default.
	_, batch, err := serializeParams(clientSide{Name: "q"})
	require.NoError(t, err)
	defer batch.Release()

	val, err := deserializeParams(batch, reflect.TypeOf(serverSide{}))
	require.NoError(t, err)
	out := val.Interface().(serverSide)
	assert.Equal(t, "q", out.Name)
	assert.Equal(t, int64(100), out.Limit)
}

func TestResultRoundTripScalar(t *testing.T) {
	schema, err := resultSchema(reflect.TypeOf(""))
	require.NoError(t, err)

	batch, err := serializeResult(schema, "hello")
	require.NoError(t, err)
	defer batch.Release()

	val, err := decodeResult(batch, reflect.TypeOf(""))
	require.NoError(t, err)
	assert.Equal(t, "hello", val.Interface().(string))
}

func TestResultRoundTripSerializable(t *testing.T) {
	schema, err := resultSchema(reflect.TypeOf(coord{}))
	require.NoError(t, err)
	assert.Equal(t, arrow.BinaryTypes.Binary, schema.Field(0).Type)

	batch, err := serializeResult(schema, coord{X: 11, Y: -7})
	require.NoError(t, err)
	defer batch.Release()

	val, err := decodeResult(batch, reflect.TypeOf(coord{}))
	require.NoError(t, err)
	assert.Equal(t, coord{X: 11, Y: -7}, val.Interface().(coord))
}
