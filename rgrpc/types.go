// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package rgrpc

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// ArrowSerializable is implemented by Go types that provide their own
// Arrow schema. At the method parameter or result level such values are
// serialized as binary columns containing an embedded IPC stream; nested
// inside another ArrowSerializable they become Arrow struct columns.
// Fields are mapped to columns via `arrow` struct tags.
type ArrowSerializable interface {
	ArrowSchema() *arrow.Schema
}

var arrowSerializableType = reflect.TypeOf((*ArrowSerializable)(nil)).Elem()

// tagInfo holds parsed information from an `rgrpc` struct tag.
type tagInfo struct {
	Name      string
	Default   *string // nil if no default
	ArrowType string  // explicit override: "int32", "float32", "binary"
}

// parseTag parses a tag like "name", "name,default=foo", "name,int32".
func parseTag(tag string) tagInfo {
	parts := strings.Split(tag, ",")
	info := tagInfo{Name: parts[0]}
	for _, part := range parts[1:] {
		if strings.HasPrefix(part, "default=") {
			val := strings.TrimPrefix(part, "default=")
			info.Default = &val
		} else {
			info.ArrowType = part
		}
	}
	return info
}

// goTypeToArrowType maps a Go type to an Arrow DataType, honoring tag
// overrides. Pointer types become nullable columns.
func goTypeToArrowType(t reflect.Type, tag tagInfo) (arrow.DataType, bool, error) {
	nullable := false
	if t.Kind() == reflect.Ptr {
		nullable = true
		t = t.Elem()
	}

	switch tag.ArrowType {
	case "int32":
		return arrow.PrimitiveTypes.Int32, nullable, nil
	case "float32":
		return arrow.PrimitiveTypes.Float32, nullable, nil
	case "binary":
		return arrow.BinaryTypes.Binary, nullable, nil
	}

	if t.Implements(arrowSerializableType) || reflect.PointerTo(t).Implements(arrowSerializableType) {
		// At the parameter level these are embedded IPC bytes.
		return arrow.BinaryTypes.Binary, nullable, nil
	}

	switch t.Kind() {
	case reflect.String:
		return arrow.BinaryTypes.String, nullable, nil
	case reflect.Int64, reflect.Int:
		return arrow.PrimitiveTypes.Int64, nullable, nil
	case reflect.Int32:
		return arrow.PrimitiveTypes.Int32, nullable, nil
	case reflect.Float64:
		return arrow.PrimitiveTypes.Float64, nullable, nil
	case reflect.Float32:
		return arrow.PrimitiveTypes.Float32, nullable, nil
	case reflect.Bool:
		return &arrow.BooleanType{}, nullable, nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return arrow.BinaryTypes.Binary, nullable, nil
		}
		elemType, _, err := goTypeToArrowType(t.Elem(), tagInfo{})
		if err != nil {
			return nil, false, fmt.Errorf("list element: %w", err)
		}
		return arrow.ListOf(elemType), nullable, nil
	default:
		return nil, false, fmt.Errorf("unsupported Go type: %v (kind: %v)", t, t.Kind())
	}
}

// structToSchema builds an Arrow schema from a Go struct's rgrpc tags.
func structToSchema(t reflect.Type) (*arrow.Schema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("expected struct type, got %v", t.Kind())
	}
	var fields []arrow.Field
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("rgrpc")
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)
		arrowType, nullable, err := goTypeToArrowType(f.Type, info)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		fields = append(fields, arrow.Field{
			Name:     info.Name,
			Type:     arrowType,
			Nullable: nullable,
		})
	}
	return arrow.NewSchema(fields, nil), nil
}

// resultSchema builds the single-column "result" schema for a return type.
func resultSchema(t reflect.Type) (*arrow.Schema, error) {
	if t == nil {
		return arrow.NewSchema(nil, nil), nil
	}
	if t.Implements(arrowSerializableType) || reflect.PointerTo(t).Implements(arrowSerializableType) {
		return arrow.NewSchema([]arrow.Field{
			{Name: "result", Type: arrow.BinaryTypes.Binary, Nullable: false},
		}, nil), nil
	}
	arrowType, nullable, err := goTypeToArrowType(t, tagInfo{})
	if err != nil {
		return nil, fmt.Errorf("result type: %w", err)
	}
	return arrow.NewSchema([]arrow.Field{
		{Name: "result", Type: arrowType, Nullable: nullable},
	}, nil), nil
}

// deserializeParams reads row 0 of a request batch into a Go struct.
func deserializeParams(batch arrow.RecordBatch, target reflect.Type) (reflect.Value, error) {
	if target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	result := reflect.New(target).Elem()

	for i := range target.NumField() {
		f := target.Field(i)
		tag := f.Tag.Get("rgrpc")
		if tag == "" || tag == "-" {
			continue
		}
		info := parseTag(tag)

		colIdx := -1
		for ci := range batch.NumCols() {
			if batch.ColumnName(int(ci)) == info.Name {
				colIdx = int(ci)
				break
			}
		}
		if colIdx == -1 || batch.Column(colIdx).IsNull(0) {
			// Absent or null column: apply the default, otherwise zero value.
			if info.Default != nil {
				if err := setFieldFromString(result.Field(i), f.Type, *info.Default); err != nil {
					return reflect.Value{}, fmt.Errorf("default for %s: %w", info.Name, err)
				}
			}
			continue
		}

		if err := setFieldFromArrow(result.Field(i), f.Type, batch.Column(colIdx), 0); err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", info.Name, err)
		}
	}
	return result, nil
}

// serializeParams builds the 1-row request batch for a params struct.
// It is the client-side inverse of deserializeParams.
func serializeParams(params any) (*arrow.Schema, arrow.RecordBatch, error) {
	t := reflect.TypeOf(params)
	schema, err := structToSchema(t)
	if err != nil {
		return nil, nil, err
	}

	rv := reflect.ValueOf(params)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
		t = t.Elem()
	}

	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, 0, schema.NumFields())
	fieldIdx := 0
	for i := range t.NumField() {
		f := t.Field(i)
		tag := f.Tag.Get("rgrpc")
		if tag == "" || tag == "-" {
			continue
		}
		arr, err := buildArray(mem, schema.Field(fieldIdx).Type, rv.Field(i).Interface())
		if err != nil {
			return nil, nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols = append(cols, arr)
		fieldIdx++
	}

	batch := array.NewRecordBatch(schema, cols, 1)
	for _, c := range cols {
		c.Release()
	}
	return schema, batch, nil
}

// setFieldFromArrow sets a struct field from an Arrow array element.
func setFieldFromArrow(field reflect.Value, fieldType reflect.Type, col arrow.Array, idx int) error {
	isPtr := fieldType.Kind() == reflect.Ptr
	if isPtr {
		fieldType = fieldType.Elem()
	}

	// ArrowSerializable values arrive either as embedded IPC bytes (at the
	// parameter level) or as struct columns (nested).
	if fieldType.Implements(arrowSerializableType) || reflect.PointerTo(fieldType).Implements(arrowSerializableType) {
		switch c := col.(type) {
		case *array.Binary:
			val, err := deserializeArrowSerializable(fieldType, c.Value(idx))
			if err != nil {
				return err
			}
			setMaybePtr(field, fieldType, isPtr, val)
			return nil
		case *array.Struct:
			return setStructField(field, fieldType, isPtr, c, idx)
		default:
			return fmt.Errorf("expected Binary or Struct array for ArrowSerializable, got %T", col)
		}
	}

	switch c := col.(type) {
	case *array.String:
		v := reflect.New(fieldType).Elem()
		v.SetString(c.Value(idx))
		setMaybePtr(field, fieldType, isPtr, v)
	case *array.Int64:
		v := reflect.New(fieldType).Elem()
		v.SetInt(c.Value(idx))
		setMaybePtr(field, fieldType, isPtr, v)
	case *array.Int32:
		v := reflect.New(fieldType).Elem()
		v.SetInt(int64(c.Value(idx)))
		setMaybePtr(field, fieldType, isPtr, v)
	case *array.Float64:
		v := reflect.New(fieldType).Elem()
		v.SetFloat(c.Value(idx))
		setMaybePtr(field, fieldType, isPtr, v)
	case *array.Float32:
		v := reflect.New(fieldType).Elem()
		v.SetFloat(float64(c.Value(idx)))
		setMaybePtr(field, fieldType, isPtr, v)
	case *array.Boolean:
		v := reflect.New(fieldType).Elem()
		v.SetBool(c.Value(idx))
		setMaybePtr(field, fieldType, isPtr, v)
	case *array.Binary:
		field.SetBytes(c.Value(idx))
	case *array.List:
		return setListField(field, fieldType, isPtr, c, idx)
	case *array.Struct:
		return setStructField(field, fieldType, isPtr, c, idx)
	default:
		return fmt.Errorf("unsupported Arrow array type: %T", col)
	}
	return nil
}

// setMaybePtr assigns val to field, wrapping in a pointer when needed.
func setMaybePtr(field reflect.Value, fieldType reflect.Type, isPtr bool, val reflect.Value) {
	if isPtr {
		ptr := reflect.New(fieldType)
		ptr.Elem().Set(val)
		field.Set(ptr)
	} else {
		field.Set(val)
	}
}

func setListField(field reflect.Value, fieldType reflect.Type, isPtr bool, listArr *array.List, idx int) error {
	start, end := listArr.ValueOffsets(idx)
	values := listArr.ListValues()
	length := int(end - start)

	slice := reflect.MakeSlice(fieldType, length, length)
	for j := 0; j < length; j++ {
		if err := setFieldFromArrow(slice.Index(j), fieldType.Elem(), values, int(start)+j); err != nil {
			return fmt.Errorf("list element [%d]: %w", j, err)
		}
	}
	setMaybePtr(field, fieldType, isPtr, slice)
	return nil
}

func setStructField(field reflect.Value, fieldType reflect.Type, isPtr bool, structArr *array.Struct, idx int) error {
	result := reflect.New(fieldType).Elem()
	structType := structArr.DataType().(*arrow.StructType)

	for fi := range fieldType.NumField() {
		goField := fieldType.Field(fi)
		arrowTag := goField.Tag.Get("arrow")
		if arrowTag == "" {
			continue
		}
		childIdx := -1
		for ci := range structType.NumFields() {
			if structType.Field(ci).Name == arrowTag {
				childIdx = ci
				break
			}
		}
		if childIdx == -1 {
			continue
		}
		childArr := structArr.Field(childIdx)
		if childArr.IsNull(idx) {
			continue
		}
		if err := setFieldFromArrow(result.Field(fi), goField.Type, childArr, idx); err != nil {
			return fmt.Errorf("struct field %s: %w", arrowTag, err)
		}
	}
	setMaybePtr(field, fieldType, isPtr, result)
	return nil
}

// setFieldFromString sets a struct field from a tag default value.
func setFieldFromString(field reflect.Value, fieldType reflect.Type, s string) error {
	if fieldType.Kind() == reflect.Ptr {
		fieldType = fieldType.Elem()
	}
	switch fieldType.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Int64, reflect.Int, reflect.Int32:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing int default %q: %w", s, err)
		}
		field.SetInt(v)
	case reflect.Float64, reflect.Float32:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing float default %q: %w", s, err)
		}
		field.SetFloat(v)
	case reflect.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("parsing bool default %q: %w", s, err)
		}
		field.SetBool(v)
	default:
		return fmt.Errorf("default value parsing not supported for %v", fieldType.Kind())
	}
	return nil
}

// serializeResult builds the 1-row result batch for a unary return value.
func serializeResult(schema *arrow.Schema, value any) (arrow.RecordBatch, error) {
	mem := memory.NewGoAllocator()
	if schema.NumFields() == 0 {
		return array.NewRecordBatch(schema, nil, 0), nil
	}
	arr, err := buildArray(mem, schema.Field(0).Type, value)
	if err != nil {
		return nil, fmt.Errorf("serialize result: %w", err)
	}
	defer arr.Release()
	return array.NewRecordBatch(schema, []arrow.Array{arr}, 1), nil
}

// decodeResult reads the "result" column of a unary response batch into a
// value of the given Go type. Used on the client side.
func decodeResult(batch arrow.RecordBatch, target reflect.Type) (reflect.Value, error) {
	if batch.NumCols() == 0 || batch.NumRows() == 0 {
		return reflect.Value{}, fmt.Errorf("empty result batch")
	}
	out := reflect.New(target).Elem()
	if err := setFieldFromArrow(out, target, batch.Column(0), 0); err != nil {
		return reflect.Value{}, fmt.Errorf("decoding result: %w", err)
	}
	return out, nil
}

// buildArray creates a 1-element Arrow array from a Go value.
func buildArray(mem memory.Allocator, dt arrow.DataType, value any) (arrow.Array, error) {
	if value == nil {
		return buildNullArray(mem, dt), nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return buildNullArray(mem, dt), nil
		}
		value = rv.Elem().Interface()
		rv = reflect.ValueOf(value)
	}

	switch dt.ID() {
	case arrow.STRING:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		b.Append(fmt.Sprintf("%v", value))
		return b.NewArray(), nil
	case arrow.INT64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		b.Append(v)
		return b.NewArray(), nil
	case arrow.INT32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		v, err := toInt64(value)
		if err != nil {
			return nil, err
		}
		b.Append(int32(v))
		return b.NewArray(), nil
	case arrow.FLOAT64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		v, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		b.Append(v)
		return b.NewArray(), nil
	case arrow.FLOAT32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		v, err := toFloat64(value)
		if err != nil {
			return nil, err
		}
		b.Append(float32(v))
		return b.NewArray(), nil
	case arrow.BOOL:
		b := array.NewBooleanBuilder(mem)
		defer b.Release()
		b.Append(value.(bool))
		return b.NewArray(), nil
	case arrow.BINARY:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer b.Release()
		if as, ok := value.(ArrowSerializable); ok {
			data, err := serializeArrowSerializable(as)
			if err != nil {
				return nil, err
			}
			b.Append(data)
		} else {
			b.Append(value.([]byte))
		}
		return b.NewArray(), nil
	case arrow.LIST:
		lt := dt.(*arrow.ListType)
		lb := array.NewListBuilder(mem, lt.Elem())
		defer lb.Release()
		lb.Append(true)
		vb := lb.ValueBuilder()
		for i := range rv.Len() {
			if err := appendToBuilder(vb, lt.Elem(), rv.Index(i).Interface()); err != nil {
				return nil, fmt.Errorf("list element [%d]: %w", i, err)
			}
		}
		return lb.NewArray(), nil
	case arrow.STRUCT:
		st := dt.(*arrow.StructType)
		sb := array.NewStructBuilder(mem, st)
		defer sb.Release()
		if err := appendStruct(sb, st, rv); err != nil {
			return nil, err
		}
		return sb.NewArray(), nil
	default:
		return nil, fmt.Errorf("unsupported Arrow type for serialization: %v", dt)
	}
}

func buildNullArray(mem memory.Allocator, dt arrow.DataType) arrow.Array {
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	b.AppendNull()
	return b.NewArray()
}

// appendToBuilder appends a single value to an Arrow array builder.
func appendToBuilder(b array.Builder, dt arrow.DataType, value any) error {
	if value == nil {
		b.AppendNull()
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			b.AppendNull()
			return nil
		}
		value = rv.Elem().Interface()
		rv = reflect.ValueOf(value)
	}

	switch dt.ID() {
	case arrow.STRING:
		b.(*array.StringBuilder).Append(fmt.Sprintf("%v", value))
	case arrow.INT64:
		v, err := toInt64(value)
		if err != nil {
			return err
		}
		b.(*array.Int64Builder).Append(v)
	case arrow.INT32:
		v, err := toInt64(value)
		if err != nil {
			return err
		}
		b.(*array.Int32Builder).Append(int32(v))
	case arrow.FLOAT64:
		v, err := toFloat64(value)
		if err != nil {
			return err
		}
		b.(*array.Float64Builder).Append(v)
	case arrow.FLOAT32:
		v, err := toFloat64(value)
		if err != nil {
			return err
		}
		b.(*array.Float32Builder).Append(float32(v))
	case arrow.BOOL:
		b.(*array.BooleanBuilder).Append(value.(bool))
	case arrow.BINARY:
		if as, ok := value.(ArrowSerializable); ok {
			data, err := serializeArrowSerializable(as)
			if err != nil {
				return err
			}
			b.(*array.BinaryBuilder).Append(data)
		} else {
			b.(*array.BinaryBuilder).Append(value.([]byte))
		}
	case arrow.LIST:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder()
		for i := range rv.Len() {
			if err := appendToBuilder(vb, dt.(*arrow.ListType).Elem(), rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	case arrow.STRUCT:
		return appendStruct(b.(*array.StructBuilder), dt.(*arrow.StructType), rv)
	default:
		return fmt.Errorf("unsupported type in appendToBuilder: %v", dt)
	}
	return nil
}

// appendStruct appends one struct value, matching Go fields to Arrow
// struct fields by `arrow` tag name.
func appendStruct(sb *array.StructBuilder, st *arrow.StructType, rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	rt := rv.Type()
	sb.Append(true)
	for ci := range st.NumFields() {
		sf := st.Field(ci)
		fb := sb.FieldBuilder(ci)
		found := false
		for fi := range rt.NumField() {
			if rt.Field(fi).Tag.Get("arrow") == sf.Name {
				if err := appendToBuilder(fb, sf.Type, rv.Field(fi).Interface()); err != nil {
					return fmt.Errorf("struct field %s: %w", sf.Name, err)
				}
				found = true
				break
			}
		}
		if !found {
			fb.AppendNull()
		}
	}
	return nil
}

// serializeArrowSerializable converts a value to embedded IPC stream bytes.
func serializeArrowSerializable(as ArrowSerializable) ([]byte, error) {
	schema := as.ArrowSchema()
	mem := memory.NewGoAllocator()

	rv := reflect.ValueOf(as)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	rt := rv.Type()

	cols := make([]arrow.Array, schema.NumFields())
	for i := range schema.NumFields() {
		f := schema.Field(i)
		val, err := findArrowField(rt, rv, f.Name)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		arr, err := buildArray(mem, f.Type, val)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		cols[i] = arr
		defer cols[i].Release()
	}

	batch := array.NewRecordBatch(schema, cols, 1)
	defer batch.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(batch); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// findArrowField finds a struct field value by `arrow` tag name.
func findArrowField(rt reflect.Type, rv reflect.Value, arrowName string) (any, error) {
	for i := range rt.NumField() {
		if rt.Field(i).Tag.Get("arrow") == arrowName {
			return rv.Field(i).Interface(), nil
		}
	}
	return nil, fmt.Errorf("no field with arrow tag %q", arrowName)
}

// deserializeArrowSerializable reads embedded IPC bytes into a Go struct.
func deserializeArrowSerializable(targetType reflect.Type, data []byte) (reflect.Value, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return reflect.Value{}, fmt.Errorf("reading ArrowSerializable IPC: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		return reflect.Value{}, fmt.Errorf("no batch in ArrowSerializable IPC stream")
	}
	batch := reader.RecordBatch()

	result := reflect.New(targetType).Elem()
	for i := range targetType.NumField() {
		f := targetType.Field(i)
		tag := f.Tag.Get("arrow")
		if tag == "" {
			continue
		}
		colIdx := -1
		for ci := range batch.NumCols() {
			if batch.ColumnName(int(ci)) == tag {
				colIdx = int(ci)
				break
			}
		}
		if colIdx == -1 || batch.Column(colIdx).IsNull(0) {
			continue
		}
		if err := setFieldFromArrow(result.Field(i), f.Type, batch.Column(colIdx), 0); err != nil {
			return reflect.Value{}, fmt.Errorf("ArrowSerializable field %s: %w", tag, err)
		}
	}
	return result, nil
}

// Numeric conversion helpers.

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int8:
		return int64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to int64", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
