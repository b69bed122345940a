// Package jsonmap converts values to JSON text and back to generic containers.
//
// Serialization keeps the property order of the input: struct fields are
// emitted in declaration order and *orderedmap.OrderedMap in insertion order.
// Parsing keeps the key order of the source text and types whole numbers as
// int, fractional numbers as float64.
package jsonmap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/keboola/go-utils/pkg/orderedmap"
)

// codec - replacement of the standard encoding/json library, it is faster for larger documents.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// ParseError is returned when a text is not well-formed JSON
// or does not have the expected top-level shape.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf(`cannot parse "%s" as JSON: %s`, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ToJSONString serializes a value to a JSON string.
// Object keys follow the declaration order of struct fields,
// or the insertion order for *orderedmap.OrderedMap values.
// Plain Go maps serialize with sorted keys, use orderedmap to control the order.
func ToJSONString(v any) (string, error) {
	out, err := codec.Marshal(v)
	if err != nil {
		return "", fmt.Errorf(`cannot encode %T to JSON: %w`, v, err)
	}
	// JsonIter emits newlines around values with a custom MarshalJSON method,
	// OrderedMap for example, compact to the standard form.
	var buf bytes.Buffer
	if err := json.Compact(&buf, out); err != nil {
		return "", fmt.Errorf(`cannot encode %T to JSON: %w`, v, err)
	}
	return buf.String(), nil
}

// MustToJSONString is like ToJSONString but panics on an encoding error.
func MustToJSONString(v any) string {
	out, err := ToJSONString(v)
	if err != nil {
		panic(err)
	}
	return out
}

// ToMap parses a JSON object into an ordered map.
// Keys keep the order from the source text, values are typed by decodeValue.
func ToMap(text string) (*orderedmap.OrderedMap, error) {
	iter, err := open(text)
	if err != nil {
		return nil, err
	}
	if next := iter.WhatIsNext(); next != jsoniter.ObjectValue {
		return nil, &ParseError{Text: text, Err: fmt.Errorf("expected object, found %s", valueTypeName(next))}
	}
	out := decodeObject(iter)
	if err := closeIter(iter, text); err != nil {
		return nil, err
	}
	return out, nil
}

// ToList parses a JSON array into a slice, preserving element order.
func ToList(text string) ([]any, error) {
	iter, err := open(text)
	if err != nil {
		return nil, err
	}
	if next := iter.WhatIsNext(); next != jsoniter.ArrayValue {
		return nil, &ParseError{Text: text, Err: fmt.Errorf("expected array, found %s", valueTypeName(next))}
	}
	out := decodeArray(iter)
	if err := closeIter(iter, text); err != nil {
		return nil, err
	}
	return out, nil
}

// ToMaps parses a JSON array of objects into a slice of ordered maps, in source order.
func ToMaps(text string) ([]*orderedmap.OrderedMap, error) {
	items, err := ToList(text)
	if err != nil {
		return nil, err
	}
	out := make([]*orderedmap.OrderedMap, 0, len(items))
	for i, item := range items {
		m, ok := item.(*orderedmap.OrderedMap)
		if !ok {
			return nil, &ParseError{Text: text, Err: fmt.Errorf("expected object at position %d, found %T", i, item)}
		}
		out = append(out, m)
	}
	return out, nil
}

func open(text string) (*jsoniter.Iterator, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Text: text, Err: fmt.Errorf("text is blank")}
	}
	return jsoniter.ParseString(codec, text), nil
}

// closeIter checks that the whole text has been consumed without an error.
// A partially decoded result is never returned to the caller.
func closeIter(iter *jsoniter.Iterator, text string) error {
	if err := iter.Error; err != nil && !errors.Is(err, io.EOF) {
		return &ParseError{Text: text, Err: err}
	}
	// A clean end of input reports InvalidValue together with io.EOF,
	// anything else means the value is followed by more data.
	switch next := iter.WhatIsNext(); {
	case next != jsoniter.InvalidValue:
		return &ParseError{Text: text, Err: fmt.Errorf("unexpected %s after the value", valueTypeName(next))}
	case iter.Error == nil:
		return &ParseError{Text: text, Err: fmt.Errorf("unexpected trailing data after the value")}
	}
	return nil
}

func decodeValue(iter *jsoniter.Iterator) any {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		return decodeObject(iter)
	case jsoniter.ArrayValue:
		return decodeArray(iter)
	case jsoniter.StringValue:
		return iter.ReadString()
	case jsoniter.NumberValue:
		return decodeNumber(iter.ReadNumber())
	case jsoniter.BoolValue:
		return iter.ReadBool()
	case jsoniter.NilValue:
		iter.ReadNil()
		return nil
	default:
		iter.ReportError("decodeValue", "unexpected value type")
		return nil
	}
}

func decodeObject(iter *jsoniter.Iterator) *orderedmap.OrderedMap {
	out := orderedmap.New()
	iter.ReadObjectCB(func(iter *jsoniter.Iterator, key string) bool {
		out.Set(key, decodeValue(iter))
		return iter.Error == nil
	})
	return out
}

func decodeArray(iter *jsoniter.Iterator) []any {
	out := make([]any, 0)
	iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
		out = append(out, decodeValue(iter))
		return iter.Error == nil
	})
	return out
}

// decodeNumber types a JSON number: a whole number fits int, everything else,
// for example "22.5" or "1e3", becomes float64.
func decodeNumber(n json.Number) any {
	if v, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		if int64(int(v)) == v {
			return int(v)
		}
		return v
	}
	if v, err := n.Float64(); err == nil {
		return v
	}
	// Out of float64 range, keep the raw representation.
	return n
}

func valueTypeName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.ObjectValue:
		return "object"
	case jsoniter.ArrayValue:
		return "array"
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.BoolValue:
		return "bool"
	case jsoniter.NilValue:
		return "null"
	default:
		return "invalid value"
	}
}
