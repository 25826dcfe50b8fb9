package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind discriminates the runtime kind of a variable value.
type ValueKind string

const (
	ValueNull   ValueKind = "null"
	ValueBool   ValueKind = "bool"
	ValueNumber ValueKind = "number"
	ValueString ValueKind = "string"
	ValueObject ValueKind = "object"
	ValueArray  ValueKind = "array"
)

// Value is a tagged union over the JSON scalar/object kinds a fact value can
// take. It marshals flat (the JSON encoding carries no tag); the kind is
// recovered from the JSON token type on unmarshal.
type Value struct {
	Kind   ValueKind
	Bool   bool
	Number float64
	Str    string
	// Raw holds the original encoding for object/array kinds.
	Raw json.RawMessage
}

// BoolValue builds a boolean Value.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// NumberValue builds a numeric Value.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Number: n} }

// StringValue builds a string Value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NullValue builds a null Value.
func NullValue() Value { return Value{Kind: ValueNull} }

// IsZero reports whether the value was never set.
func (v Value) IsZero() bool { return v.Kind == "" }

// MarshalJSON flattens the union into its plain JSON representation.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueNumber:
		return json.Marshal(v.Number)
	case ValueString:
		return json.Marshal(v.Str)
	case ValueObject, ValueArray:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	case ValueNull, "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

// UnmarshalJSON recovers the kind from the leading JSON token.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*v = Value{Kind: ValueNull}
		return nil
	}
	switch trimmed[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(trimmed, &b); err != nil {
			return err
		}
		*v = Value{Kind: ValueBool, Bool: b}
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*v = Value{Kind: ValueString, Str: s}
	case '{':
		*v = Value{Kind: ValueObject, Raw: append(json.RawMessage(nil), trimmed...)}
	case '[':
		*v = Value{Kind: ValueArray, Raw: append(json.RawMessage(nil), trimmed...)}
	default:
		n, err := strconv.ParseFloat(string(trimmed), 64)
		if err != nil {
			return fmt.Errorf("unparseable JSON value %q: %w", string(trimmed), err)
		}
		*v = Value{Kind: ValueNumber, Number: n}
	}
	return nil
}

// String renders the value for prompts and logs.
func (v Value) String() string {
	b, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(b)
}

// DType is the declared type of a magic variable.
type DType string

const (
	DTypeBoolean DType = "boolean"
	DTypeString  DType = "string"
	DTypeNumber  DType = "number"
	DTypeDate    DType = "date"
	DTypeURL     DType = "url"
	DTypeText    DType = "text"
)

// ValidDType reports whether s is one of the known dtypes.
func ValidDType(s string) bool {
	switch DType(s) {
	case DTypeBoolean, DTypeString, DTypeNumber, DTypeDate, DTypeURL, DTypeText:
		return true
	}
	return false
}
