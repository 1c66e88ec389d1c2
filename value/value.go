// Package value implements the tagged-value union used for every document
// property in the mds storage engine: booleans, the full range of signed
// and unsigned integer widths, both float widths, strings, binary blobs,
// nested dictionaries, arrays of strings, arrays of dictionaries, and
// universal-time timestamps.
//
// A Value never changes kind after construction. Reading it through the
// wrong typed accessor returns ErrWrongType rather than panicking, and
// widening reads (u8 -> u32, float32 -> float64, ...) are the only implicit
// conversions allowed; crossing the signed/unsigned or float/integer
// boundary always requires the caller to coerce explicitly.
package value

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// ErrWrongType is returned when a Value is read through an accessor that
// does not match (or cannot losslessly widen to) its stored Kind.
var ErrWrongType = errors.New("wrong value type")

// Kind identifies the shape held by a Value.
type Kind int

const (
	KindBool Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUInt8
	KindUInt16
	KindUInt32
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	KindBlob
	KindDictionary
	KindArrayOfStrings
	KindArrayOfDictionaries
	KindTime
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUInt8:
		return "uint8"
	case KindUInt16:
		return "uint16"
	case KindUInt32:
		return "uint32"
	case KindUInt64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBlob:
		return "blob"
	case KindDictionary:
		return "dictionary"
	case KindArrayOfStrings:
		return "arrayOfStrings"
	case KindArrayOfDictionaries:
		return "arrayOfDictionaries"
	case KindTime:
		return "time"
	default:
		return "unknown"
	}
}

// Dictionary is a string-keyed map of Values, mirroring the property map
// shape used throughout the engine.
type Dictionary map[string]Value

// Value is an immutable tagged union. The zero Value is KindBool(false).
type Value struct {
	kind    Kind
	boolVal bool
	intVal  int64
	uintVal uint64
	f32Val  float32
	f64Val  float64
	strVal  string
	blobVal []byte
	dictVal Dictionary
	arrStr  []string
	arrDict []Dictionary
	timeVal time.Time
}

// Kind reports the shape held by this Value.
func (v Value) Kind() Kind { return v.kind }

// Constructors

func NewBool(b bool) Value                { return Value{kind: KindBool, boolVal: b} }
func NewInt8(i int8) Value                { return Value{kind: KindInt8, intVal: int64(i)} }
func NewInt16(i int16) Value              { return Value{kind: KindInt16, intVal: int64(i)} }
func NewInt32(i int32) Value              { return Value{kind: KindInt32, intVal: int64(i)} }
func NewInt64(i int64) Value              { return Value{kind: KindInt64, intVal: i} }
func NewUInt8(u uint8) Value              { return Value{kind: KindUInt8, uintVal: uint64(u)} }
func NewUInt16(u uint16) Value            { return Value{kind: KindUInt16, uintVal: uint64(u)} }
func NewUInt32(u uint32) Value            { return Value{kind: KindUInt32, uintVal: uint64(u)} }
func NewUInt64(u uint64) Value            { return Value{kind: KindUInt64, uintVal: u} }
func NewFloat32(f float32) Value          { return Value{kind: KindFloat32, f32Val: f} }
func NewFloat64(f float64) Value          { return Value{kind: KindFloat64, f64Val: f} }
func NewString(s string) Value            { return Value{kind: KindString, strVal: s} }
func NewBlob(b []byte) Value              { return Value{kind: KindBlob, blobVal: append([]byte(nil), b...)} }
func NewDictionary(d Dictionary) Value    { return Value{kind: KindDictionary, dictVal: d} }
func NewArrayOfStrings(a []string) Value {
	return Value{kind: KindArrayOfStrings, arrStr: append([]string(nil), a...)}
}
func NewArrayOfDictionaries(a []Dictionary) Value {
	return Value{kind: KindArrayOfDictionaries, arrDict: append([]Dictionary(nil), a...)}
}

// NewTime constructs a universal-time Value truncated to whole seconds since
// the epoch, matching the engine's "universal seconds since epoch" shape.
func NewTime(t time.Time) Value {
	return Value{kind: KindTime, timeVal: time.Unix(t.UTC().Unix(), 0).UTC()}
}

// Accessors. Each fails with ErrWrongType if the stored Kind cannot satisfy
// the request without crossing a signed/unsigned or float/integer boundary,
// or without narrowing a wider stored value into a smaller accessor.

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: want bool, have %s", ErrWrongType, v.kind)
	}
	return v.boolVal, nil
}

var signedOrder = []Kind{KindInt8, KindInt16, KindInt32, KindInt64}
var unsignedOrder = []Kind{KindUInt8, KindUInt16, KindUInt32, KindUInt64}
var floatOrder = []Kind{KindFloat32, KindFloat64}

func widens(order []Kind, have, want Kind) bool {
	haveIdx, wantIdx := -1, -1
	for i, k := range order {
		if k == have {
			haveIdx = i
		}
		if k == want {
			wantIdx = i
		}
	}
	return haveIdx >= 0 && wantIdx >= 0 && haveIdx <= wantIdx
}

func (v Value) signedAccessor(want Kind) (int64, error) {
	if !widens(signedOrder, v.kind, want) {
		return 0, fmt.Errorf("%w: want %s, have %s", ErrWrongType, want, v.kind)
	}
	return v.intVal, nil
}

func (v Value) unsignedAccessor(want Kind) (uint64, error) {
	if !widens(unsignedOrder, v.kind, want) {
		return 0, fmt.Errorf("%w: want %s, have %s", ErrWrongType, want, v.kind)
	}
	return v.uintVal, nil
}

func (v Value) Int8() (int8, error) {
	i, err := v.signedAccessor(KindInt8)
	return int8(i), err
}
func (v Value) Int16() (int16, error) {
	i, err := v.signedAccessor(KindInt16)
	return int16(i), err
}
func (v Value) Int32() (int32, error) {
	i, err := v.signedAccessor(KindInt32)
	return int32(i), err
}
func (v Value) Int64() (int64, error) {
	return v.signedAccessor(KindInt64)
}
func (v Value) UInt8() (uint8, error) {
	u, err := v.unsignedAccessor(KindUInt8)
	return uint8(u), err
}
func (v Value) UInt16() (uint16, error) {
	u, err := v.unsignedAccessor(KindUInt16)
	return uint16(u), err
}
func (v Value) UInt32() (uint32, error) {
	u, err := v.unsignedAccessor(KindUInt32)
	return uint32(u), err
}
func (v Value) UInt64() (uint64, error) {
	return v.unsignedAccessor(KindUInt64)
}

func (v Value) Float32() (float32, error) {
	if v.kind != KindFloat32 {
		return 0, fmt.Errorf("%w: want float32, have %s", ErrWrongType, v.kind)
	}
	return v.f32Val, nil
}

func (v Value) Float64() (float64, error) {
	switch v.kind {
	case KindFloat32:
		return float64(v.f32Val), nil
	case KindFloat64:
		return v.f64Val, nil
	default:
		return 0, fmt.Errorf("%w: want float64, have %s", ErrWrongType, v.kind)
	}
}

func (v Value) String() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: want string, have %s", ErrWrongType, v.kind)
	}
	return v.strVal, nil
}

func (v Value) Blob() ([]byte, error) {
	if v.kind != KindBlob {
		return nil, fmt.Errorf("%w: want blob, have %s", ErrWrongType, v.kind)
	}
	return append([]byte(nil), v.blobVal...), nil
}

func (v Value) Dictionary() (Dictionary, error) {
	if v.kind != KindDictionary {
		return nil, fmt.Errorf("%w: want dictionary, have %s", ErrWrongType, v.kind)
	}
	return v.dictVal, nil
}

func (v Value) ArrayOfStrings() ([]string, error) {
	if v.kind != KindArrayOfStrings {
		return nil, fmt.Errorf("%w: want arrayOfStrings, have %s", ErrWrongType, v.kind)
	}
	return append([]string(nil), v.arrStr...), nil
}

func (v Value) ArrayOfDictionaries() ([]Dictionary, error) {
	if v.kind != KindArrayOfDictionaries {
		return nil, fmt.Errorf("%w: want arrayOfDictionaries, have %s", ErrWrongType, v.kind)
	}
	return append([]Dictionary(nil), v.arrDict...), nil
}

func (v Value) Time() (time.Time, error) {
	if v.kind != KindTime {
		return time.Time{}, fmt.Errorf("%w: want time, have %s", ErrWrongType, v.kind)
	}
	return v.timeVal, nil
}

// Equal reports structural equality between two Values.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.boolVal == o.boolVal
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.intVal == o.intVal
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		return v.uintVal == o.uintVal
	case KindFloat32:
		return v.f32Val == o.f32Val
	case KindFloat64:
		return v.f64Val == o.f64Val
	case KindString:
		return v.strVal == o.strVal
	case KindBlob:
		return string(v.blobVal) == string(o.blobVal)
	case KindDictionary:
		return dictionariesEqual(v.dictVal, o.dictVal)
	case KindArrayOfStrings:
		if len(v.arrStr) != len(o.arrStr) {
			return false
		}
		for i := range v.arrStr {
			if v.arrStr[i] != o.arrStr[i] {
				return false
			}
		}
		return true
	case KindArrayOfDictionaries:
		if len(v.arrDict) != len(o.arrDict) {
			return false
		}
		for i := range v.arrDict {
			if !dictionariesEqual(v.arrDict[i], o.arrDict[i]) {
				return false
			}
		}
		return true
	case KindTime:
		return v.timeVal.Equal(o.timeVal)
	default:
		return false
	}
}

func dictionariesEqual(a, b Dictionary) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// ToDictionary renders the Value as a wire-safe, self-describing map, the
// "dictionary form" used when persisting or transmitting property maps.
// Blobs are base64-encoded; every other shape round-trips natively.
func (v Value) ToDictionary() (map[string]interface{}, error) {
	out := map[string]interface{}{"type": v.kind.String()}
	switch v.kind {
	case KindBool:
		out["value"] = v.boolVal
	case KindInt8, KindInt16, KindInt32, KindInt64:
		out["value"] = v.intVal
	case KindUInt8, KindUInt16, KindUInt32, KindUInt64:
		out["value"] = v.uintVal
	case KindFloat32:
		out["value"] = float64(v.f32Val)
	case KindFloat64:
		out["value"] = v.f64Val
	case KindString:
		out["value"] = v.strVal
	case KindBlob:
		out["value"] = base64.StdEncoding.EncodeToString(v.blobVal)
	case KindDictionary:
		nested := make(map[string]interface{}, len(v.dictVal))
		for k, nv := range v.dictVal {
			nd, err := nv.ToDictionary()
			if err != nil {
				return nil, err
			}
			nested[k] = nd
		}
		out["value"] = nested
	case KindArrayOfStrings:
		out["value"] = append([]string(nil), v.arrStr...)
	case KindArrayOfDictionaries:
		arr := make([]map[string]interface{}, len(v.arrDict))
		for i, d := range v.arrDict {
			nested := make(map[string]interface{}, len(d))
			for k, nv := range d {
				nd, err := nv.ToDictionary()
				if err != nil {
					return nil, err
				}
				nested[k] = nd
			}
			arr[i] = nested
		}
		out["value"] = arr
	case KindTime:
		out["value"] = v.timeVal.Unix()
	default:
		return nil, fmt.Errorf("value: unknown kind %d", v.kind)
	}
	return out, nil
}

// FromDictionary reconstructs a Value from the wire form produced by
// ToDictionary.
func FromDictionary(m map[string]interface{}) (Value, error) {
	kindName, _ := m["type"].(string)
	raw, hasValue := m["value"]

	switch kindName {
	case KindBool.String():
		b, _ := raw.(bool)
		return NewBool(b), nil
	case KindInt8.String(), KindInt16.String(), KindInt32.String(), KindInt64.String():
		i, err := toInt64(raw)
		if err != nil {
			return Value{}, err
		}
		switch kindName {
		case KindInt8.String():
			return NewInt8(int8(i)), nil
		case KindInt16.String():
			return NewInt16(int16(i)), nil
		case KindInt32.String():
			return NewInt32(int32(i)), nil
		default:
			return NewInt64(i), nil
		}
	case KindUInt8.String(), KindUInt16.String(), KindUInt32.String(), KindUInt64.String():
		u, err := toUInt64(raw)
		if err != nil {
			return Value{}, err
		}
		switch kindName {
		case KindUInt8.String():
			return NewUInt8(uint8(u)), nil
		case KindUInt16.String():
			return NewUInt16(uint16(u)), nil
		case KindUInt32.String():
			return NewUInt32(uint32(u)), nil
		default:
			return NewUInt64(u), nil
		}
	case KindFloat32.String():
		f, err := toFloat64(raw)
		if err != nil {
			return Value{}, err
		}
		return NewFloat32(float32(f)), nil
	case KindFloat64.String():
		f, err := toFloat64(raw)
		if err != nil {
			return Value{}, err
		}
		return NewFloat64(f), nil
	case KindString.String():
		s, _ := raw.(string)
		return NewString(s), nil
	case KindBlob.String():
		s, _ := raw.(string)
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, fmt.Errorf("value: bad base64 blob: %w", err)
		}
		return NewBlob(b), nil
	case KindDictionary.String():
		nested, err := toDictionaryMap(raw)
		if err != nil {
			return Value{}, err
		}
		return NewDictionary(nested), nil
	case KindArrayOfStrings.String():
		if ss, ok := raw.([]string); ok {
			return NewArrayOfStrings(ss), nil
		}
		arr, _ := raw.([]interface{})
		strs := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return Value{}, fmt.Errorf("value: non-string in arrayOfStrings")
			}
			strs = append(strs, s)
		}
		return NewArrayOfStrings(strs), nil
	case KindArrayOfDictionaries.String():
		arr, _ := raw.([]interface{})
		if ms, ok := raw.([]map[string]interface{}); ok {
			arr = make([]interface{}, len(ms))
			for i, m := range ms {
				arr[i] = m
			}
		}
		dicts := make([]Dictionary, 0, len(arr))
		for _, item := range arr {
			d, err := toDictionaryMap(item)
			if err != nil {
				return Value{}, err
			}
			dicts = append(dicts, d)
		}
		return NewArrayOfDictionaries(dicts), nil
	case KindTime.String():
		i, err := toInt64(raw)
		if err != nil {
			return Value{}, err
		}
		return NewTime(time.Unix(i, 0).UTC()), nil
	default:
		if !hasValue {
			return Value{}, fmt.Errorf("value: unknown or missing type %q", kindName)
		}
		return Value{}, fmt.Errorf("value: unknown type %q", kindName)
	}
}

func toDictionaryMap(raw interface{}) (Dictionary, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("value: expected nested dictionary")
	}
	out := make(Dictionary, len(m))
	for k, rv := range m {
		nestedMap, ok := rv.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("value: malformed nested value for %q", k)
		}
		nv, err := FromDictionary(nestedMap)
		if err != nil {
			return nil, err
		}
		out[k] = nv
	}
	return out, nil
}

func toInt64(raw interface{}) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value: expected integer, got %T", raw)
	}
}

func toUInt64(raw interface{}) (uint64, error) {
	switch n := raw.(type) {
	case uint64:
		return n, nil
	case int64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("value: expected unsigned integer, got %T", raw)
	}
}

func toFloat64(raw interface{}) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("value: expected float, got %T", raw)
	}
}
