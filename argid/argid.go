// Package argid computes reproducible identities for values passed to
// parameterized tests.
//
// An identity is resolved by trying a fixed list of strategies in order:
//
//  1. Codable: the value is losslessly JSON-encodable (scalars, marshalers and
//     composites made only of codable parts).
//  2. Encoder: the value implements Encoder.
//  3. Identifiable: the value has an ID() method returning a codable value.
//  4. Raw value: the value implements driver.Valuer and yields a codable value.
//  5. Opaque: a run-unique ordinal token, which is not stable.
//
// Only the first four strategies produce identities that are reproducible
// across runs.
package argid

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
)

// Strategy names the rule that produced an identity.
type Strategy uint8

const (
	StrategyCodable Strategy = iota + 1
	StrategyEncoder
	StrategyIdentifiable
	StrategyRawValue
	StrategyOpaque
)

func (s Strategy) String() string {
	switch s {
	case StrategyCodable:
		return "codable"
	case StrategyEncoder:
		return "encoder"
	case StrategyIdentifiable:
		return "identifiable"
	case StrategyRawValue:
		return "raw-value"
	case StrategyOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// Encoder lets a type supply its own argument identity.
type Encoder interface {
	EncodeTestArgument() ([]byte, error)
}

// ID is the identity of a single argument value.
type ID struct {
	Bytes    []byte
	Stable   bool
	Strategy Strategy
}

// String renders the identity bytes. Printable identities are returned as-is,
// anything else is hex encoded.
func (id ID) String() string {
	if isPrintable(id.Bytes) {
		return string(id.Bytes)
	}
	return hex.EncodeToString(id.Bytes)
}

// Equal reports whether two identities carry the same bytes and stability.
func (id ID) Equal(other ID) bool {
	return id.Stable == other.Stable && bytes.Equal(id.Bytes, other.Bytes)
}

var opaqueOrdinal atomic.Uint64

// Of resolves the identity of value.
func Of(value any) ID {
	if b, ok := encodeCodable(value); ok {
		return ID{Bytes: b, Stable: true, Strategy: StrategyCodable}
	}
	if enc, ok := value.(Encoder); ok {
		if b, err := enc.EncodeTestArgument(); err == nil {
			return ID{Bytes: b, Stable: true, Strategy: StrategyEncoder}
		}
	}
	if id, ok := identityOf(value); ok {
		if b, ok := encodeCodable(id); ok {
			return ID{Bytes: b, Stable: true, Strategy: StrategyIdentifiable}
		}
	}
	if valuer, ok := value.(driver.Valuer); ok {
		if raw, err := valuer.Value(); err == nil {
			if b, ok := encodeCodable(raw); ok {
				return ID{Bytes: b, Stable: true, Strategy: StrategyRawValue}
			}
		}
	}
	return ID{
		Bytes:    []byte("#" + strconv.FormatUint(opaqueOrdinal.Add(1), 10)),
		Stable:   false,
		Strategy: StrategyOpaque,
	}
}

func encodeCodable(value any) ([]byte, bool) {
	if !IsCodable(value) {
		return nil, false
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, false
	}
	return b, true
}

// IsCodable reports whether value can be encoded without losing information.
func IsCodable(value any) bool {
	if value == nil {
		return true
	}
	return codableValue(reflect.ValueOf(value), 0)
}

const maxCodableDepth = 32

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()

	// exported-fields-only checks are per type and never change
	structCache sync.Map // reflect.Type -> bool
)

func codableValue(v reflect.Value, depth int) bool {
	if depth > maxCodableDepth {
		return false
	}
	if !v.IsValid() {
		return true
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return true
		}
		return codableValue(v.Elem(), depth+1)
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return true
		}
		for i := 0; i < v.Len(); i++ {
			if !codableValue(v.Index(i), depth+1) {
				return false
			}
		}
		return true
	case reflect.Map:
		switch t.Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			if !t.Key().Implements(textMarshalerType) {
				return false
			}
		}
		iter := v.MapRange()
		for iter.Next() {
			if !codableValue(iter.Value(), depth+1) {
				return false
			}
		}
		return true
	case reflect.Struct:
		if !allFieldsExported(t) {
			return false
		}
		for i := 0; i < v.NumField(); i++ {
			if !codableValue(v.Field(i), depth+1) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func allFieldsExported(t reflect.Type) bool {
	if cached, ok := structCache.Load(t); ok {
		return cached.(bool)
	}
	exported := true
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("json") == "-" {
			exported = false
			break
		}
	}
	structCache.Store(t, exported)
	return exported
}

// identityOf calls a zero-argument ID method with a single result.
func identityOf(value any) (any, bool) {
	if value == nil {
		return nil, false
	}
	m := reflect.ValueOf(value).MethodByName("ID")
	if !m.IsValid() {
		return nil, false
	}
	mt := m.Type()
	if mt.NumIn() != 0 || mt.NumOut() != 1 {
		return nil, false
	}
	return m.Call(nil)[0].Interface(), true
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// Describe renders value for humans. It is not an identity.
func Describe(value any) string {
	switch v := value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
