package argid

import (
	"database/sql/driver"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

type customEncoded struct {
	secret string
}

func (c customEncoded) EncodeTestArgument() ([]byte, error) {
	return []byte("custom:" + c.secret), nil
}

type account struct {
	id   int
	name string
}

func (a account) ID() int { return a.id }

type currency struct {
	code string
}

func (c currency) Value() (driver.Value, error) { return c.code, nil }

type opaque struct {
	ch chan int
}

func TestOfStrategies(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		strategy Strategy
		stable   bool
		bytes    string
	}{
		{name: "int", value: 42, strategy: StrategyCodable, stable: true, bytes: "42"},
		{name: "string", value: "hi", strategy: StrategyCodable, stable: true, bytes: `"hi"`},
		{name: "exported struct", value: point{1, 2}, strategy: StrategyCodable, stable: true, bytes: `{"X":1,"Y":2}`},
		{name: "slice of structs", value: []point{{1, 2}}, strategy: StrategyCodable, stable: true, bytes: `[{"X":1,"Y":2}]`},
		{name: "nil", value: nil, strategy: StrategyCodable, stable: true, bytes: "null"},
		{name: "time", value: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), strategy: StrategyCodable, stable: true, bytes: `"2024-01-02T03:04:05Z"`},
		{name: "custom encoder", value: customEncoded{secret: "x"}, strategy: StrategyEncoder, stable: true, bytes: "custom:x"},
		{name: "identifiable", value: account{id: 7, name: "a"}, strategy: StrategyIdentifiable, stable: true, bytes: "7"},
		{name: "raw value", value: currency{code: "EUR"}, strategy: StrategyRawValue, stable: true, bytes: `"EUR"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Of(tt.value)
			assert.Equal(t, tt.strategy, id.Strategy)
			assert.Equal(t, tt.stable, id.Stable)
			assert.Equal(t, tt.bytes, string(id.Bytes))
		})
	}
}

func TestOfOpaqueIsUniquePerCall(t *testing.T) {
	a := Of(opaque{ch: make(chan int)})
	b := Of(opaque{ch: make(chan int)})

	require.Equal(t, StrategyOpaque, a.Strategy)
	require.False(t, a.Stable)
	require.False(t, b.Stable)
	assert.False(t, a.Equal(b), "opaque identities must be unique within a run")
}

func TestOfIsReproducible(t *testing.T) {
	first := Of(map[string][]int{"b": {2}, "a": {1}})
	second := Of(map[string][]int{"a": {1}, "b": {2}})
	assert.True(t, first.Equal(second))
	assert.Equal(t, `{"a":[1],"b":[2]}`, first.String())
}

func TestIsCodable(t *testing.T) {
	assert.True(t, IsCodable([]any{1, "x", nil}))
	assert.False(t, IsCodable([]any{1, make(chan int)}))
	assert.False(t, IsCodable(func() {}))
	assert.False(t, IsCodable(account{id: 1}), "unexported fields are lost by encoding")
	assert.True(t, IsCodable(&point{1, 2}))
	assert.True(t, IsCodable([]byte{0xff, 0x00}))
}

func TestStringHexEncodesBinary(t *testing.T) {
	id := ID{Bytes: []byte{0x00, 0xff}, Stable: true}
	assert.Equal(t, "00ff", id.String())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, `"x"`, Describe("x"))
	assert.Equal(t, "nil", Describe(nil))
	assert.Equal(t, "{1 2}", Describe(point{1, 2}))
}
