package spectest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/vm"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

func TestAssertReturn_exactValues(t *testing.T) {
	types := []api.ValueType{api.ValueTypeI32, api.ValueTypeF64}
	got := []uint64{api.EncodeI32(5), api.EncodeF64(1.5)}
	want := []uint64{api.EncodeI32(5), api.EncodeF64(1.5)}
	require.True(t, AssertReturn(types, got, want))

	mismatch := []uint64{api.EncodeI32(6), api.EncodeF64(1.5)}
	require.False(t, AssertReturn(types, mismatch, want))
}

// TestAssertReturn_anyNaN covers the assert_return_canonical_nan /
// assert_return_arithmetic_nan directives' "any NaN matches any NaN"
// semantics: a NaN produced with one bit pattern (float32(math.NaN())) still
// matches an expectation encoded with a completely different NaN payload.
func TestAssertReturn_anyNaN(t *testing.T) {
	differentPayloadNaN := math.Float32frombits(0x7f800001) // a NaN, not the one float32(math.NaN()) produces
	require.True(t, math.IsNaN(float64(differentPayloadNaN)))

	types := []api.ValueType{api.ValueTypeF32}
	got := []uint64{api.EncodeF32(float32(math.NaN()))}
	want := []uint64{api.EncodeF32(differentPayloadNaN)}
	require.True(t, AssertReturn(types, got, want))

	require.False(t, AssertReturn(types, got, []uint64{api.EncodeF32(1.0)}))
}

// TestAssertReturn_interpreterNaN exercises AssertReturn against a real
// interpreter run: f32.div(0, 0) traps no opcode but produces NaN per
// IEEE 754, and the spec-test directive for this case only asserts "some
// NaN", not a specific payload.
func TestAssertReturn_interpreterNaN(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Results: []api.ValueType{api.ValueTypeF32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "nan", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection: []wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeF32Const, F32: 0},
			{Opcode: wasm.OpcodeF32Const, F32: 0},
			{Opcode: wasm.OpcodeF32Div},
			{Opcode: wasm.OpcodeEnd},
		}}},
	}
	s, err := vm.Instantiate(m, nil)
	require.NoError(t, err)

	results, err := vm.NewInterpreter(s).InvokeAll("nan", nil)
	require.NoError(t, err)

	want := []uint64{api.EncodeF32(float32(math.NaN()))}
	require.True(t, AssertReturn([]api.ValueType{api.ValueTypeF32}, results, want))
}
