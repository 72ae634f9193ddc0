package vm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

var i32 = api.ValueTypeI32

func mustStore(t *testing.T, m *wasm.Module, hostFuncs ...HostImport) *Store {
	t.Helper()
	s, err := Instantiate(m, hostFuncs)
	require.NoError(t, err)
	return s
}

// TestInterpreter_Add covers spec.md §8's add(2,3)=5 scenario.
func TestInterpreter_Add(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "add", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection: []wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32Add},
			{Opcode: wasm.OpcodeEnd},
		}}},
	}
	s := mustStore(t, m)
	ip := NewInterpreter(s)

	results, err := ip.InvokeAll("add", []uint64{api.EncodeI32(2), api.EncodeI32(3)})
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(5)}, results)
}

// TestInterpreter_Factorial covers spec.md §8's fac(10)=3628800 scenario,
// via an iterative loop (local 0 = n, local 1 = acc) exercising Block,
// Loop, BrIf and Br together.
func TestInterpreter_Factorial(t *testing.T) {
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, I32: 1},                                                 // 0: acc = 1
		{Opcode: wasm.OpcodeLocalSet, Index: 1},                                                // 1
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockType{Kind: wasm.BlockTypeEmpty}, End: 17},   // 2
		{Opcode: wasm.OpcodeLoop, Block: wasm.BlockType{Kind: wasm.BlockTypeEmpty}, End: 16},    // 3
		{Opcode: wasm.OpcodeLocalGet, Index: 0},                                                // 4
		{Opcode: wasm.OpcodeI32Eqz},                                                            // 5
		{Opcode: wasm.OpcodeBrIf, Index: 1},                                                    // 6: n == 0 -> break out of $block
		{Opcode: wasm.OpcodeLocalGet, Index: 1},                                                // 7
		{Opcode: wasm.OpcodeLocalGet, Index: 0},                                                // 8
		{Opcode: wasm.OpcodeI32Mul},                                                            // 9
		{Opcode: wasm.OpcodeLocalSet, Index: 1},                                                // 10: acc *= n
		{Opcode: wasm.OpcodeLocalGet, Index: 0},                                                // 11
		{Opcode: wasm.OpcodeI32Const, I32: 1},                                                  // 12
		{Opcode: wasm.OpcodeI32Sub},                                                            // 13
		{Opcode: wasm.OpcodeLocalSet, Index: 0},                                                // 14: n -= 1
		{Opcode: wasm.OpcodeBr, Index: 0},                                                      // 15: loop again
		{Opcode: wasm.OpcodeEnd},                                                               // 16: end $loop (unreached)
		{Opcode: wasm.OpcodeEnd},                                                               // 17: end $block
		{Opcode: wasm.OpcodeLocalGet, Index: 1},                                                // 18
		{Opcode: wasm.OpcodeEnd},                                                               // 19: function end
	}
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "fac", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection:     []wasm.Code{{LocalTypes: []api.ValueType{i32}, Body: body}},
	}

	s := mustStore(t, m)
	ip := NewInterpreter(s)

	results, err := ip.InvokeAll("fac", []uint64{api.EncodeI32(10)})
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(3628800)}, results)
}

// TestInterpreter_MemoryGrow covers spec.md §8's memory.grow scenario:
// growing returns the previous page count, and a grow beyond the
// declared maximum fails with -1.
func TestInterpreter_MemoryGrow(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: 2, HasMax: true}}},
		ExportSection:   []wasm.Export{{Name: "grow", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection: []wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeMemoryGrow},
			{Opcode: wasm.OpcodeEnd},
		}}},
	}
	s := mustStore(t, m)
	ip := NewInterpreter(s)

	results, err := ip.InvokeAll("grow", []uint64{api.EncodeI32(1)})
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(1)}, results, "grow returns the previous page count")
	require.EqualValues(t, 2, s.Memories[0].PageCount())

	results, err = ip.InvokeAll("grow", []uint64{api.EncodeI32(1)})
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(-1)}, results, "grow beyond max fails with -1")
}

// TestInterpreter_CallIndirect covers spec.md §8's table + call_indirect
// scenario: a table slot resolves to a Wasm function and the call
// proceeds because the declared and actual types agree.
func TestInterpreter_CallIndirect(t *testing.T) {
	doubleType := wasm.FuncType{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{doubleType},
		FunctionSection: []wasm.Index{0, 0},
		TableSection:    []wasm.TableType{{Limits: wasm.Limits{Min: 1}}},
		ElementSection: []wasm.ElementSegment{
			{TableIndex: 0, Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(0)}, Init: []wasm.Index{0}},
		},
		ExportSection: []wasm.Export{{Name: "invoke_double", Type: api.ExternTypeFunc, Index: 1}},
		CodeSection: []wasm.Code{
			{Body: []wasm.Instruction{ // fn 0: double(x) = x*2
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Const, I32: 2},
				{Opcode: wasm.OpcodeI32Mul},
				{Opcode: wasm.OpcodeEnd},
			}},
			{Body: []wasm.Instruction{ // fn 1: invoke_double(n) = call_indirect(0, double)
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Const, I32: 0}, // table slot
				{Opcode: wasm.OpcodeCallIndirect, Index: 0, Index2: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}

	s := mustStore(t, m)
	ip := NewInterpreter(s)

	results, err := ip.InvokeAll("invoke_double", []uint64{api.EncodeI32(21)})
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(42)}, results)
}

// TestInterpreter_CallIndirect_TypeMismatch traps with "indirect call
// type mismatch" when the table slot's function type disagrees with the
// call site's declared type.
func TestInterpreter_CallIndirect_TypeMismatch(t *testing.T) {
	mismatchType := wasm.FuncType{Results: []api.ValueType{i32}}
	callType := wasm.FuncType{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{mismatchType, callType},
		FunctionSection: []wasm.Index{0, 1},
		TableSection:    []wasm.TableType{{Limits: wasm.Limits{Min: 1}}},
		ElementSection: []wasm.ElementSegment{
			{TableIndex: 0, Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(0)}, Init: []wasm.Index{0}},
		},
		ExportSection: []wasm.Export{{Name: "call", Type: api.ExternTypeFunc, Index: 1}},
		CodeSection: []wasm.Code{
			{Body: []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, I32: 0}, {Opcode: wasm.OpcodeEnd}}},
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Const, I32: 0},
				{Opcode: wasm.OpcodeCallIndirect, Index: 1, Index2: 0},
				{Opcode: wasm.OpcodeEnd},
			}},
		},
	}
	s := mustStore(t, m)
	ip := NewInterpreter(s)

	_, err := ip.InvokeAll("call", []uint64{api.EncodeI32(0)})
	require.ErrorIs(t, err, ErrIndirectCallMismatch)
}

// TestInterpreter_BrTable covers spec.md §8's br_table scenario: a
// switch-like program where the selector picks among two case blocks,
// an out-of-range selector clamping to the third (default) target,
// following the usual nested-block br_table idiom.
func TestInterpreter_BrTable(t *testing.T) {
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockType{Kind: wasm.BlockTypeValue, ValType: i32}, End: 14}, // 0: $exit (carries the i32 result)
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockType{Kind: wasm.BlockTypeEmpty}, End: 12},  // 1: $default
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockType{Kind: wasm.BlockTypeEmpty}, End: 9},   // 2: $case1
		{Opcode: wasm.OpcodeBlock, Block: wasm.BlockType{Kind: wasm.BlockTypeEmpty}, End: 6},   // 3: $case0
		{Opcode: wasm.OpcodeLocalGet, Index: 0},                                               // 4
		{Opcode: wasm.OpcodeBrTable, Labels: []wasm.Index{0, 1, 2}},                            // 5
		{Opcode: wasm.OpcodeEnd},                                                               // 6: end $case0 (unreached: br_table always jumps past it)
		{Opcode: wasm.OpcodeI32Const, I32: 55},                                                 // 7: case-0 result
		{Opcode: wasm.OpcodeBr, Index: 2},                                                      // 8: branch to $exit
		{Opcode: wasm.OpcodeEnd},                                                               // 9: end $case1 (unreached)
		{Opcode: wasm.OpcodeI32Const, I32: 77},                                                 // 10: case-1 result
		{Opcode: wasm.OpcodeBr, Index: 1},                                                      // 11: branch to $exit
		{Opcode: wasm.OpcodeEnd},                                                               // 12: end $default
		{Opcode: wasm.OpcodeI32Const, I32: 99},                                                 // 13: default result
		{Opcode: wasm.OpcodeEnd},                                                               // 14: end $exit
		{Opcode: wasm.OpcodeEnd},                                                               // 15: function end
	}
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Params: []api.ValueType{i32}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "pick", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection:     []wasm.Code{{Body: body}},
	}
	s := mustStore(t, m)

	for _, tc := range []struct {
		selector int32
		want     int32
	}{
		{0, 55},
		{1, 77},
		{2, 99},  // in-range-of-nothing: clamps to default
		{99, 99}, // far out of range: also clamps to default
	} {
		ip := NewInterpreter(s)
		results, err := ip.InvokeAll("pick", []uint64{api.EncodeI32(tc.selector)})
		require.NoError(t, err)
		require.Equal(t, []uint64{api.EncodeI32(tc.want)}, results, "selector %d", tc.selector)
	}
}

// TestInterpreter_DivideByZeroTraps covers spec.md §7's exact trap
// message for i32.div_s by zero.
func TestInterpreter_DivideByZeroTraps(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "div", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection: []wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32DivS},
			{Opcode: wasm.OpcodeEnd},
		}}},
	}
	s := mustStore(t, m)
	ip := NewInterpreter(s)

	_, err := ip.InvokeAll("div", []uint64{api.EncodeI32(1), api.EncodeI32(0)})
	require.ErrorIs(t, err, ErrIntegerDivideByZero)
	require.EqualError(t, err, "integer divide by zero")
}

// TestInterpreter_TruncF64SBoundary covers i32.trunc_f64_s at the edge of
// the signed-32 range: 2147483647.9 truncates in range (to MaxInt32), but
// 2147483648.0 overflows. math.MaxInt32 converts to float64 exactly, so a
// naive `v > hi` bounds check wrongly traps the in-range case too.
func TestInterpreter_TruncF64SBoundary(t *testing.T) {
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{Params: []api.ValueType{api.ValueTypeF64}, Results: []api.ValueType{i32}}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "trunc", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection: []wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeI32TruncF64S},
			{Opcode: wasm.OpcodeEnd},
		}}},
	}
	s := mustStore(t, m)

	ip := NewInterpreter(s)
	results, err := ip.InvokeAll("trunc", []uint64{api.EncodeF64(2147483647.9)})
	require.NoError(t, err)
	require.Equal(t, []uint64{api.EncodeI32(math.MaxInt32)}, results)

	ip = NewInterpreter(s)
	_, err = ip.InvokeAll("trunc", []uint64{api.EncodeF64(2147483648.0)})
	require.ErrorIs(t, err, ErrIntegerOverflow)
}

// TestInterpreter_MaxSteps covers spec.md §5's optional step-limit
// configuration tripping an internal error rather than looping forever.
func TestInterpreter_MaxSteps(t *testing.T) {
	body := []wasm.Instruction{
		{Opcode: wasm.OpcodeLoop, Block: wasm.BlockType{Kind: wasm.BlockTypeEmpty}, End: 2},
		{Opcode: wasm.OpcodeBr, Index: 0},
		{Opcode: wasm.OpcodeEnd},
	}
	m := &wasm.Module{
		FunctionSection: []wasm.Index{0},
		TypeSection:     []wasm.FuncType{{}},
		ExportSection:   []wasm.Export{{Name: "loop", Type: api.ExternTypeFunc, Index: 0}},
		CodeSection:     []wasm.Code{{Body: body}},
	}
	s := mustStore(t, m)
	ip := NewInterpreterWithConfig(s, NewRuntimeConfig().WithMaxSteps(1000))

	_, err := ip.InvokeAll("loop", nil)
	require.Error(t, err)
}

