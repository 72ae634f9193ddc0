package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

func TestInstantiate_unlinkableImport(t *testing.T) {
	m := &wasm.Module{
		TypeSection:   []wasm.FuncType{{Results: []api.ValueType{i32}}},
		ImportSection: []wasm.Import{{Module: "env", Name: "missing", Type: api.ExternTypeFunc, DescFunc: 0}},
	}
	_, err := Instantiate(m, nil)
	var ie *wasm.InstantiateError
	require.ErrorAs(t, err, &ie)
}

func TestInstantiate_hostImportResolved(t *testing.T) {
	called := false
	hostFuncs := []HostImport{{
		Module: "env", Name: "hello",
		Type: wasm.FuncType{},
		Func: func(s *Store, params []uint64) ([]uint64, error) {
			called = true
			return nil, nil
		},
	}}
	m := &wasm.Module{
		TypeSection:     []wasm.FuncType{{}},
		ImportSection:   []wasm.Import{{Module: "env", Name: "hello", Type: api.ExternTypeFunc, DescFunc: 0}},
		FunctionSection: []wasm.Index{0},
		ExportSection:   []wasm.Export{{Name: "run", Type: api.ExternTypeFunc, Index: 1}},
		CodeSection: []wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeCall, Index: 0},
			{Opcode: wasm.OpcodeEnd},
		}}},
	}
	s, err := Instantiate(m, hostFuncs)
	require.NoError(t, err)

	_, err = NewInterpreter(s).InvokeAll("run", nil)
	require.NoError(t, err)
	require.True(t, called)
}

func TestInstantiate_dataSegmentOverflow(t *testing.T) {
	m := &wasm.Module{
		MemorySection: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		DataSection: []wasm.DataSegment{
			{MemoryIndex: 0, Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(65530)}, Init: []byte("too long for the tail")},
		},
	}
	_, err := Instantiate(m, nil)
	var ie *wasm.InstantiateError
	require.ErrorAs(t, err, &ie)
}

func TestInstantiate_elementSegmentOverflow(t *testing.T) {
	m := &wasm.Module{
		TableSection: []wasm.TableType{{Limits: wasm.Limits{Min: 1}}},
		ElementSection: []wasm.ElementSegment{
			{TableIndex: 0, Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(0)}, Init: []wasm.Index{0, 1, 2}},
		},
	}
	_, err := Instantiate(m, nil)
	var ie *wasm.InstantiateError
	require.ErrorAs(t, err, &ie)
}

func TestMemoryInstance_Grow(t *testing.T) {
	mem := &MemoryInstance{Bytes: make([]byte, pageSize), Max: 2, HasMax: true}
	require.EqualValues(t, 1, mem.Grow(1))
	require.EqualValues(t, 2, mem.PageCount())
	require.EqualValues(t, -1, mem.Grow(1))
}

func TestMemoryInstance_Grow_noMax(t *testing.T) {
	mem := &MemoryInstance{Bytes: make([]byte, pageSize)}
	require.EqualValues(t, 1, mem.Grow(3))
	require.EqualValues(t, 4, mem.PageCount())
}
