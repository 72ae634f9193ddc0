package binary

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

// TestDecodeModule relies on EncodeModule, the same round-trip strategy the
// teacher's decoder tests use, to avoid hand-writing byte arrays for every
// case.
func TestDecodeModule(t *testing.T) {
	i32, i64 := api.ValueTypeI32, api.ValueTypeI64

	tests := []struct {
		name  string
		input *wasm.Module
	}{
		{name: "empty", input: &wasm.Module{}},
		{
			name: "type section",
			input: &wasm.Module{
				TypeSection: []wasm.FuncType{
					{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}},
					{},
				},
			},
		},
		{
			name: "add function",
			input: &wasm.Module{
				TypeSection:     []wasm.FuncType{{Params: []api.ValueType{i32, i32}, Results: []api.ValueType{i32}}},
				FunctionSection: []wasm.Index{0},
				ExportSection:   []wasm.Export{{Name: "add", Type: api.ExternTypeFunc, Index: 0}},
				CodeSection: []wasm.Code{
					{Body: []wasm.Instruction{
						{Opcode: wasm.OpcodeLocalGet, Index: 0},
						{Opcode: wasm.OpcodeLocalGet, Index: 1},
						{Opcode: wasm.OpcodeI32Add},
						{Opcode: wasm.OpcodeEnd},
					}, BodyByteSize: 7}, // 1 byte of locals count + 6 bytes of instructions
				},
			},
		},
		{
			name: "memory and global",
			input: &wasm.Module{
				MemorySection: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1, Max: 2, HasMax: true}}},
				GlobalSection: []wasm.Global{
					{Type: wasm.GlobalType{ValType: i64, Mutable: true}, Init: wasm.ConstantExpression{Opcode: wasm.OpcodeI64Const, Data: leb128.EncodeInt64(5)}},
				},
				ExportSection: []wasm.Export{{Name: "mem", Type: api.ExternTypeMemory, Index: 0}},
			},
		},
		{
			name: "import",
			input: &wasm.Module{
				TypeSection:   []wasm.FuncType{{Results: []api.ValueType{i32}}},
				ImportSection: []wasm.Import{{Module: "wasi_snapshot_preview1", Name: "fd_write", Type: api.ExternTypeFunc, DescFunc: 0}},
			},
		},
		{
			name: "table and elements",
			input: &wasm.Module{
				TableSection: []wasm.TableType{{Limits: wasm.Limits{Min: 4}}},
				ElementSection: []wasm.ElementSegment{
					{TableIndex: 0, Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(0)}, Init: []wasm.Index{0, 1}},
				},
			},
		},
		{
			name: "data segment",
			input: &wasm.Module{
				MemorySection: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
				DataSection: []wasm.DataSegment{
					{MemoryIndex: 0, Offset: wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Data: leb128.EncodeInt32(0)}, Init: []byte("hi\n")},
				},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := EncodeModule(tc.input)
			decoded, err := DecodeModule(bytes.NewReader(encoded))
			require.NoError(t, err)
			require.Equal(t, tc.input, decoded)
		})
	}
}

func TestDecodeModule_malformedHeader(t *testing.T) {
	_, err := DecodeModule(bytes.NewReader([]byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}))
	require.ErrorContains(t, err, wasm.ErrMalformedHeader)
}

func TestDecodeModule_truncated(t *testing.T) {
	_, err := DecodeModule(bytes.NewReader([]byte{0x00, 0x61, 0x73, 0x6d}))
	require.ErrorContains(t, err, wasm.ErrMalformedHeader)
}

func TestDecodeModule_sectionOutOfOrder(t *testing.T) {
	var buf []byte
	buf = append(buf, magic[:]...)
	buf = append(buf, 0x01, 0x00, 0x00, 0x00)
	buf = appendSection(buf, wasm.SectionIDCode, []byte{0x00})
	buf = appendSection(buf, wasm.SectionIDType, []byte{0x00})
	_, err := DecodeModule(bytes.NewReader(buf))
	require.Error(t, err)
}

func TestDecodeModule_unknownSection(t *testing.T) {
	var buf []byte
	buf = append(buf, magic[:]...)
	buf = append(buf, 0x01, 0x00, 0x00, 0x00)
	buf = appendSection(buf, 0x7f, []byte{})
	_, err := DecodeModule(bytes.NewReader(buf))
	require.ErrorContains(t, err, wasm.ErrUnknownSection)
}

