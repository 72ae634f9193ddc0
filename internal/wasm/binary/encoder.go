package binary

import (
	"encoding/binary"
	"math"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

// EncodeModule serialises m back into the Wasm binary format. It is used
// by tests to exercise the round-trip behavioural-equivalence property of
// spec.md §8 ("re-encoding the parsed instruction stream produces an
// equivalent execution trace"); it is not required to reproduce the exact
// input bytes (e.g. it always emits the minimal-length LEB128
// encoding, drops custom sections, and always sorts sections by id).
func EncodeModule(m *wasm.Module) []byte {
	out := append([]byte{}, magic[:]...)
	var verBuf [4]byte
	binary.LittleEndian.PutUint32(verBuf[:], version)
	out = append(out, verBuf[:]...)

	if len(m.TypeSection) > 0 {
		out = appendSection(out, wasm.SectionIDType, encodeTypeSection(m.TypeSection))
	}
	if len(m.ImportSection) > 0 {
		out = appendSection(out, wasm.SectionIDImport, encodeImportSection(m.ImportSection))
	}
	if len(m.FunctionSection) > 0 {
		out = appendSection(out, wasm.SectionIDFunction, encodeIndexVec(m.FunctionSection))
	}
	if len(m.TableSection) > 0 {
		out = appendSection(out, wasm.SectionIDTable, encodeTableSection(m.TableSection))
	}
	if len(m.MemorySection) > 0 {
		out = appendSection(out, wasm.SectionIDMemory, encodeMemorySection(m.MemorySection))
	}
	if len(m.GlobalSection) > 0 {
		out = appendSection(out, wasm.SectionIDGlobal, encodeGlobalSection(m.GlobalSection))
	}
	if len(m.ExportSection) > 0 {
		out = appendSection(out, wasm.SectionIDExport, encodeExportSection(m.ExportSection))
	}
	if m.StartSection != nil {
		out = appendSection(out, wasm.SectionIDStart, leb128.EncodeUint32(*m.StartSection))
	}
	if len(m.ElementSection) > 0 {
		out = appendSection(out, wasm.SectionIDElement, encodeElementSection(m.ElementSection))
	}
	if len(m.CodeSection) > 0 {
		out = appendSection(out, wasm.SectionIDCode, encodeCodeSection(m.CodeSection))
	}
	if len(m.DataSection) > 0 {
		out = appendSection(out, wasm.SectionIDData, encodeDataSection(m.DataSection))
	}
	return out
}

func appendSection(out []byte, id wasm.SectionID, payload []byte) []byte {
	out = append(out, id)
	out = append(out, leb128.EncodeUint32(uint32(len(payload)))...)
	return append(out, payload...)
}

func encodeName(s string) []byte {
	out := leb128.EncodeUint32(uint32(len(s)))
	return append(out, s...)
}

func encodeIndexVec(idx []wasm.Index) []byte {
	out := leb128.EncodeUint32(uint32(len(idx)))
	for _, i := range idx {
		out = append(out, leb128.EncodeUint32(i)...)
	}
	return out
}

func encodeLimits(l wasm.Limits) []byte {
	if l.HasMax {
		out := []byte{1}
		out = append(out, leb128.EncodeUint32(l.Min)...)
		return append(out, leb128.EncodeUint32(l.Max)...)
	}
	out := []byte{0}
	return append(out, leb128.EncodeUint32(l.Min)...)
}

func encodeTypeSection(types []wasm.FuncType) []byte {
	out := leb128.EncodeUint32(uint32(len(types)))
	for _, t := range types {
		out = append(out, functionTypeTag)
		out = append(out, leb128.EncodeUint32(uint32(len(t.Params)))...)
		out = append(out, t.Params...)
		out = append(out, leb128.EncodeUint32(uint32(len(t.Results)))...)
		out = append(out, t.Results...)
	}
	return out
}

func encodeImportSection(imports []wasm.Import) []byte {
	out := leb128.EncodeUint32(uint32(len(imports)))
	for _, imp := range imports {
		out = append(out, encodeName(imp.Module)...)
		out = append(out, encodeName(imp.Name)...)
		out = append(out, imp.Type)
		switch imp.Type {
		case api.ExternTypeFunc:
			out = append(out, leb128.EncodeUint32(imp.DescFunc)...)
		case api.ExternTypeTable:
			out = append(out, 0x70) // funcref
			out = append(out, encodeLimits(imp.DescTable.Limits)...)
		case api.ExternTypeMemory:
			out = append(out, encodeLimits(imp.DescMem.Limits)...)
		case api.ExternTypeGlobal:
			out = append(out, imp.DescGlobal.ValType)
			out = append(out, boolByte(imp.DescGlobal.Mutable))
		}
	}
	return out
}

func encodeTableSection(tables []wasm.TableType) []byte {
	out := leb128.EncodeUint32(uint32(len(tables)))
	for _, t := range tables {
		out = append(out, 0x70)
		out = append(out, encodeLimits(t.Limits)...)
	}
	return out
}

func encodeMemorySection(mems []wasm.MemoryType) []byte {
	out := leb128.EncodeUint32(uint32(len(mems)))
	for _, m := range mems {
		out = append(out, encodeLimits(m.Limits)...)
	}
	return out
}

func encodeGlobalSection(globals []wasm.Global) []byte {
	out := leb128.EncodeUint32(uint32(len(globals)))
	for _, g := range globals {
		out = append(out, g.Type.ValType)
		out = append(out, boolByte(g.Type.Mutable))
		out = append(out, encodeConstantExpression(g.Init)...)
	}
	return out
}

func encodeExportSection(exports []wasm.Export) []byte {
	out := leb128.EncodeUint32(uint32(len(exports)))
	for _, e := range exports {
		out = append(out, encodeName(e.Name)...)
		out = append(out, e.Type)
		out = append(out, leb128.EncodeUint32(e.Index)...)
	}
	return out
}

func encodeElementSection(elems []wasm.ElementSegment) []byte {
	out := leb128.EncodeUint32(uint32(len(elems)))
	for _, e := range elems {
		out = append(out, leb128.EncodeUint32(e.TableIndex)...)
		out = append(out, encodeConstantExpression(e.Offset)...)
		out = append(out, encodeIndexVec(e.Init)...)
	}
	return out
}

func encodeDataSection(data []wasm.DataSegment) []byte {
	out := leb128.EncodeUint32(uint32(len(data)))
	for _, d := range data {
		out = append(out, leb128.EncodeUint32(d.MemoryIndex)...)
		out = append(out, encodeConstantExpression(d.Offset)...)
		out = append(out, leb128.EncodeUint32(uint32(len(d.Init)))...)
		out = append(out, d.Init...)
	}
	return out
}

func encodeConstantExpression(e wasm.ConstantExpression) []byte {
	out := []byte{e.Opcode}
	switch e.Opcode {
	case wasm.OpcodeGlobalGet:
		out = append(out, leb128.EncodeUint32(e.GlobalIndex)...)
	default:
		out = append(out, e.Data...)
	}
	return append(out, wasm.OpcodeEnd)
}

func encodeCodeSection(codes []wasm.Code) []byte {
	out := leb128.EncodeUint32(uint32(len(codes)))
	for _, c := range codes {
		body := encodeLocals(c.LocalTypes)
		body = append(body, encodeInstructions(c.Body)...)
		out = append(out, leb128.EncodeUint32(uint32(len(body)))...)
		out = append(out, body...)
	}
	return out
}

// encodeLocals groups consecutive identical ValueTypes into runs, the
// inverse of localsVec's expansion.
func encodeLocals(locals []api.ValueType) []byte {
	type run struct {
		vt    api.ValueType
		count uint32
	}
	var runs []run
	for _, vt := range locals {
		if len(runs) > 0 && runs[len(runs)-1].vt == vt {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{vt: vt, count: 1})
		}
	}
	out := leb128.EncodeUint32(uint32(len(runs)))
	for _, r := range runs {
		out = append(out, leb128.EncodeUint32(r.count)...)
		out = append(out, r.vt)
	}
	return out
}

func encodeBlockType(bt wasm.BlockType) []byte {
	switch bt.Kind {
	case wasm.BlockTypeEmpty:
		return leb128.EncodeInt64(-64)
	case wasm.BlockTypeValue:
		return []byte{bt.ValType}
	default:
		return leb128.EncodeInt64(int64(bt.TypeIdx))
	}
}

func encodeMemArg(ma wasm.MemArg) []byte {
	out := leb128.EncodeUint32(ma.Align)
	return append(out, leb128.EncodeUint32(ma.Offset)...)
}

func encodeInstructions(body []wasm.Instruction) []byte {
	var out []byte
	for _, ins := range body {
		out = append(out, ins.Opcode)
		switch ins.Opcode {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			out = append(out, encodeBlockType(ins.Block)...)
		case wasm.OpcodeElse, wasm.OpcodeEnd:
			// No immediate; boundaries are implicit in the instruction
			// sequence itself on re-encode.
		case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
			wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
			wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
			out = append(out, leb128.EncodeUint32(ins.Index)...)
		case wasm.OpcodeBrTable:
			n := len(ins.Labels) - 1
			out = append(out, leb128.EncodeUint32(uint32(n))...)
			for _, l := range ins.Labels[:n] {
				out = append(out, leb128.EncodeUint32(l)...)
			}
			out = append(out, leb128.EncodeUint32(ins.Labels[n])...)
		case wasm.OpcodeCallIndirect:
			out = append(out, leb128.EncodeUint32(ins.Index)...)
			out = append(out, leb128.EncodeUint32(ins.Index2)...)
		case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
			out = append(out, 0x00)
		case wasm.OpcodeI32Const:
			out = append(out, leb128.EncodeInt32(ins.I32)...)
		case wasm.OpcodeI64Const:
			out = append(out, leb128.EncodeInt64(ins.I64)...)
		case wasm.OpcodeF32Const:
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(ins.F32))
			out = append(out, buf[:]...)
		case wasm.OpcodeF64Const:
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(ins.F64))
			out = append(out, buf[:]...)
		default:
			if isMemAccessOpcode(ins.Opcode) {
				out = append(out, encodeMemArg(ins.MemArg)...)
			}
		}
	}
	return out
}

func isMemAccessOpcode(op wasm.Opcode) bool {
	switch op {
	case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
		wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
		wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
		wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
		wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		return true
	}
	return false
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
