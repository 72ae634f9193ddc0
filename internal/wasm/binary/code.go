package binary

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

func (d *decoder) codeSection() ([]wasm.Code, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Code, count)
	for i := range out {
		size, err := d.u32()
		if err != nil {
			return nil, err
		}
		body := make([]byte, size)
		if _, err := io.ReadFull(d.r, body); err != nil {
			return nil, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
		}
		d.offset += uint64(size)

		sd := &decoder{r: bytes.NewReader(body), offset: d.offset - uint64(size)}
		locals, err := sd.localsVec()
		if err != nil {
			return nil, err
		}
		ins, err := sd.instructions()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.Code{LocalTypes: locals, Body: ins, BodyByteSize: uint64(size)}
	}
	return out, nil
}

func (d *decoder) localsVec() ([]api.ValueType, error) {
	groups, err := d.u32()
	if err != nil {
		return nil, err
	}
	var out []api.ValueType
	for i := uint32(0); i < groups; i++ {
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		vt, err := d.valueType()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < n; j++ {
			out = append(out, vt)
		}
	}
	return out, nil
}

func (d *decoder) blockType() (wasm.BlockType, error) {
	v, n, err := leb128.DecodeInt33AsInt64(d.r)
	d.offset += n
	if err != nil {
		return wasm.BlockType{}, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
	}
	if v == -64 {
		return wasm.BlockType{Kind: wasm.BlockTypeEmpty}, nil
	}
	if v < 0 {
		return wasm.BlockType{Kind: wasm.BlockTypeValue, ValType: byte(v & 0x7f)}, nil
	}
	return wasm.BlockType{Kind: wasm.BlockTypeFuncType, TypeIdx: wasm.Index(v)}, nil
}

func (d *decoder) memArg() (wasm.MemArg, error) {
	align, err := d.u32()
	if err != nil {
		return wasm.MemArg{}, err
	}
	offset, err := d.u32()
	if err != nil {
		return wasm.MemArg{}, err
	}
	return wasm.MemArg{Align: align, Offset: offset}, nil
}

// instructions decodes a function body's instruction stream, stopping at
// the depth-0 End that terminates the body (which it includes in the
// returned slice, per spec.md §4.1: "End ... retained in the decoded
// stream as sentinels"). It resolves each block/loop/if's matching
// Else/End in the same pass, using an explicit frame stack, so the
// interpreter never needs to rescan for a branch target (spec.md §9).
func (d *decoder) instructions() ([]wasm.Instruction, error) {
	var out []wasm.Instruction
	type frame struct {
		start  int
		opcode byte
	}
	var stack []frame

	for {
		idx := len(out)
		op, err := d.byte()
		if err != nil {
			return nil, err
		}
		ins := wasm.Instruction{Opcode: op}

		switch op {
		case wasm.OpcodeBlock, wasm.OpcodeLoop, wasm.OpcodeIf:
			bt, err := d.blockType()
			if err != nil {
				return nil, err
			}
			ins.Block = bt
			stack = append(stack, frame{start: idx, opcode: op})

		case wasm.OpcodeElse:
			if len(stack) == 0 || stack[len(stack)-1].opcode != wasm.OpcodeIf {
				return nil, wasm.NewDecodeError(d.offset-1, "else outside if")
			}
			out[stack[len(stack)-1].start].Else = wasm.Index(idx)

		case wasm.OpcodeEnd:
			if len(stack) == 0 {
				out = append(out, ins)
				return out, nil
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out[top.start].End = wasm.Index(idx)

		case wasm.OpcodeBr, wasm.OpcodeBrIf, wasm.OpcodeCall,
			wasm.OpcodeLocalGet, wasm.OpcodeLocalSet, wasm.OpcodeLocalTee,
			wasm.OpcodeGlobalGet, wasm.OpcodeGlobalSet:
			v, err := d.u32()
			if err != nil {
				return nil, err
			}
			ins.Index = v

		case wasm.OpcodeBrTable:
			n, err := d.u32()
			if err != nil {
				return nil, err
			}
			labels := make([]wasm.Index, n+1)
			for i := range labels[:n] {
				if labels[i], err = d.u32(); err != nil {
					return nil, err
				}
			}
			if labels[n], err = d.u32(); err != nil { // default label
				return nil, err
			}
			ins.Labels = labels

		case wasm.OpcodeCallIndirect:
			typeIdx, err := d.u32()
			if err != nil {
				return nil, err
			}
			tableIdx, err := d.u32() // reserved, 0 in the MVP
			if err != nil {
				return nil, err
			}
			ins.Index = typeIdx
			ins.Index2 = tableIdx

		case wasm.OpcodeMemorySize, wasm.OpcodeMemoryGrow:
			if _, err := d.byte(); err != nil { // reserved
				return nil, err
			}

		case wasm.OpcodeI32Load, wasm.OpcodeI64Load, wasm.OpcodeF32Load, wasm.OpcodeF64Load,
			wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U,
			wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U,
			wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U,
			wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
			wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
			ma, err := d.memArg()
			if err != nil {
				return nil, err
			}
			ins.MemArg = ma

		case wasm.OpcodeI32Const:
			v, n, err := leb128.DecodeInt32(d.r)
			d.offset += n
			if err != nil {
				return nil, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
			}
			ins.I32 = v

		case wasm.OpcodeI64Const:
			v, n, err := leb128.DecodeInt64(d.r)
			d.offset += n
			if err != nil {
				return nil, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
			}
			ins.I64 = v

		case wasm.OpcodeF32Const:
			var buf [4]byte
			if _, err := io.ReadFull(d.r, buf[:]); err != nil {
				return nil, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
			}
			d.offset += 4
			ins.F32 = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))

		case wasm.OpcodeF64Const:
			var buf [8]byte
			if _, err := io.ReadFull(d.r, buf[:]); err != nil {
				return nil, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
			}
			d.offset += 8
			ins.F64 = math.Float64frombits(binary.LittleEndian.Uint64(buf[:]))

		case wasm.OpcodeUnreachable, wasm.OpcodeNop, wasm.OpcodeReturn,
			wasm.OpcodeDrop, wasm.OpcodeSelect,
			wasm.OpcodeI32Eqz, wasm.OpcodeI32Eq, wasm.OpcodeI32Ne,
			wasm.OpcodeI32LtS, wasm.OpcodeI32LtU, wasm.OpcodeI32GtS, wasm.OpcodeI32GtU,
			wasm.OpcodeI32LeS, wasm.OpcodeI32LeU, wasm.OpcodeI32GeS, wasm.OpcodeI32GeU,
			wasm.OpcodeI64Eqz, wasm.OpcodeI64Eq, wasm.OpcodeI64Ne,
			wasm.OpcodeI64LtS, wasm.OpcodeI64LtU, wasm.OpcodeI64GtS, wasm.OpcodeI64GtU,
			wasm.OpcodeI64LeS, wasm.OpcodeI64LeU, wasm.OpcodeI64GeS, wasm.OpcodeI64GeU,
			wasm.OpcodeF32Eq, wasm.OpcodeF32Ne, wasm.OpcodeF32Lt, wasm.OpcodeF32Gt, wasm.OpcodeF32Le, wasm.OpcodeF32Ge,
			wasm.OpcodeF64Eq, wasm.OpcodeF64Ne, wasm.OpcodeF64Lt, wasm.OpcodeF64Gt, wasm.OpcodeF64Le, wasm.OpcodeF64Ge,
			wasm.OpcodeI32Clz, wasm.OpcodeI32Ctz, wasm.OpcodeI32Popcnt,
			wasm.OpcodeI32Add, wasm.OpcodeI32Sub, wasm.OpcodeI32Mul, wasm.OpcodeI32DivS, wasm.OpcodeI32DivU,
			wasm.OpcodeI32RemS, wasm.OpcodeI32RemU, wasm.OpcodeI32And, wasm.OpcodeI32Or, wasm.OpcodeI32Xor,
			wasm.OpcodeI32Shl, wasm.OpcodeI32ShrS, wasm.OpcodeI32ShrU, wasm.OpcodeI32Rotl, wasm.OpcodeI32Rotr,
			wasm.OpcodeI64Clz, wasm.OpcodeI64Ctz, wasm.OpcodeI64Popcnt,
			wasm.OpcodeI64Add, wasm.OpcodeI64Sub, wasm.OpcodeI64Mul, wasm.OpcodeI64DivS, wasm.OpcodeI64DivU,
			wasm.OpcodeI64RemS, wasm.OpcodeI64RemU, wasm.OpcodeI64And, wasm.OpcodeI64Or, wasm.OpcodeI64Xor,
			wasm.OpcodeI64Shl, wasm.OpcodeI64ShrS, wasm.OpcodeI64ShrU, wasm.OpcodeI64Rotl, wasm.OpcodeI64Rotr,
			wasm.OpcodeF32Abs, wasm.OpcodeF32Neg, wasm.OpcodeF32Ceil, wasm.OpcodeF32Floor, wasm.OpcodeF32Trunc,
			wasm.OpcodeF32Nearest, wasm.OpcodeF32Sqrt, wasm.OpcodeF32Add, wasm.OpcodeF32Sub, wasm.OpcodeF32Mul,
			wasm.OpcodeF32Div, wasm.OpcodeF32Min, wasm.OpcodeF32Max, wasm.OpcodeF32Copysign,
			wasm.OpcodeF64Abs, wasm.OpcodeF64Neg, wasm.OpcodeF64Ceil, wasm.OpcodeF64Floor, wasm.OpcodeF64Trunc,
			wasm.OpcodeF64Nearest, wasm.OpcodeF64Sqrt, wasm.OpcodeF64Add, wasm.OpcodeF64Sub, wasm.OpcodeF64Mul,
			wasm.OpcodeF64Div, wasm.OpcodeF64Min, wasm.OpcodeF64Max, wasm.OpcodeF64Copysign,
			wasm.OpcodeI32WrapI64, wasm.OpcodeI32TruncF32S, wasm.OpcodeI32TruncF32U, wasm.OpcodeI32TruncF64S, wasm.OpcodeI32TruncF64U,
			wasm.OpcodeI64ExtendI32S, wasm.OpcodeI64ExtendI32U, wasm.OpcodeI64TruncF32S, wasm.OpcodeI64TruncF32U,
			wasm.OpcodeI64TruncF64S, wasm.OpcodeI64TruncF64U,
			wasm.OpcodeF32ConvertI32S, wasm.OpcodeF32ConvertI32U, wasm.OpcodeF32ConvertI64S, wasm.OpcodeF32ConvertI64U, wasm.OpcodeF32DemoteF64,
			wasm.OpcodeF64ConvertI32S, wasm.OpcodeF64ConvertI32U, wasm.OpcodeF64ConvertI64S, wasm.OpcodeF64ConvertI64U, wasm.OpcodeF64PromoteF32,
			wasm.OpcodeI32ReinterpretF32, wasm.OpcodeI64ReinterpretF64, wasm.OpcodeF32ReinterpretI32, wasm.OpcodeF64ReinterpretI64,
			wasm.OpcodeI32Extend8S, wasm.OpcodeI32Extend16S, wasm.OpcodeI64Extend8S, wasm.OpcodeI64Extend16S, wasm.OpcodeI64Extend32S:
			// No immediates.

		default:
			return nil, wasm.NewDecodeError(d.offset-1, wasm.ErrUnknownOpcode)
		}

		out = append(out, ins)
	}
}
