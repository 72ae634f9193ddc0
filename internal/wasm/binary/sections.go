package binary

import (
	"io"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

const functionTypeTag = 0x60

func (d *decoder) typeSection() ([]wasm.FuncType, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	types := make([]wasm.FuncType, count)
	for i := range types {
		tag, err := d.byte()
		if err != nil {
			return nil, err
		}
		if tag != functionTypeTag {
			return nil, wasm.NewDecodeError(d.offset-1, "malformed function type")
		}
		params, err := d.valueTypeVec()
		if err != nil {
			return nil, err
		}
		results, err := d.valueTypeVec()
		if err != nil {
			return nil, err
		}
		types[i] = wasm.FuncType{Params: params, Results: results}
	}
	return types, nil
}

func (d *decoder) valueTypeVec() ([]api.ValueType, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // same as localsVec: an empty vector decodes to nil
	}
	out := make([]api.ValueType, n)
	for i := range out {
		if out[i], err = d.valueType(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) importSection() ([]wasm.Import, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	imports := make([]wasm.Import, count)
	for i := range imports {
		mod, err := d.name()
		if err != nil {
			return nil, err
		}
		field, err := d.name()
		if err != nil {
			return nil, err
		}
		kind, err := d.byte()
		if err != nil {
			return nil, err
		}
		imp := wasm.Import{Module: mod, Name: field, Type: kind}
		switch kind {
		case api.ExternTypeFunc:
			if imp.DescFunc, err = d.u32(); err != nil {
				return nil, err
			}
		case api.ExternTypeTable:
			if _, err := d.byte(); err != nil { // elem type, always funcref (0x70)
				return nil, err
			}
			if imp.DescTable.Limits, err = d.limits(); err != nil {
				return nil, err
			}
		case api.ExternTypeMemory:
			if imp.DescMem.Limits, err = d.limits(); err != nil {
				return nil, err
			}
		case api.ExternTypeGlobal:
			vt, err := d.valueType()
			if err != nil {
				return nil, err
			}
			mutFlag, err := d.byte()
			if err != nil {
				return nil, err
			}
			imp.DescGlobal = wasm.GlobalType{ValType: vt, Mutable: mutFlag == 1}
		default:
			return nil, wasm.NewDecodeError(d.offset-1, "malformed import kind")
		}
		imports[i] = imp
	}
	return imports, nil
}

func (d *decoder) functionSection() ([]wasm.Index, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Index, count)
	for i := range out {
		if out[i], err = d.u32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) tableSection() ([]wasm.TableType, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.TableType, count)
	for i := range out {
		if _, err := d.byte(); err != nil { // elem type
			return nil, err
		}
		lim, err := d.limits()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.TableType{Limits: lim}
	}
	return out, nil
}

func (d *decoder) memorySection() ([]wasm.MemoryType, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.MemoryType, count)
	for i := range out {
		lim, err := d.limits()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.MemoryType{Limits: lim}
	}
	return out, nil
}

func (d *decoder) globalSection() ([]wasm.Global, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Global, count)
	for i := range out {
		vt, err := d.valueType()
		if err != nil {
			return nil, err
		}
		mutFlag, err := d.byte()
		if err != nil {
			return nil, err
		}
		expr, err := d.constantExpression()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.Global{Type: wasm.GlobalType{ValType: vt, Mutable: mutFlag == 1}, Init: expr}
	}
	return out, nil
}

func (d *decoder) exportSection() ([]wasm.Export, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.Export, count)
	for i := range out {
		nm, err := d.name()
		if err != nil {
			return nil, err
		}
		kind, err := d.byte()
		if err != nil {
			return nil, err
		}
		idx, err := d.u32()
		if err != nil {
			return nil, err
		}
		out[i] = wasm.Export{Name: nm, Type: kind, Index: idx}
	}
	return out, nil
}

func (d *decoder) elementSection() ([]wasm.ElementSegment, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ElementSegment, count)
	for i := range out {
		tableIdx, err := d.u32()
		if err != nil {
			return nil, err
		}
		offset, err := d.constantExpression()
		if err != nil {
			return nil, err
		}
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		init := make([]wasm.Index, n)
		for j := range init {
			if init[j], err = d.u32(); err != nil {
				return nil, err
			}
		}
		out[i] = wasm.ElementSegment{TableIndex: tableIdx, Offset: offset, Init: init}
	}
	return out, nil
}

func (d *decoder) dataSection() ([]wasm.DataSegment, error) {
	count, err := d.u32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.DataSegment, count)
	for i := range out {
		memIdx, err := d.u32()
		if err != nil {
			return nil, err
		}
		offset, err := d.constantExpression()
		if err != nil {
			return nil, err
		}
		n, err := d.u32()
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return nil, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
		}
		d.offset += uint64(n)
		out[i] = wasm.DataSegment{MemoryIndex: memIdx, Offset: offset, Init: buf}
	}
	return out, nil
}

// constantExpression decodes a single-instruction initialiser expression
// terminated by End, per spec.md §4.2: exactly one of i32.const/i64.const/
// f32.const/f64.const/global.get.
func (d *decoder) constantExpression() (wasm.ConstantExpression, error) {
	op, err := d.byte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	var expr wasm.ConstantExpression
	expr.Opcode = op
	switch op {
	case wasm.OpcodeI32Const:
		v, n, err := leb128.DecodeInt32(d.r)
		d.offset += n
		if err != nil {
			return wasm.ConstantExpression{}, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
		}
		expr.Data = leb128.EncodeInt32(v)
	case wasm.OpcodeI64Const:
		v, n, err := leb128.DecodeInt64(d.r)
		d.offset += n
		if err != nil {
			return wasm.ConstantExpression{}, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
		}
		expr.Data = leb128.EncodeInt64(v)
	case wasm.OpcodeF32Const:
		var buf [4]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return wasm.ConstantExpression{}, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
		}
		d.offset += 4
		expr.Data = buf[:]
	case wasm.OpcodeF64Const:
		var buf [8]byte
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return wasm.ConstantExpression{}, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
		}
		d.offset += 8
		expr.Data = buf[:]
	case wasm.OpcodeGlobalGet:
		idx, err := d.u32()
		if err != nil {
			return wasm.ConstantExpression{}, err
		}
		expr.GlobalIndex = idx
	default:
		return wasm.ConstantExpression{}, wasm.NewDecodeError(d.offset-1, "invalid constant expression opcode")
	}
	end, err := d.byte()
	if err != nil {
		return wasm.ConstantExpression{}, err
	}
	if end != wasm.OpcodeEnd {
		return wasm.ConstantExpression{}, wasm.NewDecodeError(d.offset-1, "constant expression missing end")
	}
	return expr, nil
}
