package vm

import (
	"encoding/binary"
	"fmt"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

// Interpreter owns the operand stack and the call-frame stack (spec.md
// §4.3) for a single Store. It is not safe for concurrent use (spec.md
// §5: "the entire core is synchronous").
type Interpreter struct {
	store    *Store
	stack    []uint64
	frames   []*frameState
	maxSteps uint64 // 0 means unbounded
}

// NewInterpreter returns an Interpreter bound to s with no step limit.
func NewInterpreter(s *Store) *Interpreter {
	return &Interpreter{store: s}
}

// NewInterpreterWithConfig returns an Interpreter bound to s, honouring
// cfg's step limit (spec.md §5's optional "host-imposed step/stack
// limit").
func NewInterpreterWithConfig(s *Store, cfg *RuntimeConfig) *Interpreter {
	return &Interpreter{store: s, maxSteps: cfg.MaxSteps()}
}

// InvokeAll looks up the export named name, validates that args match its
// parameter types in count, and runs it to completion, returning all of
// its results (spec.md §9's multi-value entry point, addressing the open
// question about `invoke`'s public single-value shape).
func (ip *Interpreter) InvokeAll(name string, args []uint64) ([]uint64, error) {
	exp, ok := ip.store.Exports[name]
	if !ok {
		return nil, fmt.Errorf("wasm: no export named %q", name)
	}
	if exp.Type != api.ExternTypeFunc {
		return nil, fmt.Errorf("wasm: export %q is not a function", name)
	}
	if int(exp.Index) >= len(ip.store.Functions) {
		return nil, newInternalError("exported function index out of range")
	}
	fn := ip.store.Functions[exp.Index]
	if len(args) != len(fn.Type.Params) {
		return nil, fmt.Errorf("wasm: %q expects %d argument(s), got %d", name, len(fn.Type.Params), len(args))
	}

	ip.stack = append(ip.stack[:0], args...)
	ip.frames = ip.frames[:0]
	if err := ip.invokeByIndex(int(exp.Index)); err != nil {
		return nil, err
	}
	if err := ip.run(); err != nil {
		return nil, err
	}
	results := append([]uint64(nil), ip.stack...)
	ip.stack = ip.stack[:0]
	return results, nil
}

// Invoke is the spec.md §4.3 entry point: it reports the top-of-stack
// result, or ok=false if the function returns no values.
func (ip *Interpreter) Invoke(name string, args []uint64) (result uint64, ok bool, err error) {
	results, err := ip.InvokeAll(name, args)
	if err != nil {
		return 0, false, err
	}
	if len(results) == 0 {
		return 0, false, nil
	}
	return results[len(results)-1], true, nil
}

// invokeByIndex pops the callee's parameters off the operand stack and
// either invokes a host function synchronously or pushes a new Wasm
// frame, per spec.md §4.3's call semantics. It is shared by the Call/
// CallIndirect opcodes and by the top-level Invoke/InvokeAll entry
// points, which prime the stack with their arguments beforehand.
func (ip *Interpreter) invokeByIndex(idx int) error {
	if idx < 0 || idx >= len(ip.store.Functions) {
		return newInternalError("call: function index out of range")
	}
	fn := ip.store.Functions[idx]
	n := len(fn.Type.Params)
	if len(ip.stack) < n {
		return newInternalError("call: operand stack underflow")
	}
	params := append([]uint64(nil), ip.stack[len(ip.stack)-n:]...)
	ip.stack = ip.stack[:len(ip.stack)-n]

	if fn.Host != nil {
		results, err := fn.Host(ip.store, params)
		if err != nil {
			return err
		}
		ip.stack = append(ip.stack, results...)
		return nil
	}

	locals := make([]uint64, len(fn.Code.LocalTypes)+n)
	copy(locals, params)
	ip.frames = append(ip.frames, &frameState{fn: fn, locals: locals, stackBase: len(ip.stack)})
	return nil
}

// popFrame unwinds the active frame: its result-arity operands are kept
// on top of the stack, trimmed down to the frame's recorded base, and
// the frame itself is dropped. This implements both a `return` opcode and
// falling off the depth-0 `end` (spec.md §4.3's frame state machine).
func (ip *Interpreter) popFrame() {
	f := ip.frames[len(ip.frames)-1]
	arity := len(f.fn.Type.Results)
	res := append([]uint64(nil), ip.stack[len(ip.stack)-arity:]...)
	ip.stack = ip.stack[:f.stackBase]
	ip.stack = append(ip.stack, res...)
	ip.frames = ip.frames[:len(ip.frames)-1]
}

// branch implements `br l`: it pops l+1 labels, keeping the top
// `arity(target)` operands and discarding the rest down to the target's
// recorded stack base, then resumes at the target's continuation point
// (spec.md §4.3, §8).
func (ip *Interpreter) branch(f *frameState, l uint32) {
	idx := len(f.labels) - 1 - int(l)
	target := f.labels[idx]
	kept := append([]uint64(nil), ip.stack[len(ip.stack)-target.arity:]...)
	ip.stack = ip.stack[:target.stackBase]
	ip.stack = append(ip.stack, kept...)
	f.labels = f.labels[:idx]
	f.pc = target.continuation
}

func (ip *Interpreter) blockTypeArities(bt wasm.BlockType) (params, results int) {
	switch bt.Kind {
	case wasm.BlockTypeEmpty:
		return 0, 0
	case wasm.BlockTypeValue:
		return 0, 1
	default:
		ft := ip.store.Module.TypeSection[bt.TypeIdx]
		return len(ft.Params), len(ft.Results)
	}
}

// run drives the dispatch loop until every frame pushed since the last
// Invoke/InvokeAll call (directly or transitively, via Call/CallIndirect)
// has returned. Wasm-to-Wasm calls push an explicit frame rather than
// recursing in Go, per spec.md §5's "iterative dispatch" guidance.
func (ip *Interpreter) run() error {
	var steps uint64
	for len(ip.frames) > 0 {
		if ip.maxSteps != 0 {
			steps++
			if steps > ip.maxSteps {
				return newInternalError("step limit exceeded")
			}
		}
		f := ip.frames[len(ip.frames)-1]
		if f.pc >= len(f.fn.Code.Body) {
			ip.popFrame()
			continue
		}
		ins := f.fn.Code.Body[f.pc]

		switch ins.Opcode {
		case wasm.OpcodeUnreachable:
			return ErrUnreachable
		case wasm.OpcodeNop:
			f.pc++

		case wasm.OpcodeBlock:
			params, results := ip.blockTypeArities(ins.Block)
			f.labels = append(f.labels, label{arity: results, stackBase: len(ip.stack) - params, continuation: int(ins.End) + 1})
			f.pc++
		case wasm.OpcodeLoop:
			params, _ := ip.blockTypeArities(ins.Block)
			f.labels = append(f.labels, label{arity: params, stackBase: len(ip.stack) - params, continuation: f.pc, isLoop: true})
			f.pc++
		case wasm.OpcodeIf:
			cond := ip.stack[len(ip.stack)-1]
			ip.stack = ip.stack[:len(ip.stack)-1]
			params, results := ip.blockTypeArities(ins.Block)
			f.labels = append(f.labels, label{arity: results, stackBase: len(ip.stack) - params, continuation: int(ins.End) + 1})
			if cond != 0 {
				f.pc++
			} else if ins.Else != 0 {
				f.pc = int(ins.Else) + 1
			} else {
				f.labels = f.labels[:len(f.labels)-1]
				f.pc = int(ins.End) + 1
			}
		case wasm.OpcodeElse:
			// Reached by falling through the if-true branch: skip the
			// else-branch body and the matching End, popping the label
			// manually since End itself will never execute. The if label's
			// continuation is the instruction just past that End.
			l := f.labels[len(f.labels)-1]
			f.labels = f.labels[:len(f.labels)-1]
			f.pc = l.continuation
		case wasm.OpcodeEnd:
			if len(f.labels) == 0 {
				ip.popFrame()
				continue
			}
			f.labels = f.labels[:len(f.labels)-1]
			f.pc++

		case wasm.OpcodeBr:
			ip.branch(f, ins.Index)
		case wasm.OpcodeBrIf:
			cond := ip.stack[len(ip.stack)-1]
			ip.stack = ip.stack[:len(ip.stack)-1]
			if cond != 0 {
				ip.branch(f, ins.Index)
			} else {
				f.pc++
			}
		case wasm.OpcodeBrTable:
			sel := uint32(ip.stack[len(ip.stack)-1])
			ip.stack = ip.stack[:len(ip.stack)-1]
			last := len(ins.Labels) - 1
			if int(sel) < last {
				ip.branch(f, ins.Labels[sel])
			} else {
				ip.branch(f, ins.Labels[last])
			}
		case wasm.OpcodeReturn:
			ip.popFrame()
		case wasm.OpcodeCall:
			f.pc++
			if err := ip.invokeByIndex(int(ins.Index)); err != nil {
				return err
			}
		case wasm.OpcodeCallIndirect:
			f.pc++
			if err := ip.callIndirect(ins); err != nil {
				return err
			}

		case wasm.OpcodeDrop:
			ip.stack = ip.stack[:len(ip.stack)-1]
			f.pc++
		case wasm.OpcodeSelect:
			cond := ip.stack[len(ip.stack)-1]
			v2 := ip.stack[len(ip.stack)-2]
			v1 := ip.stack[len(ip.stack)-3]
			ip.stack = ip.stack[:len(ip.stack)-3]
			if cond != 0 {
				ip.stack = append(ip.stack, v1)
			} else {
				ip.stack = append(ip.stack, v2)
			}
			f.pc++

		case wasm.OpcodeLocalGet:
			ip.stack = append(ip.stack, f.locals[ins.Index])
			f.pc++
		case wasm.OpcodeLocalSet:
			f.locals[ins.Index] = ip.stack[len(ip.stack)-1]
			ip.stack = ip.stack[:len(ip.stack)-1]
			f.pc++
		case wasm.OpcodeLocalTee:
			f.locals[ins.Index] = ip.stack[len(ip.stack)-1]
			f.pc++
		case wasm.OpcodeGlobalGet:
			ip.stack = append(ip.stack, ip.store.Globals[ins.Index].Value)
			f.pc++
		case wasm.OpcodeGlobalSet:
			ip.store.Globals[ins.Index].Value = ip.stack[len(ip.stack)-1]
			ip.stack = ip.stack[:len(ip.stack)-1]
			f.pc++

		case wasm.OpcodeI32Const:
			ip.stack = append(ip.stack, api.EncodeI32(ins.I32))
			f.pc++
		case wasm.OpcodeI64Const:
			ip.stack = append(ip.stack, api.EncodeI64(ins.I64))
			f.pc++
		case wasm.OpcodeF32Const:
			ip.stack = append(ip.stack, api.EncodeF32(ins.F32))
			f.pc++
		case wasm.OpcodeF64Const:
			ip.stack = append(ip.stack, api.EncodeF64(ins.F64))
			f.pc++

		case wasm.OpcodeMemorySize:
			ip.stack = append(ip.stack, uint64(uint32(ip.store.Memories[0].PageCount())))
			f.pc++
		case wasm.OpcodeMemoryGrow:
			n := uint32(ip.stack[len(ip.stack)-1])
			ip.stack[len(ip.stack)-1] = uint64(uint32(ip.store.Memories[0].Grow(n)))
			f.pc++

		default:
			if isMemAccessOpcode(ins.Opcode) {
				if err := ip.execMemOp(ins); err != nil {
					return err
				}
				f.pc++
				continue
			}
			if err := ip.execNumeric(ins.Opcode); err != nil {
				return err
			}
			f.pc++
		}
	}
	return nil
}

func (ip *Interpreter) callIndirect(ins wasm.Instruction) error {
	idx := int(ins.Index2)
	if idx >= len(ip.store.Tables) {
		return newInternalError("call_indirect: table index out of range")
	}
	tbl := ip.store.Tables[idx]
	elemIdx := int32(ip.stack[len(ip.stack)-1])
	ip.stack = ip.stack[:len(ip.stack)-1]
	if elemIdx < 0 || int(elemIdx) >= len(tbl.Elements) {
		return ErrUndefinedElement
	}
	funcIdx := tbl.Elements[elemIdx]
	if funcIdx < 0 {
		return ErrUndefinedElement
	}
	if int(funcIdx) >= len(ip.store.Functions) {
		return newInternalError("call_indirect: resolved function index out of range")
	}
	fn := ip.store.Functions[funcIdx]
	want := ip.store.Module.TypeSection[ins.Index]
	if !funcTypeEqual(fn.Type, want) {
		return ErrIndirectCallMismatch
	}
	return ip.invokeByIndex(int(funcIdx))
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

func (ip *Interpreter) execMemOp(ins wasm.Instruction) error {
	mem := ip.store.Memories[0]

	switch ins.Opcode {
	case wasm.OpcodeI32Store, wasm.OpcodeI64Store, wasm.OpcodeF32Store, wasm.OpcodeF64Store,
		wasm.OpcodeI32Store8, wasm.OpcodeI32Store16, wasm.OpcodeI64Store8, wasm.OpcodeI64Store16, wasm.OpcodeI64Store32:
		v := ip.stack[len(ip.stack)-1]
		base := uint32(ip.stack[len(ip.stack)-2])
		ip.stack = ip.stack[:len(ip.stack)-2]
		var width uint32
		switch ins.Opcode {
		case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
			width = 1
		case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
			width = 2
		case wasm.OpcodeI32Store, wasm.OpcodeF32Store, wasm.OpcodeI64Store32:
			width = 4
		default:
			width = 8
		}
		eff, err := effectiveAddress(mem, base, ins.MemArg.Offset, width)
		if err != nil {
			return err
		}
		switch ins.Opcode {
		case wasm.OpcodeI32Store8, wasm.OpcodeI64Store8:
			mem.Bytes[eff] = byte(v)
		case wasm.OpcodeI32Store16, wasm.OpcodeI64Store16:
			binary.LittleEndian.PutUint16(mem.Bytes[eff:], uint16(v))
		case wasm.OpcodeI32Store, wasm.OpcodeF32Store, wasm.OpcodeI64Store32:
			binary.LittleEndian.PutUint32(mem.Bytes[eff:], uint32(v))
		default:
			binary.LittleEndian.PutUint64(mem.Bytes[eff:], v)
		}
		return nil

	default: // load family
		base := uint32(ip.stack[len(ip.stack)-1])
		var width uint32
		switch ins.Opcode {
		case wasm.OpcodeI32Load8S, wasm.OpcodeI32Load8U, wasm.OpcodeI64Load8S, wasm.OpcodeI64Load8U:
			width = 1
		case wasm.OpcodeI32Load16S, wasm.OpcodeI32Load16U, wasm.OpcodeI64Load16S, wasm.OpcodeI64Load16U:
			width = 2
		case wasm.OpcodeI32Load, wasm.OpcodeF32Load, wasm.OpcodeI64Load32S, wasm.OpcodeI64Load32U:
			width = 4
		default:
			width = 8
		}
		eff, err := effectiveAddress(mem, base, ins.MemArg.Offset, width)
		if err != nil {
			return err
		}
		var v uint64
		switch ins.Opcode {
		case wasm.OpcodeI32Load8S:
			v = uint64(api.EncodeI32(int32(int8(mem.Bytes[eff]))))
		case wasm.OpcodeI32Load8U:
			v = uint64(mem.Bytes[eff])
		case wasm.OpcodeI32Load16S:
			v = uint64(api.EncodeI32(int32(int16(binary.LittleEndian.Uint16(mem.Bytes[eff:])))))
		case wasm.OpcodeI32Load16U:
			v = uint64(binary.LittleEndian.Uint16(mem.Bytes[eff:]))
		case wasm.OpcodeI32Load, wasm.OpcodeF32Load:
			v = uint64(binary.LittleEndian.Uint32(mem.Bytes[eff:]))
		case wasm.OpcodeI64Load8S:
			v = uint64(int64(int8(mem.Bytes[eff])))
		case wasm.OpcodeI64Load8U:
			v = uint64(mem.Bytes[eff])
		case wasm.OpcodeI64Load16S:
			v = uint64(int64(int16(binary.LittleEndian.Uint16(mem.Bytes[eff:]))))
		case wasm.OpcodeI64Load16U:
			v = uint64(binary.LittleEndian.Uint16(mem.Bytes[eff:]))
		case wasm.OpcodeI64Load32S:
			v = uint64(int64(int32(binary.LittleEndian.Uint32(mem.Bytes[eff:]))))
		case wasm.OpcodeI64Load32U:
			v = uint64(binary.LittleEndian.Uint32(mem.Bytes[eff:]))
		default: // I64Load, F64Load
			v = binary.LittleEndian.Uint64(mem.Bytes[eff:])
		}
		ip.stack[len(ip.stack)-1] = v
		return nil
	}
}

// effectiveAddress computes base+offset and checks it against the memory
// bound, per spec.md §4.3's "Access traps with `out of bounds memory
// access` iff `effective + width > |bytes|`". The addition is carried
// out in 64-bit arithmetic so that a base/offset pair that would wrap a
// 32-bit address traps instead of aliasing.
func effectiveAddress(mem *MemoryInstance, base, offset, width uint32) (uint64, error) {
	eff := uint64(base) + uint64(offset)
	if eff+uint64(width) > uint64(len(mem.Bytes)) {
		return 0, ErrOutOfBoundsMemory
	}
	return eff, nil
}
