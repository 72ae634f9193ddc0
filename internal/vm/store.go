// Package vm is the runtime half of gowasm: a Store holding concrete
// instances materialised from a decoded *wasm.Module (store.go), and an
// interpreter executing Wasm functions against it (interpreter.go), per
// spec.md §4.2 and §4.3. The store is modelled as an arena of instances
// addressed by small integer indices (spec.md §9's "cyclic references"
// design note), so no pointer cycle arises: a function instance holds no
// reference to its containing module, which the interpreter reaches
// through Store.Module.
package vm

import (
	"fmt"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

const pageSize = 65536

// HostFunc is the signature of a host-supplied function: it receives the
// owning store (for memory/global access) and the popped parameters, and
// returns result values or a trap. Per spec.md §4.4, a host function
// reads/writes linear memory directly through the store handle.
type HostFunc func(s *Store, params []uint64) (results []uint64, err error)

// HostImport is one entry of the host-function table keyed by
// (module, name), supplied to Instantiate to satisfy the module's
// function imports (spec.md §4.2 step 5).
type HostImport struct {
	Module, Name string
	Type         wasm.FuncType
	Func         HostFunc
}

// FunctionInstance is either a Wasm function (Code != nil) or a host
// function (Host != nil), per spec.md §9's "host functions as a variant
// alongside Wasm functions" design note.
type FunctionInstance struct {
	Type wasm.FuncType
	Code *wasm.Code // nil for host functions
	Host HostFunc   // nil for Wasm functions
}

// TableInstance holds function references. A negative entry means null.
type TableInstance struct {
	Elements []int64 // index into Store.Functions, or -1
	Max      uint32
	HasMax   bool
}

// MemoryInstance is a growable byte vector in units of 64KiB pages.
type MemoryInstance struct {
	Bytes  []byte
	Max    uint32 // in pages
	HasMax bool
}

// PageCount returns the current size of the memory in 64KiB pages.
func (m *MemoryInstance) PageCount() uint32 {
	return uint32(len(m.Bytes) / pageSize)
}

// Grow appends n pages of zero bytes, subject to Max, returning the
// previous page count, or -1 if the request can't be satisfied
// (spec.md §4.3's memory.grow semantics).
func (m *MemoryInstance) Grow(n uint32) int32 {
	prev := m.PageCount()
	if m.HasMax && uint64(prev)+uint64(n) > uint64(m.Max) {
		return -1
	}
	// 2^32 bytes is the hard ceiling of a 32-bit address space.
	if uint64(prev)+uint64(n) > (1<<32)/pageSize {
		return -1
	}
	m.Bytes = append(m.Bytes, make([]byte, uint64(n)*pageSize)...)
	return int32(prev)
}

// GlobalInstance holds a mutable-or-not value. The raw uint64 is
// interpreted via Type, mirroring how Value is carried on the operand
// stack (spec.md §3: "Value ... bit-preserving").
type GlobalInstance struct {
	Value   uint64
	Type    api.ValueType
	Mutable bool
}

// Store is the mutable runtime materialisation of a Module (spec.md §3).
type Store struct {
	Functions []*FunctionInstance
	Tables    []*TableInstance
	Memories  []*MemoryInstance
	Globals   []*GlobalInstance
	Exports   map[string]wasm.Export

	Module *wasm.Module
}

// Instantiate builds a Store from a decoded Module, resolving its
// function imports against hostFuncs. It performs the six steps spec.md
// §4.2 names, with import resolution moved to the front: function
// imports first, then memories, globals, tables+elements, data and
// exports. The imported FunctionInstances therefore occupy the first
// NumImportedFunctions slots of the function index space, ahead of the
// module-defined functions, matching how the decoder's Module already
// numbers imports before module-defined entries.
func Instantiate(m *wasm.Module, hostFuncs []HostImport) (*Store, error) {
	s := &Store{Module: m, Exports: map[string]wasm.Export{}}

	// Step 5 (partially, for functions): resolve function imports first
	// since their store indices are the low end of the function index
	// space that globals/elements/code may reference via call/call_indirect.
	hostByKey := make(map[string]HostImport, len(hostFuncs))
	for _, h := range hostFuncs {
		hostByKey[h.Module+"\x00"+h.Name] = h
	}
	for _, imp := range m.ImportSection {
		if imp.Type != api.ExternTypeFunc {
			continue
		}
		if int(imp.DescFunc) >= len(m.TypeSection) {
			return nil, wasm.NewDecodeError(0, "import function type index out of range")
		}
		want := m.TypeSection[imp.DescFunc]
		h, ok := hostByKey[imp.Module+"\x00"+imp.Name]
		if !ok || !funcTypeEqual(h.Type, want) {
			return nil, wasm.NewUnlinkableImportError(imp.Module, imp.Name)
		}
		s.Functions = append(s.Functions, &FunctionInstance{Type: want, Host: h.Func})
	}
	for _, typeIdx := range m.FunctionSection {
		if int(typeIdx) >= len(m.TypeSection) {
			return nil, wasm.NewDecodeError(0, "function type index out of range")
		}
		s.Functions = append(s.Functions, &FunctionInstance{Type: m.TypeSection[typeIdx]})
	}
	// Wire code bodies onto the module-defined function instances (the
	// Code section and FunctionSection are parallel per the binary format).
	numImportedFuncs := m.NumImportedFunctions()
	for i, code := range m.CodeSection {
		idx := numImportedFuncs + i
		if idx >= len(s.Functions) {
			return nil, wasm.NewDecodeError(0, "code section longer than function section")
		}
		c := code
		s.Functions[idx].Code = &c
	}

	// Step 1: memories.
	for _, mt := range m.MemorySection {
		s.Memories = append(s.Memories, &MemoryInstance{
			Bytes:  make([]byte, uint64(mt.Limits.Min)*pageSize),
			Max:    mt.Limits.Max,
			HasMax: mt.Limits.HasMax,
		})
	}

	// Step 2: globals.
	for _, g := range m.GlobalSection {
		v, err := s.evalConstExpr(g.Init, g.Type.ValType)
		if err != nil {
			return nil, err
		}
		s.Globals = append(s.Globals, &GlobalInstance{Value: v, Type: g.Type.ValType, Mutable: g.Type.Mutable})
	}

	// Step 3: tables, then element segments.
	for _, tt := range m.TableSection {
		elems := make([]int64, tt.Limits.Min)
		for i := range elems {
			elems[i] = -1
		}
		s.Tables = append(s.Tables, &TableInstance{Elements: elems, Max: tt.Limits.Max, HasMax: tt.Limits.HasMax})
	}
	for _, el := range m.ElementSection {
		if int(el.TableIndex) >= len(s.Tables) {
			return nil, wasm.NewElementSegmentOverflowError(el.TableIndex, 0, uint32(len(el.Init)), 0)
		}
		off, err := s.evalConstExpr(el.Offset, api.ValueTypeI32)
		if err != nil {
			return nil, err
		}
		offset := uint32(off)
		tbl := s.Tables[el.TableIndex]
		if uint64(offset)+uint64(len(el.Init)) > uint64(len(tbl.Elements)) {
			return nil, wasm.NewElementSegmentOverflowError(el.TableIndex, offset, uint32(len(el.Init)), uint32(len(tbl.Elements)))
		}
		for i, fn := range el.Init {
			tbl.Elements[int(offset)+i] = int64(fn)
		}
	}

	// Step 4: data segments.
	for _, d := range m.DataSection {
		if int(d.MemoryIndex) >= len(s.Memories) {
			return nil, wasm.NewDataSegmentOverflowError(d.MemoryIndex, 0, uint32(len(d.Init)), 0)
		}
		off, err := s.evalConstExpr(d.Offset, api.ValueTypeI32)
		if err != nil {
			return nil, err
		}
		offset := uint32(off)
		mem := s.Memories[d.MemoryIndex]
		if uint64(offset)+uint64(len(d.Init)) > uint64(len(mem.Bytes)) {
			return nil, wasm.NewDataSegmentOverflowError(d.MemoryIndex, offset, uint32(len(d.Init)), uint32(len(mem.Bytes)))
		}
		copy(mem.Bytes[offset:], d.Init)
	}

	// Step 6: exports.
	for _, exp := range m.ExportSection {
		s.Exports[exp.Name] = exp
	}

	return s, nil
}

func funcTypeEqual(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// evalConstExpr evaluates a constant initialiser expression (spec.md
// §4.2): one of the four *.const opcodes, or global.get of a global
// already in s.Globals. Imported globals are not materialised, so the
// index is looked up among the module-defined globals built so far.
func (s *Store) evalConstExpr(e wasm.ConstantExpression, want api.ValueType) (uint64, error) {
	switch e.Opcode {
	case wasm.OpcodeI32Const:
		v, _, err := leb128.LoadInt32(e.Data)
		return api.EncodeI32(v), err
	case wasm.OpcodeI64Const:
		v, _, err := leb128.LoadInt64(e.Data)
		return api.EncodeI64(v), err
	case wasm.OpcodeF32Const:
		return uint64(leU32(e.Data)), nil
	case wasm.OpcodeF64Const:
		return leU64(e.Data), nil
	case wasm.OpcodeGlobalGet:
		if int(e.GlobalIndex) >= len(s.Globals) {
			return 0, fmt.Errorf("wasm: global.get in constant expression: index %d out of range", e.GlobalIndex)
		}
		return s.Globals[e.GlobalIndex].Value, nil
	default:
		return 0, fmt.Errorf("wasm: invalid constant expression opcode %#x", e.Opcode)
	}
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
