// Package wasm holds the in-memory representation of a decoded module: the
// section contents, the instruction set and the errors the decoder and
// instantiation step can produce. It has no knowledge of how bytes become
// this representation (that's internal/wasm/binary) nor of how it executes
// (that's internal/vm).
package wasm

import "github.com/akiomik-go/gowasm/api"

// Index is a zero-based index into one of a Module's index spaces (types,
// functions, tables, memories, globals).
type Index = uint32

// SectionID identifies one of the twelve known module sections (ids 0
// through 11, custom included).
type SectionID = byte

const (
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
)

// FuncType is a function signature: a sequence of parameter types followed
// by a sequence of result types.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Limits bounds a table's or memory's size. Max is absent when HasMax is
// false.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// TableType declares an element type (always funcref in the MVP) and a size
// limit.
type TableType struct {
	Limits Limits
}

// MemoryType declares a size limit in units of 64KiB pages.
type MemoryType struct {
	Limits Limits
}

// GlobalType declares a global's value type and mutability.
type GlobalType struct {
	ValType api.ValueType
	Mutable bool
}

// ConstantExpression is an initialiser expression: exactly one of
// i32.const/i64.const/f32.const/f64.const/global.get, terminated by End.
// Only these five opcodes are legal here (spec.md §4.2).
type ConstantExpression struct {
	Opcode Opcode
	// Data holds the LEB128/float-encoded immediate bytes (for *.const) or
	// nothing (for global.get, which uses GlobalIndex instead).
	Data        []byte
	GlobalIndex Index
}

// Import describes a single entry of the import section. Exactly one of
// the typed fields is meaningful, selected by Type.
type Import struct {
	Module, Name string
	Type         api.ExternType
	DescFunc     Index
	DescTable    TableType
	DescMem      MemoryType
	DescGlobal   GlobalType
}

// Export maps a name to an entity in one of the store's index spaces.
type Export struct {
	Name  string
	Type  api.ExternType
	Index Index
}

// Code is the decoded body of a single function: its locals (grouped by
// declared run, expanded to one ValueType per local by the decoder for
// simplicity) and its instruction stream.
type Code struct {
	LocalTypes   []api.ValueType
	Body         []Instruction
	BodyByteSize uint64
}

// ElementSegment initialises a range of a table with function indices.
type ElementSegment struct {
	TableIndex Index
	Offset     ConstantExpression
	Init       []Index
}

// DataSegment initialises a range of a memory with raw bytes.
type DataSegment struct {
	MemoryIndex Index
	Offset      ConstantExpression
	Init        []byte
}

// Module is the immutable result of decoding a binary module. Index spaces
// for functions, tables, memories and globals are logically the
// concatenation of imported entries (if any) followed by module-defined
// ones; gowasm's narrowed core (spec.md's out-of-scope list excludes
// imports across modules) only ever populates function imports used to
// satisfy the WASI host boundary.
type Module struct {
	TypeSection     []FuncType
	ImportSection   []Import
	FunctionSection []Index // index into TypeSection, one per module-defined function
	TableSection    []TableType
	MemorySection   []MemoryType
	GlobalSection   []Global
	ExportSection   []Export
	StartSection    *Index
	ElementSection  []ElementSegment
	CodeSection     []Code
	DataSection     []DataSegment
}

// Global pairs a GlobalType with its initialiser expression.
type Global struct {
	Type GlobalType
	Init ConstantExpression
}

// NumImportedFunctions returns how many of the module's function import
// entries are functions (as opposed to tables/memories/globals).
func (m *Module) NumImportedFunctions() int {
	n := 0
	for _, i := range m.ImportSection {
		if i.Type == api.ExternTypeFunc {
			n++
		}
	}
	return n
}

// TypeOfFunction returns the FuncType of the funcIdx-th function in the
// module's function index space (imports then module-defined), or nil if
// funcIdx is out of range.
func (m *Module) TypeOfFunction(funcIdx Index) *FuncType {
	imported := Index(0)
	for _, imp := range m.ImportSection {
		if imp.Type != api.ExternTypeFunc {
			continue
		}
		if imported == funcIdx {
			if int(imp.DescFunc) >= len(m.TypeSection) {
				return nil
			}
			t := m.TypeSection[imp.DescFunc]
			return &t
		}
		imported++
	}
	defIdx := funcIdx - imported
	if int(defIdx) >= len(m.FunctionSection) {
		return nil
	}
	typeIdx := m.FunctionSection[defIdx]
	if int(typeIdx) >= len(m.TypeSection) {
		return nil
	}
	t := m.TypeSection[typeIdx]
	return &t
}
