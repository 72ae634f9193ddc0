package wasm

import "fmt"

// DecodeError is returned by the decoder (internal/wasm/binary) when a
// byte stream does not conform to the binary format. It names the byte
// offset of the first malformed byte, per spec.md §4.1's decoder
// contract.
type DecodeError struct {
	Offset uint64
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wasm: decode error at offset %d: %s", e.Offset, e.Reason)
}

// The decode error categories named in spec.md §4.1 and §7.
var (
	ErrMalformedHeader = "malformed header"
	ErrUnknownSection  = "unknown section"
	ErrTruncatedInput  = "truncated input"
	ErrBadLEB          = "bad LEB128"
	ErrUnknownOpcode   = "unknown opcode"
	ErrBadValueType    = "bad value type"
)

// NewDecodeError builds a *DecodeError for one of the categories above.
func NewDecodeError(offset uint64, reason string) *DecodeError {
	return &DecodeError{Offset: offset, Reason: reason}
}

// InstantiateError is returned by store construction (internal/vm.Instantiate)
// when a module cannot be linked or its segments don't fit, per spec.md
// §4.2 and §7.
type InstantiateError struct {
	Reason string
}

func (e *InstantiateError) Error() string {
	return "wasm: instantiate error: " + e.Reason
}

// NewUnlinkableImportError reports a missing or type-mismatched import,
// spec.md §4.2 step 5.
func NewUnlinkableImportError(module, name string) *InstantiateError {
	return &InstantiateError{Reason: fmt.Sprintf("unlinkable import: %s.%s", module, name)}
}

// NewDataSegmentOverflowError reports a data segment that doesn't fit its
// target memory, spec.md §4.2 step 4.
func NewDataSegmentOverflowError(memIdx Index, offset, length, memSize uint32) *InstantiateError {
	return &InstantiateError{Reason: fmt.Sprintf(
		"data segment for memory %d at offset %d, length %d exceeds memory size %d",
		memIdx, offset, length, memSize)}
}

// NewElementSegmentOverflowError reports an element segment that doesn't
// fit its target table.
func NewElementSegmentOverflowError(tableIdx Index, offset, length, tableSize uint32) *InstantiateError {
	return &InstantiateError{Reason: fmt.Sprintf(
		"element segment for table %d at offset %d, length %d exceeds table size %d",
		tableIdx, offset, length, tableSize)}
}
