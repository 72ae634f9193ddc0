// Package wasi implements the narrow WASI host-function slice spec.md
// §4.4 names (fd_write, fd_read) plus proc_exit (SPEC_FULL.md's
// supplemental features), grounded on the teacher's
// imports/wasi_snapshot_preview1/fs.go fdWriteFn/fdReadFn pair: an iovec
// loop over linear memory reporting a WASI errno.
package wasi

import (
	"encoding/binary"
	"io"

	"github.com/akiomik-go/gowasm/api"
	"github.com/akiomik-go/gowasm/internal/vm"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

// ModuleName is the import module name guest programs use for this
// slice, per the WASI snapshot-preview1 convention.
const ModuleName = "wasi_snapshot_preview1"

// Errno mirrors the small subset of WASI's errno space this slice needs.
type Errno = uint32

// The errno values this package can return; numbering matches the
// upstream WASI snapshot (see the teacher's errno.go).
const (
	ErrnoSuccess Errno = 0
	ErrnoBadf    Errno = 8
	ErrnoFault   Errno = 21
	ErrnoIo      Errno = 29
)

// FileTable narrows the WASI filesystem capability down to the three
// standard streams plus a small preopened read-only file list, per
// SPEC_FULL.md's "fd_read alongside fd_write ... narrowed to stdin/
// stdout/stderr and a small preopened read-only file table" supplemental
// feature. File descriptors 3+ index PreopenedFiles in order.
type FileTable struct {
	Stdin          io.Reader
	Stdout, Stderr io.Writer
	PreopenedFiles []io.Reader
}

func (t *FileTable) writer(fd uint32) io.Writer {
	switch fd {
	case 1:
		return t.Stdout
	case 2:
		return t.Stderr
	default:
		return nil
	}
}

func (t *FileTable) reader(fd uint32) io.Reader {
	switch {
	case fd == 0:
		return t.Stdin
	case fd >= 3 && int(fd-3) < len(t.PreopenedFiles):
		return t.PreopenedFiles[fd-3]
	default:
		return nil
	}
}

var i32 = api.ValueTypeI32

// HostImports builds the vm.HostImport table for this slice, bound to t,
// for passing to vm.Instantiate.
func HostImports(t *FileTable) []vm.HostImport {
	return []vm.HostImport{
		{
			Module: ModuleName, Name: "fd_write",
			Type: wasm.FuncType{Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}},
			Func: func(s *vm.Store, params []uint64) ([]uint64, error) { return fdWrite(t, s, params) },
		},
		{
			Module: ModuleName, Name: "fd_read",
			Type: wasm.FuncType{Params: []api.ValueType{i32, i32, i32, i32}, Results: []api.ValueType{i32}},
			Func: func(s *vm.Store, params []uint64) ([]uint64, error) { return fdRead(t, s, params) },
		},
		{
			Module: ModuleName, Name: "proc_exit",
			Type: wasm.FuncType{Params: []api.ValueType{i32}},
			Func: procExit,
		},
	}
}

// fdWrite implements fd_write(fd, iovs, iovs_len, nwritten_ptr) -> errno
// (spec.md §4.4, §8 scenario 6), writing each iovec's bytes to the
// stream named by fd and storing the total byte count at nwritten_ptr.
func fdWrite(t *FileTable, s *vm.Store, params []uint64) ([]uint64, error) {
	fd := uint32(params[0])
	iovsPtr := uint32(params[1])
	iovsLen := uint32(params[2])
	resultPtr := uint32(params[3])

	w := t.writer(fd)
	if w == nil {
		return []uint64{uint64(ErrnoBadf)}, nil
	}
	mem := s.Memories[0].Bytes

	var nwritten uint32
	for i := uint32(0); i < iovsLen; i++ {
		iov := uint64(iovsPtr) + uint64(i)*8
		if iov+8 > uint64(len(mem)) {
			return []uint64{uint64(ErrnoFault)}, nil
		}
		offset := binary.LittleEndian.Uint32(mem[iov:])
		length := binary.LittleEndian.Uint32(mem[iov+4:])
		if uint64(offset)+uint64(length) > uint64(len(mem)) {
			return []uint64{uint64(ErrnoFault)}, nil
		}
		n, err := w.Write(mem[offset : offset+length])
		if err != nil {
			return []uint64{uint64(ErrnoIo)}, nil
		}
		nwritten += uint32(n)
	}
	if uint64(resultPtr)+4 > uint64(len(mem)) {
		return []uint64{uint64(ErrnoFault)}, nil
	}
	binary.LittleEndian.PutUint32(mem[resultPtr:], nwritten)
	return []uint64{uint64(ErrnoSuccess)}, nil
}

// fdRead implements fd_read(fd, iovs, iovs_len, nread_ptr) -> errno, the
// read-side counterpart spec.md §4.4 names alongside fd_write.
func fdRead(t *FileTable, s *vm.Store, params []uint64) ([]uint64, error) {
	fd := uint32(params[0])
	iovsPtr := uint32(params[1])
	iovsLen := uint32(params[2])
	resultPtr := uint32(params[3])

	r := t.reader(fd)
	if r == nil {
		return []uint64{uint64(ErrnoBadf)}, nil
	}
	mem := s.Memories[0].Bytes

	var nread uint32
	for i := uint32(0); i < iovsLen; i++ {
		iov := uint64(iovsPtr) + uint64(i)*8
		if iov+8 > uint64(len(mem)) {
			return []uint64{uint64(ErrnoFault)}, nil
		}
		offset := binary.LittleEndian.Uint32(mem[iov:])
		length := binary.LittleEndian.Uint32(mem[iov+4:])
		if uint64(offset)+uint64(length) > uint64(len(mem)) {
			return []uint64{uint64(ErrnoFault)}, nil
		}
		n, err := r.Read(mem[offset : offset+length])
		nread += uint32(n)
		if err == io.EOF {
			break
		}
		if err != nil {
			return []uint64{uint64(ErrnoIo)}, nil
		}
		if uint32(n) < length {
			break
		}
	}
	if uint64(resultPtr)+4 > uint64(len(mem)) {
		return []uint64{uint64(ErrnoFault)}, nil
	}
	binary.LittleEndian.PutUint32(mem[resultPtr:], nread)
	return []uint64{uint64(ErrnoSuccess)}, nil
}

// procExit raises a *vm.ExitError carrying the guest's requested exit
// code, unwound by cmd/gowasm's doMain into a process exit status,
// mirroring the teacher's sys.ExitError propagation.
func procExit(_ *vm.Store, params []uint64) ([]uint64, error) {
	return nil, &vm.ExitError{Code: uint32(params[0])}
}
