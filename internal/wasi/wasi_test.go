package wasi

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/akiomik-go/gowasm/internal/vm"
)

func hostImport(t *testing.T, imports []vm.HostImport, name string) vm.HostFunc {
	t.Helper()
	for _, h := range imports {
		if h.Name == name {
			return h.Func
		}
	}
	t.Fatalf("no host import named %q", name)
	return nil
}

// TestFdWrite covers spec.md §8's WASI scenario: writing "hi\n" through
// fd_write(1, iovs, 1, nwritten_ptr) and observing it on stdout.
func TestFdWrite(t *testing.T) {
	var stdout bytes.Buffer
	imports := HostImports(&FileTable{Stdout: &stdout, Stderr: &stdout})
	fdWrite := hostImport(t, imports, "fd_write")

	mem := &vm.MemoryInstance{Bytes: make([]byte, 65536)}
	store := &vm.Store{Memories: []*vm.MemoryInstance{mem}}

	msg := "hi\n"
	copy(mem.Bytes[100:], msg)
	binary.LittleEndian.PutUint32(mem.Bytes[8:], 100)         // iovec[0].offset
	binary.LittleEndian.PutUint32(mem.Bytes[12:], uint32(len(msg))) // iovec[0].length

	results, err := fdWrite(store, []uint64{1, 8, 1, 200})
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64(ErrnoSuccess)}, results)
	require.Equal(t, msg, stdout.String())
	require.Equal(t, uint32(len(msg)), binary.LittleEndian.Uint32(mem.Bytes[200:]))
}

func TestFdWrite_badFd(t *testing.T) {
	imports := HostImports(&FileTable{Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	fdWrite := hostImport(t, imports, "fd_write")
	mem := &vm.MemoryInstance{Bytes: make([]byte, 65536)}
	store := &vm.Store{Memories: []*vm.MemoryInstance{mem}}

	results, err := fdWrite(store, []uint64{99, 0, 0, 0})
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64(ErrnoBadf)}, results)
}

func TestFdRead(t *testing.T) {
	stdin := strings.NewReader("hello")
	imports := HostImports(&FileTable{Stdin: stdin, Stdout: &bytes.Buffer{}, Stderr: &bytes.Buffer{}})
	fdRead := hostImport(t, imports, "fd_read")

	mem := &vm.MemoryInstance{Bytes: make([]byte, 65536)}
	store := &vm.Store{Memories: []*vm.MemoryInstance{mem}}

	binary.LittleEndian.PutUint32(mem.Bytes[8:], 100) // iovec[0].offset
	binary.LittleEndian.PutUint32(mem.Bytes[12:], 5)  // iovec[0].length

	results, err := fdRead(store, []uint64{0, 8, 1, 200})
	require.NoError(t, err)
	require.Equal(t, []uint64{uint64(ErrnoSuccess)}, results)
	require.Equal(t, "hello", string(mem.Bytes[100:105]))
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(mem.Bytes[200:]))
}

func TestProcExit(t *testing.T) {
	imports := HostImports(&FileTable{})
	procExit := hostImport(t, imports, "proc_exit")

	_, err := procExit(&vm.Store{}, []uint64{42})
	var exit *vm.ExitError
	require.ErrorAs(t, err, &exit)
	require.EqualValues(t, 42, exit.Code)
}
