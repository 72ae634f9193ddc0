// Package binary implements the Wasm MVP binary format: decoding a byte
// stream into an *wasm.Module (internal/wasm/binary/decoder.go and
// sections.go) and encoding one back (encoder.go), per spec.md §4.1.
package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/akiomik-go/gowasm/internal/leb128"
	"github.com/akiomik-go/gowasm/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

const version = uint32(1)

// DecodeModule reads a complete binary module from r, per spec.md §4.1:
// the 8-byte preamble followed by a sequence of (id, size, payload)
// sections. Unknown section ids fail; custom sections (id 0) are skipped.
func DecodeModule(r io.Reader) (*wasm.Module, error) {
	d := &decoder{r: r}
	if err := d.header(); err != nil {
		return nil, err
	}
	m := &wasm.Module{}
	var lastID wasm.SectionID = wasm.SectionIDCustom
	sawNonCustom := false
	for {
		id, ok, err := d.sectionID()
		if err != nil {
			return nil, err
		}
		if !ok {
			break // clean EOF between sections
		}
		size, n, err := leb128.DecodeUint32(d.r)
		d.offset += n
		if err != nil {
			return nil, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(d.r, payload); err != nil {
			return nil, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
		}
		d.offset += uint64(size)

		if id != wasm.SectionIDCustom {
			if sawNonCustom && id <= lastID {
				return nil, wasm.NewDecodeError(d.offset, "section out of order")
			}
			lastID = id
			sawNonCustom = true
		}

		sd := &decoder{r: bytes.NewReader(payload), offset: d.offset - uint64(size)}
		switch id {
		case wasm.SectionIDCustom:
			// Skipped: its contents (a name plus arbitrary bytes) carry no
			// semantics this core interprets.
		case wasm.SectionIDType:
			if m.TypeSection, err = sd.typeSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDImport:
			if m.ImportSection, err = sd.importSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDFunction:
			if m.FunctionSection, err = sd.functionSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDTable:
			if m.TableSection, err = sd.tableSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDMemory:
			if m.MemorySection, err = sd.memorySection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDGlobal:
			if m.GlobalSection, err = sd.globalSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDExport:
			if m.ExportSection, err = sd.exportSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDStart:
			idx, _, err := leb128.DecodeUint32(sd.r)
			if err != nil {
				return nil, wasm.NewDecodeError(sd.offset, wasm.ErrBadLEB)
			}
			m.StartSection = &idx
		case wasm.SectionIDElement:
			if m.ElementSection, err = sd.elementSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDCode:
			if m.CodeSection, err = sd.codeSection(); err != nil {
				return nil, err
			}
		case wasm.SectionIDData:
			if m.DataSection, err = sd.dataSection(); err != nil {
				return nil, err
			}
		default:
			return nil, wasm.NewDecodeError(d.offset, wasm.ErrUnknownSection)
		}
	}
	return m, nil
}

// decoder wraps a byte-oriented reader and tracks how many bytes have been
// consumed, for error reporting.
type decoder struct {
	r      io.Reader
	offset uint64
}

func (d *decoder) header() error {
	var buf [8]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return wasm.NewDecodeError(0, wasm.ErrMalformedHeader)
	}
	d.offset += 8
	if !bytes.Equal(buf[:4], magic[:]) {
		return wasm.NewDecodeError(0, wasm.ErrMalformedHeader)
	}
	if binary.LittleEndian.Uint32(buf[4:]) != version {
		return wasm.NewDecodeError(4, wasm.ErrMalformedHeader)
	}
	return nil
}

// sectionID reads the next section's id byte, or reports ok=false on a
// clean EOF (the normal way a module ends).
func (d *decoder) sectionID() (id wasm.SectionID, ok bool, err error) {
	var b [1]byte
	n, err := d.r.Read(b[:])
	if n == 0 && err != nil {
		if err == io.EOF {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("wasm: %w", err)
	}
	d.offset++
	return b[0], true, nil
}

func (d *decoder) byte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
	}
	d.offset++
	return b[0], nil
}

func (d *decoder) u32() (uint32, error) {
	v, n, err := leb128.DecodeUint32(d.r)
	d.offset += n
	if err != nil {
		return 0, wasm.NewDecodeError(d.offset, wasm.ErrBadLEB)
	}
	return v, nil
}

func (d *decoder) valueType() (byte, error) {
	b, err := d.byte()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x7f, 0x7e, 0x7d, 0x7c:
		return b, nil
	}
	return 0, wasm.NewDecodeError(d.offset-1, wasm.ErrBadValueType)
}

func (d *decoder) name() (string, error) {
	n, err := d.u32()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", wasm.NewDecodeError(d.offset, wasm.ErrTruncatedInput)
	}
	d.offset += uint64(n)
	return string(buf), nil
}

func (d *decoder) limits() (wasm.Limits, error) {
	flag, err := d.byte()
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := d.u32()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min}
	if flag == 1 {
		max, err := d.u32()
		if err != nil {
			return wasm.Limits{}, err
		}
		l.Max = max
		l.HasMax = true
	}
	return l, nil
}
