// Package progs reads and writes compiled QuakeC programs (progs.dat).
//
// File layout, all little-endian:
//
//	[version:i32] [crc:i32]
//	6 x [offset:i32] [count:i32]   statements, globaldefs, fielddefs,
//	                               functions, strings, globals
//	[field_count:i32]
//	lump data
package progs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/chazu/qcvm/vm"
)

const (
	// Version is the only program format version understood.
	Version int32 = 6

	// CRC is the checksum of the system-definition header the host's
	// entity layout was built from.
	CRC int32 = 5927

	headerSize    = 4 + 4 + lumpCount*8 + 4
	lumpCount     = 6
	statementSize = 8
	defSize       = 8
	functionSize  = 36
	saveFlag      = 1 << 15
)

const (
	lumpStatements = iota
	lumpGlobalDefs
	lumpFieldDefs
	lumpFunctions
	lumpStrings
	lumpGlobals
)

var lumpNames = [lumpCount]string{"statements", "globaldefs", "fielddefs", "functions", "strings", "globals"}

// ErrMalformed reports a file that does not follow the program format.
var ErrMalformed = errors.New("malformed progs")

// ErrCRC reports a file compiled against different system definitions.
var ErrCRC = errors.New("progs CRC mismatch")

// LoadOptions controls validation.
type LoadOptions struct {
	// IgnoreCRC accepts files whose CRC differs from CRC.
	IgnoreCRC bool
}

// Header is the fixed-size prefix of a program file.
type Header struct {
	Version    int32
	CRC        int32
	Lumps      [lumpCount]Lump
	FieldCount int32
}

// Lump locates one table inside the file.
type Lump struct {
	Offset int32
	Count  int32
}

// ReadFile loads a program from disk.
func ReadFile(path string, opts LoadOptions) (*vm.Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	t, err := LoadWithOptions(data, opts)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return t, nil
}

// Load decodes a program with default options.
func Load(data []byte) (*vm.Tables, error) {
	return LoadWithOptions(data, LoadOptions{})
}

// LoadWithOptions decodes a program. Every lump is bounds-checked; bad
// input yields an error wrapping ErrMalformed.
func LoadWithOptions(data []byte, opts LoadOptions) (*vm.Tables, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrMalformed, h.Version, Version)
	}
	if h.CRC != CRC && !opts.IgnoreCRC {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCRC, h.CRC, CRC)
	}
	if h.FieldCount < 0 {
		return nil, fmt.Errorf("%w: negative field count %d", ErrMalformed, h.FieldCount)
	}

	d := decoder{data: data, header: h}
	t := &vm.Tables{FieldCount: int(h.FieldCount)}

	if t.Strings, err = d.lump(lumpStrings, 1); err != nil {
		return nil, err
	}
	if t.Statements, err = d.statements(); err != nil {
		return nil, err
	}
	if t.Functions, err = d.functions(len(t.Strings)); err != nil {
		return nil, err
	}
	if t.GlobalDefs, err = d.globalDefs(); err != nil {
		return nil, err
	}
	if t.FieldDefs, err = d.fieldDefs(); err != nil {
		return nil, err
	}
	if t.Globals, err = d.globals(); err != nil {
		return nil, err
	}
	return t, nil
}

// ReadHeader decodes and range-checks the header.
func ReadHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < headerSize {
		return h, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformed, len(data), headerSize)
	}
	h.Version = int32(binary.LittleEndian.Uint32(data[0:]))
	h.CRC = int32(binary.LittleEndian.Uint32(data[4:]))
	pos := 8
	for i := range h.Lumps {
		h.Lumps[i].Offset = int32(binary.LittleEndian.Uint32(data[pos:]))
		h.Lumps[i].Count = int32(binary.LittleEndian.Uint32(data[pos+4:]))
		pos += 8
	}
	h.FieldCount = int32(binary.LittleEndian.Uint32(data[pos:]))
	return h, nil
}

// ---------------------------------------------------------------------------
// Lump decoding
// ---------------------------------------------------------------------------

type decoder struct {
	data   []byte
	header Header
}

// lump returns the bytes of lump i, whose records are size bytes each.
func (d *decoder) lump(i, size int) ([]byte, error) {
	l := d.header.Lumps[i]
	if l.Offset < 0 || l.Count < 0 {
		return nil, fmt.Errorf("%w: %s lump has negative offset or count", ErrMalformed, lumpNames[i])
	}
	start := int64(l.Offset)
	end := start + int64(l.Count)*int64(size)
	if end > int64(len(d.data)) {
		return nil, fmt.Errorf("%w: %s lump [%d, %d) past end of %d-byte file",
			ErrMalformed, lumpNames[i], start, end, len(d.data))
	}
	return d.data[start:end], nil
}

func (d *decoder) statements() ([]vm.Statement, error) {
	raw, err := d.lump(lumpStatements, statementSize)
	if err != nil {
		return nil, err
	}
	out := make([]vm.Statement, len(raw)/statementSize)
	for i := range out {
		rec := raw[i*statementSize:]
		st, err := vm.DecodeStatement(
			binary.LittleEndian.Uint16(rec[0:]),
			int16(binary.LittleEndian.Uint16(rec[2:])),
			int16(binary.LittleEndian.Uint16(rec[4:])),
			int16(binary.LittleEndian.Uint16(rec[6:])),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: statement %d: %v", ErrMalformed, i, err)
		}
		out[i] = st
	}
	return out, nil
}

func (d *decoder) functions(stringBytes int) ([]vm.FunctionDef, error) {
	raw, err := d.lump(lumpFunctions, functionSize)
	if err != nil {
		return nil, err
	}
	out := make([]vm.FunctionDef, len(raw)/functionSize)
	for i := range out {
		rec := raw[i*functionSize:]
		word := func(n int) int32 { return int32(binary.LittleEndian.Uint32(rec[n*4:])) }

		first, argStart, locals := word(0), word(1), word(2)
		name, file, argc := word(4), word(5), word(6)

		if argStart < 0 || locals < 0 {
			return nil, fmt.Errorf("%w: function %d has a negative local region", ErrMalformed, i)
		}
		if argc < 0 || argc > vm.MaxArgs {
			return nil, fmt.Errorf("%w: function %d has %d arguments", ErrMalformed, i, argc)
		}
		for _, id := range []int32{name, file} {
			if id < 0 || int(id) >= stringBytes {
				return nil, fmt.Errorf("%w: function %d string id %d outside %d bytes", ErrMalformed, i, id, stringBytes)
			}
		}

		def := vm.FunctionDef{
			ArgStart: int(argStart),
			Locals:   int(locals),
			Argc:     int(argc),
			NameID:   vm.StringID(name),
			SourceID: vm.StringID(file),
		}
		copy(def.ArgSizes[:], rec[28:36])
		if first < 0 {
			def.Kind = vm.FuncBuiltin
			def.Builtin = vm.BuiltinID(-first)
		} else {
			def.Kind = vm.FuncBytecode
			def.Entry = int(first)
		}
		out[i] = def
	}
	return out, nil
}

func (d *decoder) defs(i int) ([]rawDef, error) {
	raw, err := d.lump(i, defSize)
	if err != nil {
		return nil, err
	}
	out := make([]rawDef, len(raw)/defSize)
	for n := range out {
		rec := raw[n*defSize:]
		out[n] = rawDef{
			typ:    binary.LittleEndian.Uint16(rec[0:]),
			offset: binary.LittleEndian.Uint16(rec[2:]),
			name:   int32(binary.LittleEndian.Uint32(rec[4:])),
		}
		t := vm.Type(out[n].typ &^ saveFlag)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %s %d has type %d", ErrMalformed, lumpNames[i], n, t)
		}
		if out[n].name < 0 {
			return nil, fmt.Errorf("%w: %s %d has negative name id", ErrMalformed, lumpNames[i], n)
		}
	}
	return out, nil
}

type rawDef struct {
	typ    uint16
	offset uint16
	name   int32
}

func (d *decoder) globalDefs() ([]vm.GlobalDef, error) {
	raw, err := d.defs(lumpGlobalDefs)
	if err != nil {
		return nil, err
	}
	out := make([]vm.GlobalDef, len(raw))
	for i, r := range raw {
		out[i] = vm.GlobalDef{
			Save:   r.typ&saveFlag != 0,
			Type:   vm.Type(r.typ &^ saveFlag),
			Offset: r.offset,
			NameID: vm.StringID(r.name),
		}
	}
	return out, nil
}

func (d *decoder) fieldDefs() ([]vm.FieldDef, error) {
	raw, err := d.defs(lumpFieldDefs)
	if err != nil {
		return nil, err
	}
	out := make([]vm.FieldDef, len(raw))
	for i, r := range raw {
		if r.typ&saveFlag != 0 {
			return nil, fmt.Errorf("%w: field def %d carries the save flag", ErrMalformed, i)
		}
		out[i] = vm.FieldDef{Type: vm.Type(r.typ), Offset: r.offset, NameID: vm.StringID(r.name)}
	}
	return out, nil
}

func (d *decoder) globals() ([]uint32, error) {
	raw, err := d.lump(lumpGlobals, 4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode writes t in the program format, lumps in header order.
func Encode(t *vm.Tables) ([]byte, error) {
	if t == nil {
		return nil, fmt.Errorf("encode: nil tables")
	}
	for i, d := range t.FieldDefs {
		if d.Type&saveFlag != 0 {
			return nil, fmt.Errorf("encode: field def %d type %d overlaps the save flag", i, d.Type)
		}
	}

	var body [lumpCount][]byte
	for _, st := range t.Statements {
		b := body[lumpStatements]
		b = binary.LittleEndian.AppendUint16(b, uint16(st.Op))
		b = binary.LittleEndian.AppendUint16(b, uint16(st.A))
		b = binary.LittleEndian.AppendUint16(b, uint16(st.B))
		b = binary.LittleEndian.AppendUint16(b, uint16(st.C))
		body[lumpStatements] = b
	}
	for _, d := range t.GlobalDefs {
		typ := uint16(d.Type)
		if d.Save {
			typ |= saveFlag
		}
		body[lumpGlobalDefs] = appendDef(body[lumpGlobalDefs], typ, d.Offset, d.NameID)
	}
	for _, d := range t.FieldDefs {
		body[lumpFieldDefs] = appendDef(body[lumpFieldDefs], uint16(d.Type), d.Offset, d.NameID)
	}
	for _, f := range t.Functions {
		first := int32(f.Entry)
		if f.IsBuiltin() {
			first = -int32(f.Builtin)
		}
		b := body[lumpFunctions]
		for _, w := range []int32{first, int32(f.ArgStart), int32(f.Locals), 0, int32(f.NameID), int32(f.SourceID), int32(f.Argc)} {
			b = binary.LittleEndian.AppendUint32(b, uint32(w))
		}
		body[lumpFunctions] = append(b, f.ArgSizes[:]...)
	}
	body[lumpStrings] = t.Strings
	for _, g := range t.Globals {
		body[lumpGlobals] = binary.LittleEndian.AppendUint32(body[lumpGlobals], g)
	}

	counts := [lumpCount]int{
		len(t.Statements), len(t.GlobalDefs), len(t.FieldDefs),
		len(t.Functions), len(t.Strings), len(t.Globals),
	}

	size := headerSize
	for _, b := range body {
		size += len(b)
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(Version))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(CRC))
	offset := headerSize
	for i, b := range body {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(offset))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(counts[i]))
		offset += len(b)
	}
	buf = binary.LittleEndian.AppendUint32(buf, uint32(t.FieldCount))
	for _, b := range body {
		buf = append(buf, b...)
	}
	return buf, nil
}

func appendDef(b []byte, typ, offset uint16, name vm.StringID) []byte {
	b = binary.LittleEndian.AppendUint16(b, typ)
	b = binary.LittleEndian.AppendUint16(b, offset)
	return binary.LittleEndian.AppendUint32(b, uint32(name))
}
