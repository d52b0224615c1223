package vm

import (
	"bytes"
	"fmt"
)

// ---------------------------------------------------------------------------
// StringTable: Interned program strings
// ---------------------------------------------------------------------------

// StringTable holds the program's NUL-separated string blob. A StringID is a
// byte offset into the blob; the text runs up to the next NUL. The blob is
// append-only, so ids stay valid for the lifetime of the table.
type StringTable struct {
	data    []byte
	lengths map[StringID]int // id -> length, filled on first Get
}

// NewStringTable creates a table over a copy of blob. The first string of
// the blob must be the empty string.
func NewStringTable(blob []byte) (*StringTable, error) {
	if len(blob) > 0 && blob[0] != 0 {
		return nil, fmt.Errorf("%w: string data must begin with the empty string", ErrInvalidString)
	}

	data := make([]byte, len(blob), len(blob)+256)
	copy(data, blob)
	if len(data) == 0 {
		data = append(data, 0)
	}
	if data[len(data)-1] != 0 {
		data = append(data, 0)
	}

	return &StringTable{
		data:    data,
		lengths: make(map[StringID]int),
	}, nil
}

// Len returns the size of the blob in bytes.
func (st *StringTable) Len() int {
	return len(st.data)
}

// Bytes returns a copy of the blob.
func (st *StringTable) Bytes() []byte {
	out := make([]byte, len(st.data))
	copy(out, st.data)
	return out
}

// Valid reports whether id addresses a byte inside the blob.
func (st *StringTable) Valid(id StringID) bool {
	return id >= 0 && int(id) < len(st.data)
}

// Get returns the text for id.
func (st *StringTable) Get(id StringID) (string, error) {
	if !st.Valid(id) {
		return "", fmt.Errorf("%w: %d (table size %d)", ErrInvalidStringID, id, len(st.data))
	}

	start := int(id)
	if n, ok := st.lengths[id]; ok {
		return string(st.data[start : start+n]), nil
	}

	// The blob always ends in NUL, so IndexByte cannot miss.
	n := bytes.IndexByte(st.data[start:], 0)
	st.lengths[id] = n
	return string(st.data[start : start+n]), nil
}

// MustGet returns the text for id, or "" if id is invalid. Intended for
// logging and disassembly.
func (st *StringTable) MustGet(id StringID) string {
	s, err := st.Get(id)
	if err != nil {
		return ""
	}
	return s
}

// Find returns the id of the first NUL-terminated occurrence of text.
// Occurrences that continue past len(text) without a NUL do not match.
func (st *StringTable) Find(text string) (StringID, bool) {
	target := []byte(text)
	for ofs := 0; ofs < len(st.data); {
		i := bytes.Index(st.data[ofs:], target)
		if i < 0 {
			return 0, false
		}
		pos := ofs + i
		if end := pos + len(target); end < len(st.data) && st.data[end] == 0 {
			return StringID(pos), true
		}
		ofs = pos + 1
	}
	return 0, false
}

// Intern returns an id whose text equals text, appending it if necessary.
func (st *StringTable) Intern(text string) (StringID, error) {
	if bytes.IndexByte([]byte(text), 0) >= 0 {
		return 0, fmt.Errorf("%w: %q contains NUL", ErrInvalidString, text)
	}
	if id, ok := st.Find(text); ok {
		return id, nil
	}

	id := StringID(len(st.data))
	st.data = append(st.data, text...)
	st.data = append(st.data, 0)
	st.lengths[id] = len(text)
	return id, nil
}

// Equal compares two strings by content. Identical ids are equal without a
// lookup.
func (st *StringTable) Equal(a, b StringID) (bool, error) {
	if a == b {
		return true, nil
	}
	sa, err := st.Get(a)
	if err != nil {
		return false, err
	}
	sb, err := st.Get(b)
	if err != nil {
		return false, err
	}
	return sa == sb, nil
}

// All returns every string in blob order, starting with "".
func (st *StringTable) All() []string {
	parts := bytes.Split(st.data[:len(st.data)-1], []byte{0})
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

// Restore replaces the blob with a snapshot taken by Bytes. Ids handed out
// since the snapshot become invalid if they lie past its end.
func (st *StringTable) Restore(blob []byte) error {
	if len(blob) == 0 || blob[0] != 0 || blob[len(blob)-1] != 0 {
		return fmt.Errorf("%w: snapshot blob must start and end with NUL", ErrInvalidString)
	}
	st.data = append(st.data[:0], blob...)
	st.lengths = make(map[StringID]int)
	return nil
}
