// Binary encoding for a CodeBlock: a magic header, then fixed-width
// sections for the instruction stream and each constant table.
//
// Layout:
//
//	[Header]
//	  Magic (4 bytes): "TORQ"
//	  Version (4 bytes)
//
//	[Code section]
//	  Count (4 bytes), then Count x uint32 instruction words
//
//	[Global float table]   Count (4), then Count x float64
//	[Global string table]  Length (4), then raw bytes
//	[Function float table] Count (4), then Count x float64
//	[Function string table] Length (4), then raw bytes
//
//	[Name]       Length (4) + UTF-8 bytes
//	[SourceRoot] Length (4) + UTF-8 bytes
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	magic         uint32 = 0x51524F54 // "TORQ" little-endian word
	formatVersion uint32 = 1
)

// Encode writes b in the binary .tcb format to w.
func Encode(b *CodeBlock, w io.Writer) error {
	if err := writeU32(w, magic); err != nil {
		return err
	}
	if err := writeU32(w, formatVersion); err != nil {
		return err
	}
	if err := writeU32Slice(w, b.Code); err != nil {
		return fmt.Errorf("encode code: %w", err)
	}
	if err := writeFloats(w, b.GlobalFloats); err != nil {
		return fmt.Errorf("encode global floats: %w", err)
	}
	if err := writeBytes(w, b.GlobalStrings); err != nil {
		return fmt.Errorf("encode global strings: %w", err)
	}
	if err := writeFloats(w, b.FunctionFloats); err != nil {
		return fmt.Errorf("encode function floats: %w", err)
	}
	if err := writeBytes(w, b.FunctionStrings); err != nil {
		return fmt.Errorf("encode function strings: %w", err)
	}
	if err := writeString(w, b.Name); err != nil {
		return fmt.Errorf("encode name: %w", err)
	}
	if err := writeString(w, b.SourceRoot); err != nil {
		return fmt.Errorf("encode source root: %w", err)
	}
	return nil
}

// Decode reads a CodeBlock previously written by Encode.
func Decode(r io.Reader) (*CodeBlock, error) {
	got, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("bad magic %08x", got)
	}
	if _, err := readU32(r); err != nil { // version, unused for now
		return nil, fmt.Errorf("read version: %w", err)
	}

	b := &CodeBlock{}
	if b.Code, err = readU32Slice(r); err != nil {
		return nil, fmt.Errorf("read code: %w", err)
	}
	if b.GlobalFloats, err = readFloats(r); err != nil {
		return nil, fmt.Errorf("read global floats: %w", err)
	}
	if b.GlobalStrings, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("read global strings: %w", err)
	}
	if b.FunctionFloats, err = readFloats(r); err != nil {
		return nil, fmt.Errorf("read function floats: %w", err)
	}
	if b.FunctionStrings, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("read function strings: %w", err)
	}
	if b.Name, err = readString(r); err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	if b.SourceRoot, err = readString(r); err != nil {
		return nil, fmt.Errorf("read source root: %w", err)
	}
	return b, nil
}

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func writeU32Slice(w io.Writer, s []uint32) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, s)
}

func readU32Slice(r io.Reader) ([]uint32, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	s := make([]uint32, n)
	if n > 0 {
		if err := binary.Read(r, binary.LittleEndian, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func writeFloats(w io.Writer, s []float64) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, s)
}

func readFloats(r io.Reader) ([]float64, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	s := make([]float64, n)
	if n > 0 {
		if err := binary.Read(r, binary.LittleEndian, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
