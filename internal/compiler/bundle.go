package compiler

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahills/sibilant/internal/datum"
)

// Bundle packages a compiled unit for storage: the root code object,
// the target it was assembled for, and a build id.
//
// Format: 4-byte magic "SIBC", one format-version byte, then the
// gob-encoded payload.
type Bundle struct {
	BuildID    string
	Target     string
	SourceFile string
	Code       *CodeObject
}

var bundleMagic = [4]byte{'S', 'I', 'B', 'C'}

const bundleFormatV1 byte = 0x01

// NewBundle wraps a code object with a fresh build id.
func NewBundle(code *CodeObject, target Version, sourceFile string) *Bundle {
	return &Bundle{
		BuildID:    uuid.NewString(),
		Target:     target.String(),
		SourceFile: sourceFile,
		Code:       code,
	}
}

// wire forms: the constant pool holds interface values (numbers,
// strings, symbols, nested code objects), which gob cannot round-trip
// directly, so constants are flattened into a tagged record.

const (
	kindNone byte = iota
	kindNil
	kindInt
	kindFloat
	kindComplex
	kindString
	kindSymbol
	kindKeyword
	kindCode
)

type wireConst struct {
	Kind  byte
	Int   int64
	Float float64
	Real  float64
	Imag  float64
	Str   string
	Code  *wireCode
}

type wireCode struct {
	ArgCount  int
	NLocals   int
	StackSize int
	Flags     uint32
	Code      []byte
	Consts    []wireConst
	Names     []string
	Varnames  []string
	Filename  string
	Name      string
	FirstLine int
	LineTable []byte
	FreeVars  []string
	CellVars  []string
}

type wireBundle struct {
	BuildID    string
	Target     string
	SourceFile string
	Code       *wireCode
}

// SerializeBundle converts a bundle to its binary format.
func SerializeBundle(b *Bundle) ([]byte, error) {
	wc, err := codeToWire(b.Code)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(bundleMagic[:])
	buf.WriteByte(bundleFormatV1)

	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(&wireBundle{
		BuildID:    b.BuildID,
		Target:     b.Target,
		SourceFile: b.SourceFile,
		Code:       wc,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeBundle parses the binary format back into a bundle.
func DeserializeBundle(data []byte) (*Bundle, error) {
	if len(data) < 5 || !bytes.Equal(data[:4], bundleMagic[:]) {
		return nil, fmt.Errorf("not a sibilant bundle")
	}
	if data[4] != bundleFormatV1 {
		return nil, fmt.Errorf("unsupported bundle format 0x%02x", data[4])
	}

	var wb wireBundle
	dec := gob.NewDecoder(bytes.NewReader(data[5:]))
	if err := dec.Decode(&wb); err != nil {
		return nil, err
	}

	return &Bundle{
		BuildID:    wb.BuildID,
		Target:     wb.Target,
		SourceFile: wb.SourceFile,
		Code:       codeFromWire(wb.Code),
	}, nil
}

func codeToWire(co *CodeObject) (*wireCode, error) {
	if co == nil {
		return nil, nil
	}

	consts := make([]wireConst, len(co.Consts))
	for i, c := range co.Consts {
		wc, err := constToWire(c)
		if err != nil {
			return nil, err
		}
		consts[i] = wc
	}

	return &wireCode{
		ArgCount:  co.ArgCount,
		NLocals:   co.NLocals,
		StackSize: co.StackSize,
		Flags:     uint32(co.Flags),
		Code:      co.Code,
		Consts:    consts,
		Names:     co.Names,
		Varnames:  co.Varnames,
		Filename:  co.Filename,
		Name:      co.Name,
		FirstLine: co.FirstLine,
		LineTable: co.LineTable,
		FreeVars:  co.FreeVars,
		CellVars:  co.CellVars,
	}, nil
}

func constToWire(v datum.Value) (wireConst, error) {
	switch x := v.(type) {
	case nil:
		return wireConst{Kind: kindNone}, nil
	case int64:
		return wireConst{Kind: kindInt, Int: x}, nil
	case float64:
		return wireConst{Kind: kindFloat, Float: x}, nil
	case complex128:
		return wireConst{Kind: kindComplex, Real: real(x), Imag: imag(x)}, nil
	case string:
		return wireConst{Kind: kindString, Str: x}, nil
	case *datum.Symbol:
		return wireConst{Kind: kindSymbol, Str: x.Name()}, nil
	case *datum.Keyword:
		return wireConst{Kind: kindKeyword, Str: x.Name()}, nil
	case *CodeObject:
		wc, err := codeToWire(x)
		if err != nil {
			return wireConst{}, err
		}
		return wireConst{Kind: kindCode, Code: wc}, nil
	default:
		if datum.IsNil(v) {
			return wireConst{Kind: kindNil}, nil
		}
		return wireConst{}, fmt.Errorf("constant %s cannot be serialized", datum.Print(v))
	}
}

func codeFromWire(wc *wireCode) *CodeObject {
	if wc == nil {
		return nil
	}

	consts := make([]datum.Value, len(wc.Consts))
	for i, c := range wc.Consts {
		consts[i] = constFromWire(c)
	}

	return &CodeObject{
		ArgCount:  wc.ArgCount,
		NLocals:   wc.NLocals,
		StackSize: wc.StackSize,
		Flags:     CodeFlags(wc.Flags),
		Code:      wc.Code,
		Consts:    consts,
		Names:     wc.Names,
		Varnames:  wc.Varnames,
		Filename:  wc.Filename,
		Name:      wc.Name,
		FirstLine: wc.FirstLine,
		LineTable: wc.LineTable,
		FreeVars:  wc.FreeVars,
		CellVars:  wc.CellVars,
	}
}

func constFromWire(c wireConst) datum.Value {
	switch c.Kind {
	case kindNone:
		return nil
	case kindNil:
		return datum.Nil
	case kindInt:
		return c.Int
	case kindFloat:
		return c.Float
	case kindComplex:
		return complex(c.Real, c.Imag)
	case kindString:
		return c.Str
	case kindSymbol:
		return datum.Intern(c.Str)
	case kindKeyword:
		return datum.InternKeyword(c.Str)
	case kindCode:
		return codeFromWire(c.Code)
	default:
		return nil
	}
}
