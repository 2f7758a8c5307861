package vm

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// ---------------------------------------------------------------------------
// Program container
// ---------------------------------------------------------------------------
//
// A program image is the compiler front end's output: the full set of
// libraries to load, serialized as canonical CBOR and compressed with
// zstd behind a small magic header. The same image format serves both
// initial program load and reload.

// programMagic identifies a program image file.
var programMagic = []byte("PXI1")

var (
	programEncMode cbor.EncMode
	programDecMode cbor.DecMode
)

func init() {
	var err error
	programEncMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: cbor encode mode: %v", err))
	}
	programDecMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 22,
		MaxMapPairs:      1 << 22,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("vm: cbor decode mode: %v", err))
	}
}

// Program is one compiled program image.
type Program struct {
	RootURL   string           `cbor:"root"`
	Libraries []ProgramLibrary `cbor:"libs"`
}

// ProgramLibrary is one library in a program image.
type ProgramLibrary struct {
	URL        string           `cbor:"url"`
	Imports    []string         `cbor:"imports,omitempty"`
	Exports    []string         `cbor:"exports,omitempty"`
	Debuggable bool             `cbor:"debuggable"`
	Scripts    []ProgramScript  `cbor:"scripts,omitempty"`
	Classes    []ProgramClass   `cbor:"classes,omitempty"`
	Bindings   []ProgramBinding `cbor:"bindings,omitempty"`
}

// ProgramScript is one source unit in a program image.
type ProgramScript struct {
	URL    string `cbor:"url"`
	Source string `cbor:"source,omitempty"`
}

// ProgramClass is one class declaration in a program image.
type ProgramClass struct {
	Name      string            `cbor:"name"`
	Super     string            `cbor:"super,omitempty"`
	Patch     bool              `cbor:"patch,omitempty"`
	Enum      bool              `cbor:"enum,omitempty"`
	TypeArgs  bool              `cbor:"typeargs,omitempty"`
	Fields    []ProgramField    `cbor:"fields,omitempty"`
	Functions []ProgramFunction `cbor:"functions,omitempty"`
}

// ProgramField is one field declaration in a program image.
type ProgramField struct {
	Name        string        `cbor:"name"`
	Static      bool          `cbor:"static,omitempty"`
	Initializer *ProgramValue `cbor:"init,omitempty"`
	Fingerprint uint32        `cbor:"fp"`
}

// ProgramFunction is one function declaration in a program image.
type ProgramFunction struct {
	Name        string `cbor:"name"`
	Fingerprint uint32 `cbor:"fp"`
}

// ProgramBinding is one top-level library binding in a program image.
type ProgramBinding struct {
	Name  string       `cbor:"name"`
	Value ProgramValue `cbor:"value"`
}

// ProgramValue is a literal constant in a program image.
type ProgramValue struct {
	Kind   string  `cbor:"kind"`
	Bool   bool    `cbor:"bool,omitempty"`
	Int    int64   `cbor:"int,omitempty"`
	Float  float64 `cbor:"float,omitempty"`
	String string  `cbor:"string,omitempty"`
}

// Literal value kinds.
const (
	LiteralNil    = "nil"
	LiteralBool   = "bool"
	LiteralInt    = "int"
	LiteralFloat  = "float"
	LiteralString = "string"
	LiteralSymbol = "symbol"
)

// Value converts the literal into a runtime value.
func (pv ProgramValue) Value() Value {
	switch pv.Kind {
	case LiteralBool:
		return BoolValue(pv.Bool)
	case LiteralInt:
		return IntValue(pv.Int)
	case LiteralFloat:
		return FloatValue(pv.Float)
	case LiteralString:
		return StringValue(pv.String)
	case LiteralSymbol:
		return SymbolValue(pv.String)
	default:
		return Nil
	}
}

// NumLibraries returns the number of libraries in the image.
func (p *Program) NumLibraries() int { return len(p.Libraries) }

// NumClasses returns the total class count across all libraries.
func (p *Program) NumClasses() int {
	n := 0
	for _, lib := range p.Libraries {
		n += len(lib.Classes)
	}
	return n
}

// NumProcedures returns the total function count across all libraries.
func (p *Program) NumProcedures() int {
	n := 0
	for _, lib := range p.Libraries {
		for _, c := range lib.Classes {
			n += len(c.Functions)
		}
	}
	return n
}

// WriteProgram serializes a program image to w.
func WriteProgram(w io.Writer, p *Program) error {
	payload, err := programEncMode.Marshal(p)
	if err != nil {
		return fmt.Errorf("vm: encode program: %w", err)
	}
	if _, err := w.Write(programMagic); err != nil {
		return fmt.Errorf("vm: write program header: %w", err)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("vm: zstd writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		zw.Close()
		return fmt.Errorf("vm: write program payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("vm: finish program payload: %w", err)
	}
	return nil
}

// ReadProgram parses a program image from its serialized bytes.
func ReadProgram(data []byte) (*Program, error) {
	if len(data) < len(programMagic) || !bytes.Equal(data[:len(programMagic)], programMagic) {
		return nil, fmt.Errorf("vm: not a program image")
	}
	zr, err := zstd.NewReader(bytes.NewReader(data[len(programMagic):]))
	if err != nil {
		return nil, fmt.Errorf("vm: zstd reader: %w", err)
	}
	defer zr.Close()
	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("vm: decompress program: %w", err)
	}
	var p Program
	if err := programDecMode.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("vm: decode program: %w", err)
	}
	return &p, nil
}

// ReadProgramFile loads a program image from disk.
func ReadProgramFile(path string) (*Program, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("vm: read program image: %w", err)
	}
	p, err := ReadProgram(data)
	if err != nil {
		return nil, nil, err
	}
	return p, data, nil
}

// ---------------------------------------------------------------------------
// Initializers
// ---------------------------------------------------------------------------

// Initializer evaluates a field's initializer expression.
type Initializer interface {
	Eval(rt *Runtime) (Value, error)
}

// literalInitializer returns a constant.
type literalInitializer struct {
	v Value
}

// LiteralInitializer wraps a constant value as an initializer.
func LiteralInitializer(v Value) Initializer { return literalInitializer{v: v} }

func (li literalInitializer) Eval(*Runtime) (Value, error) { return li.v, nil }

// InitializerFunc adapts a function to the Initializer interface.
type InitializerFunc func(rt *Runtime) (Value, error)

// Eval implements Initializer.
func (f InitializerFunc) Eval(rt *Runtime) (Value, error) { return f(rt) }
