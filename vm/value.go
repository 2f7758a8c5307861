package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime value
// ---------------------------------------------------------------------------

// ValueKind discriminates the payload of a Value.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSymbol
	KindObject
)

// Value is a runtime value. Scalars carry their payload inline; object
// references carry a pointer to a heap Object. Object references are the
// only kind the forwarding engine ever rewrites.
type Value struct {
	kind ValueKind
	num  uint64
	str  string
	obj  *Object
}

// Nil is the canonical nil value.
var Nil = Value{}

// True and False are the canonical boolean values.
var (
	True  = Value{kind: KindBool, num: 1}
	False = Value{kind: KindBool}
)

// BoolValue returns the canonical value for b.
func BoolValue(b bool) Value {
	if b {
		return True
	}
	return False
}

// IntValue boxes a signed integer.
func IntValue(i int64) Value {
	return Value{kind: KindInt, num: uint64(i)}
}

// FloatValue boxes a float.
func FloatValue(f float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(f)}
}

// StringValue boxes a string.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// SymbolValue boxes an interned symbol name.
func SymbolValue(name string) Value {
	return Value{kind: KindSymbol, str: name}
}

// ObjectValue boxes a reference to a heap object.
func ObjectValue(o *Object) Value {
	if o == nil {
		return Nil
	}
	return Value{kind: KindObject, obj: o}
}

// Kind returns the value's kind tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// IsObject reports whether the value references a heap object.
func (v Value) IsObject() bool { return v.kind == KindObject }

// Bool returns the boolean payload. Valid only for KindBool.
func (v Value) Bool() bool { return v.num != 0 }

// Int returns the integer payload. Valid only for KindInt.
func (v Value) Int() int64 { return int64(v.num) }

// Float returns the float payload. Valid only for KindFloat.
func (v Value) Float() float64 { return math.Float64frombits(v.num) }

// Str returns the string or symbol payload.
func (v Value) Str() string { return v.str }

// Object returns the referenced heap object, or nil for non-references.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Equal reports value equality: scalars by payload, references by identity.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindString, KindSymbol:
		return v.str == other.str
	case KindObject:
		return v.obj == other.obj
	default:
		return v.num == other.num
	}
}

// String implements fmt.Stringer for diagnostics.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindInt:
		return strconv.FormatInt(v.Int(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindSymbol:
		return "#" + v.str
	case KindObject:
		return fmt.Sprintf("a %s", v.obj.ClassName())
	}
	return "?"
}
