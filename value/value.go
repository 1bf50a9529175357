// Package value defines sprachli's runtime value representation: the
// closed set of kinds a bytecode program can produce and operate on.
//
// Grounded on original_source/src/vm/value.rs's Value enum (Unit, Bool,
// a boxed Number/String, and a function reference). Go's garbage collector
// and plain struct-copy semantics make the Rust original's Arc-boxing
// unnecessary: a Value here is a small stack-allocated struct, not a
// pointer into a reference-counted heap cell.
package value

import (
	"fmt"

	"github.com/SillyFreak/sprachli/number"
)

// Kind discriminates the variant a Value holds.
type Kind int

const (
	Unit Kind = iota
	Bool
	Number
	String
	Function
)

func (k Kind) String() string {
	switch k {
	case Unit:
		return "Unit"
	case Bool:
		return "Bool"
	case Number:
		return "Number"
	case String:
		return "String"
	case Function:
		return "Function"
	default:
		return "<unknown kind>"
	}
}

// Value is a sprachli runtime value. Exactly one of the fields below is
// meaningful, selected by Kind.
type Value struct {
	kind Kind

	boolVal   bool
	numberVal number.Number
	stringVal string
	// fnConstIndex is the constant-pool index of the bytecode.Function this
	// value refers to. sprachli functions are never closures (see
	// DESIGN.md): a function value carries no captured environment, only
	// a reference to its compiled body.
	fnConstIndex int
}

// UnitValue is sprachli's single Unit value, the result of a block or
// statement that produces nothing meaningful.
var UnitValue = Value{kind: Unit}

// NewBool wraps a bool as a Value.
func NewBool(b bool) Value { return Value{kind: Bool, boolVal: b} }

// NewNumber wraps a Number as a Value.
func NewNumber(n number.Number) Value { return Value{kind: Number, numberVal: n} }

// NewString wraps a string as a Value.
func NewString(s string) Value { return Value{kind: String, stringVal: s} }

// NewFunction wraps a constant-pool function reference as a Value.
func NewFunction(constIndex int) Value { return Value{kind: Function, fnConstIndex: constIndex} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// TypeError is raised when an operation is applied to a Value of the
// wrong Kind, e.g. arithmetic on a String.
type TypeError struct {
	Expected Kind
	Got      Kind
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: expected %s, got %s", e.Expected, e.Got)
}

// AsBool returns v's bool, or a *TypeError if v is not a Bool.
func (v Value) AsBool() (bool, error) {
	if v.kind != Bool {
		return false, &TypeError{Expected: Bool, Got: v.kind}
	}
	return v.boolVal, nil
}

// AsNumber returns v's Number, or a *TypeError if v is not a Number.
func (v Value) AsNumber() (number.Number, error) {
	if v.kind != Number {
		return number.Number{}, &TypeError{Expected: Number, Got: v.kind}
	}
	return v.numberVal, nil
}

// AsString returns v's string, or a *TypeError if v is not a String.
func (v Value) AsString() (string, error) {
	if v.kind != String {
		return "", &TypeError{Expected: String, Got: v.kind}
	}
	return v.stringVal, nil
}

// AsFunction returns the constant-pool index of v's function, or a
// *TypeError if v is not a Function reference.
func (v Value) AsFunction() (int, error) {
	if v.kind != Function {
		return 0, &TypeError{Expected: Function, Got: v.kind}
	}
	return v.fnConstIndex, nil
}

// Equal implements sprachli's `==`/`!=` semantics: Unit equals Unit,
// Bool/Number/String compare by value, Function compares by reference
// (constant-pool index) identity, and values of different kinds are
// never equal to each other.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Unit:
		return true
	case Bool:
		return v.boolVal == other.boolVal
	case Number:
		return v.numberVal.Equal(other.numberVal)
	case String:
		return v.stringVal == other.stringVal
	case Function:
		return v.fnConstIndex == other.fnConstIndex
	default:
		return false
	}
}

// String renders v for display, e.g. in the REPL or CLI `run` output.
func (v Value) String() string {
	switch v.kind {
	case Unit:
		return "()"
	case Bool:
		if v.boolVal {
			return "true"
		}
		return "false"
	case Number:
		return v.numberVal.Text()
	case String:
		return v.stringVal
	case Function:
		return fmt.Sprintf("<function #%d>", v.fnConstIndex)
	default:
		return "<invalid value>"
	}
}
