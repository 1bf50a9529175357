package bytecode

import (
	"fmt"
	"sort"
)

// StructKind discriminates the three shapes a struct's members can take,
// matching ast.StructMemberKind.
type StructKind int

const (
	StructEmpty StructKind = iota
	StructPositional
	StructNamed
)

// StructType is a struct declaration's compiled descriptor: its shape and,
// for a named struct, the constant-pool indices of its field name strings.
// No sprachli program can construct a struct instance or access a field
// (see SPEC_FULL.md's Supplemented Features), so this descriptor currently
// exists only to be looked up by name; nothing produces or consumes a
// struct value at runtime.
type StructType struct {
	Kind              StructKind
	PositionalCount   int
	FieldConstIndices []int // constant-pool indices of field-name String constants, for StructNamed
}

// Global is one entry in a Module's global table: a name (interned in the
// constant pool as a String constant) bound to a value (addressed by its
// own constant-pool index, since all sprachli globals are top-level `fn`
// declarations or struct-free constants known entirely at compile time).
type Global struct {
	Name            string
	NameConstIndex  int
	ValueConstIndex int
}

// Module is a fully self-contained compiled sprachli program: a constant
// pool plus the global and struct-type tables that name entries in it.
type Module struct {
	Constants []Constant
	Globals   []Global
	Structs   map[string]StructType

	constantIndex map[any]int
}

// NewModule creates an empty Module ready to have constants added to it.
func NewModule() *Module {
	return &Module{
		Structs:       make(map[string]StructType),
		constantIndex: make(map[any]int),
	}
}

// AddConstant interns c into the constant pool, returning its index.
// Structurally equal constants share one slot: adding the same Number,
// String, or Function body twice returns the same index both times.
func (m *Module) AddConstant(c Constant) int {
	if m.constantIndex == nil {
		m.constantIndex = make(map[any]int)
	}
	key := c.poolKey()
	if idx, ok := m.constantIndex[key]; ok {
		return idx
	}
	idx := len(m.Constants)
	m.Constants = append(m.Constants, c)
	m.constantIndex[key] = idx
	return idx
}

// AddGlobal registers a global binding name -> the constant at
// valueConstIndex. name is itself interned as a String constant.
func (m *Module) AddGlobal(name string, valueConstIndex int) int {
	nameIdx := m.AddConstant(StringConstant(name))
	idx := len(m.Globals)
	m.Globals = append(m.Globals, Global{Name: name, NameConstIndex: nameIdx, ValueConstIndex: valueConstIndex})
	return idx
}

// AddStruct registers a struct type declaration under name. name is itself
// interned as a String constant, which the binary codec references.
func (m *Module) AddStruct(name string, st StructType) {
	m.AddConstant(StringConstant(name))
	m.Structs[name] = st
}

// sortedGlobals returns Globals sorted by name, matching the deterministic
// iteration order of sprachli_bytecode's BTreeMap<&str, usize> globals
// table (the binary format must serialize globals in a fixed order to
// satisfy the round-trip property).
func (m *Module) sortedGlobals() []Global {
	out := make([]Global, len(m.Globals))
	copy(out, m.Globals)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sortedStructNames returns the Structs map's keys in sorted order, for
// the same determinism reason as sortedGlobals.
func (m *Module) sortedStructNames() []string {
	names := make([]string, 0, len(m.Structs))
	for name := range m.Structs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Constant returns the constant at index, or an error if index is out of range.
func (m *Module) Constant(index int) (Constant, error) {
	if index < 0 || index >= len(m.Constants) {
		return Constant{}, fmt.Errorf("%w: index %d (pool has %d entries)", ErrInvalidConstantRef, index, len(m.Constants))
	}
	return m.Constants[index], nil
}

// ConstantString returns the constant at index as a string, failing if it
// is not a String constant. Used to resolve global/field names.
func (m *Module) ConstantString(index int) (string, error) {
	c, err := m.Constant(index)
	if err != nil {
		return "", err
	}
	if c.Kind != ConstString {
		return "", fmt.Errorf("%w: constant %d is not a string", ErrInvalidConstantRefType, index)
	}
	return c.String, nil
}

// Global looks up a global binding by name, returning the constant-pool
// index of its value.
func (m *Module) Global(name string) (int, bool) {
	for _, g := range m.Globals {
		if g.Name == name {
			return g.ValueConstIndex, true
		}
	}
	return 0, false
}
