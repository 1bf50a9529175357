package bytecode

import (
	"testing"

	"github.com/SillyFreak/sprachli/number"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	m := NewModule()
	n42 := m.AddConstant(NumberConstant(number.FromInt64(42)))
	s := m.AddConstant(StringConstant("hello"))
	body := Make(nil, OpConstant, byte(n42))
	body = Make(body, OpReturn, 0)
	fn := m.AddConstant(FunctionConstant(0, body))
	m.AddGlobal("main", fn)
	m.AddGlobal("greeting", s)
	m.AddStruct("Point", StructType{Kind: StructNamed, FieldConstIndices: []int{
		m.AddConstant(StringConstant("x")),
		m.AddConstant(StringConstant("y")),
	}})

	encoded := Encode(m)
	parsed, err := ParseModule(encoded)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Constants) != len(m.Constants) {
		t.Fatalf("constant count mismatch: got %d, want %d", len(parsed.Constants), len(m.Constants))
	}

	idx, ok := parsed.Global("main")
	if !ok {
		t.Fatalf("global 'main' not found after round-trip")
	}
	c, err := parsed.Constant(idx)
	if err != nil {
		t.Fatalf("Constant: %v", err)
	}
	if c.Kind != ConstFunction || c.Function.Arity != 0 {
		t.Fatalf("unexpected main constant: %+v", c)
	}

	reEncoded := Encode(parsed)
	if len(reEncoded) != len(encoded) {
		t.Fatalf("re-encoding changed length: got %d, want %d", len(reEncoded), len(encoded))
	}
	for i := range encoded {
		if encoded[i] != reEncoded[i] {
			t.Fatalf("re-encoding is not deterministic at byte %d", i)
		}
	}
}

func TestAddConstantDeduplicates(t *testing.T) {
	m := NewModule()
	i1 := m.AddConstant(NumberConstant(number.FromInt64(7)))
	i2 := m.AddConstant(NumberConstant(number.FromInt64(7)))
	if i1 != i2 {
		t.Fatalf("expected structurally equal Number constants to share a pool slot, got %d and %d", i1, i2)
	}

	s1 := m.AddConstant(StringConstant("dup"))
	s2 := m.AddConstant(StringConstant("dup"))
	if s1 != s2 {
		t.Fatalf("expected structurally equal String constants to share a pool slot, got %d and %d", s1, s2)
	}

	if len(m.Constants) != 2 {
		t.Fatalf("expected 2 distinct constants, got %d", len(m.Constants))
	}
}

func TestOpcodeZeroIsInvalid(t *testing.T) {
	if _, err := Lookup(OpInvalid); err == nil {
		t.Fatalf("expected opcode 0 to be invalid")
	}

	_, err := ParseModule(append(append([]byte{}, magic...), 0, 0 /* version */))
	if err == nil {
		t.Fatalf("expected truncated module after header to fail")
	}
}

func TestParseModuleRejectsBadMagic(t *testing.T) {
	_, err := ParseModule([]byte("not-sprachli-data-at-all"))
	if err == nil {
		t.Fatalf("expected bad magic header to be rejected")
	}
}

func TestParseModuleRejectsInvalidOpcodeInBody(t *testing.T) {
	m := NewModule()
	body := []byte{byte(OpInvalid)}
	m.AddConstant(FunctionConstant(0, body))
	encoded := Encode(m)

	_, err := ParseModule(encoded)
	if err == nil {
		t.Fatalf("expected a function body containing opcode 0 to fail to parse")
	}
}
