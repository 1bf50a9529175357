package bytecode

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/SillyFreak/sprachli/number"
)

// magic is the fixed header every sprachli bytecode file starts with,
// matching sprachli_bytecode::parser's `tag(b"sprachli")`.
var magic = []byte("sprachli")

// Version is the binary format version this codec reads and writes.
const Version uint16 = 0

// Encode serializes m into sprachli's deterministic binary module format:
// an 8-byte magic header and a 16-bit version, followed by length-prefixed
// blocks for constants, globals, and struct types, in that fixed order.
// Encoding the same Module twice always produces identical bytes.
func Encode(m *Module) []byte {
	var buf []byte
	buf = append(buf, magic...)
	buf = appendUint16(buf, Version)

	buf = appendUint16(buf, uint16(len(m.Constants)))
	for _, c := range m.Constants {
		buf = encodeConstant(buf, c)
	}

	globals := m.sortedGlobals()
	buf = appendUint16(buf, uint16(len(globals)))
	for _, g := range globals {
		buf = appendUint16(buf, uint16(g.NameConstIndex))
		buf = appendUint16(buf, uint16(g.ValueConstIndex))
	}

	names := m.sortedStructNames()
	buf = appendUint16(buf, uint16(len(names)))
	for _, name := range names {
		st := m.Structs[name]
		nameIdx, _ := findStringConstant(m, name)
		buf = appendUint16(buf, uint16(nameIdx))
		buf = append(buf, byte(st.Kind))
		switch st.Kind {
		case StructEmpty:
			// no payload
		case StructPositional:
			buf = appendUint16(buf, uint16(st.PositionalCount))
		case StructNamed:
			buf = appendUint16(buf, uint16(len(st.FieldConstIndices)))
			for _, idx := range st.FieldConstIndices {
				buf = appendUint16(buf, uint16(idx))
			}
		}
	}

	return buf
}

func findStringConstant(m *Module, s string) (int, bool) {
	for i, c := range m.Constants {
		if c.Kind == ConstString && c.String == s {
			return i, true
		}
	}
	return 0, false
}

func encodeConstant(buf []byte, c Constant) []byte {
	buf = append(buf, byte(c.Kind))
	switch c.Kind {
	case ConstNumber:
		text := c.Number.Text()
		buf = appendUint16(buf, uint16(len(text)))
		buf = append(buf, text...)
	case ConstString:
		buf = appendUint16(buf, uint16(len(c.String)))
		buf = append(buf, c.String...)
	case ConstFunction:
		buf = appendUint16(buf, uint16(c.Function.Arity))
		buf = appendUint16(buf, uint16(len(c.Function.Body)))
		buf = append(buf, c.Function.Body...)
	}
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// reader is a small cursor over a byte slice used while parsing.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int { return len(r.data) - r.pos }

func (r *reader) bytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrParse, n, r.remaining())
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) byte() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ParseModule decodes a Module from its binary representation, as written
// by Encode. It validates every constant/global/struct reference eagerly,
// so a successfully parsed Module is guaranteed internally consistent.
func ParseModule(data []byte) (*Module, error) {
	r := &reader{data: data}

	hdr, err := r.bytes(len(magic))
	if err != nil {
		return nil, fmt.Errorf("%w: truncated header", ErrParse)
	}
	for i, b := range magic {
		if hdr[i] != b {
			return nil, fmt.Errorf("%w: bad magic header", ErrParse)
		}
	}

	version, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated version", ErrParse)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrParse, version)
	}

	m := NewModule()

	constantCount, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated constant count", ErrParse)
	}
	for i := 0; i < int(constantCount); i++ {
		c, err := parseConstant(r)
		if err != nil {
			return nil, err
		}
		m.Constants = append(m.Constants, c)
	}

	globalCount, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated global count", ErrParse)
	}
	for i := 0; i < int(globalCount); i++ {
		nameIdx, err := r.uint16()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated global name index", ErrParse)
		}
		valueIdx, err := r.uint16()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated global value index", ErrParse)
		}
		name, err := m.ConstantString(int(nameIdx))
		if err != nil {
			return nil, err
		}
		if _, err := m.Constant(int(valueIdx)); err != nil {
			return nil, err
		}
		m.Globals = append(m.Globals, Global{Name: name, NameConstIndex: int(nameIdx), ValueConstIndex: int(valueIdx)})
	}

	structCount, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated struct count", ErrParse)
	}
	for i := 0; i < int(structCount); i++ {
		nameIdx, err := r.uint16()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated struct name index", ErrParse)
		}
		name, err := m.ConstantString(int(nameIdx))
		if err != nil {
			return nil, err
		}
		kindByte, err := r.byte()
		if err != nil {
			return nil, fmt.Errorf("%w: truncated struct kind", ErrParse)
		}
		var st StructType
		switch StructKind(kindByte) {
		case StructEmpty:
			st.Kind = StructEmpty
		case StructPositional:
			count, err := r.uint16()
			if err != nil {
				return nil, fmt.Errorf("%w: truncated struct field count", ErrParse)
			}
			st.Kind = StructPositional
			st.PositionalCount = int(count)
		case StructNamed:
			count, err := r.uint16()
			if err != nil {
				return nil, fmt.Errorf("%w: truncated struct field count", ErrParse)
			}
			st.Kind = StructNamed
			for j := 0; j < int(count); j++ {
				fieldIdx, err := r.uint16()
				if err != nil {
					return nil, fmt.Errorf("%w: truncated struct field index", ErrParse)
				}
				if _, err := m.ConstantString(int(fieldIdx)); err != nil {
					return nil, err
				}
				st.FieldConstIndices = append(st.FieldConstIndices, int(fieldIdx))
			}
		default:
			return nil, fmt.Errorf("%w: tag %d", ErrInvalidStructType, kindByte)
		}
		m.Structs[name] = st
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrParse, r.remaining())
	}

	return m, nil
}

func parseConstant(r *reader) (Constant, error) {
	kindByte, err := r.byte()
	if err != nil {
		return Constant{}, fmt.Errorf("%w: truncated constant kind", ErrParse)
	}

	switch ConstantKind(kindByte) {
	case ConstNumber:
		n, err := r.uint16()
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated number length", ErrParse)
		}
		text, err := r.bytes(int(n))
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated number text", ErrParse)
		}
		num, err := number.Parse(string(text))
		if err != nil {
			return Constant{}, fmt.Errorf("%w: %v", ErrInvalidNumberConstant, err)
		}
		return NumberConstant(num), nil

	case ConstString:
		n, err := r.uint16()
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated string length", ErrParse)
		}
		text, err := r.bytes(int(n))
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated string text", ErrParse)
		}
		if !utf8.Valid(text) {
			return Constant{}, fmt.Errorf("%w: not valid UTF-8", ErrInvalidStringConstant)
		}
		return StringConstant(string(text)), nil

	case ConstFunction:
		arity, err := r.uint16()
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated function arity", ErrParse)
		}
		bodyLen, err := r.uint16()
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated function body length", ErrParse)
		}
		body, err := r.bytes(int(bodyLen))
		if err != nil {
			return Constant{}, fmt.Errorf("%w: truncated function body", ErrParse)
		}
		bodyCopy := make([]byte, len(body))
		copy(bodyCopy, body)
		if err := validateFunctionBody(bodyCopy); err != nil {
			return Constant{}, err
		}
		return FunctionConstant(int(arity), bodyCopy), nil

	default:
		return Constant{}, fmt.Errorf("%w: tag %d", ErrInvalidConstantType, kindByte)
	}
}

// validateFunctionBody walks a function body once, checking that every
// opcode is valid and has a complete operand, and that every unary/binary
// operator byte names a known operator, without otherwise
// interpreting the instructions (jump target validity is the compiler's
// responsibility to have gotten right, not the decoder's to re-derive).
func validateFunctionBody(body []byte) error {
	i := 0
	for i < len(body) {
		op := Opcode(body[i])
		def, err := Lookup(op)
		if err != nil {
			return err
		}
		if def.HasOperand {
			if i+1 >= len(body) {
				return fmt.Errorf("%w: %s missing operand", ErrIncompleteInstruction, def.Name)
			}
			switch op {
			case OpUnary:
				if _, err := decodeUnaryOperator(body[i+1]); err != nil {
					return err
				}
			case OpBinary:
				if _, err := decodeBinaryOperator(body[i+1]); err != nil {
					return err
				}
			}
			i += 2
		} else {
			i++
		}
	}
	return nil
}
