package bytecode

import "fmt"

// Decoder reads successive instructions out of a function body. It
// underlies the VM's fetch-decode-execute loop and bytecode inspection
// (disassembly). The compiler does not use it: it measures jump spans with
// EncodedLen over the instructions it has emitted.
type Decoder struct {
	body []byte
	pos  int
}

// NewDecoder creates a Decoder positioned at the start of body.
func NewDecoder(body []byte) *Decoder {
	return &Decoder{body: body}
}

// Pos returns the current byte offset into the body.
func (d *Decoder) Pos() int { return d.pos }

// SetPos moves the cursor to an arbitrary offset, used to perform a jump.
func (d *Decoder) SetPos(pos int) { d.pos = pos }

// Done reports whether the cursor has reached the end of the body: per
// SPEC_FULL.md, running off the end of a function body is not an error,
// it is the implicit fall-through return.
func (d *Decoder) Done() bool { return d.pos >= len(d.body) }

// Next decodes the instruction at the current position and advances past
// it, returning its opcode and operand byte (0 if it takes none).
func (d *Decoder) Next() (op Opcode, operand byte, err error) {
	if d.pos >= len(d.body) {
		return 0, 0, fmt.Errorf("%w: read past end of function body", ErrParse)
	}
	op = Opcode(d.body[d.pos])
	def, err := Lookup(op)
	if err != nil {
		return 0, 0, err
	}
	d.pos++
	if def.HasOperand {
		if d.pos >= len(d.body) {
			return 0, 0, fmt.Errorf("%w: %s missing operand", ErrIncompleteInstruction, def.Name)
		}
		operand = d.body[d.pos]
		d.pos++
	}
	return op, operand, nil
}
