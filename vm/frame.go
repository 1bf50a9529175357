package vm

import "github.com/SillyFreak/sprachli/bytecode"

// Frame tracks one in-flight function call: its own instruction decoder
// and the operand-stack offset its locals are addressed relative to.
//
// Grounded on the teacher's vm/frame.go, but with its closure-carrying
// field (*object.Closure) replaced: sprachli functions are never
// closures (see DESIGN.md), so a Frame only ever needs the callee's
// arity and body, not a captured environment.
type Frame struct {
	fn          bytecode.Function
	decoder     *bytecode.Decoder
	basePointer int
}

// NewFrame creates a Frame for fn, whose locals are addressed as
// stack[basePointer+i].
func NewFrame(fn bytecode.Function, basePointer int) *Frame {
	return &Frame{fn: fn, decoder: bytecode.NewDecoder(fn.Body), basePointer: basePointer}
}

// Next decodes the frame's next instruction and advances past it.
func (f *Frame) Next() (bytecode.Opcode, byte, error) {
	return f.decoder.Next()
}

// Done reports whether the frame has run off the end of its body: the
// implicit fall-through return.
func (f *Frame) Done() bool {
	return f.decoder.Done()
}

// JumpForward moves the cursor forward by offset bytes from its current
// position (i.e. from just after the jump instruction that was just
// decoded).
func (f *Frame) JumpForward(offset int) {
	f.decoder.SetPos(f.decoder.Pos() + offset)
}

// JumpBackward moves the cursor backward by offset bytes, undoing the
// compiler's "sum from the target index up to and including the jump
// instruction" backward-patch computation.
func (f *Frame) JumpBackward(offset int) {
	f.decoder.SetPos(f.decoder.Pos() - offset)
}
