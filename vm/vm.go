package vm

import (
	"fmt"
	"math/big"

	"github.com/SillyFreak/sprachli/ast"
	"github.com/SillyFreak/sprachli/bytecode"
	"github.com/SillyFreak/sprachli/number"
	"github.com/SillyFreak/sprachli/value"
)

// VM is sprachli's single-threaded, synchronous bytecode interpreter. It
// holds the module being executed and its operand stack; there is no
// task system, suspension, or concurrency inside the core (see
// SPEC_FULL.md §5) — one VM runs one program to completion or failure.
type VM struct {
	module *bytecode.Module
	stack  []value.Value
	frames []*Frame
}

// New creates a VM ready to Run m.
func New(m *bytecode.Module) *VM {
	return &VM{module: m}
}

// Run resolves the global `main`, invokes it with zero arguments, and
// returns the single Value left on the stack, or the first error raised
// by compilation-independent runtime checks.
func (vm *VM) Run() (value.Value, error) {
	mainIdx, ok := vm.module.Global("main")
	if !ok {
		return value.Value{}, fmt.Errorf("%w: main", ErrNameError)
	}
	mainVal, err := vm.valueFromConstant(mainIdx)
	if err != nil {
		return value.Value{}, err
	}
	vm.push(mainVal)
	if err := vm.call(0); err != nil {
		return value.Value{}, err
	}
	if err := vm.runFrame(); err != nil {
		return value.Value{}, err
	}
	return vm.pop()
}

// valueFromConstant builds a runtime Value from the constant at idx,
// used both to seed globals and to push constants onto the stack.
func (vm *VM) valueFromConstant(idx int) (value.Value, error) {
	c, err := vm.module.Constant(idx)
	if err != nil {
		return value.Value{}, err
	}
	switch c.Kind {
	case bytecode.ConstNumber:
		return value.NewNumber(c.Number), nil
	case bytecode.ConstString:
		return value.NewString(c.String), nil
	case bytecode.ConstFunction:
		return value.NewFunction(idx), nil
	default:
		return value.Value{}, fmt.Errorf("%w: unrecognized constant kind", ErrValueError)
	}
}

// --- operand stack ---------------------------------------------------

func (vm *VM) push(v value.Value) { vm.stack = append(vm.stack, v) }

func (vm *VM) pop() (value.Value, error) {
	if len(vm.stack) == 0 {
		return value.Value{}, ErrEmptyStack
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

// popDeep removes the item at absolute index i, shifting everything
// above it down by one; used to pull the callee out from under its
// arguments at call time.
func (vm *VM) popDeep(i int) (value.Value, error) {
	if i < 0 || i >= len(vm.stack) {
		return value.Value{}, ErrEmptyStack
	}
	v := vm.stack[i]
	vm.stack = append(vm.stack[:i], vm.stack[i+1:]...)
	return v, nil
}

// popAllUnder drains stack[i:len-1], leaving the top value in place;
// realizes pop-scope and return's drain-to-offset.
func (vm *VM) popAllUnder(i int) error {
	if i < 0 || i > len(vm.stack)-1 {
		return ErrEmptyStack
	}
	top := vm.stack[len(vm.stack)-1]
	vm.stack = append(vm.stack[:i], top)
	return nil
}

func (vm *VM) get(i int) (value.Value, error) {
	if i < 0 || i >= len(vm.stack) {
		return value.Value{}, ErrInvalidLocal
	}
	return vm.stack[i], nil
}

func (vm *VM) set(i int, v value.Value) error {
	if i < 0 || i >= len(vm.stack) {
		return ErrInvalidLocal
	}
	vm.stack[i] = v
	return nil
}

// --- call frames -------------------------------------------------------

func (vm *VM) currentFrame() *Frame { return vm.frames[len(vm.frames)-1] }

func (vm *VM) pushFrame(f *Frame) { vm.frames = append(vm.frames, f) }

func (vm *VM) popFrame() *Frame {
	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	return f
}

// call implements the `call(arity)` opcode: the stack top region is
// [callee, arg0, ..., arg{arity-1}]; the callee is pulled out from
// underneath its arguments and a new Frame is pushed to run its body.
func (vm *VM) call(arity int) error {
	offset := len(vm.stack) - arity - 1
	if offset < 0 {
		return ErrEmptyStack
	}
	calleeVal, err := vm.popDeep(offset)
	if err != nil {
		return err
	}
	fnIdx, err := calleeVal.AsFunction()
	if err != nil {
		return err
	}
	c, err := vm.module.Constant(fnIdx)
	if err != nil {
		return err
	}
	if c.Kind != bytecode.ConstFunction {
		return fmt.Errorf("%w: callee is not a function constant", ErrValueError)
	}
	if c.Function.Arity != arity {
		return fmt.Errorf("%w: function expects %d arguments, got %d", ErrValueError, c.Function.Arity, arity)
	}
	vm.pushFrame(NewFrame(c.Function, offset))
	return nil
}

// runFrame executes instructions from the VM's current (innermost)
// frame until that frame returns or its body runs out, then ensures the
// stack-frame invariant (height == offset+1) before unwinding.
func (vm *VM) runFrame() error {
	depth := len(vm.frames)
	for len(vm.frames) >= depth {
		f := vm.currentFrame()
		if f.Done() {
			// Implicit fall-through return: same drain-to-offset as an
			// explicit `return` (see the OpReturn case below and
			// DESIGN.md's resolution of the stack-frame invariant).
			if err := vm.popAllUnder(f.basePointer); err != nil {
				return err
			}
			vm.popFrame()
			continue
		}
		op, operand, err := f.Next()
		if err != nil {
			return err
		}
		if err := vm.execute(f, op, operand); err != nil {
			return err
		}
		// OpReturn pops its own frame inside execute.
	}
	return nil
}

func (vm *VM) execute(f *Frame, op bytecode.Opcode, operand byte) error {
	switch op {
	case bytecode.OpConstant:
		v, err := vm.valueFromConstant(int(operand))
		if err != nil {
			return err
		}
		vm.push(v)
		return nil

	case bytecode.OpUnit:
		vm.push(value.UnitValue)
		return nil
	case bytecode.OpTrue:
		vm.push(value.NewBool(true))
		return nil
	case bytecode.OpFalse:
		vm.push(value.NewBool(false))
		return nil

	case bytecode.OpUnary:
		return vm.execUnary(operand)
	case bytecode.OpBinary:
		return vm.execBinary(operand)

	case bytecode.OpLoadLocal:
		v, err := vm.get(f.basePointer + int(operand))
		if err != nil {
			return err
		}
		vm.push(v)
		return nil

	case bytecode.OpStoreLocal:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return vm.set(f.basePointer+int(operand), v)

	case bytecode.OpLoadNamed:
		name, err := vm.module.ConstantString(int(operand))
		if err != nil {
			return err
		}
		idx, ok := vm.module.Global(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNameError, name)
		}
		v, err := vm.valueFromConstant(idx)
		if err != nil {
			return err
		}
		vm.push(v)
		return nil

	case bytecode.OpStoreNamed:
		return ErrUnsupportedWrite

	case bytecode.OpLoadPositionalField, bytecode.OpStorePositionalField,
		bytecode.OpLoadNamedField, bytecode.OpStoreNamedField:
		return ErrNotImplemented

	case bytecode.OpPop:
		_, err := vm.pop()
		return err

	case bytecode.OpPopScope:
		return vm.popAllUnder(len(vm.stack) - 1 - int(operand))

	case bytecode.OpCall:
		return vm.call(int(operand))

	case bytecode.OpReturn:
		// Drains to f.basePointer, not basePointer+arity: the stack-frame
		// invariant (height == offset+1 after a call completes) requires
		// the callee's own arguments to be discarded along with its
		// locals, not just the locals above them.
		if err := vm.popAllUnder(f.basePointer); err != nil {
			return err
		}
		vm.popFrame()
		return nil

	case bytecode.OpJumpForward:
		return jump(f, int(operand))
	case bytecode.OpJumpBackward:
		return jump(f, -int(operand))

	case bytecode.OpJumpForwardIf:
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		b, err := cond.AsBool()
		if err != nil {
			return err
		}
		if b {
			return jump(f, int(operand))
		}
		return nil

	case bytecode.OpJumpBackwardIf:
		cond, err := vm.pop()
		if err != nil {
			return err
		}
		b, err := cond.AsBool()
		if err != nil {
			return err
		}
		if b {
			return jump(f, -int(operand))
		}
		return nil

	default:
		// unreachable: f.Next() already rejects any opcode Lookup doesn't
		// recognize, and every recognized opcode has a case above.
		return fmt.Errorf("%w: opcode %d", ErrNotImplemented, op)
	}
}

// jump moves f's cursor by delta bytes, failing with ErrInvalidJump if the
// target lies outside f's function body (its end counts as inside: it is
// the implicit fall-through return).
func jump(f *Frame, delta int) error {
	target := f.decoder.Pos() + delta
	if target < 0 || target > len(f.fn.Body) {
		return fmt.Errorf("%w: byte offset %d", ErrInvalidJump, target)
	}
	if delta >= 0 {
		f.JumpForward(delta)
	} else {
		f.JumpBackward(-delta)
	}
	return nil
}

func (vm *VM) execUnary(operand byte) error {
	op := ast.UnaryOperator(operand)
	v, err := vm.pop()
	if err != nil {
		return err
	}
	switch op {
	case ast.OpNegate:
		n, err := v.AsNumber()
		if err != nil {
			return err
		}
		vm.push(value.NewNumber(n.Neg()))
		return nil
	case ast.OpNot:
		b, err := v.AsBool()
		if err != nil {
			return err
		}
		vm.push(value.NewBool(!b))
		return nil
	default:
		return fmt.Errorf("%w: unary operator %d", ErrValueError, operand)
	}
}

// execBinary pops the right operand first, then the left (they were
// pushed left-then-right, so the right operand sits on top), and
// applies left-op-right.
func (vm *VM) execBinary(operand byte) error {
	op := ast.BinaryOperator(operand)
	right, err := vm.pop()
	if err != nil {
		return err
	}
	left, err := vm.pop()
	if err != nil {
		return err
	}

	switch op {
	case ast.OpEquals:
		vm.push(value.NewBool(left.Equal(right)))
		return nil
	case ast.OpNotEquals:
		vm.push(value.NewBool(!left.Equal(right)))
		return nil
	}

	switch op {
	case ast.OpAdd, ast.OpSubtract, ast.OpMultiply, ast.OpDivide, ast.OpModulo,
		ast.OpGreater, ast.OpGreaterEquals, ast.OpLess, ast.OpLessEquals:
		ln, err := left.AsNumber()
		if err != nil {
			return err
		}
		rn, err := right.AsNumber()
		if err != nil {
			return err
		}
		return vm.execArithmeticOrComparison(op, ln, rn)

	case ast.OpLeftShift, ast.OpRightShift, ast.OpBitAnd, ast.OpBitXor, ast.OpBitOr:
		ln, err := left.AsNumber()
		if err != nil {
			return err
		}
		rn, err := right.AsNumber()
		if err != nil {
			return err
		}
		return vm.execBitwiseOrShift(op, ln, rn)

	default:
		return fmt.Errorf("%w: binary operator %d", ErrValueError, operand)
	}
}

func (vm *VM) execArithmeticOrComparison(op ast.BinaryOperator, left, right number.Number) error {
	switch op {
	case ast.OpAdd:
		vm.push(value.NewNumber(left.Add(right)))
	case ast.OpSubtract:
		vm.push(value.NewNumber(left.Sub(right)))
	case ast.OpMultiply:
		vm.push(value.NewNumber(left.Mul(right)))
	case ast.OpDivide:
		if right.IsZero() {
			return fmt.Errorf("%w: division by zero", ErrValueError)
		}
		vm.push(value.NewNumber(left.Div(right)))
	case ast.OpModulo:
		if right.IsZero() {
			return fmt.Errorf("%w: modulo by zero", ErrValueError)
		}
		vm.push(value.NewNumber(left.Mod(right)))
	case ast.OpGreater:
		vm.push(value.NewBool(left.Compare(right) > 0))
	case ast.OpGreaterEquals:
		vm.push(value.NewBool(left.Compare(right) >= 0))
	case ast.OpLess:
		vm.push(value.NewBool(left.Compare(right) < 0))
	case ast.OpLessEquals:
		vm.push(value.NewBool(left.Compare(right) <= 0))
	default:
		return fmt.Errorf("%w: not an arithmetic/comparison operator", ErrValueError)
	}
	return nil
}

// execBitwiseOrShift requires both operands to be integer-valued
// numbers; the shift count additionally must fit a machine-sized
// signed integer, per SPEC_FULL.md's carried-over §4.H semantics.
func (vm *VM) execBitwiseOrShift(op ast.BinaryOperator, left, right number.Number) error {
	if !left.IsInteger() || !right.IsInteger() {
		return fmt.Errorf("%w: bitwise/shift operands must be integer-valued", ErrValueError)
	}
	l := left.BigInt()
	r := right.BigInt()

	switch op {
	case ast.OpBitAnd:
		vm.push(value.NewNumber(number.FromBigInt(new(big.Int).And(l, r))))
		return nil
	case ast.OpBitOr:
		vm.push(value.NewNumber(number.FromBigInt(new(big.Int).Or(l, r))))
		return nil
	case ast.OpBitXor:
		vm.push(value.NewNumber(number.FromBigInt(new(big.Int).Xor(l, r))))
		return nil
	}

	if !r.IsInt64() {
		return fmt.Errorf("%w: shift count does not fit a machine integer", ErrValueError)
	}
	shift := r.Int64()
	if shift < 0 {
		return fmt.Errorf("%w: negative shift count", ErrValueError)
	}
	switch op {
	case ast.OpLeftShift:
		vm.push(value.NewNumber(number.FromBigInt(new(big.Int).Lsh(l, uint(shift)))))
		return nil
	case ast.OpRightShift:
		vm.push(value.NewNumber(number.FromBigInt(new(big.Int).Rsh(l, uint(shift)))))
		return nil
	default:
		return fmt.Errorf("%w: not a bitwise/shift operator", ErrValueError)
	}
}
