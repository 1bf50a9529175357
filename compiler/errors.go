// Package compiler lowers a sprachli AST (see package ast) into a
// bytecode.Module, grounded on original_source/src/compiler/mod.rs's
// Compiler/InstructionCompiler. See DESIGN.md for how its virtual-stack
// and jump-patching design replaces the teacher's symbol-table scoping.
package compiler

import "errors"

// Compile-time sentinel errors, matching SPEC_FULL.md §7's compile-time
// taxonomy.
var (
	// ErrInvalidAssignmentTarget is raised when the left-hand side of an
	// assignment is not a plain identifier.
	ErrInvalidAssignmentTarget = errors.New("compiler: invalid assignment target")

	// ErrImmutableVariable is raised when assigning to a `let` binding
	// that was not declared `mut`.
	ErrImmutableVariable = errors.New("compiler: cannot assign to immutable variable")

	// ErrNoLoopToExit is raised when `break` or `continue` appears
	// outside any enclosing `loop`.
	ErrNoLoopToExit = errors.New("compiler: break/continue outside of a loop")

	// ErrUnsupported is raised for constructs this compiler recognizes
	// syntactically but never lowers: use, impl, and mixin declarations.
	ErrUnsupported = errors.New("compiler: unsupported construct")

	// ErrInvalidNumberLiteral is raised when a number literal's text
	// cannot be parsed as a decimal.
	ErrInvalidNumberLiteral = errors.New("compiler: invalid number literal")

	// ErrInvalidStringLiteral is raised when a string literal contains an
	// escape sequence other than \\, \", \n, \r, or \t.
	ErrInvalidStringLiteral = errors.New("compiler: invalid string literal")

	// ErrTooManyConstants is an internal limit: the constant pool's and a
	// function body's operands are one byte wide, capping both at 256
	// entries (see SPEC_FULL.md, Supplemented Features, on the operand width).
	ErrTooManyConstants = errors.New("compiler: constant pool exceeded 256 entries")

	// ErrTooManyLocals is the equivalent internal limit for a single
	// function's simultaneous local/parameter slots.
	ErrTooManyLocals = errors.New("compiler: function has more than 256 live locals")

	// ErrJumpTooFar is an internal limit: jump offsets are encoded as a
	// single byte, capping a jump's reach at 255 bytes of instructions.
	ErrJumpTooFar = errors.New("compiler: jump target is more than 255 bytes away")
)
