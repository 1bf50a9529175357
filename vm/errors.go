// Package vm implements sprachli's stack-based interpreter: the
// fetch-decode-execute loop that runs a compiled bytecode.Module,
// grounded on original_source/src/vm/interpreter/mod.rs.
package vm

import "errors"

// Runtime sentinel errors, matching SPEC_FULL.md §7's runtime taxonomy.
var (
	// ErrNameError is raised when OpLoadNamed references a name with no
	// bound global.
	ErrNameError = errors.New("vm: name not bound")

	// ErrValueError covers arity mismatches and similar value-shape
	// problems that aren't simply a wrong Kind.
	ErrValueError = errors.New("vm: invalid value")

	// ErrEmptyStack is raised by any stack operation that underflows.
	ErrEmptyStack = errors.New("vm: operand stack underflow")

	// ErrInvalidLocal is raised when a local slot index falls outside
	// the current frame's live range.
	ErrInvalidLocal = errors.New("vm: invalid local slot")

	// ErrInvalidJump is raised when a jump target falls outside the
	// current function body.
	ErrInvalidJump = errors.New("vm: invalid jump target")

	// ErrNotImplemented marks an opcode this interpreter recognizes but
	// doesn't yet execute: the struct-field load/store opcodes, reserved
	// until sprachli gets a struct-literal construction expression (see
	// SPEC_FULL.md's Supplemented Features / Open Questions).
	ErrNotImplemented = errors.New("vm: not yet implemented")

	// ErrUnsupportedWrite is raised by OpStoreNamed: writing to a global
	// is rejected unconditionally at run time, regardless of whether the
	// name is bound.
	ErrUnsupportedWrite = errors.New("vm: writes to globals are rejected")
)
