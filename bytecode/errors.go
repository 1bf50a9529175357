package bytecode

import "errors"

// Sentinel errors for the bytecode container and binary codec, grounded
// on sprachli_bytecode's error.rs. Use errors.Is against these, wrapped
// with fmt.Errorf("%w: ...", ...) for additional context.
var (
	// ErrParse covers malformed binary input: a bad magic header, a
	// truncated block, or any other structural decode failure.
	ErrParse = errors.New("bytecode: malformed binary module")

	// ErrInvalidConstantType is raised when a constant's kind tag byte
	// doesn't name one of Number, String, or Function.
	ErrInvalidConstantType = errors.New("bytecode: invalid constant type tag")

	// ErrInvalidStringConstant is raised when a String constant's bytes
	// are not valid UTF-8.
	ErrInvalidStringConstant = errors.New("bytecode: invalid string constant")

	// ErrInvalidNumberConstant is raised when a Number constant's text
	// doesn't parse as a decimal.
	ErrInvalidNumberConstant = errors.New("bytecode: invalid number constant")

	// ErrInvalidOpcode is raised when an opcode byte is 0 (OpInvalid) or
	// otherwise names no instruction.
	ErrInvalidOpcode = errors.New("bytecode: invalid opcode")

	// ErrIncompleteInstruction is raised when an instruction's operand
	// byte is missing at the end of a function body.
	ErrIncompleteInstruction = errors.New("bytecode: incomplete instruction")

	// ErrInvalidInstruction is raised when an instruction's operand value
	// is out of range for its opcode (e.g. an out-of-range operator byte).
	ErrInvalidInstruction = errors.New("bytecode: invalid instruction")

	// ErrInvalidConstantRef is raised when a global or struct field
	// definition references a constant pool index that doesn't exist.
	ErrInvalidConstantRef = errors.New("bytecode: invalid constant reference")

	// ErrInvalidConstantRefType is raised when a constant pool index is
	// used somewhere that requires a specific constant kind (e.g. a
	// global or struct field name must be a String constant).
	ErrInvalidConstantRefType = errors.New("bytecode: constant reference has the wrong type")

	// ErrInvalidStructType is raised when a struct descriptor's member
	// kind tag byte is unrecognized.
	ErrInvalidStructType = errors.New("bytecode: invalid struct type")
)
