// Package bytecode defines sprachli's binary module format: the in-memory
// Module/Constant/Function/Struct container, the instruction set compiled
// function bodies are made of, and the deterministic binary codec that
// serializes a Module to and parses it back from bytes.
package bytecode

import (
	"fmt"

	"github.com/SillyFreak/sprachli/ast"
)

// Opcode identifies a single bytecode instruction.
type Opcode byte

// Opcode 0 is deliberately never assigned to a real instruction: decoding
// it is always an error (see ErrInvalidOpcode), which is a directly
// testable property of this binary format. Every other opcode below
// corresponds 1:1 to a sprachli_bytecode Instruction variant, numbered in
// the same order, shifted up by one to make room for OpInvalid.
const (
	OpInvalid Opcode = iota

	OpConstant
	OpUnit
	OpTrue
	OpFalse

	OpUnary
	OpBinary

	OpLoadLocal
	OpStoreLocal
	OpLoadNamed
	OpStoreNamed
	OpLoadPositionalField
	OpStorePositionalField
	OpLoadNamedField
	OpStoreNamedField

	OpPop
	OpPopScope
	OpCall
	OpReturn

	OpJumpForward
	OpJumpBackward
	OpJumpForwardIf
	OpJumpBackwardIf

	opcodeCount
)

// Definition describes an opcode's mnemonic and whether it takes a single
// one-byte operand.
type Definition struct {
	Name      string
	HasOperand bool
}

var definitions = map[Opcode]*Definition{
	OpConstant:             {"CONST", true},
	OpUnit:                 {"UNIT", false},
	OpTrue:                 {"TRUE", false},
	OpFalse:                {"FALSE", false},
	OpUnary:                {"UNARY", true},
	OpBinary:               {"BINARY", true},
	OpLoadLocal:            {"LOAD_LOCAL", true},
	OpStoreLocal:           {"STORE_LOCAL", true},
	OpLoadNamed:            {"LOAD_NAMED", true},
	OpStoreNamed:           {"STORE_NAMED", true},
	OpLoadPositionalField:  {"LOAD_FIELD", true},
	OpStorePositionalField: {"STORE_FIELD", true},
	OpLoadNamedField:       {"LOAD_FIELD_NAMED", true},
	OpStoreNamedField:      {"STORE_FIELD_NAMED", true},
	OpPop:                  {"POP", false},
	OpPopScope:             {"POP_SCOPE", true},
	OpCall:                 {"CALL", true},
	OpReturn:               {"RETURN", false},
	OpJumpForward:          {"JUMP", true},
	OpJumpBackward:         {"JUMP_BACK", true},
	OpJumpForwardIf:        {"JUMP_IF", true},
	OpJumpBackwardIf:       {"JUMP_IF_BACK", true},
}

// Lookup returns op's Definition, or an error if op is OpInvalid or out of range.
func Lookup(op Opcode) (*Definition, error) {
	def, ok := definitions[op]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidOpcode, op)
	}
	return def, nil
}

// EncodedLen returns the number of bytes op and its operand (if any) occupy
// in an instruction stream.
func EncodedLen(op Opcode) int {
	def, ok := definitions[op]
	if !ok {
		return 1
	}
	if def.HasOperand {
		return 2
	}
	return 1
}

// StackEffect returns the net change in operand-stack height caused by
// executing the instruction at op with the given one-byte operand (ignored
// for opcodes that don't carry one). ok is false for OpPopScope, whose
// effect depends on how many values it drains and so cannot be known from
// the opcode alone (the compiler computes it from context instead), and for
// an opcode with no definition.
func StackEffect(op Opcode, operand byte) (effect int, ok bool) {
	switch op {
	case OpConstant, OpUnit, OpTrue, OpFalse, OpLoadLocal, OpLoadNamed, OpLoadPositionalField, OpLoadNamedField:
		return 1, true
	case OpUnary:
		return 0, true
	case OpBinary, OpStoreLocal, OpStoreNamed, OpStorePositionalField, OpStoreNamedField, OpPop:
		return -1, true
	case OpPopScope:
		return 0, false
	case OpCall:
		return -int(operand), true
	case OpReturn:
		return -1, true
	case OpJumpForward, OpJumpBackward:
		return 0, true
	case OpJumpForwardIf, OpJumpBackwardIf:
		return -1, true
	default:
		return 0, false
	}
}

// encodeUnaryOperator/encodeBinaryOperator map ast operator enums to the
// one-byte encodings used in a function body's instruction stream.

func encodeUnaryOperator(op ast.UnaryOperator) byte { return byte(op) }

func decodeUnaryOperator(b byte) (ast.UnaryOperator, error) {
	op := ast.UnaryOperator(b)
	if op != ast.OpNegate && op != ast.OpNot {
		return 0, fmt.Errorf("%w: unary operator %d", ErrInvalidInstruction, b)
	}
	return op, nil
}

func encodeBinaryOperator(op ast.BinaryOperator) byte { return byte(op) }

func decodeBinaryOperator(b byte) (ast.BinaryOperator, error) {
	op := ast.BinaryOperator(b)
	if op < ast.OpMultiply || op > ast.OpLessEquals {
		return 0, fmt.Errorf("%w: binary operator %d", ErrInvalidInstruction, b)
	}
	return op, nil
}

// Make encodes a single instruction (opcode plus optional operand byte)
// and appends it to buf, returning the extended slice.
func Make(buf []byte, op Opcode, operand byte) []byte {
	buf = append(buf, byte(op))
	def := definitions[op]
	if def != nil && def.HasOperand {
		buf = append(buf, operand)
	}
	return buf
}

// FormatInstruction returns a disassembly line for the instruction at ins[0],
// e.g. "CONST 3" or "POP".
func FormatInstruction(ins []byte) (string, error) {
	if len(ins) == 0 {
		return "", fmt.Errorf("%w: empty instruction", ErrInvalidInstruction)
	}
	op := Opcode(ins[0])
	def, err := Lookup(op)
	if err != nil {
		return "", err
	}
	if !def.HasOperand {
		return def.Name, nil
	}
	if len(ins) < 2 {
		return "", fmt.Errorf("%w: %s missing operand", ErrIncompleteInstruction, def.Name)
	}
	return fmt.Sprintf("%s %d", def.Name, ins[1]), nil
}
