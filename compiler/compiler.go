// Package compiler lowers a sprachli AST (see package ast) into a
// bytecode.Module, grounded on original_source/src/compiler/mod.rs's
// Compiler/InstructionCompiler. See DESIGN.md for how its virtual-stack
// and jump-patching design replaces the teacher's scope/closure-based
// SymbolTable: sprachli has no closures, so every identifier resolves
// either to a slot on the current function's own virtual operand stack
// or to a named global, never to a captured free variable.
package compiler

import (
	"fmt"

	"github.com/SillyFreak/sprachli/ast"
	"github.com/SillyFreak/sprachli/bytecode"
	"github.com/SillyFreak/sprachli/lexer"
	"github.com/SillyFreak/sprachli/number"
	"github.com/SillyFreak/sprachli/parser"
)

// Compile lowers a parsed Program into a bytecode.Module. Top-level fn
// declarations become global function constants, struct declarations
// become struct-type descriptors, and use/mixin/impl declarations are
// rejected (see ErrUnsupported).
func Compile(prog *ast.Program) (*bytecode.Module, error) {
	c := &Compiler{module: bytecode.NewModule()}
	for _, decl := range prog.Declarations {
		if err := c.compileDeclaration(decl); err != nil {
			return nil, err
		}
	}
	return c.module, nil
}

// CompileSource lexes, parses, and compiles a complete sprachli source
// file, surfacing the first parser error (if any) before attempting to
// compile.
func CompileSource(src string) (*bytecode.Module, error) {
	l := lexer.New(src)
	p := parser.New(l)
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("parse error: %s", errs[0])
	}
	return Compile(prog)
}

// Compiler accumulates a bytecode.Module across a program's declarations.
// Its constant pool is shared by every function compiled from the
// program, which is what lets globals reference each other regardless
// of declaration order: a call to another top-level fn is resolved by
// name at run time via OpLoadNamed, never by embedding the callee's
// constant index directly.
type Compiler struct {
	module *bytecode.Module
}

func (c *Compiler) compileDeclaration(decl ast.Declaration) error {
	switch d := decl.(type) {
	case *ast.FnDeclaration:
		body, arity, err := c.compileFunctionBody(d.Parameters, d.Body)
		if err != nil {
			return err
		}
		fnIdx := c.module.AddConstant(bytecode.FunctionConstant(arity, body))
		c.module.AddGlobal(d.Name.Value, fnIdx)
		return nil
	case *ast.StructDeclaration:
		st, err := c.compileStructType(d)
		if err != nil {
			return err
		}
		c.module.AddStruct(d.Name.Value, st)
		return nil
	case *ast.UseDeclaration:
		return fmt.Errorf("%w: use declaration %q", ErrUnsupported, d.String())
	case *ast.MixinDeclaration:
		return fmt.Errorf("%w: mixin declaration %q", ErrUnsupported, d.Name.Value)
	case *ast.ImplDeclaration:
		return fmt.Errorf("%w: impl declaration %q", ErrUnsupported, d.String())
	default:
		return fmt.Errorf("%w: unrecognized declaration %T", ErrUnsupported, decl)
	}
}

func (c *Compiler) compileStructType(decl *ast.StructDeclaration) (bytecode.StructType, error) {
	switch decl.Members.Kind {
	case ast.StructEmpty:
		return bytecode.StructType{Kind: bytecode.StructEmpty}, nil
	case ast.StructPositional:
		return bytecode.StructType{Kind: bytecode.StructPositional, PositionalCount: len(decl.Members.Fields)}, nil
	case ast.StructNamed:
		st := bytecode.StructType{Kind: bytecode.StructNamed}
		for _, f := range decl.Members.Fields {
			st.FieldConstIndices = append(st.FieldConstIndices, c.module.AddConstant(bytecode.StringConstant(f.Value)))
		}
		return st, nil
	default:
		return bytecode.StructType{}, fmt.Errorf("%w: unrecognized struct member shape", ErrUnsupported)
	}
}

// compileFunctionBody compiles a single function's parameters and block
// body into a self-contained instruction stream plus its arity.
func (c *Compiler) compileFunctionBody(params []*ast.Identifier, body *ast.BlockExpression) ([]byte, int, error) {
	fc := &funcCompiler{c: c}
	for _, p := range params {
		fc.stack = append(fc.stack, &variable{name: p.Value})
	}
	if err := fc.compileBlock(body); err != nil {
		return nil, 0, err
	}
	// No explicit trailing Return is emitted: running off the end of the
	// body is the implicit fall-through return the interpreter's
	// drain-down-to-the-result logic handles (see SPEC_FULL.md).
	return fc.finalize(), len(params), nil
}

// variable is a named binding currently live on the virtual operand
// stack. A nil *variable entry in funcCompiler.stack represents an
// anonymous (unnamed) value at that stack position.
type variable struct {
	name    string
	mutable bool
}

// jumpTarget tracks one enclosing loop: where its body starts (for
// `continue`'s backward jump), how deep the virtual stack was at loop
// entry (so break/continue know how many locals to drain), and the
// placeholder items of any `break` forward jumps still waiting to be
// resolved once the loop's end position is known.
type jumpTarget struct {
	depth          int
	loopStartIndex int
	endJumps       []int
}

// instr is one pending instruction: an opcode plus an operand byte that
// may still be a placeholder awaiting a jump-offset patch.
type instr struct {
	op      bytecode.Opcode
	operand byte
}

// funcCompiler lowers one function body (top-level fn or nested fn
// expression) to bytecode. It tracks a virtual model of the runtime
// operand stack (funcCompiler.stack) to resolve identifiers to LOAD_LOCAL
// slot indices, to decide LOAD_LOCAL vs LOAD_NAMED, and to size the
// POP_SCOPE drains at block exit and at break/continue; jump offsets are
// computed separately, from the encoded byte lengths of the items already
// emitted.
//
// sprachli has no closures (see DESIGN.md): a nested fn expression gets
// its own fresh funcCompiler that starts from its own parameters only
// and can never see an enclosing function's locals.
type funcCompiler struct {
	c           *Compiler
	stack       []*variable
	jumpTargets []*jumpTarget
	items       []instr
}

func (fc *funcCompiler) push()      { fc.stack = append(fc.stack, nil) }
func (fc *funcCompiler) popN(n int) { fc.stack = fc.stack[:len(fc.stack)-n] }

func (fc *funcCompiler) emit(op bytecode.Opcode, operand byte) int {
	fc.items = append(fc.items, instr{op, operand})
	return len(fc.items) - 1
}

func (fc *funcCompiler) emitPlaceholder(op bytecode.Opcode) int {
	return fc.emit(op, 0)
}

// resolveForward patches the placeholder jump at idx to land on the
// current end of the instruction stream, i.e. the next instruction that
// will be emitted.
func (fc *funcCompiler) resolveForward(idx int) error {
	offset := sumLen(fc.items, idx+1, len(fc.items)-1)
	if offset > 255 {
		return fmt.Errorf("%w: forward jump spans %d bytes", ErrJumpTooFar, offset)
	}
	fc.items[idx].operand = byte(offset)
	return nil
}

// emitBackwardJump emits op (OpJumpBackward or OpJumpBackwardIf) whose
// offset reaches back to startIndex, counting the jump instruction
// itself as part of the span it must leap over.
func (fc *funcCompiler) emitBackwardJump(op bytecode.Opcode, startIndex int) error {
	idx := fc.emit(op, 0)
	offset := sumLen(fc.items, startIndex, idx)
	if offset > 255 {
		return fmt.Errorf("%w: backward jump spans %d bytes", ErrJumpTooFar, offset)
	}
	fc.items[idx].operand = byte(offset)
	return nil
}

func sumLen(items []instr, from, to int) int {
	total := 0
	for i := from; i <= to; i++ {
		total += bytecode.EncodedLen(items[i].op)
	}
	return total
}

func (fc *funcCompiler) finalize() []byte {
	var buf []byte
	for _, it := range fc.items {
		buf = bytecode.Make(buf, it.op, it.operand)
	}
	return buf
}

// findLocal searches the virtual stack top-down for a named binding,
// matching how an inner `let` shadows an outer one of the same name.
func (fc *funcCompiler) findLocal(name string) (slot int, v *variable, found bool) {
	for i := len(fc.stack) - 1; i >= 0; i-- {
		if fc.stack[i] != nil && fc.stack[i].name == name {
			return i, fc.stack[i], true
		}
	}
	return 0, nil, false
}

func (fc *funcCompiler) globalNameConst(name string) (int, error) {
	idx := fc.c.module.AddConstant(bytecode.StringConstant(name))
	if idx > 255 {
		return 0, ErrTooManyConstants
	}
	return idx, nil
}

// compileBlock compiles a `{ ... }` block. Its net effect on the virtual
// stack, as for any expression, is always +1: exactly one value (the
// block's result, or Unit if it has no trailing expression) ends up on
// top once any locals the block introduced have been drained.
func (fc *funcCompiler) compileBlock(block *ast.BlockExpression) error {
	scopeStart := len(fc.stack)

	for _, stmt := range block.Statements {
		if err := fc.compileStatement(stmt); err != nil {
			return err
		}
	}

	if block.Result != nil {
		if err := fc.compileExpression(block.Result); err != nil {
			return err
		}
	} else {
		fc.emit(bytecode.OpUnit, 0)
		fc.push()
	}

	locals := len(fc.stack) - 1 - scopeStart
	if locals > 255 {
		return ErrTooManyLocals
	}
	if locals > 0 {
		fc.emit(bytecode.OpPopScope, byte(locals))
	}
	fc.stack = append(fc.stack[:scopeStart], nil)
	return nil
}

func (fc *funcCompiler) compileStatement(stmt ast.Statement) error {
	switch s := stmt.(type) {
	case *ast.VariableDeclaration:
		if err := fc.compileExpression(s.Initializer); err != nil {
			return err
		}
		fc.stack[len(fc.stack)-1] = &variable{name: s.Name.Value, mutable: s.Mutable}
		return nil

	case *ast.Assignment:
		ident, ok := s.Left.(*ast.Identifier)
		if !ok {
			return fmt.Errorf("%w: %s", ErrInvalidAssignmentTarget, s.Left.String())
		}
		if err := fc.compileExpression(s.Value); err != nil {
			return err
		}
		if slot, v, found := fc.findLocal(ident.Value); found {
			if !v.mutable {
				return fmt.Errorf("%w: %s", ErrImmutableVariable, ident.Value)
			}
			fc.emit(bytecode.OpStoreLocal, byte(slot))
			fc.popN(1)
			return nil
		}
		nameIdx, err := fc.globalNameConst(ident.Value)
		if err != nil {
			return err
		}
		fc.emit(bytecode.OpStoreNamed, byte(nameIdx))
		fc.popN(1)
		return nil

	case *ast.Jump:
		return fc.compileJump(s)

	case *ast.ExpressionStatement:
		if err := fc.compileExpression(s.Expression); err != nil {
			return err
		}
		fc.emit(bytecode.OpPop, 0)
		fc.popN(1)
		return nil

	default:
		return fmt.Errorf("%w: unrecognized statement %T", ErrUnsupported, stmt)
	}
}

func (fc *funcCompiler) compileJump(j *ast.Jump) error {
	switch j.Kind {
	case ast.JumpReturn:
		if err := fc.compileJumpValue(j.Value); err != nil {
			return err
		}
		fc.emit(bytecode.OpReturn, 0)
		fc.popN(1)
		return nil

	case ast.JumpBreak:
		jt, err := fc.currentLoop()
		if err != nil {
			return err
		}
		if err := fc.compileJumpValue(j.Value); err != nil {
			return err
		}
		if err := fc.drainToLoopDepth(jt, 1); err != nil {
			return err
		}
		idx := fc.emitPlaceholder(bytecode.OpJumpForward)
		jt.endJumps = append(jt.endJumps, idx)
		fc.popN(1)
		return nil

	case ast.JumpContinue:
		jt, err := fc.currentLoop()
		if err != nil {
			return err
		}
		if j.Value != nil {
			return fmt.Errorf("%w: continue with a value", ErrUnsupported)
		}
		// OpPopScope always preserves the top value, so a sacrificial Unit
		// is pushed first: there's no break-style result to keep here, but
		// the drain still needs something on top to spare.
		fc.emit(bytecode.OpUnit, 0)
		fc.push()
		if err := fc.drainToLoopDepth(jt, 1); err != nil {
			return err
		}
		fc.emit(bytecode.OpPop, 0)
		fc.popN(1)
		return fc.emitBackwardJump(bytecode.OpJumpBackward, jt.loopStartIndex)

	default:
		return fmt.Errorf("%w: unrecognized jump kind %s", ErrUnsupported, j.Kind)
	}
}

func (fc *funcCompiler) compileJumpValue(value ast.Expression) error {
	if value != nil {
		return fc.compileExpression(value)
	}
	fc.emit(bytecode.OpUnit, 0)
	fc.push()
	return nil
}

func (fc *funcCompiler) currentLoop() (*jumpTarget, error) {
	if len(fc.jumpTargets) == 0 {
		return nil, ErrNoLoopToExit
	}
	return fc.jumpTargets[len(fc.jumpTargets)-1], nil
}

// drainToLoopDepth emits a POP_SCOPE for any locals introduced inside
// the loop body (and any blocks nested within it) below the values kept
// (a break's result, if any) so the stack is exactly as deep as it was
// at loop entry, plus kept, once the jump executes.
func (fc *funcCompiler) drainToLoopDepth(jt *jumpTarget, kept int) error {
	locals := (len(fc.stack) - kept) - jt.depth
	if locals > 255 {
		return ErrTooManyLocals
	}
	if locals > 0 {
		fc.emit(bytecode.OpPopScope, byte(locals))
	}
	return nil
}

func (fc *funcCompiler) compileExpression(expr ast.Expression) error {
	switch e := expr.(type) {
	case *ast.Identifier:
		return fc.compileIdentifier(e)
	case *ast.NumberLiteral:
		return fc.compileNumberLiteral(e)
	case *ast.BoolLiteral:
		if e.Value {
			fc.emit(bytecode.OpTrue, 0)
		} else {
			fc.emit(bytecode.OpFalse, 0)
		}
		fc.push()
		return nil
	case *ast.StringLiteral:
		return fc.compileStringLiteral(e)
	case *ast.UnaryExpression:
		return fc.compileUnaryExpression(e)
	case *ast.BinaryExpression:
		return fc.compileBinaryExpression(e)
	case *ast.CallExpression:
		return fc.compileCallExpression(e)
	case *ast.BlockExpression:
		return fc.compileBlock(e)
	case *ast.FnExpression:
		return fc.compileFnExpression(e)
	case *ast.IfExpression:
		return fc.compileIfExpression(e)
	case *ast.LoopExpression:
		return fc.compileLoopExpression(e)
	default:
		return fmt.Errorf("%w: unrecognized expression %T", ErrUnsupported, expr)
	}
}

func (fc *funcCompiler) compileIdentifier(id *ast.Identifier) error {
	if slot, _, found := fc.findLocal(id.Value); found {
		if slot > 255 {
			return ErrTooManyLocals
		}
		fc.emit(bytecode.OpLoadLocal, byte(slot))
	} else {
		idx, err := fc.globalNameConst(id.Value)
		if err != nil {
			return err
		}
		fc.emit(bytecode.OpLoadNamed, byte(idx))
	}
	fc.push()
	return nil
}

func (fc *funcCompiler) compileNumberLiteral(n *ast.NumberLiteral) error {
	num, err := number.Parse(n.Value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNumberLiteral, err)
	}
	idx := fc.c.module.AddConstant(bytecode.NumberConstant(num))
	if idx > 255 {
		return ErrTooManyConstants
	}
	fc.emit(bytecode.OpConstant, byte(idx))
	fc.push()
	return nil
}

func (fc *funcCompiler) compileStringLiteral(s *ast.StringLiteral) error {
	text, err := interpretStringEscapes(s.Value)
	if err != nil {
		return err
	}
	idx := fc.c.module.AddConstant(bytecode.StringConstant(text))
	if idx > 255 {
		return ErrTooManyConstants
	}
	fc.emit(bytecode.OpConstant, byte(idx))
	fc.push()
	return nil
}

// interpretStringEscapes turns a string literal's raw source text (as
// captured verbatim by the lexer) into its run-time value, failing on
// any escape sequence besides \\, \", \n, \r, and \t.
func interpretStringEscapes(raw string) (string, error) {
	var out []byte
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if ch != '\\' {
			out = append(out, ch)
			continue
		}
		i++
		if i >= len(raw) {
			return "", fmt.Errorf("%w: unterminated escape sequence", ErrInvalidStringLiteral)
		}
		switch raw[i] {
		case '\\':
			out = append(out, '\\')
		case '"':
			out = append(out, '"')
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		default:
			return "", fmt.Errorf("%w: illegal escape '\\%c'", ErrInvalidStringLiteral, raw[i])
		}
	}
	return string(out), nil
}

func (fc *funcCompiler) compileUnaryExpression(u *ast.UnaryExpression) error {
	if err := fc.compileExpression(u.Right); err != nil {
		return err
	}
	fc.emit(bytecode.OpUnary, byte(u.Operator))
	// OpUnary's stack effect is 0: it pops its operand and pushes one
	// result, so the +1 already accounted for by compiling Right stands.
	return nil
}

func (fc *funcCompiler) compileBinaryExpression(b *ast.BinaryExpression) error {
	if err := fc.compileExpression(b.Left); err != nil {
		return err
	}
	if err := fc.compileExpression(b.Right); err != nil {
		return err
	}
	fc.emit(bytecode.OpBinary, byte(b.Operator))
	fc.popN(2)
	fc.push()
	return nil
}

func (fc *funcCompiler) compileCallExpression(call *ast.CallExpression) error {
	if err := fc.compileExpression(call.Function); err != nil {
		return err
	}
	for _, arg := range call.Arguments {
		if err := fc.compileExpression(arg); err != nil {
			return err
		}
	}
	if len(call.Arguments) > 255 {
		return fmt.Errorf("%w: call has more than 255 arguments", ErrTooManyLocals)
	}
	fc.emit(bytecode.OpCall, byte(len(call.Arguments)))
	fc.popN(len(call.Arguments) + 1)
	fc.push()
	return nil
}

func (fc *funcCompiler) compileFnExpression(fn *ast.FnExpression) error {
	body, arity, err := fc.c.compileFunctionBody(fn.Parameters, fn.Body)
	if err != nil {
		return err
	}
	idx := fc.c.module.AddConstant(bytecode.FunctionConstant(arity, body))
	if idx > 255 {
		return ErrTooManyConstants
	}
	fc.emit(bytecode.OpConstant, byte(idx))
	fc.push()
	return nil
}

// compileIfExpression lowers an if/else-if/else chain. Only one branch
// ever executes at run time, but the compiler must emit code for all of
// them; each branch's body push is provisionally undone (a synthetic -1)
// so the virtual stack doesn't accumulate one push per branch, and a
// single push is applied once for the if-expression's actual result.
func (fc *funcCompiler) compileIfExpression(ie *ast.IfExpression) error {
	var endJumps []int

	for _, branch := range ie.Branches {
		if err := fc.compileExpression(branch.Condition); err != nil {
			return err
		}
		fc.emit(bytecode.OpUnary, byte(ast.OpNot))

		jumpIfIdx := fc.emitPlaceholder(bytecode.OpJumpForwardIf)
		fc.popN(1) // the (negated) condition is consumed by the conditional jump

		if err := fc.compileBlock(branch.Body); err != nil {
			return err
		}
		fc.popN(1) // synthetic: don't accumulate this branch's push

		endJumps = append(endJumps, fc.emitPlaceholder(bytecode.OpJumpForward))
		if err := fc.resolveForward(jumpIfIdx); err != nil {
			return err
		}
	}

	if ie.Else != nil {
		if err := fc.compileBlock(ie.Else); err != nil {
			return err
		}
		fc.popN(1)
	} else {
		fc.emit(bytecode.OpUnit, 0)
	}

	for _, idx := range endJumps {
		if err := fc.resolveForward(idx); err != nil {
			return err
		}
	}

	fc.push()
	return nil
}

// compileLoopExpression lowers `loop { ... }`. Each iteration's body
// result is discarded (only a `break` value becomes the loop's result);
// the loop gets a synthetic +1 push once, to stand for whatever break
// value eventually lands on the stack when it's exited.
func (fc *funcCompiler) compileLoopExpression(le *ast.LoopExpression) error {
	startIndex := len(fc.items)
	jt := &jumpTarget{depth: len(fc.stack), loopStartIndex: startIndex}
	fc.jumpTargets = append(fc.jumpTargets, jt)

	if err := fc.compileBlock(le.Body); err != nil {
		return err
	}
	fc.emit(bytecode.OpPop, 0)
	fc.popN(1)

	if err := fc.emitBackwardJump(bytecode.OpJumpBackward, startIndex); err != nil {
		return err
	}

	fc.jumpTargets = fc.jumpTargets[:len(fc.jumpTargets)-1]

	for _, idx := range jt.endJumps {
		if err := fc.resolveForward(idx); err != nil {
			return err
		}
	}

	fc.push()
	return nil
}
