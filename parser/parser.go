// Package parser implements the syntactic analyzer for sprachli.
//
// The parser takes a stream of tokens from the lexer and constructs an
// Abstract Syntax Tree (AST) that represents the structure of the program.
// It implements a recursive descent parser with Pratt parsing (precedence
// climbing) for expressions.
//
// Key features:
//   - Top-down parsing of declarations, statements and expressions
//   - Precedence-based expression parsing
//   - Error reporting for syntax errors
//   - Support for all language constructs this implementation defines
//
// The main entry point is the [New] function, which creates a new [Parser]
// instance, and the [Parser.ParseProgram] method, which parses a complete
// sprachli source file and returns an AST.
//
// Unsupported top-level constructs (use, impl, mixin) still parse
// successfully: they are rejected later, at compile time, with an
// Unsupported error, matching how the language this parser targets treats
// them (see compiler.ErrUnsupported).
package parser

import (
	"fmt"

	"github.com/SillyFreak/sprachli/ast"
	"github.com/SillyFreak/sprachli/lexer"
	"github.com/SillyFreak/sprachli/token"
)

const (
	_ int = iota

	// Lowest is the lowest possible precedence for parsing expressions.
	Lowest

	// Equality is the precedence of `==` and `!=`.
	Equality

	// Comparison is the precedence of `<`, `>`, `<=`, `>=`.
	Comparison

	// BitOr is the precedence of `|`.
	BitOr

	// BitXor is the precedence of `^`.
	BitXor

	// BitAnd is the precedence of `&`.
	BitAnd

	// Shift is the precedence of `<<` and `>>`.
	Shift

	// Sum is the precedence of `+` and `-`.
	Sum

	// Product is the precedence of `*`, `/` and `%`.
	Product

	// Prefix is the precedence of unary `-` and `!`.
	Prefix

	// Call is the precedence of function calls: `myFunc(x)`.
	Call
)

var precedences = map[token.Type]int{
	token.EQ:       Equality,
	token.NOT_EQ:   Equality,
	token.LT:       Comparison,
	token.LTE:      Comparison,
	token.GT:       Comparison,
	token.GTE:      Comparison,
	token.PIPE:     BitOr,
	token.CARET:    BitXor,
	token.AMP:      BitAnd,
	token.SHL:      Shift,
	token.SHR:      Shift,
	token.PLUS:     Sum,
	token.MINUS:    Sum,
	token.SLASH:    Product,
	token.ASTERISK: Product,
	token.PERCENT:  Product,
	token.LPAREN:   Call,
}

var binaryOperators = map[token.Type]ast.BinaryOperator{
	token.ASTERISK: ast.OpMultiply,
	token.SLASH:    ast.OpDivide,
	token.PERCENT:  ast.OpModulo,
	token.PLUS:     ast.OpAdd,
	token.MINUS:    ast.OpSubtract,
	token.SHR:      ast.OpRightShift,
	token.SHL:      ast.OpLeftShift,
	token.AMP:      ast.OpBitAnd,
	token.CARET:    ast.OpBitXor,
	token.PIPE:     ast.OpBitOr,
	token.EQ:       ast.OpEquals,
	token.NOT_EQ:   ast.OpNotEquals,
	token.GT:       ast.OpGreater,
	token.GTE:      ast.OpGreaterEquals,
	token.LT:       ast.OpLess,
	token.LTE:      ast.OpLessEquals,
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// Parser parses sprachli source into an AST.
type Parser struct {
	l      *lexer.Lexer
	errors []string

	currentToken token.Token
	peekToken    token.Token

	prefixParseFns map[token.Type]prefixParseFn
	infixParseFns  map[token.Type]infixParseFn
}

// New creates a new Parser reading from the given Lexer.
func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []string{},
	}

	p.prefixParseFns = make(map[token.Type]prefixParseFn)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.TRUE, p.parseBoolean)
	p.registerPrefix(token.FALSE, p.parseBoolean)
	p.registerPrefix(token.BANG, p.parseUnaryExpression)
	p.registerPrefix(token.MINUS, p.parseUnaryExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.LBRACE, p.parseBlockAsExpression)
	p.registerPrefix(token.IF, p.parseIfExpression)
	p.registerPrefix(token.LOOP, p.parseLoopExpression)
	p.registerPrefix(token.FUNCTION, p.parseFunctionLiteral)

	p.infixParseFns = make(map[token.Type]infixParseFn)
	for t := range binaryOperators {
		p.registerInfix(t, p.parseBinaryExpression)
	}
	p.registerInfix(token.LPAREN, p.parseCallExpression)

	// Read two tokens, so currentToken and peekToken are both set.
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) registerPrefix(t token.Type, fn prefixParseFn) {
	p.prefixParseFns[t] = fn
}

func (p *Parser) registerInfix(t token.Type, fn infixParseFn) {
	p.infixParseFns[t] = fn
}

// Errors returns the list of errors encountered while parsing.
func (p *Parser) Errors() []string {
	return p.errors
}

func (p *Parser) peekError(t token.Type) {
	msg := fmt.Sprintf("expected next token to be %s, got %s instead", t, p.peekToken.Type)
	p.errors = append(p.errors, msg)
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return Lowest
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.currentToken.Type]; ok {
		return prec
	}
	return Lowest
}

func (p *Parser) nextToken() {
	p.currentToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) expectPeek(t token.Type) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) currentTokenIs(t token.Type) bool {
	return p.currentToken.Type == t
}

func (p *Parser) peekTokenIs(t token.Type) bool {
	return p.peekToken.Type == t
}

// isBlockLike reports whether expr's syntax ends in `}`, so that it can be
// used as a statement inside a block without a trailing `;`.
func isBlockLike(expr ast.Expression) bool {
	switch expr.(type) {
	case *ast.BlockExpression, *ast.IfExpression, *ast.LoopExpression:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------
// Program / declarations
// ---------------------------------------------------------------------

// ParseProgram parses a complete sprachli source file and returns its AST.
//
// Check [Parser.Errors] after calling this method to see if any parsing
// errors occurred.
func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}

	for !p.currentTokenIs(token.EOF) {
		if decl := p.parseDeclaration(); decl != nil {
			program.Declarations = append(program.Declarations, decl)
		}
		p.nextToken()
	}

	return program
}

func (p *Parser) parseDeclaration() ast.Declaration {
	visibility := ast.Private
	if p.currentTokenIs(token.PUB) {
		visibility = ast.Public
		p.nextToken()
	}

	switch p.currentToken.Type {
	case token.FUNCTION:
		return p.parseFnDeclaration(visibility)
	case token.STRUCT:
		return p.parseStructDeclaration(visibility)
	case token.USE:
		return p.parseUseDeclaration(visibility)
	case token.MIXIN:
		return p.parseMixinDeclaration()
	case token.IMPL:
		return p.parseImplDeclaration()
	default:
		msg := fmt.Sprintf("expected a declaration (fn, struct, use, impl, mixin), got %s", p.currentToken.Type)
		p.errors = append(p.errors, msg)
		return nil
	}
}

func (p *Parser) parseFnDeclaration(visibility ast.Visibility) *ast.FnDeclaration {
	decl := &ast.FnDeclaration{Token: p.currentToken, Visibility: visibility}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Name = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	decl.Parameters = p.parseFunctionParameters()

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	decl.Body = p.parseBlockExpression()

	return decl
}

func (p *Parser) parseStructDeclaration(visibility ast.Visibility) *ast.StructDeclaration {
	decl := &ast.StructDeclaration{Token: p.currentToken, Visibility: visibility}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Name = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}

	switch {
	case p.peekTokenIs(token.SEMICOLON):
		p.nextToken()
		decl.Members = ast.StructMembers{Kind: ast.StructEmpty}
	case p.peekTokenIs(token.LPAREN):
		p.nextToken()
		decl.Members = ast.StructMembers{
			Kind:   ast.StructPositional,
			Fields: p.parseIdentifierList(token.RPAREN),
		}
		if p.peekTokenIs(token.SEMICOLON) {
			p.nextToken()
		}
	case p.peekTokenIs(token.LBRACE):
		p.nextToken()
		decl.Members = ast.StructMembers{
			Kind:   ast.StructNamed,
			Fields: p.parseIdentifierList(token.RBRACE),
		}
	default:
		p.errors = append(p.errors, "expected ';', '(' or '{' after struct name")
		return nil
	}

	return decl
}

func (p *Parser) parseUseDeclaration(visibility ast.Visibility) *ast.UseDeclaration {
	decl := &ast.UseDeclaration{Token: p.currentToken, Visibility: visibility}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Path = append(decl.Path, &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal})

	for p.peekTokenIs(token.COLON) {
		p.nextToken()
		if !p.expectPeek(token.COLON) {
			return nil
		}
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		decl.Path = append(decl.Path, &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal})
	}

	if p.peekTokenIs(token.IDENT) && p.peekToken.Literal == "as" {
		p.nextToken()
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		decl.Alias = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}
	}

	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	return decl
}

func (p *Parser) parseMixinDeclaration() *ast.MixinDeclaration {
	decl := &ast.MixinDeclaration{Token: p.currentToken}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Name = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	p.nextToken()
	for !p.currentTokenIs(token.RBRACE) && !p.currentTokenIs(token.EOF) {
		if fn := p.parseFnDeclaration(ast.Private); fn != nil {
			decl.Fns = append(decl.Fns, fn)
		}
		p.nextToken()
	}
	return decl
}

func (p *Parser) parseImplDeclaration() *ast.ImplDeclaration {
	decl := &ast.ImplDeclaration{Token: p.currentToken}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Mixin = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}

	if !(p.peekTokenIs(token.IDENT) && p.peekToken.Literal == "for") {
		p.errors = append(p.errors, "expected 'for' in impl declaration")
		return nil
	}
	p.nextToken()

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Type = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}

	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	return decl
}

func (p *Parser) parseIdentifierList(end token.Type) []*ast.Identifier {
	var list []*ast.Identifier

	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}

	p.nextToken()
	list = append(list, &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal})

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		list = append(list, &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal})
	}

	if !p.expectPeek(end) {
		return nil
	}
	return list
}

// ---------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------

// parseBlockExpression parses a `{ ... }` block. p.currentToken must be
// the opening `{`; on return p.currentToken is the closing `}`.
//
// Inside a block, an expression followed by `;` is a statement whose value
// is discarded; an expression immediately followed by the closing `}` is
// the block's result. A block-like expression (another block, `if`, or
// `loop`) used mid-block without a trailing `;` is still treated as a
// statement, matching how this language's source parses - only an
// expression in trailing position contributes the block's value.
func (p *Parser) parseBlockExpression() *ast.BlockExpression {
	block := &ast.BlockExpression{Token: p.currentToken}
	p.nextToken()

	for !p.currentTokenIs(token.RBRACE) && !p.currentTokenIs(token.EOF) {
		switch p.currentToken.Type {
		case token.LET:
			if stmt := p.parseVariableDeclaration(); stmt != nil {
				block.Statements = append(block.Statements, stmt)
			}
			p.nextToken()
		case token.RETURN, token.BREAK, token.CONTINUE:
			if stmt := p.parseJump(); stmt != nil {
				block.Statements = append(block.Statements, stmt)
			}
			p.nextToken()
		default:
			stmtTok := p.currentToken
			expr := p.parseExpression(Lowest)
			if expr == nil {
				p.nextToken()
				continue
			}

			switch {
			case p.peekTokenIs(token.ASSIGN):
				p.nextToken()
				assignTok := p.currentToken
				p.nextToken()
				value := p.parseExpression(Lowest)
				if p.peekTokenIs(token.SEMICOLON) {
					p.nextToken()
				}
				block.Statements = append(block.Statements, &ast.Assignment{
					Token: assignTok,
					Left:  expr,
					Value: value,
				})
				p.nextToken()
			case p.peekTokenIs(token.SEMICOLON):
				p.nextToken()
				block.Statements = append(block.Statements, &ast.ExpressionStatement{
					Token:      stmtTok,
					Expression: expr,
				})
				p.nextToken()
			case p.peekTokenIs(token.RBRACE):
				block.Result = expr
				p.nextToken()
			case isBlockLike(expr):
				block.Statements = append(block.Statements, &ast.ExpressionStatement{
					Token:      stmtTok,
					Expression: expr,
				})
				p.nextToken()
			default:
				p.peekError(token.SEMICOLON)
				p.nextToken()
			}
		}
	}

	return block
}

func (p *Parser) parseVariableDeclaration() *ast.VariableDeclaration {
	decl := &ast.VariableDeclaration{Token: p.currentToken}

	if p.peekTokenIs(token.MUT) {
		p.nextToken()
		decl.Mutable = true
	}

	if !p.expectPeek(token.IDENT) {
		return nil
	}
	decl.Name = &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}

	if !p.expectPeek(token.ASSIGN) {
		return nil
	}

	p.nextToken()
	decl.Initializer = p.parseExpression(Lowest)

	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	return decl
}

func (p *Parser) parseJump() *ast.Jump {
	jump := &ast.Jump{Token: p.currentToken}

	switch p.currentToken.Type {
	case token.RETURN:
		jump.Kind = ast.JumpReturn
	case token.BREAK:
		jump.Kind = ast.JumpBreak
	case token.CONTINUE:
		jump.Kind = ast.JumpContinue
	}

	if !p.peekTokenIs(token.SEMICOLON) && !p.peekTokenIs(token.RBRACE) {
		p.nextToken()
		jump.Value = p.parseExpression(Lowest)
	}

	if p.peekTokenIs(token.SEMICOLON) {
		p.nextToken()
	}
	return jump
}

// ---------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.currentToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.currentToken.Type)
		return nil
	}
	leftExp := prefix()

	for !p.peekTokenIs(token.SEMICOLON) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}

	return leftExp
}

func (p *Parser) noPrefixParseFnError(t token.Type) {
	msg := fmt.Sprintf("no prefix parse function for %s found", t)
	p.errors = append(p.errors, msg)
}

func (p *Parser) parseIdentifier() ast.Expression {
	return &ast.Identifier{Token: p.currentToken, Value: p.currentToken.Literal}
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	return &ast.NumberLiteral{Token: p.currentToken, Value: p.currentToken.Literal}
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.currentToken, Value: p.currentToken.Literal}
}

func (p *Parser) parseBoolean() ast.Expression {
	return &ast.BoolLiteral{Token: p.currentToken, Value: p.currentTokenIs(token.TRUE)}
}

func (p *Parser) parseUnaryExpression() ast.Expression {
	expr := &ast.UnaryExpression{Token: p.currentToken}
	switch p.currentToken.Type {
	case token.BANG:
		expr.Operator = ast.OpNot
	case token.MINUS:
		expr.Operator = ast.OpNegate
	}

	p.nextToken()
	expr.Right = p.parseExpression(Prefix)
	return expr
}

func (p *Parser) parseBinaryExpression(left ast.Expression) ast.Expression {
	expr := &ast.BinaryExpression{
		Token:    p.currentToken,
		Left:     left,
		Operator: binaryOperators[p.currentToken.Type],
	}

	precedence := p.curPrecedence()
	p.nextToken()
	expr.Right = p.parseExpression(precedence)
	return expr
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	p.nextToken()
	exp := p.parseExpression(Lowest)

	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return exp
}

func (p *Parser) parseBlockAsExpression() ast.Expression {
	return p.parseBlockExpression()
}

func (p *Parser) parseIfExpression() ast.Expression {
	expr := &ast.IfExpression{Token: p.currentToken}

	for {
		p.nextToken()
		cond := p.parseExpression(Lowest)

		if !p.expectPeek(token.LBRACE) {
			return nil
		}
		body := p.parseBlockExpression()

		expr.Branches = append(expr.Branches, ast.IfBranch{Condition: cond, Body: body})

		if p.peekTokenIs(token.ELSE) {
			p.nextToken()
			if p.peekTokenIs(token.IF) {
				p.nextToken()
				continue
			}
			if !p.expectPeek(token.LBRACE) {
				return nil
			}
			expr.Else = p.parseBlockExpression()
		}
		break
	}

	return expr
}

func (p *Parser) parseLoopExpression() ast.Expression {
	expr := &ast.LoopExpression{Token: p.currentToken}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	expr.Body = p.parseBlockExpression()
	return expr
}

func (p *Parser) parseFunctionLiteral() ast.Expression {
	lit := &ast.FnExpression{Token: p.currentToken}

	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	lit.Parameters = p.parseFunctionParameters()

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	lit.Body = p.parseBlockExpression()
	return lit
}

func (p *Parser) parseFunctionParameters() []*ast.Identifier {
	return p.parseIdentifierList(token.RPAREN)
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	exp := &ast.CallExpression{Token: p.currentToken, Function: function}
	exp.Arguments = p.parseExpressionList(token.RPAREN)
	return exp
}

func (p *Parser) parseExpressionList(end token.Type) []ast.Expression {
	var list []ast.Expression

	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}

	p.nextToken()
	list = append(list, p.parseExpression(Lowest))

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		list = append(list, p.parseExpression(Lowest))
	}

	if !p.expectPeek(end) {
		return nil
	}

	return list
}
