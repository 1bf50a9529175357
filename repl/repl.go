// Package repl implements the Read-Eval-Print Loop for sprachli.
//
// The REPL provides an interactive interface for users to enter sprachli
// code, have it compiled and run, and see the result immediately. It uses
// the Charm libraries (Bubbletea, Bubbles, and Lipgloss) to create a modern,
// user-friendly terminal interface with features like syntax highlighting
// and command history.
//
// Unlike a statement-at-a-time REPL, each submission is compiled and run as
// a complete, independent program: sprachli has no top-level mutable state
// to persist between submissions, only named function declarations. A
// submission that doesn't itself define `fn main` is wrapped in one, so
// that entering a bare expression ("1 + 1") works the way users expect.
//
// The main entry point is the Start function, which reads from r and writes
// to w using a plain line-oriented loop (kept deliberately simple; the
// bubbletea model below is the richer interactive experience, started via
// StartInteractive by the sprachli command when stdin is a terminal).
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/SillyFreak/sprachli/compiler"
	"github.com/SillyFreak/sprachli/lexer"
	"github.com/SillyFreak/sprachli/token"
	"github.com/SillyFreak/sprachli/vm"
)

const (
	// Prompt is the default prompt for the REPL.
	Prompt = ">> "

	// ContPrompt is the continuation prompt used in multiline input mode.
	ContPrompt = ".. "
)

// evalSource wraps src in a `fn main` declaration when it doesn't already
// declare one, compiles it, and runs it to completion.
func evalSource(src string) (string, error) {
	program := src
	if !strings.Contains(program, "fn main") {
		program = "fn main() {\n" + program + "\n}"
	}

	m, err := compiler.CompileSource(program)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errCompile, err)
	}

	result, err := vm.New(m).Run()
	if err != nil {
		return "", fmt.Errorf("runtime error: %w", err)
	}

	return result.String(), nil
}

// Start runs a plain line-oriented REPL: it reads one line at a time from
// r, evaluates it, and writes the result (or error) to w. Used when stdin
// isn't an interactive terminal.
func Start(r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, Prompt)
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		output, err := evalSource(line)
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		fmt.Fprintln(w, output)
	}
}

// StartInteractive runs the richer bubbletea-based REPL for the given
// username and options.
func StartInteractive(username string, options Options) {
	p := tea.NewProgram(initialModel(username, options))
	if _, err := p.Run(); err != nil {
		fmt.Println("Error running program:", err)
	}
}

// Options contains configuration options for the interactive REPL.
type Options struct {
	NoColor bool // Disable syntax highlighting and colored output
	Debug   bool // Debug mode flag; no output of this package depends on it
}

// Styling
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87"))

	compileErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF5F87")).
				Bold(true)

	runtimeErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FF8700")).
				Bold(true)

	historyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#767676"))

	// Syntax highlighting styles
	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF79C6")).
			Bold(true)

	identifierStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#F8F8F2"))

	literalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F1FA8C"))

	operatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	delimiterStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BD93F9"))

	stringStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))
)

// ErrorType represents the type of error that occurred.
type ErrorType int

const (
	// NoError indicates that no error occurred.
	NoError ErrorType = iota

	// CompileError signifies a lexer, parser, or compiler error.
	CompileError

	// RuntimeError signifies an error raised while the VM ran the program.
	RuntimeError
)

// evalResultMsg carries the result of an asynchronous evaluation.
type evalResultMsg struct {
	output    string
	isError   bool
	errorType ErrorType
	elapsed   time.Duration
}

// model represents the state of the application.
type model struct {
	textInput       textinput.Model
	history         []historyEntry
	username        string
	evaluating      bool
	currentInput    string
	multilineBuffer string
	isMultiline     bool
	spinner         spinner.Model
	options         Options
}

func (m model) applyStyle(style lipgloss.Style, text string) string {
	if m.options.NoColor {
		return text
	}
	return style.Render(text)
}

// historyEntry represents a single entry in the REPL history.
type historyEntry struct {
	input          string
	output         string
	isError        bool
	errorType      ErrorType
	evaluationTime time.Duration
}

func initialModel(username string, options Options) model {
	ti := textinput.New()
	ti.Placeholder = "Enter sprachli code"
	ti.Focus()
	ti.Width = 80
	ti.Prompt = promptStyle.Render(Prompt)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		textInput: ti,
		username:  username,
		spinner:   s,
		options:   options,
	}
}

// Init is the first function that will be called.
func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// isBalanced checks if brackets, braces, and parentheses are balanced.
func isBalanced(input string) bool {
	var stack []rune
	for _, char := range input {
		switch char {
		case '(', '{', '[':
			stack = append(stack, char)
		case ')':
			if len(stack) == 0 || stack[len(stack)-1] != '(' {
				return false
			}
			stack = stack[:len(stack)-1]
		case '}':
			if len(stack) == 0 || stack[len(stack)-1] != '{' {
				return false
			}
			stack = stack[:len(stack)-1]
		case ']':
			if len(stack) == 0 || stack[len(stack)-1] != '[' {
				return false
			}
			stack = stack[:len(stack)-1]
		}
	}
	return len(stack) == 0
}

// evalCmd is a command that compiles and runs sprachli code asynchronously.
func evalCmd(input string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()

		output, err := evalSource(input)

		isError := false
		errorType := NoError
		if err != nil {
			isError = true
			switch {
			case errors.Is(err, errCompile):
				errorType = CompileError
				output = formatCompileError(err)
			default:
				errorType = RuntimeError
				output = formatRuntimeError(err)
			}
		}

		return evalResultMsg{
			output:    output,
			isError:   isError,
			errorType: errorType,
			elapsed:   time.Since(start),
		}
	}
}

// errCompile tags errors produced by evalSource's compile step so evalCmd
// can tell a compile failure apart from a runtime one without parsing the
// message text.
var errCompile = errors.New("compile error")

// Update handles all the updates to our model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.evaluating {
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case evalResultMsg:
		m.evaluating = false
		m.history = append(m.history, historyEntry{
			input:          m.currentInput,
			output:         msg.output,
			isError:        msg.isError,
			errorType:      msg.errorType,
			evaluationTime: msg.elapsed,
		})
		m.currentInput = ""
		return m, nil

	case tea.KeyMsg:
		if m.evaluating && msg.Type != tea.KeyCtrlC {
			return m, m.spinner.Tick
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			input := m.textInput.Value()
			if input == "" {
				if m.isMultiline {
					if m.multilineBuffer == "" {
						m.isMultiline = false
						return m, nil
					}
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.textInput.SetValue("")
					m.isMultiline = false
					buffer := m.multilineBuffer
					m.multilineBuffer = ""
					return m, evalCmd(buffer)
				}
				return m, nil
			}

			if m.isMultiline {
				m.multilineBuffer += "\n" + input
				m.textInput.SetValue("")
				if isBalanced(m.multilineBuffer) {
					m.evaluating = true
					m.currentInput = m.multilineBuffer
					m.isMultiline = false
					buffer := m.multilineBuffer
					m.multilineBuffer = ""
					return m, evalCmd(buffer)
				}
				return m, nil
			}

			if !isBalanced(input) {
				m.isMultiline = true
				m.multilineBuffer = input
				m.textInput.SetValue("")
				return m, nil
			}

			m.evaluating = true
			m.currentInput = input
			m.textInput.SetValue("")
			return m, evalCmd(input)
		}
	}

	if !m.evaluating {
		m.textInput, cmd = m.textInput.Update(msg)
	}
	if m.evaluating {
		return m, m.spinner.Tick
	}
	return m, cmd
}

// View renders the current UI.
func (m model) View() string {
	var s strings.Builder

	s.WriteString(m.applyStyle(titleStyle, " sprachli REPL "))
	s.WriteString("\n")

	if m.username != "" {
		s.WriteString(fmt.Sprintf("\nHello %s! Feel free to type in commands\n", m.username))
	}
	s.WriteString("\n")

	for _, entry := range m.history {
		lines := strings.Split(entry.input, "\n")
		for i, line := range lines {
			if i == 0 {
				s.WriteString(m.applyStyle(promptStyle, Prompt))
			} else {
				s.WriteString(m.applyStyle(promptStyle, ContPrompt))
			}
			s.WriteString(m.highlightCode(line))
			s.WriteString("\n")
		}

		if entry.isError {
			switch entry.errorType {
			case CompileError:
				s.WriteString(m.applyStyle(compileErrorStyle, entry.output))
			case RuntimeError:
				s.WriteString(m.applyStyle(runtimeErrorStyle, entry.output))
			default:
				s.WriteString(m.applyStyle(errorStyle, entry.output))
			}
		} else {
			s.WriteString(m.applyStyle(resultStyle, entry.output))
		}

		if entry.evaluationTime > 10*time.Millisecond {
			s.WriteString(m.applyStyle(historyStyle, fmt.Sprintf(" (%.2fs)", entry.evaluationTime.Seconds())))
		}

		s.WriteString("\n\n")
	}

	if m.evaluating {
		s.WriteString(m.applyStyle(promptStyle, Prompt))
		s.WriteString(m.highlightCode(m.currentInput))
		s.WriteString("\n")
		s.WriteString(m.spinner.View())
		s.WriteString(" Evaluating...")
		s.WriteString("\n\n")
	}

	if m.isMultiline && !m.evaluating {
		s.WriteString(m.applyStyle(historyStyle, "Current multiline input:\n"))
		s.WriteString(m.highlightCode(m.multilineBuffer))
		s.WriteString("\n")
	}

	if !m.evaluating {
		if m.isMultiline {
			m.textInput.Prompt = m.applyStyle(promptStyle, ContPrompt)
		} else {
			m.textInput.Prompt = m.applyStyle(promptStyle, Prompt)
		}
		s.WriteString(m.textInput.View())
		s.WriteString("\n")
	}

	helpText := "\nPress Esc or Ctrl+C/D to exit"
	if m.isMultiline {
		helpText += " | Multiline mode: Enter empty line to evaluate or continue typing"
	} else {
		helpText += " | Multiline input supported for unbalanced brackets"
	}
	s.WriteString(m.applyStyle(historyStyle, helpText))

	return s.String()
}

// formatCompileError formats a compile-time failure (lexer, parser, or
// compiler) into a user-facing message.
func formatCompileError(err error) string {
	var s strings.Builder
	s.WriteString("Compile Error:\n  ")
	s.WriteString(err.Error())
	return s.String()
}

// formatRuntimeError formats a failure raised while the VM ran the program.
func formatRuntimeError(err error) string {
	var s strings.Builder
	s.WriteString("Runtime Error:\n  ")
	s.WriteString(err.Error())
	return s.String()
}

// highlightCode applies syntax highlighting to sprachli source.
//
//nolint:gocyclo
func (m model) highlightCode(code string) string {
	l := lexer.New(code)
	var s strings.Builder

	var tokens []token.Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			break
		}
	}

	isKeyword := func(t token.Token) bool {
		switch t.Type {
		case token.FUNCTION, token.LET, token.MUT, token.TRUE, token.FALSE, token.IF, token.ELSE,
			token.LOOP, token.BREAK, token.CONTINUE, token.RETURN, token.STRUCT, token.USE,
			token.IMPL, token.MIXIN, token.PUB:
			return true
		}
		return false
	}
	isOperator := func(t token.Token) bool {
		switch t.Type {
		case token.ASSIGN, token.PLUS, token.MINUS, token.BANG, token.ASTERISK, token.SLASH,
			token.PERCENT, token.AMP, token.PIPE, token.CARET, token.SHL, token.SHR,
			token.LT, token.GT, token.LTE, token.GTE, token.EQ, token.NOT_EQ:
			return true
		}
		return false
	}
	isOpenParen := func(t token.Token) bool { return t.Type == token.LPAREN }
	isCloseParen := func(t token.Token) bool { return t.Type == token.RPAREN }
	isOpenBrace := func(t token.Token) bool { return t.Type == token.LBRACE }
	isCloseBrace := func(t token.Token) bool { return t.Type == token.RBRACE }
	isDelimiter := func(t token.Token) bool {
		switch t.Type {
		case token.COMMA, token.COLON, token.SEMICOLON, token.LPAREN, token.RPAREN,
			token.LBRACE, token.RBRACE, token.LBRACKET, token.RBRACKET:
			return true
		}
		return false
	}

	indentLevel := 0
	atLineStart := true
	for i := 0; i < len(tokens)-1; i++ {
		tok := tokens[i]
		if tok.Type == token.EOF {
			continue
		}
		var prev token.Token
		if i > 0 {
			prev = tokens[i-1]
		}
		next := tokens[i+1]

		if atLineStart {
			if tok.Type == token.ELSE && i > 0 && tokens[i-1].Type == token.RBRACE {
				atLineStart = false
			} else {
				for range indentLevel {
					s.WriteString("  ")
				}
				atLineStart = false
			}
		}

		if isKeyword(tok) && tok.Type != token.TRUE && tok.Type != token.FALSE {
			switch tok.Type {
			case token.LET, token.MUT, token.FUNCTION, token.RETURN, token.IF, token.ELSE,
				token.LOOP, token.BREAK, token.CONTINUE, token.STRUCT, token.USE, token.IMPL,
				token.MIXIN, token.PUB:
				s.WriteString(m.applyStyle(keywordStyle, tok.Literal))
				if !isDelimiter(next) && !isOpenBrace(next) && !isOpenParen(next) {
					s.WriteString(" ")
				}
				continue
			}
		}
		if isKeyword(prev) && (prev.Type == token.IF || prev.Type == token.ELSE || prev.Type == token.FUNCTION) && isOpenParen(tok) {
			s.WriteString(" ")
		}
		if isOpenBrace(tok) && !isOpenParen(prev) && !isOperator(prev) {
			s.WriteString(" ")
		}
		if isOperator(tok) {
			isPrefixOp := (tok.Type == token.BANG || tok.Type == token.MINUS) &&
				(i == 0 || isOpenParen(prev) || isOperator(prev) || isDelimiter(prev))

			if !isPrefixOp && i > 0 && (!isDelimiter(prev) || isCloseParen(prev)) {
				s.WriteString(" ")
			}
			s.WriteString(m.applyStyle(operatorStyle, tok.Literal))
			if !isPrefixOp && !isDelimiter(next) && !isCloseParen(next) && !isCloseBrace(next) {
				s.WriteString(" ")
			}
			continue
		}

		switch tok.Type {
		case token.FUNCTION, token.LET, token.MUT, token.TRUE, token.FALSE, token.IF, token.ELSE,
			token.LOOP, token.BREAK, token.CONTINUE, token.RETURN, token.STRUCT, token.USE,
			token.IMPL, token.MIXIN, token.PUB:
			s.WriteString(m.applyStyle(keywordStyle, tok.Literal))
		case token.IDENT:
			s.WriteString(m.applyStyle(identifierStyle, tok.Literal))
		case token.NUMBER:
			s.WriteString(m.applyStyle(literalStyle, tok.Literal))
		case token.STRING:
			s.WriteString(m.applyStyle(stringStyle, "\""+tok.Literal+"\""))
		case token.COMMA, token.COLON, token.SEMICOLON, token.LPAREN, token.RPAREN,
			token.LBRACE, token.RBRACE, token.LBRACKET, token.RBRACKET:
			if tok.Type == token.SEMICOLON && i > 0 && tokens[i-1].Type == token.RBRACE {
				// already written by the RBRACE/semicolon special case below
			} else {
				s.WriteString(m.applyStyle(delimiterStyle, tok.Literal))
			}
		default:
			s.WriteString(tok.Literal)
		}

		if tok.Type == token.SEMICOLON {
			if next.Type != token.EOF && next.Type != token.ELSE {
				s.WriteString("\n")
				atLineStart = true
			}
		} else if tok.Type == token.RBRACE {
			if next.Type == token.SEMICOLON {
				s.WriteString(m.applyStyle(delimiterStyle, ";"))
			} else if next.Type != token.EOF && next.Type != token.ELSE {
				s.WriteString("\n")
				atLineStart = true
			} else if next.Type == token.ELSE {
				s.WriteString(" ")
				atLineStart = false
			}
		}
		if tok.Type == token.LBRACE {
			if next.Type != token.RBRACE && next.Type != token.EOF {
				s.WriteString("\n")
				atLineStart = true
			}
			indentLevel++
		}
		if tok.Type == token.RBRACE && indentLevel > 0 {
			indentLevel--
		}
		if tok.Type == token.SEMICOLON && next.Type == token.RBRACE {
			atLineStart = false
		}
		if tok.Type == token.RBRACE && next.Type == token.SEMICOLON {
			i++
		}
	}

	return s.String()
}
