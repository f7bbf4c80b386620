package planfile

import "fmt"

// TokenType identifies the kind of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLParen
	TokenRParen
	TokenSymbol
	TokenNumber
	TokenIllegal
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenSymbol:
		return "SYMBOL"
	case TokenNumber:
		return "NUMBER"
	}
	return "ILLEGAL"
}

// Token is a lexical token with its position.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

func (t Token) String() string {
	if t.Literal == "" {
		return t.Type.String()
	}
	return fmt.Sprintf("%s %q", t.Type, t.Literal)
}

// Lexer tokenizes s-expression input. Comments run from ';' to end of line.
type Lexer struct {
	input        string
	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination
	line         int  // current line number (1-indexed)
	column       int  // current column number (1-indexed)
	startColumn  int
}

// NewLexer creates a lexer whose line numbers start at line.
func NewLexer(input string, line int) *Lexer {
	if line < 1 {
		line = 1
	}
	l := &Lexer{input: input, line: line}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipSpace()
	l.startColumn = l.column

	switch {
	case l.ch == 0:
		return l.newToken(TokenEOF, "")
	case l.ch == '(':
		l.readChar()
		return l.newToken(TokenLParen, "(")
	case l.ch == ')':
		l.readChar()
		return l.newToken(TokenRParen, ")")
	case isDigit(l.ch) || (l.ch == '.' && isDigit(l.peekChar())):
		return l.readNumber()
	case l.ch == '-' && (isDigit(l.peekChar()) || l.peekChar() == '.'):
		return l.readNumber()
	case isSymbolChar(l.ch):
		return l.readSymbol()
	}
	tok := l.newToken(TokenIllegal, string(l.ch))
	l.readChar()
	return tok
}

func (l *Lexer) newToken(t TokenType, literal string) Token {
	return Token{Type: t, Literal: literal, Line: l.line, Column: l.startColumn}
}

// skipSpace skips whitespace, newlines and comments.
func (l *Lexer) skipSpace() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '\n':
			l.readChar()
			l.line++
			l.column = 1
		case ';':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) readNumber() Token {
	position := l.position
	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) || l.ch == '.' || l.ch == 'e' || l.ch == 'E' ||
		((l.ch == '-' || l.ch == '+') && (l.input[l.position-1] == 'e' || l.input[l.position-1] == 'E')) {
		l.readChar()
	}
	// Something like 3abc is a symbol, not a number.
	if isSymbolChar(l.ch) {
		for isSymbolChar(l.ch) {
			l.readChar()
		}
		return l.newToken(TokenSymbol, l.input[position:l.position])
	}
	return l.newToken(TokenNumber, l.input[position:l.position])
}

func (l *Lexer) readSymbol() Token {
	position := l.position
	for isSymbolChar(l.ch) {
		l.readChar()
	}
	return l.newToken(TokenSymbol, l.input[position:l.position])
}

func isDigit(ch byte) bool { return '0' <= ch && ch <= '9' }

func isSymbolChar(ch byte) bool {
	switch {
	case 'a' <= ch && ch <= 'z', 'A' <= ch && ch <= 'Z', isDigit(ch):
		return true
	}
	switch ch {
	case '?', '#', '-', '_', '+', '*', '/', '<', '>', '=', '.', '!':
		return true
	}
	return false
}
