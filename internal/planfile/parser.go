package planfile

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a parsed s-expression: a symbol, a number or a list.
type Node struct {
	Sym    string
	Num    float64
	IsNum  bool
	IsList bool
	List   []*Node
	Line   int
}

// Head returns the leading symbol of a list, or "".
func (n *Node) Head() string {
	if !n.IsList || len(n.List) == 0 || n.List[0].IsList {
		return ""
	}
	return n.List[0].Sym
}

func (n *Node) String() string {
	switch {
	case n.IsNum:
		return strconv.FormatFloat(n.Num, 'g', -1, 64)
	case !n.IsList:
		return n.Sym
	}
	parts := make([]string, len(n.List))
	for i, c := range n.List {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Parser reads s-expressions from a lexer.
type Parser struct {
	l         *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new parser for the given lexer.
func NewParser(l *Lexer) *Parser {
	p := &Parser{l: l}
	p.nextToken()
	p.nextToken()
	return p
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

// ParseOne reads exactly one expression and requires the input to end
// after it.
func (p *Parser) ParseOne() (*Node, error) {
	n, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	if p.curToken.Type != TokenEOF {
		return nil, fmt.Errorf("line %d: unexpected %s after expression", p.curToken.Line, p.curToken)
	}
	return n, nil
}

// ParseAll reads expressions until the end of the input.
func (p *Parser) ParseAll() ([]*Node, error) {
	var out []*Node
	for p.curToken.Type != TokenEOF {
		n, err := p.parseNode()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (p *Parser) parseNode() (*Node, error) {
	tok := p.curToken
	switch tok.Type {
	case TokenLParen:
		p.nextToken()
		n := &Node{IsList: true, Line: tok.Line}
		for p.curToken.Type != TokenRParen {
			if p.curToken.Type == TokenEOF {
				return nil, fmt.Errorf("line %d: unclosed '(' opened at line %d", p.curToken.Line, tok.Line)
			}
			child, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			n.List = append(n.List, child)
		}
		p.nextToken()
		return n, nil
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid number %q", tok.Line, tok.Literal)
		}
		p.nextToken()
		return &Node{Num: v, IsNum: true, Line: tok.Line}, nil
	case TokenSymbol:
		p.nextToken()
		return &Node{Sym: strings.ToLower(tok.Literal), Line: tok.Line}, nil
	case TokenRParen:
		return nil, fmt.Errorf("line %d: unexpected ')'", tok.Line)
	case TokenEOF:
		return nil, fmt.Errorf("line %d: unexpected end of input", tok.Line)
	}
	return nil, fmt.Errorf("line %d: illegal character %q", tok.Line, tok.Literal)
}

// ParseSexpr parses a single s-expression whose first line is line.
func ParseSexpr(input string, line int) (*Node, error) {
	return NewParser(NewLexer(input, line)).ParseOne()
}
