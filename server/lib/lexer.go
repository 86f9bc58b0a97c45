// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

// rule is a set of token types that may follow a given token. A PAREN in
// types only accepts the sides enabled by open and close.
type rule struct {
	types []TokenType
	open  bool
	close bool
}

// accepts reports whether the token is allowed by the rule.
func (r rule) accepts(token Token) bool {
	for _, t := range r.types {
		if t != token.Type {
			continue
		}
		if t == PAREN {
			return (r.open && token.IsOpen()) || (r.close && token.IsClose())
		}
		return true
	}
	return false
}

// Operators and opening parentheses must be followed by an operand.
var operandRule = rule{
	types: []TokenType{LOOKUP, CONSTANT, FUNCTION, PAREN, UOPERATOR},
	open:  true,
}

// Operands and closing parentheses must be followed by an operator.
var operatorRule = rule{
	types: []TokenType{LOPERATOR, COPERATOR, PAREN},
	close: true,
}

var paramTypes = []TokenType{CONSTANT, LOOKUP, FUNCTION}

type lexer struct {
	tokens    []Token
	index     int
	parens    []int
	lookups   []string
	functions []string
	seen      map[string]bool
	called    map[string]bool
}

// Validate walks the token sequence once and checks which token may follow
// which, that parentheses are balanced and that function parameters are
// operands. It collects the paths and the function names referenced along
// the way.
func Validate(tokens []Token) (program *Program, err error) {
	l := &lexer{
		tokens: tokens,
		seen:   make(map[string]bool),
		called: make(map[string]bool),
	}

	err = l.parse()
	if err != nil {
		return
	}

	program = &Program{
		Callstack: tokens,
		Lookups:   l.lookups,
		Functions: l.functions,
	}
	return
}

func (l *lexer) parse() (err error) {
	if len(l.tokens) > 0 && !operandRule.accepts(l.tokens[0]) {
		return l.unexpected(l.tokens[0], operandRule)
	}

	for l.index = 0; l.index < len(l.tokens); l.index++ {
		token := l.tokens[l.index]
		switch token.Type {
		case UOPERATOR, LOPERATOR, COPERATOR:
			err = l.operator()
		case CONSTANT:
			err = l.check(operatorRule)
		case LOOKUP:
			err = l.lookup()
		case FUNCTION:
			err = l.function()
		case PAREN:
			err = l.paren()
		}
		if err != nil {
			return
		}
	}

	if len(l.parens) > 0 {
		open := l.tokens[l.parens[0]]
		err = &ParseError{Kind: ErrUnmatchedParen, Pos: open.Pos, Found: open}
	}
	return
}

// Unary, logical and comparison operators can be followed by
// - lookup
// - constant
// - function
// - (
// - !
// and can never end the query.
func (l *lexer) operator() error {
	if l.index == len(l.tokens)-1 {
		token := l.tokens[l.index]
		return &ParseError{Kind: ErrTrailingOperator, Pos: token.Pos, Found: token}
	}
	return l.check(operandRule)
}

// Lookups can be followed by
// - logical operator
// - comparison operator
// - )
func (l *lexer) lookup() error {
	if err := l.check(operatorRule); err != nil {
		return err
	}
	l.addLookup(l.tokens[l.index].Text)
	return nil
}

// Functions follow the same rule as lookups. Their parameters are
// validated recursively.
func (l *lexer) function() error {
	if err := l.check(operatorRule); err != nil {
		return err
	}
	return l.params(l.tokens[l.index])
}

func (l *lexer) params(f Token) error {
	for _, param := range f.Params {
		switch param.Type {
		case CONSTANT:
		case LOOKUP:
			l.addLookup(param.Text)
		case FUNCTION:
			if err := l.params(param); err != nil {
				return err
			}
		default:
			return &ParseError{Kind: ErrInvalidFunctionParameter, Pos: param.Pos, Found: param, Allowed: paramTypes}
		}
	}
	l.addFunction(f.Text)
	return nil
}

// An opening parenthesis is followed by an operand and pushed until its
// closing counterpart shows up. A closing one is followed by an operator.
func (l *lexer) paren() error {
	token := l.tokens[l.index]
	if token.IsOpen() {
		l.parens = append(l.parens, l.index)
		return l.check(operandRule)
	}

	if len(l.parens) == 0 {
		return &ParseError{Kind: ErrUnmatchedParen, Pos: token.Pos, Found: token}
	}
	l.parens = l.parens[:len(l.parens)-1]
	return l.check(operatorRule)
}

// check validates the token after the current one, if there is any.
func (l *lexer) check(r rule) error {
	if l.index+1 >= len(l.tokens) {
		return nil
	}
	if next := l.tokens[l.index+1]; !r.accepts(next) {
		return l.unexpected(next, r)
	}
	return nil
}

func (l *lexer) unexpected(token Token, r rule) error {
	return &ParseError{Kind: ErrUnexpectedToken, Pos: token.Pos, Found: token, Allowed: r.types}
}

func (l *lexer) addLookup(path string) {
	if !l.seen[path] {
		l.seen[path] = true
		l.lookups = append(l.lookups, path)
	}
}

func (l *lexer) addFunction(name string) {
	if !l.called[name] {
		l.called[name] = true
		l.functions = append(l.functions, name)
	}
}
