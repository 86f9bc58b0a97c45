// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"strconv"
	"strings"
)

// Keyword operators, longest first so that `nand` wins over `and`.
var keywords = []string{"nand", "and", "xor", "or"}

// Tokenize breaks a query string into a flat sequence of tokens. Function
// calls are tokenized recursively, their arguments end up in Token.Params.
func Tokenize(query string) (tokens []Token, err error) {
	return tokenize(query, 0)
}

// tokenize scans query which starts at byte offset base of the top-level
// query. Each call owns its cursor, nested calls never share it.
func tokenize(query string, base int) (tokens []Token, err error) {
	tokens = []Token{}
	i := 0
	for i < len(query) {
		c := query[i]
		switch {
		case isSpace(c):
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, Token{Type: PAREN, Text: string(c), Pos: base + i})
			i++
		case c == '>' || c == '<':
			op := string(c)
			if peek(query, i+1) == '=' {
				op += "="
			}
			tokens = append(tokens, Token{Type: COPERATOR, Text: op, Pos: base + i})
			i += len(op)
		case c == '=':
			// A lone `=` is read as `==`.
			op, n := "==", 1
			switch peek(query, i+1) {
			case '=':
				n = 2
			case '~':
				op, n = "=~", 2
			}
			tokens = append(tokens, Token{Type: COPERATOR, Text: op, Pos: base + i})
			i += n
		case c == '!':
			tokens = append(tokens, Token{Type: UOPERATOR, Text: "!", Pos: base + i})
			i++
		case c == '\'' || c == '"':
			var token Token
			token, i, err = scanString(query, i, base)
			if err != nil {
				return
			}
			tokens = append(tokens, token)
		case isDigit(c):
			var token Token
			token, i = scanNumber(query, i, base)
			tokens = append(tokens, token)
		default:
			if keyword := matchKeyword(query, i); keyword != "" {
				tokens = append(tokens, Token{Type: LOPERATOR, Text: keyword, Pos: base + i})
				i += len(keyword)
				continue
			}
			// Anything else is a lookup, or a function if an opening
			// parenthesis follows right after the identifier.
			var token Token
			token, i, err = scanIdentifier(query, i, base)
			if err != nil {
				return
			}
			tokens = append(tokens, token)
		}
	}
	return
}

// matchKeyword returns the logical operator at position i, or an empty
// string if there is none. The keyword has to end on a word boundary, so
// `order.id` is not read as `or` followed by `der.id`.
func matchKeyword(query string, i int) string {
	for _, keyword := range keywords {
		if !strings.HasPrefix(query[i:], keyword) {
			continue
		}
		switch next := peek(query, i+len(keyword)); {
		case next == 0, isSpace(next), next == '(', next == ')', next == '!', next == '\'', next == '"':
			return keyword
		}
	}
	return ""
}

// scanString scans a quoted literal starting at the quote character at
// start. The token text keeps both quotes and any escapes as written.
func scanString(query string, start int, base int) (token Token, next int, err error) {
	delimiter := query[start]
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			i++
		case delimiter:
			text := query[start : i+1]
			token = Token{Type: CONSTANT, Text: text, Value: text, Pos: base + start}
			next = i + 1
			return
		}
	}
	err = &TokenError{Kind: ErrUnterminatedString, Pos: base + start, Text: string(delimiter)}
	return
}

// scanNumber scans digits with at most one decimal point. A second point
// ends the number.
func scanNumber(query string, start int, base int) (token Token, next int) {
	next = start
	points := 0
	for next < len(query) {
		c := query[next]
		if c == '.' && points == 0 {
			points++
		} else if !isDigit(c) {
			break
		}
		next++
	}

	text := query[start:next]
	token = Token{Type: CONSTANT, Text: text, Pos: base + start}
	if points == 0 {
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			token.Value = v
			return
		}
	}
	// Only digits and a single point reach here, ParseFloat can't fail
	// except for overflow which still yields ±Inf.
	v, _ := strconv.ParseFloat(text, 64)
	token.Value = v
	return
}

// scanIdentifier scans a lookup path, or a function call if the identifier
// is immediately followed by `(`.
func scanIdentifier(query string, start int, base int) (token Token, next int, err error) {
	next = start
	for next < len(query) && !isDelimiter(query[next]) {
		next++
	}

	name := query[start:next]
	if peek(query, next) == '(' {
		return scanFunction(query, name, start, next, base)
	}

	token = Token{Type: LOOKUP, Text: name, Pos: base + start}
	return
}

// scanFunction finds the parenthesis that closes the argument list opened at
// open, then tokenizes every top-level argument on its own.
func scanFunction(query string, name string, start int, open int, base int) (token Token, next int, err error) {
	depth := 0
	var quote byte
	for i := open; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth > 0 {
				continue
			}
			var params []Token
			params, err = tokenizeArguments(query[open+1:i], base+open+1)
			if err != nil {
				return
			}
			token = Token{Type: FUNCTION, Text: name, Params: params, Pos: base + start}
			next = i + 1
			return
		}
	}

	err = &TokenError{Kind: ErrUnterminatedFunction, Pos: base + start, Text: name}
	return
}

// tokenizeArguments tokenizes the text between the parentheses of a function
// call. Every argument has to yield exactly one token.
func tokenizeArguments(args string, base int) (params []Token, err error) {
	params = []Token{}
	if strings.TrimSpace(args) == "" {
		return
	}

	for _, arg := range splitArguments(args) {
		var tokens []Token
		tokens, err = tokenize(arg.text, base+arg.offset)
		if err != nil {
			return
		}
		if len(tokens) != 1 {
			err = &TokenError{Kind: ErrBadFunctionArgument, Pos: base + arg.offset, Text: strings.TrimSpace(arg.text)}
			return
		}
		params = append(params, tokens[0])
	}
	return
}

type argument struct {
	text   string
	offset int
}

// splitArguments splits on commas that are neither nested in parentheses nor
// inside a quoted literal.
func splitArguments(args string) (result []argument) {
	depth := 0
	from := 0
	var quote byte
	for i := 0; i < len(args); i++ {
		c := args[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			result = append(result, argument{text: args[from:i], offset: from})
			from = i + 1
		}
	}
	result = append(result, argument{text: args[from:], offset: from})
	return
}

func peek(query string, i int) byte {
	if i < len(query) {
		return query[i]
	}
	return 0
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isDelimiter ends an identifier. `!` is one so that `a!=1` is rejected by
// the validator instead of reading as the lookup `a!`.
func isDelimiter(c byte) bool {
	return isSpace(c) || c == '=' || c == '<' || c == '>' || c == '(' || c == ')' || c == '!'
}
