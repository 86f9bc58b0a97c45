// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// Version of the software.
const VERSION string = "0.3.0"

type TokenType int

// The kinds of tokens that a query is broken into.
//
// LOOKUP is a dotted path into the document like `foo.bar`.
//
// CONSTANT is a string, integer or float literal. String literals keep
// their surrounding quotes in the token text.
//
// FUNCTION is a call like `sum(10, foo.bar)`. Its parameters are tokens too.
//
// UOPERATOR is the unary `!`.
//
// LOPERATOR is one of `and`, `or`, `xor`, `nand`.
//
// COPERATOR is one of `==`, `=~`, `>`, `>=`, `<`, `<=`.
//
// PAREN is either `(` or `)`.
const (
	LOOKUP TokenType = iota
	CONSTANT
	FUNCTION
	UOPERATOR
	LOPERATOR
	COPERATOR
	PAREN
)

var tokenTypeNames = map[TokenType]string{
	LOOKUP:    "lookup",
	CONSTANT:  "constant",
	FUNCTION:  "function",
	UOPERATOR: "uoperator",
	LOPERATOR: "loperator",
	COPERATOR: "coperator",
	PAREN:     "paren",
}

func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is a single lexical unit of a query.
//
// Text is the path of a LOOKUP, the raw literal of a CONSTANT, the name of a
// FUNCTION, the symbol of an operator or "(" / ")" for a PAREN.
//
// Value is only set for CONSTANT tokens and holds a string (quotes
// included), an int64 or a float64.
//
// Params are the arguments of a FUNCTION, in call order.
//
// Pos is the byte offset of the token in the query string.
type Token struct {
	Type   TokenType
	Text   string
	Value  interface{}
	Params []Token
	Pos    int
}

// IsOpen reports whether the token is an opening parenthesis.
func (t Token) IsOpen() bool {
	return t.Type == PAREN && t.Text == "("
}

// IsClose reports whether the token is a closing parenthesis.
func (t Token) IsClose() bool {
	return t.Type == PAREN && t.Text == ")"
}

// String renders the token back into query syntax.
func (t Token) String() string {
	if t.Type != FUNCTION {
		return t.Text
	}
	params := make([]string, len(t.Params))
	for i, param := range t.Params {
		params[i] = param.String()
	}
	return fmt.Sprintf("%s(%s)", t.Text, strings.Join(params, ", "))
}

// Program is the validated form of a query.
//
// Callstack is the token sequence that is reduced to a boolean on evaluation.
//
// Lookups is the set of distinct paths referenced by the query, including
// the ones passed to functions, in the order they first appear.
//
// Functions is the set of distinct function names referenced by the query.
// Nested calls are listed before the call that encloses them.
//
// A Program is never modified after Parse returns it, so the same Program
// can be evaluated from many goroutines.
type Program struct {
	Query     string
	Callstack []Token
	Lookups   []string
	Functions []string
	patterns  map[string]*regexp2.Regexp
}

type ConnectionMode int

// The modes of TCP connections that the clients can use.
//
// INSERT is a long lasting TCP connection mode for inserting documents into the store.
//
// INSERTION_FILTER is a short lasting TCP connection mode for setting the insertion filter.
//
// QUERY is a long lasting TCP connection mode for streaming the documents that
// match a given query.
//
// SINGLE is a short lasting TCP connection mode for fetching a single document
// by its index.
//
// VALIDATE is a short lasting TCP connection mode for validating a query against syntax errors.
//
// MACRO is a short lasting TCP connection mode for setting a macro that will be expanded
// later on for each individual query.
//
// LIMIT is a short lasting TCP connection mode for setting the maximum number of
// stored documents.
//
// FLUSH is a short lasting TCP connection mode that removes all the documents.
//
// RESET is a short lasting TCP connection mode that removes all the documents
// and resets the store into its initial state.
const (
	NONE ConnectionMode = iota
	INSERT
	INSERTION_FILTER
	QUERY
	SINGLE
	VALIDATE
	MACRO
	LIMIT
	FLUSH
	RESET
)

// Commands refers to TCP connection modes.
const (
	CMD_INSERT           string = "/insert"
	CMD_INSERTION_FILTER string = "/insert-filter"
	CMD_QUERY            string = "/query"
	CMD_SINGLE           string = "/single"
	CMD_VALIDATE         string = "/validate"
	CMD_MACRO            string = "/macro"
	CMD_LIMIT            string = "/limit"
	CMD_FLUSH            string = "/flush"
	CMD_RESET            string = "/reset"
)

// Closing indicators
const (
	CloseConnection = "%quit%"
)
