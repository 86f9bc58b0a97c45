package jgrep

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		query  string
		tokens []Token
	}{
		{`foo.bar == "baz"`, []Token{
			{Type: LOOKUP, Text: "foo.bar", Pos: 0},
			{Type: COPERATOR, Text: "==", Pos: 8},
			{Type: CONSTANT, Text: `"baz"`, Value: `"baz"`, Pos: 11},
		}},
		{`a = 1`, []Token{
			{Type: LOOKUP, Text: "a", Pos: 0},
			{Type: COPERATOR, Text: "==", Pos: 2},
			{Type: CONSTANT, Text: "1", Value: int64(1), Pos: 4},
		}},
		{`3.14 >= x`, []Token{
			{Type: CONSTANT, Text: "3.14", Value: 3.14, Pos: 0},
			{Type: COPERATOR, Text: ">=", Pos: 5},
			{Type: LOOKUP, Text: "x", Pos: 8},
		}},
		{`a<b>c<=d`, []Token{
			{Type: LOOKUP, Text: "a", Pos: 0},
			{Type: COPERATOR, Text: "<", Pos: 1},
			{Type: LOOKUP, Text: "b", Pos: 2},
			{Type: COPERATOR, Text: ">", Pos: 3},
			{Type: LOOKUP, Text: "c", Pos: 4},
			{Type: COPERATOR, Text: "<=", Pos: 5},
			{Type: LOOKUP, Text: "d", Pos: 7},
		}},
		{`order.id and !android`, []Token{
			{Type: LOOKUP, Text: "order.id", Pos: 0},
			{Type: LOPERATOR, Text: "and", Pos: 9},
			{Type: UOPERATOR, Text: "!", Pos: 13},
			{Type: LOOKUP, Text: "android", Pos: 14},
		}},
		{`a nand b xor c or d`, []Token{
			{Type: LOOKUP, Text: "a", Pos: 0},
			{Type: LOPERATOR, Text: "nand", Pos: 2},
			{Type: LOOKUP, Text: "b", Pos: 7},
			{Type: LOPERATOR, Text: "xor", Pos: 9},
			{Type: LOOKUP, Text: "c", Pos: 13},
			{Type: LOPERATOR, Text: "or", Pos: 15},
			{Type: LOOKUP, Text: "d", Pos: 18},
		}},
		{`(a)and(b)`, []Token{
			{Type: PAREN, Text: "(", Pos: 0},
			{Type: LOOKUP, Text: "a", Pos: 1},
			{Type: PAREN, Text: ")", Pos: 2},
			{Type: LOPERATOR, Text: "and", Pos: 3},
			{Type: PAREN, Text: "(", Pos: 6},
			{Type: LOOKUP, Text: "b", Pos: 7},
			{Type: PAREN, Text: ")", Pos: 8},
		}},
		{`sum(10, foo.bar, count(x)) == 15`, []Token{
			{Type: FUNCTION, Text: "sum", Pos: 0, Params: []Token{
				{Type: CONSTANT, Text: "10", Value: int64(10), Pos: 4},
				{Type: LOOKUP, Text: "foo.bar", Pos: 8},
				{Type: FUNCTION, Text: "count", Pos: 17, Params: []Token{
					{Type: LOOKUP, Text: "x", Pos: 23},
				}},
			}},
			{Type: COPERATOR, Text: "==", Pos: 27},
			{Type: CONSTANT, Text: "15", Value: int64(15), Pos: 30},
		}},
		{`name =~ '^ab\'c'`, []Token{
			{Type: LOOKUP, Text: "name", Pos: 0},
			{Type: COPERATOR, Text: "=~", Pos: 5},
			{Type: CONSTANT, Text: `'^ab\'c'`, Value: `'^ab\'c'`, Pos: 8},
		}},
		{`startsWith(name, "a, (b")`, []Token{
			{Type: FUNCTION, Text: "startsWith", Pos: 0, Params: []Token{
				{Type: LOOKUP, Text: "name", Pos: 11},
				{Type: CONSTANT, Text: `"a, (b"`, Value: `"a, (b"`, Pos: 17},
			}},
		}},
		{`f()`, []Token{
			{Type: FUNCTION, Text: "f", Pos: 0},
		}},
		{`an o n`, []Token{
			{Type: LOOKUP, Text: "an", Pos: 0},
			{Type: LOOKUP, Text: "o", Pos: 3},
			{Type: LOOKUP, Text: "n", Pos: 5},
		}},
		{`a and`, []Token{
			{Type: LOOKUP, Text: "a", Pos: 0},
			{Type: LOPERATOR, Text: "and", Pos: 2},
		}},
		{"  \t\n", []Token{}},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			tokens, err := Tokenize(test.query)
			assert.Nil(t, err)
			if diff := cmp.Diff(test.tokens, tokens, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Tokenize(%q) mismatch (-want +got):\n%s", test.query, diff)
			}
		})
	}
}

func TestTokenizeNumbers(t *testing.T) {
	tests := []struct {
		query string
		value interface{}
	}{
		{`42`, int64(42)},
		{`0`, int64(0)},
		{`4.2`, 4.2},
		{`42.`, 42.0},
		{`99999999999999999999`, 1e20},
	}

	for _, test := range tests {
		tokens, err := Tokenize(test.query)
		assert.Nil(t, err)
		if assert.Len(t, tokens, 1) {
			assert.Equal(t, test.value, tokens[0].Value, test.query)
		}
	}
}

func TestTokenizeErrors(t *testing.T) {
	tests := []struct {
		query string
		err   *TokenError
	}{
		{`"abc`, &TokenError{Kind: ErrUnterminatedString, Pos: 0, Text: `"`}},
		{`a == 'abc`, &TokenError{Kind: ErrUnterminatedString, Pos: 5, Text: `'`}},
		{`a == "abc\"`, &TokenError{Kind: ErrUnterminatedString, Pos: 5, Text: `"`}},
		{`sum(1, 2`, &TokenError{Kind: ErrUnterminatedFunction, Pos: 0, Text: "sum"}},
		{`f("a)`, &TokenError{Kind: ErrUnterminatedFunction, Pos: 0, Text: "f"}},
		{`sum(1 2)`, &TokenError{Kind: ErrBadFunctionArgument, Pos: 4, Text: "1 2"}},
		{`f(1,)`, &TokenError{Kind: ErrBadFunctionArgument, Pos: 4, Text: ""}},
		{`f(g("x)`, &TokenError{Kind: ErrUnterminatedFunction, Pos: 0, Text: "f"}},
		{`f(a!b)`, &TokenError{Kind: ErrBadFunctionArgument, Pos: 2, Text: "a!b"}},
	}

	for _, test := range tests {
		t.Run(test.query, func(t *testing.T) {
			_, err := Tokenize(test.query)
			var tokenErr *TokenError
			if assert.True(t, errors.As(err, &tokenErr)) {
				assert.Equal(t, test.err, tokenErr)
			}
			assert.ErrorIs(t, err, &TokenError{Kind: test.err.Kind})
		})
	}
}

func TestTokenString(t *testing.T) {
	tokens, err := Tokenize(`sum(10, foo.bar, count(x))`)
	assert.Nil(t, err)
	assert.Equal(t, `sum(10, foo.bar, count(x))`, tokens[0].String())
	assert.Equal(t, "function", tokens[0].Type.String())
	assert.Equal(t, "TokenType(42)", TokenType(42).String())
}
