package jgrep

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	program, err := Parse(`sum(10, foo.bar) == bar.baz and bar.bar`)
	require.Nil(t, err)

	assert.Equal(t, `sum(10, foo.bar) == bar.baz and bar.bar`, program.Query)
	assert.Equal(t, []string{"foo.bar", "bar.baz", "bar.bar"}, program.Lookups)
	assert.Equal(t, []string{"sum"}, program.Functions)
	assert.Len(t, program.Callstack, 5)
}

func TestParseEmpty(t *testing.T) {
	program, err := Parse(``)
	require.Nil(t, err)
	assert.Empty(t, program.Callstack)
	assert.Empty(t, program.Lookups)
	assert.Empty(t, program.Functions)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(`a == "b`)
	assert.ErrorIs(t, err, &TokenError{Kind: ErrUnterminatedString})

	_, err = Parse(`(a == "b"`)
	assert.ErrorIs(t, err, &ParseError{Kind: ErrUnmatchedParen})
	assert.EqualError(t, err, "0: found '(' without a matching ')'")

	_, err = Parse(`a == "b")`)
	assert.EqualError(t, err, "8: found ')' without a matching '('")

	_, err = Parse(`a ==`)
	assert.EqualError(t, err, `2: bad token "==" found, query cannot end with an operator`)

	_, err = Parse(`f(!)`)
	assert.EqualError(t, err, "2: function parameters can only be of type constant, lookup or function, found uoperator")
}

func TestPrecompute(t *testing.T) {
	program, err := Parse(`a =~ "^b" and c =~ '/^D/i' and e =~ f and "x" =~ "x"`)
	require.Nil(t, err)

	require.Len(t, program.patterns, 3)
	assert.Contains(t, program.patterns, "^b")
	assert.Contains(t, program.patterns, "/^D/i")
	assert.Contains(t, program.patterns, "x")

	matched, err := program.patterns["/^D/i"].MatchString("dodge")
	assert.Nil(t, err)
	assert.True(t, matched)
}

func TestPrecomputeInvalidPattern(t *testing.T) {
	program, err := Parse(`a =~ "("`)
	assert.Nil(t, program)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, ErrInvalidPattern, parseErr.Kind)
	assert.Equal(t, 5, parseErr.Pos)
	assert.NotNil(t, errors.Unwrap(err))
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		source string
		expr   string
		input  string
		match  bool
	}{
		{`^abc$`, `^abc$`, "abc", true},
		{`/abc/`, `abc`, "xabcx", true},
		{`/abc/`, `abc`, "ABC", false},
		{`/abc/im`, `abc`, "ABC", true},
		{`/^b/m`, `^b`, "a\nb", true},
		{`/a.b/s`, `a.b`, "a\nb", true},
		{`/a b/x`, `a b`, "ab", true},
		{`/a/b/i`, `a/b`, "A/B", true},
		{`/abc/q`, `/abc/q`, "/abc/q", true},
		{`a/b`, `a/b`, "a/b", true},
		{`/`, `/`, "/", true},
	}

	for _, test := range tests {
		re, err := compilePattern(test.source)
		require.Nil(t, err, test.source)
		assert.Equal(t, test.expr, re.String(), test.source)

		matched, err := re.MatchString(test.input)
		assert.Nil(t, err)
		assert.Equal(t, test.match, matched, test.source)
	}
}

func TestUnquote(t *testing.T) {
	tests := map[string]string{
		`"abc"`:     `abc`,
		`'abc'`:     `abc`,
		`""`:        ``,
		`"a\"b"`:    `a"b`,
		`'a\'b'`:    `a'b`,
		`'a\"b'`:    `a\"b`,
		`"a\\b"`:    `a\b`,
		`'\d+\.\w'`: `\d+\.\w`,
	}

	for literal, expected := range tests {
		assert.Equal(t, expected, unquote(literal), literal)
	}
}
