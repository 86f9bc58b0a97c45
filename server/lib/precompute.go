// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Precompute does the compile-time work on a validated Program. Every string
// constant on the right-hand side of `=~` is compiled into a regular
// expression once, instead of once per evaluated document.
func Precompute(program *Program) (err error) {
	program.patterns = make(map[string]*regexp2.Regexp)

	callstack := program.Callstack
	for i, token := range callstack {
		if token.Type != COPERATOR || token.Text != "=~" || i+1 >= len(callstack) {
			continue
		}

		next := callstack[i+1]
		if next.Type != CONSTANT {
			continue
		}
		literal, ok := next.Value.(string)
		if !ok {
			continue
		}

		source := unquote(literal)
		var re *regexp2.Regexp
		re, err = compilePattern(source)
		if err != nil {
			return &ParseError{Kind: ErrInvalidPattern, Pos: next.Pos, Found: next, Err: err}
		}
		program.patterns[source] = re
	}
	return
}

// compilePattern compiles a pattern given either bare like `^foo` or
// delimited like `/^foo/i`. The trailing flags i, m, s and x map onto the
// regexp2 options.
func compilePattern(source string) (*regexp2.Regexp, error) {
	expr, options := source, regexp2.None

	if end := strings.LastIndex(source, "/"); len(source) > 1 && source[0] == '/' && end > 0 {
		if flags, ok := patternFlags(source[end+1:]); ok {
			expr = source[1:end]
			options = flags
		}
	}

	return regexp2.Compile(expr, options)
}

func patternFlags(flags string) (options regexp2.RegexOptions, ok bool) {
	options = regexp2.None
	for _, flag := range flags {
		switch flag {
		case 'i':
			options |= regexp2.IgnoreCase
		case 'm':
			options |= regexp2.Multiline
		case 's':
			options |= regexp2.Singleline
		case 'x':
			options |= regexp2.IgnorePatternWhitespace
		default:
			return regexp2.None, false
		}
	}
	return options, true
}

// unquote strips the surrounding quotes off a string literal. Only escaped
// quotes and escaped backslashes are unescaped, any other backslash sequence
// is kept as is so that patterns like '\d+' survive.
func unquote(literal string) string {
	if len(literal) < 2 {
		return literal
	}

	quote := literal[0]
	body := literal[1 : len(literal)-1]
	if !strings.Contains(body, `\`) {
		return body
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) && (body[i+1] == quote || body[i+1] == '\\') {
			i++
			c = body[i]
		}
		b.WriteByte(c)
	}
	return b.String()
}
