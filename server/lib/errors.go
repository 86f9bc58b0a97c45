// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"fmt"
	"strings"
)

// TokenErrorKind identifies why a query could not be tokenized.
type TokenErrorKind int

const (
	ErrUnterminatedString TokenErrorKind = iota + 1
	ErrUnterminatedFunction
	ErrBadFunctionArgument
)

// TokenError is returned by Tokenize.
type TokenError struct {
	Kind TokenErrorKind
	Pos  int
	Text string
}

func (e *TokenError) Error() string {
	switch e.Kind {
	case ErrUnterminatedString:
		return fmt.Sprintf("%d: bad string token identified, missing %s", e.Pos, e.Text)
	case ErrUnterminatedFunction:
		return fmt.Sprintf("%d: bad function token identified, %s is missing )", e.Pos, e.Text)
	default:
		return fmt.Sprintf("%d: bad function argument %q, expected exactly one constant, lookup or function", e.Pos, e.Text)
	}
}

// Is makes errors.Is match on the kind only.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Kind == e.Kind
}

// ParseErrorKind identifies which grammar rule a token sequence breaks.
type ParseErrorKind int

const (
	ErrUnexpectedToken ParseErrorKind = iota + 1
	ErrTrailingOperator
	ErrUnmatchedParen
	ErrInvalidFunctionParameter
	ErrInvalidPattern
)

// ParseError is returned by Validate and Parse. Found is the offending token,
// Allowed lists the token types that would have been accepted in its place.
type ParseError struct {
	Kind    ParseErrorKind
	Pos     int
	Found   Token
	Allowed []TokenType
	Err     error
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrUnexpectedToken:
		allowed := make([]string, len(e.Allowed))
		for i, t := range e.Allowed {
			allowed[i] = t.String()
		}
		return fmt.Sprintf("%d: bad %s token %q found, expected one of %s", e.Pos, e.Found.Type, e.Found.String(), strings.Join(allowed, ","))
	case ErrTrailingOperator:
		return fmt.Sprintf("%d: bad token %q found, query cannot end with an operator", e.Pos, e.Found.Text)
	case ErrUnmatchedParen:
		if e.Found.IsOpen() {
			return fmt.Sprintf("%d: found '(' without a matching ')'", e.Pos)
		}
		return fmt.Sprintf("%d: found ')' without a matching '('", e.Pos)
	case ErrInvalidFunctionParameter:
		return fmt.Sprintf("%d: function parameters can only be of type constant, lookup or function, found %s", e.Pos, e.Found.Type)
	default:
		return fmt.Sprintf("%d: invalid pattern %s: %v", e.Pos, e.Found.Text, e.Err)
	}
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on the kind only.
func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	return ok && t.Kind == e.Kind
}

// EvalErrorKind identifies why a program could not be evaluated against a document.
type EvalErrorKind int

const (
	ErrUndefinedFunction EvalErrorKind = iota + 1
	ErrNotComparable
	ErrFunctionCall
	ErrDynamicPattern
)

// EvalError is returned by Eval. Name is the function name or the operator
// involved, Err the underlying cause if there is one.
type EvalError struct {
	Kind EvalErrorKind
	Name string
	Err  error
}

func (e *EvalError) Error() string {
	switch e.Kind {
	case ErrUndefinedFunction:
		return fmt.Sprintf("cannot call function %q, function has not been defined", e.Name)
	case ErrNotComparable:
		return fmt.Sprintf("operands of %s are not comparable: %v", e.Name, e.Err)
	case ErrFunctionCall:
		return fmt.Sprintf("function %q failed: %v", e.Name, e.Err)
	default:
		return fmt.Sprintf("invalid pattern for %s: %v", e.Name, e.Err)
	}
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is match on the kind only.
func (e *EvalError) Is(target error) bool {
	t, ok := target.(*EvalError)
	return ok && t.Kind == e.Kind
}

// InputFormatError is returned by Decode when the input is not a valid
// document of the requested format.
type InputFormatError struct {
	Format Format
	Err    error
}

func (e *InputFormatError) Error() string {
	return fmt.Sprintf("invalid %s input given: %v", e.Format, e.Err)
}

func (e *InputFormatError) Unwrap() error {
	return e.Err
}
