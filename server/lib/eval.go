// Copyright 2021 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"

	"github.com/dlclark/regexp2"
	oj "github.com/ohler55/ojg/oj"
)

var errUnexpectedEnd = errors.New("unexpected end of callstack")

// bool operand evaluator. A missing value is false, strings, lists and
// objects are true if not empty, any other present value is true.
func boolOperand(operand interface{}) bool {
	switch v := operand.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case []interface{}:
		return len(v) > 0
	case map[string]interface{}:
		return len(v) > 0
	}
	return true
}

// string operand evaluator. Lists and objects are rendered as JSON.
func stringOperand(operand interface{}) string {
	switch v := operand.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return "null"
	case []interface{}, map[string]interface{}:
		return oj.JSON(v)
	}
	return fmt.Sprint(operand)
}

// float64 operand evaluator. Any integer or float kind is numeric,
// everything else is not.
func float64Operand(operand interface{}) (float64, bool) {
	switch v := operand.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	}
	return 0, false
}

func and(operand1 interface{}, operand2 interface{}) bool {
	return boolOperand(operand1) && boolOperand(operand2)
}

func or(operand1 interface{}, operand2 interface{}) bool {
	return boolOperand(operand1) || boolOperand(operand2)
}

func xor(operand1 interface{}, operand2 interface{}) bool {
	return boolOperand(operand1) != boolOperand(operand2)
}

func nand(operand1 interface{}, operand2 interface{}) bool {
	return !(boolOperand(operand1) && boolOperand(operand2))
}

// Map of logical operations. They all share the same precedence and are
// applied left to right.
var logicalOperations = map[string]func(interface{}, interface{}) bool{
	"and":  and,
	"or":   or,
	"xor":  xor,
	"nand": nand,
}

// eql is the `==` operation. A list compared to a non-list value is equal if
// any of its elements is.
func eql(operand1 interface{}, operand2 interface{}) bool {
	if operand1 == nil || operand2 == nil {
		return false
	}

	list1, isList1 := operand1.([]interface{})
	list2, isList2 := operand2.([]interface{})
	switch {
	case isList1 && !isList2:
		for _, i := range list1 {
			if deepEqual(i, operand2) {
				return true
			}
		}
		return false
	case isList2 && !isList1:
		for _, i := range list2 {
			if deepEqual(operand1, i) {
				return true
			}
		}
		return false
	}
	return deepEqual(operand1, operand2)
}

// deepEqual is structural equality where numbers compare by value
// regardless of their integer or float kind.
func deepEqual(operand1 interface{}, operand2 interface{}) bool {
	if f1, ok := float64Operand(operand1); ok {
		f2, ok := float64Operand(operand2)
		return ok && f1 == f2
	}

	switch v1 := operand1.(type) {
	case nil:
		return operand2 == nil
	case string:
		v2, ok := operand2.(string)
		return ok && v1 == v2
	case bool:
		v2, ok := operand2.(bool)
		return ok && v1 == v2
	case []interface{}:
		v2, ok := operand2.([]interface{})
		if !ok || len(v1) != len(v2) {
			return false
		}
		for i := range v1 {
			if !deepEqual(v1[i], v2[i]) {
				return false
			}
		}
		return true
	case map[string]interface{}:
		v2, ok := operand2.(map[string]interface{})
		if !ok || len(v1) != len(v2) {
			return false
		}
		for k, i := range v1 {
			j, ok := v2[k]
			if !ok || !deepEqual(i, j) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(operand1, operand2)
}

// Map of ordering operations on numbers
var comparisonOperations = map[string]func(float64, float64) bool{
	">":  func(x, y float64) bool { return x > y },
	">=": func(x, y float64) bool { return x >= y },
	"<":  func(x, y float64) bool { return x < y },
	"<=": func(x, y float64) bool { return x <= y },
}

// order applies one of the ordering operations. Missing values are never
// ordered, lists are if any of their elements is.
func order(op string, operand1 interface{}, operand2 interface{}) (bool, error) {
	if operand1 == nil || operand2 == nil {
		return false, nil
	}

	if list, ok := operand1.([]interface{}); ok {
		for _, i := range list {
			if truth, err := order(op, i, operand2); err != nil || truth {
				return truth, err
			}
		}
		return false, nil
	}
	if list, ok := operand2.([]interface{}); ok {
		for _, i := range list {
			if truth, err := order(op, operand1, i); err != nil || truth {
				return truth, err
			}
		}
		return false, nil
	}

	x, ok1 := float64Operand(operand1)
	y, ok2 := float64Operand(operand2)
	if !ok1 || !ok2 {
		return false, &EvalError{
			Kind: ErrNotComparable,
			Name: op,
			Err:  fmt.Errorf("%s and %s", typeName(operand1), typeName(operand2)),
		}
	}
	return comparisonOperations[op](x, y), nil
}

func typeName(operand interface{}) string {
	switch operand.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]interface{}:
		return "object"
	}
	return reflect.TypeOf(operand).String()
}

// evaluator reduces the callstack of a Program to a single value with a
// recursive descent over the tokens:
//
//	expression := comparison (LOPERATOR comparison)*
//	comparison := unary (COPERATOR unary)*
//	unary      := "!" unary | "(" expression ")" | CONSTANT | LOOKUP | FUNCTION
type evaluator struct {
	program  *Program
	lookups  map[string]interface{}
	registry FunctionRegistry
	index    int
}

func (e *evaluator) peek() (token Token, ok bool) {
	if e.index < len(e.program.Callstack) {
		return e.program.Callstack[e.index], true
	}
	return
}

func (e *evaluator) expression() (v interface{}, err error) {
	v, err = e.comparison()
	for err == nil {
		token, ok := e.peek()
		if !ok || token.Type != LOPERATOR {
			break
		}
		e.index++

		var next interface{}
		next, err = e.comparison()
		if err != nil {
			break
		}
		v = logicalOperations[token.Text](v, next)
	}
	return
}

func (e *evaluator) comparison() (v interface{}, err error) {
	v, err = e.unary()
	for err == nil {
		token, ok := e.peek()
		if !ok || token.Type != COPERATOR {
			break
		}
		e.index++

		var next interface{}
		next, err = e.unary()
		if err != nil {
			break
		}
		v, err = e.compare(token.Text, v, next)
	}
	return
}

func (e *evaluator) unary() (v interface{}, err error) {
	token, ok := e.peek()
	if !ok {
		err = errUnexpectedEnd
		return
	}
	e.index++

	switch token.Type {
	case UOPERATOR:
		v, err = e.unary()
		v = !boolOperand(v)
	case PAREN:
		if !token.IsOpen() {
			err = fmt.Errorf("%d: unexpected ')'", token.Pos)
			return
		}
		v, err = e.expression()
		if err != nil {
			return
		}
		if closing, ok := e.peek(); !ok || !closing.IsClose() {
			err = errUnexpectedEnd
			return
		}
		e.index++
	default:
		v, err = e.value(token)
	}
	return
}

// value resolves an operand token: constants to their literal value, lookups
// through the lookup table and functions by calling them.
func (e *evaluator) value(token Token) (v interface{}, err error) {
	switch token.Type {
	case CONSTANT:
		v = constantValue(token)
	case LOOKUP:
		v = e.lookups[token.Text]
	case FUNCTION:
		args := make([]interface{}, len(token.Params))
		for i, param := range token.Params {
			args[i], err = e.value(param)
			if err != nil {
				return
			}
		}
		f, ok := e.registry[token.Text]
		if !ok {
			err = &EvalError{Kind: ErrUndefinedFunction, Name: token.Text}
			return
		}
		v, err = f(args)
		if err != nil {
			err = &EvalError{Kind: ErrFunctionCall, Name: token.Text, Err: err}
		}
	default:
		err = fmt.Errorf("%d: unexpected %s token %q", token.Pos, token.Type, token.Text)
	}
	return
}

func (e *evaluator) compare(op string, operand1 interface{}, operand2 interface{}) (v bool, err error) {
	switch op {
	case "==":
		v = eql(operand1, operand2)
	case "=~":
		v, err = e.match(operand1, operand2)
	default:
		v, err = order(op, operand1, operand2)
	}
	return
}

// match is the `=~` operation, the right-hand side is the pattern.
func (e *evaluator) match(operand interface{}, pattern interface{}) (v bool, err error) {
	if operand == nil || pattern == nil {
		return
	}

	source := stringOperand(pattern)
	re, ok := e.program.patterns[source]
	if !ok {
		re, err = compilePattern(source)
		if err != nil {
			err = &EvalError{Kind: ErrDynamicPattern, Name: "=~", Err: err}
			return
		}
	}

	if list, ok := operand.([]interface{}); ok {
		for _, i := range list {
			if i == nil {
				continue
			}
			if v, err = matchString(re, i); err != nil || v {
				return
			}
		}
		return
	}
	return matchString(re, operand)
}

func matchString(re *regexp2.Regexp, operand interface{}) (bool, error) {
	v, err := re.MatchString(stringOperand(operand))
	if err != nil {
		return false, &EvalError{Kind: ErrDynamicPattern, Name: "=~", Err: err}
	}
	return v, nil
}

// constantValue returns the literal value of a constant, strings without
// their quotes.
func constantValue(token Token) interface{} {
	if s, ok := token.Value.(string); ok {
		return unquote(s)
	}
	return token.Value
}

// Eval evaluates the boolean truthiness of a document against a Program. It
// resolves every path of the program up front, makes sure every function is
// in the registry and then reduces the callstack.
//
// The document is returned as result if the truth is true, the result is nil
// otherwise. The document is never modified.
func Eval(program *Program, doc interface{}, registry FunctionRegistry) (truth bool, result interface{}, err error) {
	lookups := make(map[string]interface{}, len(program.Lookups))
	for _, path := range program.Lookups {
		if v, ok := ResolvePath(doc, path); ok {
			lookups[path] = v
		}
	}

	for _, name := range program.Functions {
		if _, ok := registry[name]; !ok {
			err = &EvalError{Kind: ErrUndefinedFunction, Name: name}
			return
		}
	}

	if len(program.Callstack) == 0 {
		truth = true
	} else {
		e := &evaluator{
			program:  program,
			lookups:  lookups,
			registry: registry,
		}

		var v interface{}
		v, err = e.expression()
		if err != nil {
			return
		}
		if e.index < len(program.Callstack) {
			token := program.Callstack[e.index]
			err = fmt.Errorf("%d: unexpected %s token %q", token.Pos, token.Type, token.Text)
			return
		}
		truth = boolOperand(v)
	}

	if truth {
		result = doc
	}
	return
}

// Match is Eval without the result.
func Match(program *Program, doc interface{}, registry FunctionRegistry) (truth bool, err error) {
	truth, _, err = Eval(program, doc, registry)
	return
}

// Filter evaluates the Program against each document and returns the ones
// that match, in order.
func Filter(program *Program, docs []interface{}, registry FunctionRegistry) (matched []interface{}, err error) {
	matched = []interface{}{}
	for _, doc := range docs {
		var truth bool
		truth, err = Match(program, doc, registry)
		if err != nil {
			return
		}
		if truth {
			matched = append(matched, doc)
		}
	}
	return
}
