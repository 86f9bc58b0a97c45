// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

// Package functions provides the built-in functions that queries can call,
// like `startsWith(brand.name, "Chev")` or `sum(10, foo.bar) == 15`.
package functions

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/gobwas/glob"
	jgrep "github.com/up9inc/jgrep/server/lib"
)

// Builtins returns a new registry holding every built-in function.
func Builtins() jgrep.FunctionRegistry {
	return jgrep.FunctionRegistry{
		"sum":        sum,
		"count":      count,
		"startsWith": startsWith,
		"endsWith":   endsWith,
		"contains":   contains,
		"lower":      lower,
		"upper":      upper,
		"datetime":   datetime,
		"glob":       globMatch,
		"distance":   distance,
		"json":       _json,
		"xml":        xml,
		"xpath":      xpath,
		"yaml":       _yaml,
	}
}

func arity(args []interface{}, n int) error {
	if len(args) != n {
		return fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	return nil
}

func stringArg(arg interface{}) (string, error) {
	switch v := arg.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	}
	return "", fmt.Errorf("expected a string, got %T", arg)
}

func stringArgs(args []interface{}, n int) (s []string, err error) {
	if err = arity(args, n); err != nil {
		return
	}
	s = make([]string, n)
	for i, arg := range args {
		if s[i], err = stringArg(arg); err != nil {
			return
		}
	}
	return
}

// sum adds up its numeric arguments. Lists are summed element by element
// and missing values are skipped. The result is an integer unless a float
// was involved.
func sum(args []interface{}) (interface{}, error) {
	var total float64
	integral := true

	var add func(arg interface{}) error
	add = func(arg interface{}) error {
		switch v := arg.(type) {
		case nil:
		case int64:
			total += float64(v)
		case int:
			total += float64(v)
		case float64:
			total += v
			integral = false
		case []interface{}:
			for _, i := range v {
				if err := add(i); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("cannot sum %T", arg)
		}
		return nil
	}

	for _, arg := range args {
		if err := add(arg); err != nil {
			return nil, err
		}
	}

	if integral {
		return int64(total), nil
	}
	return total, nil
}

// count returns the length of a list, string or object. A missing value
// counts as 0, any other value as 1.
func count(args []interface{}) (interface{}, error) {
	if err := arity(args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case nil:
		return int64(0), nil
	case []interface{}:
		return int64(len(v)), nil
	case map[string]interface{}:
		return int64(len(v)), nil
	case string:
		return int64(len([]rune(v))), nil
	}
	return int64(1), nil
}

func startsWith(args []interface{}) (interface{}, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return false, nil
	}
	s, err := stringArgs(args, 2)
	if err != nil {
		return nil, err
	}
	return strings.HasPrefix(s[0], s[1]), nil
}

func endsWith(args []interface{}) (interface{}, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return false, nil
	}
	s, err := stringArgs(args, 2)
	if err != nil {
		return nil, err
	}
	return strings.HasSuffix(s[0], s[1]), nil
}

// contains checks for a substring, or for an element if the first
// argument is a list.
func contains(args []interface{}) (interface{}, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return false, nil
	}
	if list, ok := args[0].([]interface{}); ok {
		needle, err := stringArg(args[1])
		if err != nil {
			return nil, err
		}
		for _, i := range list {
			if s, err := stringArg(i); err == nil && s == needle {
				return true, nil
			}
		}
		return false, nil
	}
	s, err := stringArgs(args, 2)
	if err != nil {
		return nil, err
	}
	return strings.Contains(s[0], s[1]), nil
}

func lower(args []interface{}) (interface{}, error) {
	if err := arity(args, 1); err != nil || args[0] == nil {
		return nil, err
	}
	s, err := stringArg(args[0])
	if err != nil {
		return nil, err
	}
	return strings.ToLower(s), nil
}

func upper(args []interface{}) (interface{}, error) {
	if err := arity(args, 1); err != nil || args[0] == nil {
		return nil, err
	}
	s, err := stringArg(args[0])
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(s), nil
}

var datetimeLayouts = []string{
	"1/2/2006, 3:04:05.000 PM",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// datetime turns a date string into a timestamp in milliseconds, like
// 1634668524000, so that it can be compared against timestamp fields.
func datetime(args []interface{}) (interface{}, error) {
	s, err := stringArgs(args, 1)
	if err != nil {
		return nil, err
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s[0]); err == nil {
			return t.UnixNano() / int64(time.Millisecond), nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a date", s[0])
}

var globCacheLock = sync.Mutex{}
var globCache = map[string]glob.Glob{}

func getGlob(pattern string) (glob.Glob, error) {
	globCacheLock.Lock()
	defer globCacheLock.Unlock()
	g, ok := globCache[pattern]
	if !ok {
		var err error
		g, err = glob.Compile(pattern, '.')
		if err != nil {
			return nil, err
		}
		globCache[pattern] = g
	}
	return g, nil
}

// globMatch matches a value against a glob pattern where `*` doesn't cross
// dots, like `glob(host, "*.example.com")`.
func globMatch(args []interface{}) (interface{}, error) {
	if err := arity(args, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return false, nil
	}
	s, err := stringArgs(args, 2)
	if err != nil {
		return nil, err
	}
	g, err := getGlob(s[1])
	if err != nil {
		return nil, err
	}
	return g.Match(s[0]), nil
}

// distance is the Levenshtein distance between two strings.
func distance(args []interface{}) (interface{}, error) {
	s, err := stringArgs(args, 2)
	if err != nil {
		return nil, err
	}
	return int64(levenshtein.ComputeDistance(s[0], s[1])), nil
}
