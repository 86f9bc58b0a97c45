// Copyright 2021 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
)

// AddMacro takes macro and its corresponding expanded version
// as arguments. It stores the macro in the given map and returns it.
func AddMacro(macros map[string]string, macro string, expanded string) map[string]string {
	if macros == nil {
		macros = make(map[string]string)
	}
	macros[macro] = fmt.Sprintf("(%s)", expanded)
	return macros
}

// ExpandMacros expands the macros in a given query, if there are any.
// A macro is only replaced where it stands as a whole operand: not as a
// part of a longer path, not as a function name and not inside string
// literals. Longer macros are expanded first.
func ExpandMacros(macros map[string]string, query string) (string, error) {
	var err error

	type pair struct {
		Macro    string
		Expanded string
	}

	var slice []pair
	for k, v := range macros {
		slice = append(slice, pair{k, v})
	}

	sort.Slice(slice, func(i, j int) bool {
		if len(slice[i].Macro) == len(slice[j].Macro) {
			return slice[i].Macro < slice[j].Macro
		}
		return len(slice[i].Macro) > len(slice[j].Macro)
	})

	for _, pair := range slice {
		var regex *regexp2.Regexp
		regex, err = regexp2.Compile(fmt.Sprintf(`(?<![\w.])(%s)(?![\w.(])(?=(?:[^"']|"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')*$)`, regexp2.Escape(pair.Macro)), regexp2.None)
		if err != nil {
			return query, err
		}
		query, err = regex.Replace(query, strings.ReplaceAll(pair.Expanded, "$", "$$"), -1, -1)
		if err != nil {
			return query, err
		}
	}
	return query, nil
}
