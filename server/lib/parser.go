// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

// Parse turns a query (filtering syntax) into a Program. It tokenizes the
// query, validates the grammar and precomputes the constant patterns.
//
// An empty query yields an empty Program which matches any document.
func Parse(query string) (program *Program, err error) {
	var tokens []Token
	tokens, err = Tokenize(query)
	if err != nil {
		return
	}

	program, err = Validate(tokens)
	if err != nil {
		return
	}
	program.Query = query

	err = Precompute(program)
	if err != nil {
		program = nil
	}
	return
}
