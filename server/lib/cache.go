// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 256

// Compiler parses queries into Programs and keeps the most recently used
// ones around, keyed by the query string. It's safe for concurrent use.
type Compiler struct {
	cache *lru.Cache[string, *Program]
}

// NewCompiler returns a Compiler that keeps up to size Programs.
func NewCompiler(size int) (compiler *Compiler, err error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	var cache *lru.Cache[string, *Program]
	cache, err = lru.New[string, *Program](size)
	if err != nil {
		return
	}
	compiler = &Compiler{cache: cache}
	return
}

// Compile returns the Program of the query, parsing it only if it isn't
// cached yet. Queries that fail to parse are not cached.
func (c *Compiler) Compile(query string) (program *Program, err error) {
	if program, ok := c.cache.Get(query); ok {
		return program, nil
	}

	program, err = Parse(query)
	if err != nil {
		return
	}
	c.cache.Add(query, program)
	return
}

// Len returns the number of cached Programs.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

// Purge drops every cached Program.
func (c *Compiler) Purge() {
	c.cache.Purge()
}
