// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

// Function is a callable that can be referenced by name from a query. The
// arguments are resolved before the call: constants become their literal
// value, lookups the value found in the document (nil if absent) and nested
// calls their return value.
//
// Functions may be called from many goroutines at once and must not modify
// their arguments.
type Function func(args []interface{}) (interface{}, error)

// FunctionRegistry maps function names to their implementations. It's built
// once by the caller and treated as read-only during evaluation.
type FunctionRegistry map[string]Function

// Merge returns a new registry that holds the functions of r and of all the
// others. Later registries override earlier ones.
func (r FunctionRegistry) Merge(others ...FunctionRegistry) FunctionRegistry {
	merged := make(FunctionRegistry, len(r))
	for name, f := range r {
		merged[name] = f
	}
	for _, other := range others {
		for name, f := range other {
			merged[name] = f
		}
	}
	return merged
}

// Missing returns the function names of the program that the registry
// doesn't define.
func (r FunctionRegistry) Missing(program *Program) (names []string) {
	for _, name := range program.Functions {
		if _, ok := r[name]; !ok {
			names = append(names, name)
		}
	}
	return
}
