// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import "strings"

// ResolvePath walks the document along a dotted path like `foo.bar.baz`
// and returns the value found there. The second return value is false if
// the path doesn't exist in the document.
//
// A list met on the way is flattened: the next segment is applied to each of
// its elements and the elements that don't have it are dropped. If a single
// element survives it is returned on its own, not wrapped in a list.
//
//	ResolvePath({"foo": [{"bar": "1"}, {"bar": "2"}]}, "foo.bar") // ["1", "2"], true
//	ResolvePath({"foo": [{"bar": "baz"}]}, "foo.bar")              // "baz", true
//	ResolvePath({"foo": "bar"}, "foo.bar.baz")                     // nil, false
func ResolvePath(doc interface{}, path string) (value interface{}, ok bool) {
	value, ok = doc, true
	if path == "" {
		return
	}

	for _, segment := range strings.Split(path, ".") {
		value, ok = resolveSegment(value, segment)
		if !ok {
			return nil, false
		}
	}
	return
}

func resolveSegment(node interface{}, segment string) (interface{}, bool) {
	switch node := node.(type) {
	case []interface{}:
		matched := make([]interface{}, 0, len(node))
		for _, element := range node {
			if v, ok := resolveSegment(element, segment); ok {
				matched = append(matched, v)
			}
		}
		switch len(matched) {
		case 0:
			return nil, false
		case 1:
			return matched[0], true
		}
		return matched, true
	case map[string]interface{}:
		v, ok := node[segment]
		return v, ok
	default:
		// Scalars have no children.
		return nil, false
	}
}
