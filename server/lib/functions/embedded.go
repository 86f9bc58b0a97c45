// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package functions

import (
	"encoding/base64"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/clbanning/mxj/v2"
	"github.com/ohler55/ojg/jp"
	oj "github.com/ohler55/ojg/oj"
	jgrep "github.com/up9inc/jgrep/server/lib"
	"gopkg.in/yaml.v3"
)

// The functions in this file look into documents that are embedded as a
// string field of the queried document, like a request body. The string
// may be base64 encoded. A string that doesn't parse yields a missing value
// rather than an error, the same as a path that isn't there.

// embedded returns the (possibly base64 decoded) text and the path argument.
func embedded(args []interface{}) (text string, path string, ok bool, err error) {
	if err = arity(args, 2); err != nil || args[0] == nil {
		return
	}

	var s []string
	s, err = stringArgs(args, 2)
	if err != nil {
		return
	}
	text, path, ok = s[0], s[1], true

	// Try to base64 decode the string
	if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
		text = string(decoded)
	}
	return
}

// _json evaluates a JSONPath like `$.user.name` against a JSON string.
func _json(args []interface{}) (interface{}, error) {
	text, path, ok, err := embedded(args)
	if err != nil || !ok {
		return nil, err
	}

	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, err
	}

	obj, err := oj.ParseString(text)
	if err != nil {
		return nil, nil
	}

	result := expr.Get(obj)
	switch len(result) {
	case 0:
		return nil, nil
	case 1:
		return result[0], nil
	}
	return result, nil
}

// xml looks up a dotted path like `order.item.price` in an XML string.
func xml(args []interface{}) (interface{}, error) {
	text, path, ok, err := embedded(args)
	if err != nil || !ok {
		return nil, err
	}

	mv, err := mxj.NewMapXml([]byte(text))
	if err != nil {
		return nil, nil
	}

	result, err := mv.ValuesForPath(path)
	if err != nil || len(result) < 1 {
		return nil, nil
	}

	switch value := result[0].(type) {
	case string:
		return value, nil
	case map[string]interface{}:
		if text, ok := value["#text"].(string); ok {
			return text, nil
		}
		return value, nil
	}
	return result[0], nil
}

// xpath evaluates an XPath expression like `//item[@id='2']/price` against
// an XML string and returns the inner text of the first node.
func xpath(args []interface{}) (interface{}, error) {
	text, expr, ok, err := embedded(args)
	if err != nil || !ok {
		return nil, err
	}

	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, nil
	}

	node, err := xmlquery.Query(doc, expr)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	return node.InnerText(), nil
}

// _yaml resolves a dotted path in a YAML string the same way lookups are
// resolved in the queried document.
func _yaml(args []interface{}) (interface{}, error) {
	text, path, ok, err := embedded(args)
	if err != nil || !ok {
		return nil, err
	}

	var obj interface{}
	if err := yaml.Unmarshal([]byte(text), &obj); err != nil {
		return nil, nil
	}

	v, _ := jgrep.ResolvePath(normalize(obj), path)
	return v, nil
}

// normalize converts what yaml.v3 decodes into the types the evaluator
// works with.
func normalize(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		for k, i := range v {
			v[k] = normalize(i)
		}
		return v
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(v))
		for k, i := range v {
			key, err := stringArg(k)
			if err != nil {
				continue
			}
			m[key] = normalize(i)
		}
		return m
	case []interface{}:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	case int:
		return int64(v)
	}
	return v
}
