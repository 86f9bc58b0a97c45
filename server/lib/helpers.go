// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"fmt"
	"net"
	"strings"

	oj "github.com/ohler55/ojg/oj"
	"sigs.k8s.io/yaml"
)

// Format is the serialization format of an input document.
type Format int

const (
	JSON Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "YAML"
	}
	return "JSON"
}

// ParseFormat returns the Format named by s, case insensitive.
func ParseFormat(s string) (f Format, err error) {
	switch strings.ToLower(s) {
	case "json", "":
		f = JSON
	case "yaml", "yml":
		f = YAML
	default:
		err = fmt.Errorf("unknown input format %q", s)
	}
	return
}

// Decode decodes a serialized document into the generic tree Eval works on:
// map[string]interface{}, []interface{}, string, int64, float64, bool and nil.
// YAML is converted to JSON first so both formats yield the same types.
func Decode(data []byte, format Format) (doc interface{}, err error) {
	if format == YAML {
		data, err = yaml.YAMLToJSON(data)
		if err != nil {
			err = &InputFormatError{Format: format, Err: err}
			return
		}
	}

	doc, err = oj.Parse(data)
	if err != nil {
		err = &InputFormatError{Format: format, Err: err}
	}
	return
}

// Slice returns the part of the document found at path, which becomes the
// root that queries are evaluated against. An empty path is the document
// itself. Nil is returned if the path doesn't exist.
func Slice(doc interface{}, path string) interface{} {
	v, _ := ResolvePath(doc, path)
	return v
}

// Grep parses the query and evaluates it against the document in one go.
func Grep(query string, doc interface{}, registry FunctionRegistry) (result interface{}, err error) {
	var program *Program
	program, err = Parse(query)
	if err != nil {
		return
	}
	_, result, err = Eval(program, doc, registry)
	return
}

func IndexToID(index int) string {
	return fmt.Sprintf("%024d", index)
}

// SendOK writes the OK reply into the connection.
func SendOK(conn net.Conn) {
	conn.Write([]byte("OK\n"))
}

// SendErr writes the error text as a single line into the connection.
func SendErr(conn net.Conn, err error) {
	conn.Write([]byte(fmt.Sprintf("Error: %s\n", strings.ReplaceAll(err.Error(), "\n", " "))))
}

// SendClose tells the client that the server is hanging up.
func SendClose(conn net.Conn) {
	conn.Write([]byte(fmt.Sprintf("%s\n", CloseConnection)))
}
