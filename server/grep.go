// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	oj "github.com/ohler55/ojg/oj"
	log "github.com/sirupsen/logrus"
	jgrep "github.com/up9inc/jgrep/server/lib"
)

// grepOptions are the settings of the root command.
type grepOptions struct {
	format jgrep.Format
	start  string
	pretty bool
	watch  bool
	// macros map the macro names to their definitions, as written.
	macros map[string]string
}

// grepper evaluates a single Program against input documents and writes the
// matching ones to out, one per line.
type grepper struct {
	program  *jgrep.Program
	registry jgrep.FunctionRegistry
	opts     grepOptions
	out      io.Writer
}

func newGrepper(query string, registry jgrep.FunctionRegistry, opts grepOptions, out io.Writer) (g *grepper, err error) {
	var macros map[string]string
	for macro, expanded := range opts.macros {
		macros = jgrep.AddMacro(macros, macro, expanded)
	}

	query, err = jgrep.ExpandMacros(macros, query)
	if err != nil {
		return
	}

	var program *jgrep.Program
	program, err = jgrep.Parse(query)
	if err != nil {
		return
	}

	if missing := registry.Missing(program); len(missing) > 0 {
		err = &jgrep.EvalError{Kind: jgrep.ErrUndefinedFunction, Name: missing[0]}
		return
	}

	g = &grepper{
		program:  program,
		registry: registry,
		opts:     opts,
		out:      out,
	}
	return
}

// grep decodes the input, moves to the start path and prints the matches.
// A list found at the start path is filtered element by element, anything
// else is matched as a whole. It returns the number of matches.
func (g *grepper) grep(data []byte) (n int, err error) {
	var doc interface{}
	doc, err = jgrep.Decode(data, g.opts.format)
	if err != nil {
		return
	}

	doc = jgrep.Slice(doc, g.opts.start)

	var matched []interface{}
	if list, ok := doc.([]interface{}); ok {
		matched, err = jgrep.Filter(g.program, list, g.registry)
		if err != nil {
			return
		}
	} else {
		var truth bool
		truth, err = jgrep.Match(g.program, doc, g.registry)
		if err != nil {
			return
		}
		if truth {
			matched = append(matched, doc)
		}
	}

	for _, v := range matched {
		if _, err = fmt.Fprintln(g.out, g.render(v)); err != nil {
			return
		}
	}
	n = len(matched)
	return
}

func (g *grepper) render(v interface{}) string {
	if g.opts.pretty {
		return oj.JSON(v, &oj.Options{Indent: 2, Sort: true})
	}
	return oj.JSON(v, &oj.Options{Sort: true})
}

// grepFile greps a single file, "-" is the standard input.
func (g *grepper) grepFile(path string, stdin io.Reader) (n int, err error) {
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return
	}
	return g.grep(data)
}

// watchFiles greps the files again each time one of them is written, until
// the context is done.
func (g *grepper) watchFiles(ctx context.Context, paths []string) (err error) {
	var watcher *fsnotify.Watcher
	watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return
	}
	defer watcher.Close()

	// Editors replace files instead of writing them, so the directories are
	// watched and the events are filtered by name.
	watched := make(map[string]bool)
	for _, path := range paths {
		var abs string
		abs, err = filepath.Abs(path)
		if err != nil {
			return
		}
		watched[abs] = true
		if err = watcher.Add(filepath.Dir(abs)); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[event.Name] || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			log.Debugf("%s changed", event.Name)
			if _, err := g.grepFile(event.Name, nil); err != nil {
				log.Errorf("%s: %v", event.Name, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("Watcher error: %v", err)
		}
	}
}
