// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.
//
// Package main implements jgrep, a command that filters JSON and YAML
// documents with a small query language. It also runs a streaming document
// store that speaks a TCP-based protocol. Please refer to the client
// libraries for communicating with the server.
//
// Documents can be filtered like below:
//
//	jgrep 'brand.name == "Chevrolet" and year >= 2020' cars.json
//
// and the server can be run with a command like below:
//
//	jgrep serve --addr 127.0.0.1 --port 9099
//
// which sets the host address and TCP port.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	jgrep "github.com/up9inc/jgrep/server/lib"
	"github.com/up9inc/jgrep/server/lib/functions"
)

// errNoMatch makes the process exit with 1 when no document matched.
var errNoMatch = errors.New("no match")

func main() {
	root := newRootCommand(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errNoMatch) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// app holds the state shared by the commands.
type app struct {
	configFile string
	debug      bool
	macros     map[string]string
	stdin      io.Reader
	stdout     io.Writer
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout}
	var format string
	var opts grepOptions

	root := &cobra.Command{
		Use:   "jgrep QUERY [FILE...]",
		Short: "Filter JSON and YAML documents with a query",
		Long: `Filter JSON and YAML documents with a query.

The documents are read from the given files, or from the standard input if
there are none. If the document is a list, each element is matched on its
own. The matching documents are printed as JSON, one per line.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
			a.macros, err = loadConfig(cmd, a.configFile)
			if err != nil {
				return
			}
			setupLogging(a.debug)
			return
		},
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			opts.macros = a.macros
			opts.format, err = jgrep.ParseFormat(format)
			if err != nil {
				return
			}

			var g *grepper
			g, err = newGrepper(args[0], functions.Builtins(), opts, a.stdout)
			if err != nil {
				return
			}

			paths := args[1:]
			if len(paths) == 0 {
				paths = []string{"-"}
			}

			matches := 0
			for _, path := range paths {
				n, err := g.grepFile(path, a.stdin)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				matches += n
			}

			if opts.watch && len(args) > 1 {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
				defer stop()
				return g.watchFiles(ctx, paths)
			}

			if matches == 0 {
				return errNoMatch
			}
			return
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "Path to a configuration file (JSON, YAML or TOML).")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logs.")

	root.Flags().StringVarP(&format, "format", "f", "json", "Input format, json or yaml.")
	root.Flags().StringVarP(&opts.start, "start", "s", "", "Path of the document to start the query from.")
	root.Flags().BoolVarP(&opts.pretty, "pretty", "p", false, "Indent the printed documents.")
	root.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Keep running and filter the files again when they change.")

	root.AddCommand(a.newServeCommand())
	root.AddCommand(a.newValidateCommand())
	root.AddCommand(a.newVersionCommand())

	return root
}

func (a *app) newServeCommand() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming document store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.macros = a.macros
			return serve(opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "The address to listen to; default is \"\" (all interfaces).")
	cmd.Flags().IntVar(&opts.port, "port", 9099, "The port to listen on.")
	cmd.Flags().BoolVar(&opts.persistent, "persistent", false, "Enable persistent mode. Dumps core on exit.")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "The address to serve Prometheus metrics on; disabled if empty.")
	cmd.Flags().IntVar(&opts.cacheSize, "cache-size", jgrep.DefaultCacheSize, "The number of compiled queries to keep.")
	cmd.Flags().StringVar(&opts.corePath, "core", "", "Path of the core dump file.")

	return cmd
}

func (a *app) newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate QUERY",
		Short: "Check a query for syntax errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newGrepper(args[0], functions.Builtins(), grepOptions{macros: a.macros}, a.stdout); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "OK")
			return nil
		},
	}
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, jgrep.VERSION)
			return nil
		},
	}
}
