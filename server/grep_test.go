package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	jgrep "github.com/up9inc/jgrep/server/lib"
	"github.com/up9inc/jgrep/server/lib/functions"
)

const cars = `[
	{"brand": {"name": "Chevrolet"}, "model": "Camaro", "year": 2021, "tags": ["sport", "coupe"]},
	{"brand": {"name": "Chevrolet"}, "model": "Impala", "year": 1967, "tags": ["classic"]},
	{"brand": {"name": "Ford"}, "model": "Mustang", "year": 2020, "tags": ["sport"]}
]`

// syncBuffer is a bytes.Buffer that can be written and read concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func lines(s string) []string {
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

func TestGrepList(t *testing.T) {
	var out bytes.Buffer
	g, err := newGrepper(`tags == "sport" and year >= 2021`, functions.Builtins(), grepOptions{}, &out)
	require.Nil(t, err)

	n, err := g.grep([]byte(cars))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"brand":{"name":"Chevrolet"},"model":"Camaro","year":2021,"tags":["sport","coupe"]}`, out.String())
}

func TestGrepSingleDocument(t *testing.T) {
	var out bytes.Buffer
	g, err := newGrepper(`count(tags) == 2`, functions.Builtins(), grepOptions{}, &out)
	require.Nil(t, err)

	n, err := g.grep([]byte(`{"model": "Camaro", "tags": ["sport", "coupe"]}`))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)

	n, err = g.grep([]byte(`{"model": "Impala", "tags": ["classic"]}`))
	assert.Nil(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, lines(out.String()), 1)
}

func TestGrepStart(t *testing.T) {
	var out bytes.Buffer
	opts := grepOptions{start: "garage.cars"}
	g, err := newGrepper(`brand.name == "Ford"`, functions.Builtins(), opts, &out)
	require.Nil(t, err)

	n, err := g.grep([]byte(`{"garage": {"cars": ` + cars + `}}`))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.JSONEq(t, `{"brand":{"name":"Ford"},"model":"Mustang","year":2020,"tags":["sport"]}`, out.String())
}

func TestGrepYAML(t *testing.T) {
	var out bytes.Buffer
	opts := grepOptions{format: jgrep.YAML, pretty: true}
	g, err := newGrepper(`model =~ "^Cam"`, functions.Builtins(), opts, &out)
	require.Nil(t, err)

	n, err := g.grep([]byte("- model: Camaro\n  year: 2021\n- model: Impala\n  year: 1967\n"))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "\n  ")
	assert.JSONEq(t, `{"model":"Camaro","year":2021}`, out.String())
}

func TestGrepMacros(t *testing.T) {
	var out bytes.Buffer
	opts := grepOptions{macros: map[string]string{"chevy": `brand.name == "Chevrolet" or brand.name == "Ford"`}}
	g, err := newGrepper(`chevy and year < 2000`, functions.Builtins(), opts, &out)
	require.Nil(t, err)
	assert.Equal(t, `(brand.name == "Chevrolet" or brand.name == "Ford") and year < 2000`, g.program.Query)

	n, err := g.grep([]byte(cars))
	assert.Nil(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "Impala")
}

func TestGrepErrors(t *testing.T) {
	var out bytes.Buffer

	_, err := newGrepper(`missing(model)`, functions.Builtins(), grepOptions{}, &out)
	assert.True(t, errors.Is(err, &jgrep.EvalError{Kind: jgrep.ErrUndefinedFunction}))

	_, err = newGrepper(`(model`, functions.Builtins(), grepOptions{}, &out)
	assert.True(t, errors.Is(err, &jgrep.ParseError{Kind: jgrep.ErrUnmatchedParen}))

	g, err := newGrepper(`model > 1`, functions.Builtins(), grepOptions{}, &out)
	require.Nil(t, err)
	_, err = g.grep([]byte(cars))
	assert.True(t, errors.Is(err, &jgrep.EvalError{Kind: jgrep.ErrNotComparable}))

	_, err = g.grep([]byte(`{"model":`))
	var formatErr *jgrep.InputFormatError
	assert.ErrorAs(t, err, &formatErr)
}

func TestGrepWatchFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cars.json")
	require.Nil(t, os.WriteFile(path, []byte(`{"model": "Impala"}`), 0644))

	var out syncBuffer
	g, err := newGrepper(`model == "Camaro"`, functions.Builtins(), grepOptions{}, &out)
	require.Nil(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- g.watchFiles(ctx, []string{path})
	}()

	assert.Eventually(t, func() bool {
		// Rewrite until the watcher is set up and picks the change.
		os.WriteFile(path, []byte(`{"model": "Camaro"}`), 0644)
		return strings.Contains(out.String(), "Camaro")
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.Nil(t, <-done)
}
