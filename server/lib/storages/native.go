// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package storages

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	oj "github.com/ohler55/ojg/oj"
	log "github.com/sirupsen/logrus"
	jgrep "github.com/up9inc/jgrep/server/lib"
)

// Core dump filenames
const NATIVE_STORAGE_CORE_DUMP_FILE string = "jgrep.gob"
const NATIVE_STORAGE_CORE_DUMP_FILE_TEMP string = "jgrep_tmp.gob"

var ErrNotAnObject = errors.New("Not a JSON object")
var ErrRecordNotFound = errors.New("Record not found")

// Options configures a native storage.
//
// Registry is the set of functions that the queries can call.
//
// CacheSize is the number of compiled queries to keep around.
//
// CorePath is where the core is dumped to and restored from in persistent
// mode. Defaults to NATIVE_STORAGE_CORE_DUMP_FILE.
//
// Macros are defined before any client connects.
type Options struct {
	Persistent bool
	Registry   jgrep.FunctionRegistry
	CacheSize  int
	CorePath   string
	Macros     map[string]string
}

// nativeStorage is a mutually excluded struct that contains a list of fields that
// needs to be safely accessed across multiple goroutines.
//
// records are the decoded documents, oldest first.
//
// removed is the number of records dropped from the front through size
// limiting. The absolute index of records[i] is removed + i.
//
// flushes counts the calls to Flush and Reset. Absolute indexes restart
// whenever it changes.
//
// limit is the maximum number of records kept. 0 means unlimited.
//
// macros is the map of strings where the key is the macro and value is the expanded form.
//
// insertionFilter is the filter that's applied just before the insertion of every individual record.
//
// insertionFilterProgram is the parsed version of insertionFilter.
//
// subscribers are notified on every insertion so that streaming queries can
// pick up the new records.
type nativeStorage struct {
	sync.RWMutex
	version                string
	records                []interface{}
	removed                int
	flushes                int
	limit                  int
	macros                 map[string]string
	insertionFilter        string
	insertionFilterProgram *jgrep.Program
	subscribers            map[chan struct{}]struct{}
	registry               jgrep.FunctionRegistry
	compiler               *jgrep.Compiler
	corePath               string
	coreDumpLock           sync.Mutex
}

// Unmutexed version of nativeStorage for achieving core dump.
// Records are kept in their JSON form.
type nativeStorageExport struct {
	Version         string
	Records         []string
	Removed         int
	Limit           int
	Macros          map[string]string
	InsertionFilter string
}

func NewNativeStorage(opts Options) (storage jgrep.Storage, err error) {
	var compiler *jgrep.Compiler
	compiler, err = jgrep.NewCompiler(opts.CacheSize)
	if err != nil {
		return
	}

	corePath := opts.CorePath
	if corePath == "" {
		corePath = NATIVE_STORAGE_CORE_DUMP_FILE
	}

	registry := opts.Registry
	if registry == nil {
		registry = jgrep.FunctionRegistry{}
	}

	macros := make(map[string]string)
	for macro, expanded := range opts.Macros {
		macros = jgrep.AddMacro(macros, macro, expanded)
	}

	// Initialize the native storage.
	storage = &nativeStorage{
		version:     jgrep.VERSION,
		macros:      macros,
		subscribers: make(map[chan struct{}]struct{}),
		registry:    registry,
		compiler:    compiler,
		corePath:    corePath,
	}

	err = storage.Init(opts.Persistent)
	return
}

// Init initializes the storage
func (storage *nativeStorage) Init(persistent bool) (err error) {
	// If persistent mode is enabled, try to restore the core.
	if persistent {
		if err := storage.RestoreCore(); err != nil {
			log.Warnf("Starting with an empty core: %v", err)
		}
	}
	return
}

// DumpCore dumps the core into the core dump file.
func (storage *nativeStorage) DumpCore(silent bool, dontLock bool) (err error) {
	storage.coreDumpLock.Lock()
	defer storage.coreDumpLock.Unlock()

	tempPath := storage.corePath + ".tmp"
	if storage.corePath == NATIVE_STORAGE_CORE_DUMP_FILE {
		tempPath = NATIVE_STORAGE_CORE_DUMP_FILE_TEMP
	}

	var f *os.File
	f, err = os.Create(tempPath)
	if err != nil {
		return
	}
	defer f.Close()
	encoder := gob.NewEncoder(f)

	// nativeStorage has an embedded mutex. Therefore it cannot be dumped directly.
	var csExport nativeStorageExport
	if !dontLock {
		storage.RLock()
	}
	csExport.Version = storage.version
	for _, record := range storage.records {
		csExport.Records = append(csExport.Records, oj.JSON(record))
	}
	csExport.Removed = storage.removed
	csExport.Limit = storage.limit
	csExport.Macros = storage.macros
	csExport.InsertionFilter = storage.insertionFilter
	if !dontLock {
		storage.RUnlock()
	}

	err = encoder.Encode(csExport)
	if err != nil {
		log.Errorf("Error while dumping the core: %v", err.Error())
		return
	}

	err = os.Rename(tempPath, storage.corePath)
	if err != nil {
		return
	}

	if !silent {
		log.Infof("Dumped the core to: %s", storage.corePath)
	}
	return
}

// RestoreCore restores the core from the core dump file if it's present.
func (storage *nativeStorage) RestoreCore() (err error) {
	var f *os.File
	f, err = os.Open(storage.corePath)
	if err != nil {
		return
	}
	defer f.Close()
	decoder := gob.NewDecoder(f)

	var csExport nativeStorageExport
	err = decoder.Decode(&csExport)
	if err != nil {
		log.Errorf("Error while restoring the core: %v", err.Error())
		return
	}

	var records []interface{}
	for _, record := range csExport.Records {
		var doc interface{}
		doc, err = jgrep.Decode([]byte(record), jgrep.JSON)
		if err != nil {
			return
		}
		records = append(records, doc)
	}

	var insertionFilterProgram *jgrep.Program
	if csExport.InsertionFilter != "" {
		insertionFilterProgram, err = storage.PrepareQuery(csExport.InsertionFilter, csExport.Macros)
		if err != nil {
			return
		}
	}

	storage.Lock()
	storage.version = jgrep.VERSION
	storage.records = records
	storage.removed = csExport.Removed
	storage.limit = csExport.Limit
	if csExport.Macros != nil {
		storage.macros = csExport.Macros
	}
	storage.insertionFilter = csExport.InsertionFilter
	storage.insertionFilterProgram = insertionFilterProgram
	storage.Unlock()

	log.Infof("Restored the core from: %s", storage.corePath)
	return
}

// InsertData inserts a record into the storage.
// It decodes the given bytes into a JSON object, applies the insertion filter
// and sets a key named "id" on the object. Which indicates the index of
// that record.
func (storage *nativeStorage) InsertData(data []byte) (err error) {
	var doc interface{}
	doc, err = jgrep.Decode(data, jgrep.JSON)
	if err != nil {
		return
	}

	d, ok := doc.(map[string]interface{})
	if !ok {
		err = ErrNotAnObject
		return
	}

	// Handle the insertion filter if it's not empty
	storage.RLock()
	insertionFilterProgram := storage.insertionFilterProgram
	storage.RUnlock()
	if insertionFilterProgram != nil {
		var truth bool
		truth, err = jgrep.Match(insertionFilterProgram, d, storage.registry)
		if err != nil {
			evalErrors.Inc()
			return
		}
		if !truth {
			recordsFiltered.Inc()
			return
		}
	}

	storage.Lock()
	// Set "id" field to the index of the record.
	d["id"] = jgrep.IndexToID(storage.removed + len(storage.records))
	storage.records = append(storage.records, d)
	storage.trim()
	for subscriber := range storage.subscribers {
		select {
		case subscriber <- struct{}{}:
		default:
		}
	}
	storage.Unlock()

	recordsInserted.Inc()
	return
}

// trim drops the oldest records past the limit. Should be called with a lock.
func (storage *nativeStorage) trim() {
	if storage.limit <= 0 || len(storage.records) <= storage.limit {
		return
	}
	n := len(storage.records) - storage.limit
	storage.records = storage.records[n:]
	storage.removed += n
}

// GetMacros returns a copy of the registered macros.
func (storage *nativeStorage) GetMacros() (macros map[string]string) {
	storage.RLock()
	defer storage.RUnlock()
	macros = make(map[string]string, len(storage.macros))
	for k, v := range storage.macros {
		macros[k] = v
	}
	return
}

// PrepareQuery gets the query as an argument and handles macro expansion and
// compilation. It also makes sure that every function the query calls is
// defined.
func (storage *nativeStorage) PrepareQuery(query string, macros map[string]string) (program *jgrep.Program, err error) {
	// Expand all macros in the query, if there are any.
	query, err = jgrep.ExpandMacros(macros, query)
	if err != nil {
		return
	}

	// Parse the query.
	program, err = storage.compiler.Compile(query)
	if err != nil {
		log.Debugf("Syntax error: %v", err)
		return
	}

	if missing := storage.registry.Missing(program); len(missing) > 0 {
		program = nil
		err = &jgrep.EvalError{Kind: jgrep.ErrUndefinedFunction, Name: missing[0]}
	}
	return
}

// subscribe returns a channel that receives a signal on every insertion.
func (storage *nativeStorage) subscribe() chan struct{} {
	c := make(chan struct{}, 1)
	storage.Lock()
	storage.subscribers[c] = struct{}{}
	storage.Unlock()
	return c
}

func (storage *nativeStorage) unsubscribe(c chan struct{}) {
	storage.Lock()
	delete(storage.subscribers, c)
	storage.Unlock()
}

// snapshot returns the records starting from the absolute index from,
// which was taken at the given flush count. If the records before from were
// dropped, or the storage was flushed since, it starts from the oldest
// living record instead.
func (storage *nativeStorage) snapshot(from int, flushes int) (records []interface{}, start int, current int) {
	storage.RLock()
	defer storage.RUnlock()

	total := storage.removed + len(storage.records)
	if flushes != storage.flushes || from < storage.removed || from > total {
		from = storage.removed
	}
	return storage.records[from-storage.removed:], from, storage.flushes
}

// StreamRecords is an infinite loop that only called in case of QUERY TCP connection mode.
// It expands marcros, compiles the given query and writes the matching
// records into the connection, one per line. Once the living records are
// exhausted it waits for new insertions until the context is done.
func (storage *nativeStorage) StreamRecords(ctx context.Context, conn net.Conn, data []byte) (err error) {
	var program *jgrep.Program
	program, err = storage.PrepareQuery(string(data), storage.GetMacros())
	if err != nil {
		jgrep.SendErr(conn, err)
		return
	}
	queriesServed.Inc()

	notify := storage.subscribe()
	defer storage.unsubscribe(notify)

	next, flushes := 0, 0
	for {
		var records []interface{}
		var start int
		records, start, flushes = storage.snapshot(next, flushes)
		for _, record := range records {
			var truth bool
			truth, err = jgrep.Match(program, record, storage.registry)
			if err != nil {
				evalErrors.Inc()
				jgrep.SendErr(conn, err)
				return
			}
			if !truth {
				continue
			}

			_, err = conn.Write([]byte(fmt.Sprintf("%s\n", oj.JSON(record))))
			if err != nil {
				// The client is gone.
				return nil
			}
			recordsMatched.Inc()
		}
		next = start + len(records)

		select {
		case <-ctx.Done():
			return nil
		case <-notify:
		}
	}
}

// RetrieveSingle fetches a single record from the storage by its index,
// given that it matches the query.
func (storage *nativeStorage) RetrieveSingle(conn net.Conn, index string, query string) (err error) {
	var n int
	n, err = strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		jgrep.SendErr(conn, err)
		return
	}

	var program *jgrep.Program
	program, err = storage.PrepareQuery(query, storage.GetMacros())
	if err != nil {
		jgrep.SendErr(conn, err)
		return
	}

	storage.RLock()
	var record interface{}
	if n >= storage.removed && n < storage.removed+len(storage.records) {
		record = storage.records[n-storage.removed]
	}
	storage.RUnlock()

	if record == nil {
		err = ErrRecordNotFound
		jgrep.SendErr(conn, err)
		return
	}

	var truth bool
	truth, err = jgrep.Match(program, record, storage.registry)
	if err != nil {
		evalErrors.Inc()
		jgrep.SendErr(conn, err)
		return
	}
	if !truth {
		err = ErrRecordNotFound
		jgrep.SendErr(conn, err)
		return
	}

	recordsMatched.Inc()
	_, err = conn.Write([]byte(fmt.Sprintf("%s\n", oj.JSON(record))))
	return
}

// ValidateQuery tries to prepare the given query and checks if there are
// any syntax errors or undefined functions.
func (storage *nativeStorage) ValidateQuery(conn net.Conn, data []byte) (err error) {
	_, err = storage.PrepareQuery(string(data), storage.GetMacros())
	if err == nil {
		jgrep.SendOK(conn)
	} else {
		jgrep.SendErr(conn, err)
	}
	return
}

// ApplyMacro defines a macro that will be expanded for each individual query.
func (storage *nativeStorage) ApplyMacro(conn net.Conn, data []byte) (err error) {
	s := strings.SplitN(string(data), "~", 2)

	if len(s) != 2 {
		err = errors.New("Provide only two expressions!")
		jgrep.SendErr(conn, err)
		return
	}

	macro := strings.TrimSpace(s[0])
	expanded := strings.TrimSpace(s[1])

	storage.Lock()
	storage.macros = jgrep.AddMacro(storage.macros, macro, expanded)
	storage.Unlock()

	jgrep.SendOK(conn)
	return
}

// SetLimit sets a limit for the maximum number of records.
func (storage *nativeStorage) SetLimit(conn net.Conn, data []byte) (err error) {
	var value int
	value, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err == nil && value < 0 {
		err = fmt.Errorf("negative limit %d", value)
	}
	if err != nil {
		jgrep.SendErr(conn, fmt.Errorf("While converting the limit to integer: %w", err))
		return
	}

	storage.Lock()
	storage.limit = value
	storage.trim()
	storage.Unlock()

	jgrep.SendOK(conn)
	return
}

// SetInsertionFilter tries to set the given query as an insertion filter.
// An empty query removes the filter.
func (storage *nativeStorage) SetInsertionFilter(conn net.Conn, data []byte) (err error) {
	query := strings.TrimSpace(string(data))

	var insertionFilterProgram *jgrep.Program
	if query != "" {
		insertionFilterProgram, err = storage.PrepareQuery(query, storage.GetMacros())
		if err != nil {
			jgrep.SendErr(conn, err)
			return
		}
	}

	storage.Lock()
	storage.insertionFilter = query
	storage.insertionFilterProgram = insertionFilterProgram
	storage.Unlock()

	jgrep.SendOK(conn)
	return
}

// Flush removes all the records in the storage.
func (storage *nativeStorage) Flush() (err error) {
	storage.Lock()
	storage.records = nil
	storage.removed = 0
	storage.flushes++
	storage.Unlock()
	return
}

// Reset removes all the records in the storage and
// resets the core's state into its initial form.
func (storage *nativeStorage) Reset() (err error) {
	storage.Lock()
	storage.version = jgrep.VERSION
	storage.records = nil
	storage.removed = 0
	storage.flushes++
	storage.limit = 0
	storage.macros = make(map[string]string)
	storage.insertionFilter = ""
	storage.insertionFilterProgram = nil
	storage.Unlock()
	storage.compiler.Purge()
	return
}

// HandleExit dumps the core if persistent mode is enabled.
func (storage *nativeStorage) HandleExit(persistent bool) (err error) {
	if !persistent {
		return
	}
	return storage.DumpCore(false, false)
}
