// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	jgrep "github.com/up9inc/jgrep/server/lib"
	"github.com/up9inc/jgrep/server/lib/functions"
	"github.com/up9inc/jgrep/server/lib/storages"
)

// serveOptions are the settings of the serve command.
type serveOptions struct {
	addr        string
	port        int
	persistent  bool
	metricsAddr string
	cacheSize   int
	corePath    string
	macros      map[string]string
}

// server keeps the storage and the active TCP connections.
type server struct {
	storage     jgrep.Storage
	mu          sync.Mutex
	connections map[string]net.Conn
}

func newServer(storage jgrep.Storage) *server {
	return &server{
		storage:     storage,
		connections: make(map[string]net.Conn),
	}
}

// serve starts listening on the given address and accepts TCP connections
// until the process is interrupted.
func serve(opts serveOptions) (err error) {
	var storage jgrep.Storage
	storage, err = storages.NewNativeStorage(storages.Options{
		Persistent: opts.persistent,
		Registry:   functions.Builtins(),
		CacheSize:  opts.cacheSize,
		CorePath:   opts.corePath,
		Macros:     opts.macros,
	})
	if err != nil {
		return
	}
	s := newServer(storage)

	if opts.metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Infof("Serving metrics on %s", opts.metricsAddr)
			if err := http.ListenAndServe(opts.metricsAddr, mux); err != nil {
				log.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	// Start listenning to given address and port.
	src := net.JoinHostPort(opts.addr, strconv.Itoa(opts.port))
	var listener net.Listener
	listener, err = net.Listen("tcp", src)
	if err != nil {
		return
	}
	log.Infof("Listening on %s", src)

	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Make a channel to gracefully close the TCP connections.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Handle the channel.
	go func() {
		sig := <-c
		log.Infof("Received %v, shutting down", sig)
		cancel()
		s.quitConnections()
		if err := storage.HandleExit(opts.persistent); err != nil {
			log.Errorf("Error while exiting: %v", err)
			os.Exit(1)
		}
		// 0: process exited normally
		os.Exit(0)
	}()

	// Start accepting TCP connections.
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Errorf("Connection error: %s", err)
			continue
		}

		// Handle the TCP connection.
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a TCP connection
func (s *server) handleConnection(ctx context.Context, conn net.Conn) {
	id := uuid.NewString()
	logger := log.WithFields(log.Fields{"conn": id, "remote": conn.RemoteAddr().String()})

	s.mu.Lock()
	s.connections[id] = conn
	s.mu.Unlock()

	logger.Debug("Client connected")

	// Streaming queries live until the client disconnects.
	ctx, cancel := context.WithCancel(ctx)
	var streams sync.WaitGroup

	// Create a scanner
	scanner := bufio.NewScanner(conn)
	buf := make([]byte, 0, 64*1024)

	// Prevent buffer overflows
	scanner.Buffer(buf, 209715200)

	// Set connection mode to NONE
	var mode jgrep.ConnectionMode = jgrep.NONE

	// Arguments for the SINGLE command (index, query)
	var singleArgs []string

	streaming := false

	for {
		// Scan the input
		ok := scanner.Scan()

		if !ok {
			if err := scanner.Err(); err != nil {
				logger.Debugf("Scanning error: %v", err)
			}
			break
		}

		// Handle the message
		_mode, data := handleMessage(logger, scanner.Text(), conn)

		// Set the connection mode
		switch mode {
		case jgrep.NONE:
			mode = _mode
			switch mode {
			case jgrep.FLUSH:
				s.storage.Flush()
				jgrep.SendOK(conn)
			case jgrep.RESET:
				s.storage.Reset()
				jgrep.SendOK(conn)
			}
		case jgrep.INSERT:
			if err := s.storage.InsertData(data); err != nil {
				logger.Debugf("Insertion error: %v", err)
			}
		case jgrep.INSERTION_FILTER:
			s.storage.SetInsertionFilter(conn, data)
		case jgrep.QUERY:
			if streaming {
				logger.Debug("Ignoring the query, the connection is already streaming")
				continue
			}
			streaming = true
			streams.Add(1)
			go func(data []byte) {
				defer streams.Done()
				s.storage.StreamRecords(ctx, conn, data)
			}(data)
		case jgrep.SINGLE:
			if len(singleArgs) < 2 {
				singleArgs = append(singleArgs, string(data))
			}
			if len(singleArgs) == 2 {
				s.storage.RetrieveSingle(conn, singleArgs[0], singleArgs[1])
			}
		case jgrep.VALIDATE:
			s.storage.ValidateQuery(conn, data)
		case jgrep.MACRO:
			s.storage.ApplyMacro(conn, data)
		case jgrep.LIMIT:
			s.storage.SetLimit(conn, data)
		case jgrep.FLUSH:
			s.storage.Flush()
			jgrep.SendOK(conn)
		case jgrep.RESET:
			s.storage.Reset()
			jgrep.SendOK(conn)
		}
	}

	cancel()
	streams.Wait()

	s.mu.Lock()
	delete(s.connections, id)
	s.mu.Unlock()

	// Close the file descriptor for this TCP connection
	conn.Close()
	logger.Debug("Client disconnected")
}

// quitConnections quits all of the active TCP connections. It's only called
// in case of an interruption.
func (s *server) quitConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.connections {
		jgrep.SendClose(conn)
	}
}

// handleMessage handles given message string of a TCP connection and returns a
// ConnectionMode to set the mode of the that TCP connection.
func handleMessage(logger log.FieldLogger, message string, conn net.Conn) (mode jgrep.ConnectionMode, data []byte) {
	logger.Debugf("> %s", message)

	if len(message) > 0 && message[0] == '/' {
		switch {
		case message == jgrep.CMD_INSERT:
			mode = jgrep.INSERT

		case message == jgrep.CMD_INSERTION_FILTER:
			mode = jgrep.INSERTION_FILTER

		case message == jgrep.CMD_QUERY:
			mode = jgrep.QUERY

		case message == jgrep.CMD_SINGLE:
			mode = jgrep.SINGLE

		case message == jgrep.CMD_VALIDATE:
			mode = jgrep.VALIDATE

		case message == jgrep.CMD_MACRO:
			mode = jgrep.MACRO

		case message == jgrep.CMD_LIMIT:
			mode = jgrep.LIMIT

		case message == jgrep.CMD_FLUSH:
			mode = jgrep.FLUSH

		case message == jgrep.CMD_RESET:
			mode = jgrep.RESET

		default:
			conn.Write([]byte("Unrecognized command.\n"))
		}
	} else {
		data = []byte(strings.TrimRight(message, "\r"))
	}

	return
}
