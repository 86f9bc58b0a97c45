// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.
//
// This is the client library for the jgrep document store.
package jgrep

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	server "github.com/up9inc/jgrep/server/lib"
)

// Prefix of the error replies of the server
const errorPrefix = "Error: "

// ErrClosed is returned when the server hangs up before replying.
var ErrClosed = errors.New("Connection closed by the server")

// Connection is the struct that holds the TCP connection reference.
type Connection struct {
	net.Conn
	mu sync.Mutex
}

// NewConnection establishes a new connection with the server in the address host:port.
// Returns a Connection reference and an error.
func NewConnection(host string, port string) (connection *Connection, err error) {
	var conn net.Conn
	conn, err = net.Dial("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return
	}
	connection = &Connection{Conn: conn}
	return
}

// Send sends given []byte to the server which the connection is established to.
func (c *Connection) Send(data []byte) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SetWriteDeadline(time.Now().Add(1 * time.Second))
	_, err = c.Write(data)
	return
}

// SendText is the wrapper around Send method that allows user to send text directly.
func (c *Connection) SendText(text string) error {
	return c.Send([]byte(fmt.Sprintf("%s\n", text)))
}

// InsertMode turns the connection's mode into INSERT mode
func (c *Connection) InsertMode() error {
	return c.SendText(server.CMD_INSERT)
}

// Query is the method that user should use to stream the records from the database.
// It takes the filtering language (query) as the first parameter and
// a []byte channel which the records will be streamed into. The channel is
// closed once the connection ends.
func (c *Connection) Query(query string, data chan []byte) (err error) {
	go readConnection(c, data)

	if err = c.SendText(server.CMD_QUERY); err != nil {
		return
	}
	return c.SendText(query)
}

// Single returns a single record from the database server specified by the host:port pair
// and by given index, given that it matches the query.
func Single(host string, port string, index int, query string) (data []byte, err error) {
	data, err = request(host, port, server.CMD_SINGLE, server.IndexToID(index), query)
	return
}

// Validate validates the given query against syntax errors by passing the query
// to the database server at host:port
func Validate(host string, port string, query string) (err error) {
	_, err = request(host, port, server.CMD_VALIDATE, query)
	return
}

// Macro defines a macro that expands into expanded in the database server
// at host:port. Same macro can be overwritten by a second Macro call.
func Macro(host string, port string, macro string, expanded string) (err error) {
	_, err = request(host, port, server.CMD_MACRO, fmt.Sprintf("%s~%s", macro, expanded))
	return
}

// Limit sets the maximum number of records that the database keeps. The
// oldest records are dropped first. 0 means unlimited.
func Limit(host string, port string, limit int) (err error) {
	_, err = request(host, port, server.CMD_LIMIT, fmt.Sprintf("%d", limit))
	return
}

// InsertionFilter sets a query that every record has to match before it
// gets inserted. An empty query removes the filter.
func InsertionFilter(host string, port string, query string) (err error) {
	_, err = request(host, port, server.CMD_INSERTION_FILTER, query)
	return
}

// Flush removes all the records in the database.
func Flush(host string, port string) (err error) {
	_, err = request(host, port, server.CMD_FLUSH)
	return
}

// Reset removes all the records in the database and resets its state.
func Reset(host string, port string) (err error) {
	_, err = request(host, port, server.CMD_RESET)
	return
}

// request opens a short lived connection, sends the lines and waits for the
// single line reply. Replies other than a record or OK are returned as error.
func request(host string, port string, lines ...string) (reply []byte, err error) {
	var c *Connection
	c, err = NewConnection(host, port)
	if err != nil {
		return
	}
	defer c.Close()

	ret := make(chan []byte)
	go readConnection(c, ret)

	for _, line := range lines {
		if err = c.SendText(line); err != nil {
			return
		}
	}

	reply, ok := <-ret
	if !ok {
		err = ErrClosed
		return
	}

	text := string(reply)
	if strings.HasPrefix(text, errorPrefix) {
		err = errors.New(strings.TrimPrefix(text, errorPrefix))
	} else if text == "OK" {
		reply = nil
	}
	return
}

// readConnection is a Goroutine that recieves messages from the TCP connection
// and send them to a []byte channel provided by the data parameter.
func readConnection(c *Connection, data chan []byte) {
	defer close(data)

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 0, 64*1024), 209715200)

	for scanner.Scan() {
		bytes := scanner.Bytes()

		if handleCommands(bytes) {
			return
		}

		b := make([]byte, len(bytes))
		copy(b, bytes)

		data <- b
	}

	log.Debug("Reached EOF on server connection.")
}

// handleCommands is used by readConnection to make the server's orders
// in the client to take effect. Such that the server can hang up
// the connection.
func handleCommands(bytes []byte) bool {
	text := string(bytes)
	if len(text) < 2 || text[0] != '%' || text[len(text)-1] != '%' {
		return false
	}

	switch text {
	case server.CloseConnection:
		log.Info("Server is leaving. Hanging up.")
	}
	return true
}
