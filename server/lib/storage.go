// Copyright 2022 UP9. All rights reserved.
// Use of this source code is governed by Apache License 2.0
// license that can be found in the LICENSE file.

package jgrep

import (
	"context"
	"net"
)

// Storage keeps the documents inserted through the TCP protocol and answers
// the queries of the clients.
type Storage interface {
	Init(persistent bool) (err error)
	DumpCore(silent bool, dontLock bool) (err error)
	RestoreCore() (err error)
	InsertData(data []byte) (err error)
	GetMacros() (macros map[string]string)
	PrepareQuery(query string, macros map[string]string) (program *Program, err error)
	StreamRecords(ctx context.Context, conn net.Conn, data []byte) (err error)
	RetrieveSingle(conn net.Conn, index string, query string) (err error)
	ValidateQuery(conn net.Conn, data []byte) (err error)
	ApplyMacro(conn net.Conn, data []byte) (err error)
	SetLimit(conn net.Conn, data []byte) (err error)
	SetInsertionFilter(conn net.Conn, data []byte) (err error)
	Flush() (err error)
	Reset() (err error)
	HandleExit(persistent bool) (err error)
}
