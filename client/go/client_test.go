package jgrep

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	server "github.com/up9inc/jgrep/server/lib"
)

// fakeServer replies to every connection once it received the expected
// number of lines, and records what it received.
type fakeServer struct {
	listener net.Listener
	mu       sync.Mutex
	received [][]string
}

func newFakeServer(t *testing.T, expected int, reply func(lines []string) []string) (s *fakeServer, host string, port string) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	t.Cleanup(func() { listener.Close() })

	s = &fakeServer{listener: listener}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handle(conn, expected, reply)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return s, addr.IP.String(), strconv.Itoa(addr.Port)
}

func (s *fakeServer) handle(conn net.Conn, expected int, reply func(lines []string) []string) {
	defer conn.Close()

	var lines []string
	scanner := bufio.NewScanner(conn)
	for len(lines) < expected && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	s.mu.Lock()
	s.received = append(s.received, lines)
	s.mu.Unlock()

	for _, line := range reply(lines) {
		conn.Write([]byte(line + "\n"))
	}
}

func (s *fakeServer) last() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received[len(s.received)-1]
}

func ok(lines []string) []string {
	return []string{"OK"}
}

func TestValidate(t *testing.T) {
	s, host, port := newFakeServer(t, 2, func(lines []string) []string {
		if lines[1] == "year >" {
			return []string{"Error: 5: bad token \">\" found, query cannot end with an operator"}
		}
		return []string{"OK"}
	})

	err := Validate(host, port, `year > 2000`)
	assert.Nil(t, err)
	assert.Equal(t, []string{server.CMD_VALIDATE, `year > 2000`}, s.last())

	err = Validate(host, port, `year >`)
	assert.EqualError(t, err, "5: bad token \">\" found, query cannot end with an operator")
}

func TestMacro(t *testing.T) {
	s, host, port := newFakeServer(t, 2, ok)

	err := Macro(host, port, "chevy", `brand.name == "Chevrolet"`)
	assert.Nil(t, err)
	assert.Equal(t, []string{server.CMD_MACRO, `chevy~brand.name == "Chevrolet"`}, s.last())
}

func TestLimit(t *testing.T) {
	s, host, port := newFakeServer(t, 2, ok)

	err := Limit(host, port, 1000)
	assert.Nil(t, err)
	assert.Equal(t, []string{server.CMD_LIMIT, "1000"}, s.last())
}

func TestInsertionFilter(t *testing.T) {
	s, host, port := newFakeServer(t, 2, ok)

	err := InsertionFilter(host, port, `brand.name == "Chevrolet"`)
	assert.Nil(t, err)
	assert.Equal(t, []string{server.CMD_INSERTION_FILTER, `brand.name == "Chevrolet"`}, s.last())
}

func TestFlushAndReset(t *testing.T) {
	s, host, port := newFakeServer(t, 1, ok)

	assert.Nil(t, Flush(host, port))
	assert.Equal(t, []string{server.CMD_FLUSH}, s.last())

	assert.Nil(t, Reset(host, port))
	assert.Equal(t, []string{server.CMD_RESET}, s.last())
}

func TestSingle(t *testing.T) {
	expected := `{"brand":{"name":"Chevrolet"},"id":"000000000000000000000042","model":"Camaro","year":2021}`
	s, host, port := newFakeServer(t, 3, func(lines []string) []string {
		return []string{expected}
	})

	data, err := Single(host, port, 42, `model == "Camaro"`)
	assert.Nil(t, err)
	assert.JSONEq(t, expected, string(data))
	assert.Equal(t, []string{server.CMD_SINGLE, server.IndexToID(42), `model == "Camaro"`}, s.last())
}

func TestServerHangsUp(t *testing.T) {
	_, host, port := newFakeServer(t, 1, func(lines []string) []string {
		return []string{server.CloseConnection}
	})

	err := Flush(host, port)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInsertAndQuery(t *testing.T) {
	records := []string{
		`{"id":"000000000000000000000000","model":"Camaro"}`,
		`{"id":"000000000000000000000001","model":"Corvette"}`,
	}
	s, host, port := newFakeServer(t, 2, func(lines []string) []string {
		return records
	})

	c, err := NewConnection(host, port)
	require.Nil(t, err)
	defer c.Close()

	data := make(chan []byte)
	assert.Nil(t, c.Query(`model =~ "^C"`, data))

	var received []string
	timeout := time.After(5 * time.Second)
	for len(received) < len(records) {
		select {
		case b, ok := <-data:
			require.True(t, ok)
			received = append(received, string(b))
		case <-timeout:
			t.Fatal("timed out waiting for the records")
		}
	}
	assert.Equal(t, records, received)
	assert.Equal(t, []string{server.CMD_QUERY, `model =~ "^C"`}, s.last())

	// The channel is closed once the server hangs up.
	_, ok := <-data
	assert.False(t, ok)
}

func TestHandleCommands(t *testing.T) {
	assert.True(t, handleCommands([]byte(server.CloseConnection)))
	assert.True(t, handleCommands([]byte("%unknown%")))
	assert.False(t, handleCommands([]byte(`{"model":"Camaro"}`)))
	assert.False(t, handleCommands([]byte("%")))
}
