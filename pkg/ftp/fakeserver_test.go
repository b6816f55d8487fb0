package ftp_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeServer is a scripted FTP server bound to 127.0.0.1:0. Replies are
// looked up by command verb; PASV, LIST, STOR and QUIT are handled with
// a real data connection.
type fakeServer struct {
	t  *testing.T
	ln net.Listener

	greeting string
	replies  map[string]string
	listings map[string]string
	silent   map[string]bool

	mu       sync.Mutex
	received []string
	stored   []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{
		t:        t,
		ln:       ln,
		greeting: "220 fake ftp ready",
		replies: map[string]string{
			"USER": "331 password please",
			"PASS": "230 logged in",
			"TYPE": "200 binary",
			"CWD":  "250 directory changed",
			"MKD":  `257 "created"`,
			"SITE": "200 chmod ok",
			"DELE": "250 deleted",
			"RMD":  "250 removed",
			"PWD":  `257 "/" is the current directory`,
		},
		listings: map[string]string{},
		silent:   map[string]bool{},
	}
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// start serves a single control connection in the background
func (s *fakeServer) start() {
	go func() {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		s.serve(conn)
	}()
}

func (s *fakeServer) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

func (s *fakeServer) serve(conn net.Conn) {
	r := bufio.NewReader(conn)
	reply := func(line string) { fmt.Fprintf(conn, "%s\r\n", strings.ReplaceAll(line, "\n", "\r\n")) }

	reply(s.greeting)

	var data net.Listener
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		s.mu.Lock()
		s.received = append(s.received, line)
		s.mu.Unlock()

		if s.silent[verb] {
			continue
		}

		switch verb {
		case "PASV":
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 cannot open data connection")
				continue
			}
			p := data.Addr().(*net.TCPAddr).Port
			reply(fmt.Sprintf("227 Entering Passive Mode (127,0,0,1,%d,%d)", p/256, p%256))
		case "LIST":
			reply("150 listing follows")
			if dc := accept(data); dc != nil {
				io.WriteString(dc, s.listings[arg])
				dc.Close()
			}
			data.Close()
			reply("226 transfer complete")
		case "STOR":
			reply("150 ready for data")
			if dc := accept(data); dc != nil {
				io.ReadAll(dc)
				dc.Close()
			}
			data.Close()
			s.mu.Lock()
			s.stored = append(s.stored, arg)
			s.mu.Unlock()
			reply("226 stored")
		case "QUIT":
			reply("221 bye")
			return
		default:
			if resp, ok := s.replies[verb]; ok {
				reply(resp)
			} else {
				reply("502 not implemented")
			}
		}
	}
}

func accept(ln net.Listener) net.Conn {
	if ln == nil {
		return nil
	}
	if tl, ok := ln.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(2 * time.Second))
	}
	conn, err := ln.Accept()
	if err != nil {
		return nil
	}
	return conn
}
