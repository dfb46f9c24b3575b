// Package nntptest runs a small scripted news server on the loopback
// interface for tests.
package nntptest

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// Server answers the subset of NNTP the engine speaks. Articles are keyed by
// message id without angle brackets and hold the body as sent on the wire,
// before dot-stuffing.
type Server struct {
	mu       sync.Mutex
	username string
	password string
	greeting string
	articles map[string][]byte
	codes    map[string]string
	stalled  map[string]bool
	groups   map[string]string
	requests []string

	ln     net.Listener
	wg     sync.WaitGroup
	active atomic.Int32
	closed atomic.Bool
}

// NewServer starts a server and stops it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("nntptest: listen: %v", err)
	}

	s := &Server{
		articles: make(map[string][]byte),
		codes:    make(map[string]string),
		stalled:  make(map[string]bool),
		groups:   make(map[string]string),
		ln:       ln,
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

func (s *Server) Host() string {
	return s.ln.Addr().(*net.TCPAddr).IP.String()
}

func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// SetAuth makes the server require AUTHINFO with these credentials.
func (s *Server) SetAuth(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username, s.password = username, password
}

// SetGreeting replaces the 200 welcome line.
func (s *Server) SetGreeting(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = line
}

// AddArticle registers a body under its message id.
func (s *Server) AddArticle(msgID string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[strings.Trim(msgID, "<>")] = body
}

// FailArticle makes every request for msgID answer with the given line.
func (s *Server) FailArticle(msgID, response string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[strings.Trim(msgID, "<>")] = response
}

// StallArticle makes the server swallow BODY requests for msgID without
// ever answering, leaving the client waiting.
func (s *Server) StallArticle(msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled[strings.Trim(msgID, "<>")] = true
}

// AddGroup registers a group with its overview data for XOVER.
func (s *Server) AddGroup(name, overview string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[strings.ToLower(name)] = overview
}

// Requests returns every line received, in order, across connections.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how many requests started with prefix.
func (s *Server) Count(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) Active() int { return int(s.active.Load()) }

func (s *Server) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()

	var conns sync.WaitGroup
	defer conns.Wait()

	var open sync.Map
	defer open.Range(func(k, _ any) bool {
		k.(net.Conn).Close()
		return true
	})

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		open.Store(conn, struct{}{})
		conns.Add(1)
		go func() {
			defer conns.Done()
			defer open.Delete(conn)
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer conn.Close()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	reply := func(format string, v ...any) bool {
		fmt.Fprintf(w, format+"\r\n", v...)
		return w.Flush() == nil
	}

	s.mu.Lock()
	greeting, username, password := s.greeting, s.username, s.password
	s.mu.Unlock()
	if greeting == "" {
		greeting = "200 nntptest ready"
	}
	if !reply("%s", greeting) {
		return
	}

	var user, group string
	authed := username == ""

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")

		s.mu.Lock()
		s.requests = append(s.requests, line)
		s.mu.Unlock()

		verb, arg, _ := strings.Cut(line, " ")
		switch strings.ToUpper(verb) {
		case "QUIT":
			reply("205 bye")
			return
		case "MODE":
			if authed {
				reply("200 reader mode")
			} else {
				reply("480 authentication required")
			}
		case "AUTHINFO":
			kind, val, _ := strings.Cut(arg, " ")
			switch strings.ToUpper(kind) {
			case "USER":
				user = val
				reply("381 password required")
			case "PASS":
				if user == username && val == password {
					authed = true
					reply("281 welcome")
				} else {
					reply("481 authentication failed")
				}
			default:
				reply("501 syntax error")
			}
		case "DATE":
			reply("111 20240101000000")
		case "GROUP":
			s.mu.Lock()
			_, ok := s.groups[strings.ToLower(arg)]
			s.mu.Unlock()
			if !ok {
				reply("411 no such group")
				continue
			}
			group = strings.ToLower(arg)
			reply("211 2 1 2 %s", arg)
		case "XOVER":
			if group == "" {
				reply("412 no group selected")
				continue
			}
			s.mu.Lock()
			ov := s.groups[group]
			s.mu.Unlock()
			s.block(w, "224 overview follows", []byte(ov))
		case "BODY":
			if !authed {
				reply("480 authentication required")
				continue
			}
			id := strings.Trim(arg, "<>")
			s.mu.Lock()
			body, ok := s.articles[id]
			failure, failed := s.codes[id]
			stalled := s.stalled[id]
			s.mu.Unlock()
			switch {
			case stalled:
				continue
			case failed:
				reply("%s", failure)
				if strings.HasPrefix(failure, "205") || strings.HasPrefix(failure, "400") {
					return
				}
			case !ok:
				reply("430 no such article")
			default:
				s.block(w, "222 0 <"+id+"> body follows", body)
			}
		default:
			reply("500 unknown command")
		}
	}
}

// block writes a multi-line response with dot-stuffing.
func (s *Server) block(w *bufio.Writer, status string, body []byte) {
	w.WriteString(status + "\r\n")
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text != "" {
		for _, l := range strings.Split(text, "\n") {
			if strings.HasPrefix(l, ".") {
				l = "." + l
			}
			w.WriteString(l + "\r\n")
		}
	}
	w.WriteString(".\r\n")
	w.Flush()
}

// Yenc encodes one part of a file. begin is the 1-based offset of data
// inside the file; pass total 1 for a single-part post.
func Yenc(name string, data []byte, part, total int, begin, fileSize int64) []byte {
	var b strings.Builder

	if total > 1 {
		fmt.Fprintf(&b, "=ybegin part=%d total=%d line=128 size=%d name=%s\r\n", part, total, fileSize, name)
		fmt.Fprintf(&b, "=ypart begin=%d end=%d\r\n", begin, begin+int64(len(data))-1)
	} else {
		fmt.Fprintf(&b, "=ybegin line=128 size=%d name=%s\r\n", fileSize, name)
	}

	col := 0
	for _, c := range data {
		e := c + 42
		switch e {
		case 0, '\n', '\r', '=':
			b.WriteByte('=')
			e += 64
			col++
		}
		b.WriteByte(e)
		col++
		if col >= 128 {
			b.WriteString("\r\n")
			col = 0
		}
	}
	if col > 0 {
		b.WriteString("\r\n")
	}

	crc := strconv.FormatUint(uint64(crc32.ChecksumIEEE(data)), 16)
	if total > 1 {
		fmt.Fprintf(&b, "=yend size=%d part=%d pcrc32=%s\r\n", len(data), part, crc)
	} else {
		fmt.Fprintf(&b, "=yend size=%d crc32=%s\r\n", len(data), crc)
	}
	return []byte(b.String())
}
