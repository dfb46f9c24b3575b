package nntp

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/datallboy/newsflow/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateAuthenticating
	StateSingleline
	StateMultiline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSingleline:
		return "singleline"
	case StateMultiline:
		return "multiline"
	default:
		return "closed"
	}
}

// Command is the request a Session executes: one or more lines sent in turn,
// each waiting for its response.
type Command interface {
	Reset()
	Next() string
	Current() string
	Finished() bool
}

var (
	crlf           = []byte("\r\n")
	multilineEnd   = []byte("\r\n.\r\n")
	defaultTimeout = 5 * time.Second
)

// Session drives one connection through greeting, authentication and
// command execution. It is not safe for concurrent use; the connection's
// worker owns it.
type Session struct {
	Server  domain.ServerConfig
	Timeout time.Duration
	Logf    func(format string, v ...any)

	transport Transport
	state     State
	buf       bytes.Buffer
	greeting  string
	lastGroup string

	cmd  Command
	done bool
	data []byte
	err  *Error
}

func NewSession(server domain.ServerConfig, t Transport) *Session {
	return &Session{
		Server:    server,
		Timeout:   defaultTimeout,
		transport: t,
	}
}

func (s *Session) State() State      { return s.state }
func (s *Session) Greeting() string  { return s.greeting }
func (s *Session) LastGroup() string { return s.lastGroup }

// Execute runs cmd and returns the raw response block of its last line. It
// connects and authenticates first when needed. Errors are *Error, or the
// context error when ctx is cancelled.
func (s *Session) Execute(ctx context.Context, cmd Command) ([]byte, error) {
	if s.state == StateClosed {
		s.drain()
	}

	s.cmd = cmd
	s.done, s.data, s.err = false, nil, nil
	defer func() { s.cmd = nil }()

	cmd.Reset()
	s.connect(ctx)

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()
	expired := watchdog.C

	for !s.done {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev := <-s.transport.Events():
			s.dispatch(ev)
		case <-expired:
			// after this the wait is only bounded by ctx
			expired = nil
			if !s.transport.Connected() || s.state == StateClosed || s.state == StateConnecting {
				s.disconnect(CodeSocketTimeout, "Connection timed out", false)
			}
		}
	}

	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

// Quit says goodbye to the server and closes the transport.
func (s *Session) Quit() {
	if s.state == StateClosed && !s.transport.Connected() {
		return
	}
	s.disconnect(CodeCancelled, "Cancelled", true)
}

func (s *Session) connect(ctx context.Context) {
	switch s.state {
	case StateSingleline, StateMultiline:
		s.state = StateSingleline
		if s.transport.Connected() {
			s.ready(0)
			return
		}
		s.state = StateClosed
	}

	s.state = StateConnecting
	s.buf.Reset()
	s.logf("connecting to %s", s.Server.Address())
	if err := s.transport.Connect(ctx, s.Server); err != nil {
		s.state = StateClosed
		s.fail(CodeConnectFailed, "Connect: "+err.Error())
	}
}

func (s *Session) dispatch(ev Event) {
	switch ev.Kind {
	case EventConnected:
		s.buf.Reset()
		s.receive()
	case EventReceived:
		s.received(ev.Data)
	case EventDisconnected:
		err := ev.Err
		if err == nil {
			err = newError(CodeShutdown, "Disconnected")
		}
		s.closed()
		s.fail(err.Code, err.Message)
	}
}

func (s *Session) received(p []byte) {
	s.buf.Write(p)
	b := s.buf.Bytes()

	if s.state == StateSingleline && IsMultiline(ParseCode(b)) {
		s.state = StateMultiline
	}

	end := crlf
	if s.state == StateMultiline {
		end = multilineEnd
	}
	if !bytes.HasSuffix(b, end) {
		s.receive()
		return
	}

	frame := bytes.Clone(b)
	s.buf.Reset()
	s.handle(frame)
}

func (s *Session) handle(frame []byte) {
	line := firstLine(frame)
	code := ParseCode(frame)
	s.logf("< %s", line)

	if code == CodeGoodBye || code == CodeUnparsable {
		s.disconnect(code, responseText(line), false)
		return
	}

	switch s.state {
	case StateConnecting:
		s.greet(code, line)
	case StateAuthenticating:
		s.authenticate(code, line)
	case StateSingleline:
		s.respond(code, line, frame)
	case StateMultiline:
		s.finish(frame)
	}
}

func (s *Session) greet(code int, line string) {
	switch code {
	case CodePostingAllowed, CodePostingForbidden:
		s.greeting = line
		s.state = StateAuthenticating
		s.send("MODE READER")
	default:
		s.disconnect(code, responseText(line), true)
	}
}

func (s *Session) authenticate(code int, line string) {
	switch code {
	case CodeModeStream, CodeAuthAccepted:
		s.ready(code)
	case CodeMoreAuth:
		s.send("AUTHINFO PASS " + s.Server.Password)
	case CodePostingAllowed, CodePostingForbidden:
		if s.Server.Username == "" {
			s.ready(code)
			return
		}
		s.send("AUTHINFO USER " + s.Server.Username)
	case CodeNeedsAuth, CodeAuthRequired:
		s.send("AUTHINFO USER " + s.Server.Username)
	default:
		s.disconnect(code, responseText(line), true)
	}
}

// ready starts the pending command. code is zero when an existing
// connection is reused, which keeps the selected group.
func (s *Session) ready(code int) {
	s.state = StateSingleline
	if code != 0 {
		s.lastGroup = ""
	}
	if !s.sendNext() {
		s.fail(CodeNoCommandLine, "No command to send")
	}
}

func (s *Session) respond(code int, line string, frame []byte) {
	if isCommandOK(code) {
		if code == CodeGroupSelected {
			s.lastGroup = strings.ToLower(s.cmd.Current())
		}
		if s.cmd.Finished() {
			s.finish(frame)
			return
		}
		if !s.sendNext() {
			s.fail(CodeNoNextLine, "No next command line")
		}
		return
	}

	if code == CodeNoSuchGroup || code == CodeNoGroupSelected {
		s.lastGroup = ""
	}
	if failsCommand(code) {
		s.fail(code, responseText(line))
		return
	}
	s.disconnect(code, responseText(line), true)
}

func (s *Session) sendNext() bool {
	line := s.cmd.Next()
	if line == "" {
		return false
	}
	// the group is still selected from the previous command
	if strings.ToLower(line) == s.lastGroup && !s.cmd.Finished() {
		line = s.cmd.Next()
	}
	s.send(line)
	return true
}

func (s *Session) send(line string) {
	if strings.HasPrefix(line, "AUTHINFO PASS") {
		s.logf("> AUTHINFO PASS ****")
	} else {
		s.logf("> %s", line)
	}

	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	if err := s.transport.Send([]byte(line)); err != nil {
		e := TranslateError(err)
		s.disconnect(CodeSendFailed, "Send: "+e.Message, false)
		return
	}
	s.receive()
}

func (s *Session) receive() {
	if err := s.transport.Receive(); err != nil {
		e := TranslateError(err)
		s.disconnect(CodeReceiveFailed, "Receive: "+e.Message, false)
	}
}

func (s *Session) finish(frame []byte) {
	s.state = StateSingleline
	if s.done {
		return
	}
	s.data = frame
	s.done = true
}

func (s *Session) fail(code int, msg string) {
	if s.done || s.cmd == nil {
		return
	}
	s.err = newError(code, msg)
	s.done = true
}

func (s *Session) disconnect(code int, msg string, quit bool) {
	if quit && code != CodeNoQuit && s.transport.Connected() {
		s.logf("> QUIT")
		_ = s.transport.Send([]byte("QUIT\r\n"))
	}
	s.transport.Close(code, msg)
	s.closed()
	s.fail(code, msg)
}

func (s *Session) closed() {
	s.state = StateClosed
	s.lastGroup = ""
	s.buf.Reset()
}

// drain discards notifications left over from a previous connection.
func (s *Session) drain() {
	for {
		select {
		case <-s.transport.Events():
		default:
			return
		}
	}
}

func (s *Session) logf(format string, v ...any) {
	if s.Logf != nil {
		s.Logf(format, v...)
	}
}

func firstLine(frame []byte) string {
	if i := bytes.Index(frame, crlf); i >= 0 {
		frame = frame[:i]
	}
	return strings.TrimSpace(string(frame))
}

// responseText drops the status code from a response line.
func responseText(line string) string {
	if len(line) >= 3 && ParseCode([]byte(line)) != CodeUnparsable {
		return strings.TrimSpace(line[3:])
	}
	return line
}

func (s *Session) String() string {
	return fmt.Sprintf("%s [%s]", s.Server.Address(), s.state)
}
