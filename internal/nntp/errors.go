package nntp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Error is a failed command or connection with its response code. Codes
// above 900 are produced locally and never come from a server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d)", e.Message, e.Code)
}

func newError(code int, msg string) *Error {
	if code <= 0 {
		code = CodeUnknown
	}
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "Unknown"
	}
	return &Error{Code: code, Message: msg}
}

// ErrArticleNotFound matches any missing article or number response.
var ErrArticleNotFound = &Error{Code: CodeNoSuchArticle, Message: "article not found"}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == ErrArticleNotFound {
		return IsMissing(e)
	}
	return t.Code == e.Code
}

// Code extracts the response code from err, CodeUnknown if it has none.
func Code(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsFatal reports errors after which the connection should not be reused.
func IsFatal(err error) bool {
	switch Code(err) {
	case CodeDoNotTryAgain, CodeTooManyConns, CodeGoodBye:
		return true
	}
	return false
}

// IsMissing reports errors saying the requested article does not exist on
// this server.
func IsMissing(err error) bool {
	switch Code(err) {
	case CodeNoSuchArticle, CodeNoSuchNumber:
		return true
	}
	return false
}

// TranslateError maps a transport error onto a stable code and message.
func TranslateError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case errors.Is(err, context.Canceled):
		return newError(CodeCancelled, "Cancelled")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return newError(CodeShutdown, "Connection closed by remote host")
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return newError(CodeSocketTimeout, "Connection timed out")
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return newError(CodeConnReset, "Connection reset by peer")
	case errors.Is(err, syscall.ECONNREFUSED):
		return newError(CodeConnRefused, "Connection refused")
	case errors.Is(err, syscall.EHOSTUNREACH):
		return newError(CodeHostUnreachable, "No route to host")
	case errors.Is(err, syscall.ENETUNREACH):
		return newError(CodeNetUnreachable, "Network is unreachable")
	case errors.As(err, &dnsErr):
		return newError(CodeHostNotFound, "Host not found: "+dnsErr.Name)
	case errors.As(err, &netErr) && netErr.Timeout():
		return newError(CodeSocketTimeout, "Connection timed out")
	}
	return newError(CodeSocketUnknown, err.Error())
}
