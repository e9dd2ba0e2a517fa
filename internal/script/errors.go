package script

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// ClientMessage is the only text a client ever sees for a failed script.
const ClientMessage = "Internal Error"

// windowRadius is the number of lines shown on each side of a failing line.
const windowRadius = 3

// Redis 7 reports "user_script:N:", older servers "f_<sha1>:N:". Embedded
// interpreters report "<string>:N:" or an unnamed chunk ":N:".
var lineRe = regexp.MustCompile(`(?:user_script|f_[0-9a-f]{40}|<string>)?:(\d+):`)

// ExecutionError is a failed script run, annotated with the location of
// the failure in the composed source when Redis reports one.
type ExecutionError struct {
	Op        string
	Line      int // line in the composed source; 0 when unknown
	Fragment  string
	LocalLine int
	Window    []string
	Err       error
}

// Error is a server-side diagnostic. It must not be shown to clients.
func (e *ExecutionError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("script %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("script %s failed at %s:%d: %v", e.Op, e.Fragment, e.LocalLine, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ClientMessage returns the opaque message safe to return to a caller.
func (e *ExecutionError) ClientMessage() string {
	return ClientMessage
}

// Status is the HTTP status for a script failure.
func (e *ExecutionError) Status() int {
	return http.StatusInternalServerError
}

// annotate wraps err with the failing line and its surrounding source.
func annotate(op Operation, err error) *ExecutionError {
	ee := &ExecutionError{Op: op.Name(), Err: err}

	m := lineRe.FindStringSubmatch(err.Error())
	if m == nil {
		return ee
	}
	line, convErr := strconv.Atoi(m[1])
	if convErr != nil || line <= 0 || line > strings.Count(op.Source(), "\n")+1 {
		return ee
	}

	ee.Line = line
	ee.Fragment, ee.LocalLine = op.Locate(line)
	ee.Window = window(op.Source(), line)
	return ee
}

// window renders the lines around line, marking the failing one.
func window(source string, line int) []string {
	lines := strings.Split(source, "\n")
	from := max(line-windowRadius, 1)
	to := min(line+windowRadius, len(lines))

	out := make([]string, 0, to-from+1)
	for n := from; n <= to; n++ {
		marker := "  "
		if n == line {
			marker = "> "
		}
		out = append(out, fmt.Sprintf("%s%4d | %s", marker, n, lines[n-1]))
	}
	return out
}
