package renderer

import (
	"fmt"
	"strings"
)

// ExecError reports a non-zero exit of the local renderer process.
type ExecError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error implements the error interface
func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
}

// HTTPError reports a non-2xx response from a PlantUML server.
type HTTPError struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Error implements the error interface
func (e *HTTPError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
