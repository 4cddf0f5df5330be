package logger

import (
	"fmt"
	"log"
	"os"
)

// New returns a stdlib-backed logger with a component prefix. Used for the
// HTTP access log, where one line per request beats structured output.
func New(component string) *log.Logger {
	prefix := fmt.Sprintf("[%s] ", component)
	return log.New(os.Stdout, prefix, log.LstdFlags)
}
