// Package common provides the logging infrastructure shared by every
// multidb package: a logrus-based logger with automatic stdout/stderr
// stream routing, so container log collectors can treat error output
// differently from info/debug/warn without parsing message bodies.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes formatted log lines to stderr when they carry
// "level=error" and to stdout otherwise. It operates on the already
// formatted bytes, so it works with any logrus formatter.
type OutputSplitter struct{}

// Write implements io.Writer, routing p to stderr or stdout based on content.
func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the package-wide default logger. Components call ComponentLogger
// to get a *ContextLogger bound to Logger with a "component" field set;
// callers that want a different backend construct their own via NewLogger
// and pass it to NewContextLogger instead of using this global.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
