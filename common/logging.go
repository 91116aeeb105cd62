// Package common provides the process-wide logging facility shared by
// catalogd and the query CLI: a single logrus logger with output
// routed so error-level records land on stderr and everything else on
// stdout, matching the container log-separation convention used
// throughout this codebase's services.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus's formatted output to stderr for
// error-level records and stdout for everything else.
type OutputSplitter struct{}

func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the global logger instance; catalogd's subsystems derive
// per-component entries from it via WithField("component", ...).
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}

// Component returns a logger entry tagged with the given subsystem
// name, e.g. common.Component("ingest").
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
