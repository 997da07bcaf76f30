package replay

import (
	"fmt"
	"io"
	"os"

	"github.com/okian/larkgate/pkg/logger"
)

const logFilePermission = 0o600

// SetupLogging initialises the global logger on stdout, and also on logFile
// when it is set. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func() error, error) {
	var (
		w       io.Writer = os.Stdout
		closeFn           = func() error { return nil }
	)
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}
	if err := logger.InitWithFormat("text", w); err != nil {
		return nil, err
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	return closeFn, nil
}
