package cli

import (
	"fmt"
	"os"
	"path/filepath"
)

// ExitError carries a non-zero exit status without an additional message; the command
// has already reported why.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

func ensureOutputDir(path string) error {
	if path == "" {
		return fmt.Errorf("output directory cannot be empty")
	}
	return os.MkdirAll(path, 0o755)
}

// ensureParentDir creates the directory that will hold file.
func ensureParentDir(file string) error {
	if file == "" {
		return fmt.Errorf("output path cannot be empty")
	}
	return ensureOutputDir(filepath.Dir(file))
}
