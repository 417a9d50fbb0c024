package restyutil

import (
	"fmt"
	devenv "lapets-backend/dev/env"
	"log/slog"
	"os"
	"path/filepath"
)

// FilesystemOutput dumps each http exchange into its own file under a
// directory, prefixed by the name of the source that made it.
type FilesystemOutput struct {
	directory string
	prefix    string
}

// NewFilesystemOutput clears and recreates dir. `dir` may start with
// <dev_state>.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	dir, err := devenv.ResolvePath(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

// WithPrefix returns an output writing into the same directory with
// file names prefixed by `prefix`.
func (o FilesystemOutput) WithPrefix(prefix string) FilesystemOutput {
	o.prefix = prefix
	return o
}

func (o FilesystemOutput) Write(id string, contents string) {
	name := id
	if o.prefix != "" {
		name = fmt.Sprintf("%s-%s", o.prefix, id)
	}
	err := os.WriteFile(filepath.Join(o.directory, name), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", name, "err", err)
	}
}
