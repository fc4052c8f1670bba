package replay

import (
	"os"
	"path/filepath"
	"strings"

	"collator/pkg/exception"

	"github.com/yanun0323/errors"
)

// FileConfig describes a bar file.
type FileConfig struct {
	Name    string
	Path    string
	Sheet   string
	Columns Columns
}

func (c FileConfig) withDefaults() FileConfig {
	if c.Name == "" {
		c.Name = strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	}
	return c
}

// Validate checks that the file exists.
func (c FileConfig) Validate() error {
	if c.Path == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "replay: path is empty")
	}
	info, err := os.Stat(c.Path)
	if err != nil {
		return errors.Wrapf(err, "replay: stat %s", c.Path)
	}
	if info.IsDir() {
		return errors.Wrapf(exception.ErrInvalidArgument, "replay: %s is a directory", c.Path)
	}
	return nil
}
