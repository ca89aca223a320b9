package download

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/utils"
)

// Destination is where a session's bytes go. The controller opens it once
// per attempt and hands the writer to the engine for exclusive use.
type Destination interface {
	// Open returns a writer positioned at offset. When the stored bytes do
	// not line up with offset the destination restarts and the effective
	// offset it returns is 0.
	Open(offset uint64) (io.WriteCloser, uint64, error)
	// Commit makes a completed transfer visible under its final name
	Commit() error
	// Discard drops partial data
	Discard() error
}

// FileDestination writes to Path + IncompleteSuffix and renames the file to
// Path on Commit.
type FileDestination struct {
	Path string
}

func NewFileDestination(path string) *FileDestination {
	return &FileDestination{Path: path}
}

// PartialPath is the working file name while a transfer is incomplete
func (d *FileDestination) PartialPath() string {
	return d.Path + types.IncompleteSuffix
}

func (d *FileDestination) Open(offset uint64) (io.WriteCloser, uint64, error) {
	if err := os.MkdirAll(filepath.Dir(d.Path), 0755); err != nil {
		return nil, 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	partial := d.PartialPath()

	if offset > 0 {
		info, err := os.Stat(partial)
		switch {
		case err == nil && uint64(info.Size()) == offset:
			f, err := os.OpenFile(partial, os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, 0, fmt.Errorf("failed to open partial file: %w", err)
			}
			return f, offset, nil
		case err == nil:
			utils.Debug("Partial file %s is %d bytes, expected %d; restarting", partial, info.Size(), offset)
		case errors.Is(err, os.ErrNotExist):
			utils.Debug("Partial file %s missing; restarting", partial)
		default:
			return nil, 0, fmt.Errorf("failed to stat partial file: %w", err)
		}
	}

	f, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create partial file: %w", err)
	}
	return f, 0, nil
}

func (d *FileDestination) Commit() error {
	if err := os.Rename(d.PartialPath(), d.Path); err != nil {
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	return nil
}

func (d *FileDestination) Discard() error {
	if err := os.Remove(d.PartialPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove partial file: %w", err)
	}
	return nil
}
