package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"

	"logwarden/internal/types"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"
)

// LineSource produces the raw lines of a closed log batch
type LineSource interface {
	Lines() (iter.Seq[string], error)
}

// FileReader reads a log file once per iteration, start to end.
// It never follows the file: the batch is whatever is on disk when ranged.
type FileReader struct {
	path string
	log  logrus.FieldLogger
}

// NewFileReader creates a reader for a path
func NewFileReader(path string, log logrus.FieldLogger) *FileReader {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &FileReader{
		path: path,
		log:  log.WithField("path", path),
	}
}

// Lines checks the file can be opened and returns a restartable sequence of its
// lines. A missing file yields types.ErrMissingInput, an unopenable one
// types.ErrUnreadableInput; the sequence is empty in both cases.
func (f *FileReader) Lines() (iter.Seq[string], error) {
	if err := checkReadable(f.path); err != nil {
		return empty, err
	}
	return f.each, nil
}

func (f *FileReader) each(yield func(string) bool) {
	config := tail.Config{
		Follow:    false,
		ReOpen:    false,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	}

	t, err := tail.TailFile(f.path, config)
	if err != nil {
		f.log.WithError(err).Warn("Failed to open log file")
		return
	}
	defer t.Cleanup()
	defer t.Stop()

	for line := range t.Lines {
		if line.Err != nil {
			f.log.WithError(line.Err).Debug("Skipping unreadable line")
			continue
		}
		if !yield(line.Text) {
			return
		}
	}
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", types.ErrMissingInput, path)
		}
		return fmt.Errorf("%w: %s: %v", types.ErrUnreadableInput, path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", types.ErrUnreadableInput, path)
	}
	fh, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrUnreadableInput, path, err)
	}
	return fh.Close()
}

func empty(func(string) bool) {}
