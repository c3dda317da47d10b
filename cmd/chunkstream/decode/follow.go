package decodecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// followSource is an sse.Source over a file that is still being written.
// Pull blocks until new bytes are appended and ends the stream once the file
// is removed or renamed.
type followSource struct {
	path    string
	file    *os.File
	watcher *fsnotify.Watcher
	buf     []byte
}

func newFollowSource(path string) (*followSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("creating capture watcher: %w", err)
	}

	// Watch the directory so writers that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		file.Close()
		return nil, fmt.Errorf("watching capture dir: %w", err)
	}

	return &followSource{
		path:    filepath.Clean(path),
		file:    file,
		watcher: watcher,
		buf:     make([]byte, 32*1024),
	}, nil
}

func (s *followSource) Pull(ctx context.Context) ([]byte, error) {
	for {
		n, err := s.file.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// wait blocks until the followed file changes.
func (s *followSource) wait(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-s.watcher.Events:
			if !ok {
				return io.EOF
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				return io.EOF
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				return nil
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return io.EOF
			}
			return fmt.Errorf("capture watcher error: %w", err)
		}
	}
}

func (s *followSource) Close() error {
	return errors.Join(s.watcher.Close(), s.file.Close())
}
