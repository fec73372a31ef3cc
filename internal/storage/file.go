package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/banddump/internal/logging"
	"github.com/muurk/banddump/internal/syncutil"
)

const (
	// ImageExt is the extension of raw flash images
	ImageExt = ".bin"

	dirPerm  = 0o755
	filePerm = 0o644
)

// FileSink writes a finished flash image to a file. The write goes to a
// temporary file in the same directory and is renamed into place, so a
// reader never sees a partial image.
type FileSink struct {
	dir    string
	name   string
	now    func() time.Time
	logger *zap.Logger

	mu   syncutil.Mutex
	path string
}

// NewFileSink creates a sink writing into dir. name is the file name; when
// empty, ImageName picks one at persist time.
func NewFileSink(dir, name string) *FileSink {
	return &FileSink{
		dir:    dir,
		name:   name,
		now:    time.Now,
		logger: logging.GetLogger(),
	}
}

// ImageName returns the default file name for a device's image
func ImageName(device string, at time.Time) string {
	device = sanitize(device)
	if device == "" {
		device = "tracker"
	}
	return fmt.Sprintf("%s-%s%s", device, at.UTC().Format("20060102T150405Z"), ImageExt)
}

// Persist implements session.Sink
func (s *FileSink) Persist(image []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.name
	if name == "" {
		name = ImageName("", s.now())
	}
	path := filepath.Join(s.dir, name)

	if err := WriteFileAtomic(path, image, filePerm); err != nil {
		return err
	}
	s.path = path

	s.logger.Info("Image written", zap.String("path", path), zap.Int("bytes", len(image)))
	return nil
}

// Path returns where the last image was written, or "" before Persist
func (s *FileSink) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// WriteFileAtomic writes data to path through a temporary file and rename.
// Missing parent directories are created.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// sanitize keeps a device name usable as part of a file name
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ' || r == '.' || r == ':':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
}
