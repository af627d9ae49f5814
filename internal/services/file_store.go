package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/utils"
	"go.uber.org/zap"
)

// photoExtensions maps the accepted photo content types to stored extensions
var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// PhotoExtension returns the file extension for an accepted photo content type
func PhotoExtension(contentType string) (string, bool) {
	ext, ok := photoExtensions[contentType]
	return ext, ok
}

// FileStore keeps flat files in a single directory
type FileStore struct {
	dir  string
	kind string
}

// NewFileStore creates the directory if needed. kind labels metrics and spans
// ("photo", "pass").
func NewFileStore(dir, kind string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", kind, err)
	}
	return &FileStore{dir: dir, kind: kind}, nil
}

// Dir returns the backing directory
func (s *FileStore) Dir() string {
	return s.dir
}

// EnsureDir recreates the backing directory if it was removed
func (s *FileStore) EnsureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// path resolves a stored name, refusing anything that is not a plain base name
func (s *FileStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// StagedFile is an upload written to a temporary file in the store directory.
// It is removed by Discard unless Commit moved it into place first.
type StagedFile struct {
	store       *FileStore
	tmpPath     string
	Size        int64
	ContentType string
	committed   bool
}

// Stage copies r into a temporary file, rejecting payloads above maxBytes.
// The content type is sniffed from the first bytes.
func (s *FileStore) Stage(ctx context.Context, r io.Reader, maxBytes int64) (*StagedFile, error) {
	_, span, cleanup := utils.TraceFileOperation(ctx, "stage", s.kind)
	defer cleanup()

	if err := s.EnsureDir(); err != nil {
		return nil, fmt.Errorf("ensure %s directory: %w", s.kind, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	staged := &StagedFile{store: s, tmpPath: tmp.Name()}

	n, err := io.Copy(tmp, io.LimitReader(r, maxBytes+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		staged.Discard()
		utils.RecordErrorInSpan(span, err, nil)
		return nil, fmt.Errorf("write staging file: %w", err)
	}
	if n > maxBytes {
		staged.Discard()
		return nil, models.NewBadRequest(fmt.Sprintf("file too large (max %d bytes)", maxBytes))
	}
	if n == 0 {
		staged.Discard()
		return nil, models.NewBadRequest("file is empty")
	}
	staged.Size = n

	contentType, err := sniffFile(staged.tmpPath)
	if err != nil {
		staged.Discard()
		return nil, fmt.Errorf("sniff staging file: %w", err)
	}
	staged.ContentType = contentType
	utils.AddSpanAttribute(span, "file.size", n)
	utils.AddSpanAttribute(span, "file.content_type", contentType)
	return staged, nil
}

func sniffFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	ct, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return ct, nil
}

// Commit moves the staged file to name inside the store directory
func (f *StagedFile) Commit(name string) error {
	dst, err := f.store.path(name)
	if err != nil {
		return err
	}
	if err := os.Rename(f.tmpPath, dst); err != nil {
		return fmt.Errorf("commit %s: %w", f.store.kind, err)
	}
	f.committed = true
	observability.StoredBytes.WithLabelValues(f.store.kind).Add(float64(f.Size))
	return nil
}

// Discard removes the temporary file. It is a no-op after Commit and safe to
// call more than once.
func (f *StagedFile) Discard() {
	if f == nil || f.committed || f.tmpPath == "" {
		return
	}
	if err := os.Remove(f.tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		observability.Logger().Warn("failed to remove staged upload",
			zap.String("path", f.tmpPath), zap.Error(err))
	}
	f.tmpPath = ""
}

// WriteFile writes data under name atomically (temp file plus rename)
func (s *FileStore) WriteFile(ctx context.Context, name string, data []byte) error {
	_, span, cleanup := utils.TraceFileOperation(ctx, "write", s.kind)
	defer cleanup()

	dst, err := s.path(name)
	if err != nil {
		return err
	}
	if err := s.EnsureDir(); err != nil {
		return fmt.Errorf("ensure %s directory: %w", s.kind, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".write-*")
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		utils.RecordErrorInSpan(span, err, nil)
		return fmt.Errorf("write %s: %w", s.kind, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.kind, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return fmt.Errorf("rename %s: %w", s.kind, err)
	}

	observability.StoredBytes.WithLabelValues(s.kind).Add(float64(len(data)))
	return nil
}

// Open returns the stored file and its content type. Missing files map to
// NotFound.
func (s *FileStore) Open(name string) (*os.File, string, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, "", models.NewNotFound("not found")
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", models.NewNotFound("not found")
		}
		return nil, "", fmt.Errorf("open %s: %w", s.kind, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, "", fmt.Errorf("rewind %s: %w", s.kind, err)
		}
	}
	return f, contentType, nil
}

// Remove deletes a stored file; a missing file is not an error
func (s *FileStore) Remove(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", s.kind, err)
	}
	return nil
}
