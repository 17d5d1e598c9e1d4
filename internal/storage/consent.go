// Package storage keeps parental consent documents on the local filesystem.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	apperrors "exeat/internal/pkg/errors"
)

// ConsentStore saves uploads under dir with generated names. The returned
// reference is the file name and is the only way to address a document.
type ConsentStore struct {
	dir      string
	maxBytes int64
	allowed  []string
}

// NewConsentStore creates dir if needed.
func NewConsentStore(dir string, maxBytes int64, allowed []string) (*ConsentStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create consent dir: %w", err)
	}
	return &ConsentStore{dir: dir, maxBytes: maxBytes, allowed: allowed}, nil
}

// Save stores the document read from r and returns its reference. The type is
// sniffed from the content; the client's declared type is ignored.
func (s *ConsentStore) Save(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", apperrors.Dependency("read consent upload", err)
	}
	switch {
	case len(data) == 0:
		return "", fileError(apperrors.CodeFieldRequired, "file is empty")
	case int64(len(data)) > s.maxBytes:
		return "", fileError(apperrors.CodeFieldTooLong, fmt.Sprintf("file exceeds %d bytes", s.maxBytes))
	}

	mtype := mimetype.Detect(data)
	if !s.accepts(mtype) {
		return "", fileError(apperrors.CodeFieldInvalid, "unsupported file type "+mtype.String())
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := uuid.NewString() + mtype.Extension()
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", apperrors.Dependency("create consent file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		tmp.Close()
		return "", apperrors.Dependency("write consent file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", apperrors.Dependency("close consent file", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref)); err != nil {
		return "", apperrors.Dependency("store consent file", err)
	}
	return ref, nil
}

// Exists reports whether ref names a stored document. References that could
// not have been produced by Save are reported as missing.
func (s *ConsentStore) Exists(_ context.Context, ref string) (bool, error) {
	if !validRef(ref) {
		return false, nil
	}
	info, err := os.Stat(filepath.Join(s.dir, ref))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, apperrors.Dependency("stat consent file", err)
	}
	return info.Mode().IsRegular(), nil
}

// Open returns the stored document for ref and its sniffed content type. The
// caller closes the reader.
func (s *ConsentStore) Open(_ context.Context, ref string) (io.ReadCloser, string, error) {
	if !validRef(ref) {
		return nil, "", apperrors.NotFoundf("consent %q", ref)
	}
	path := filepath.Join(s.dir, ref)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", apperrors.NotFoundf("consent %q", ref)
		}
		return nil, "", apperrors.Dependency("open consent file", err)
	}

	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return nil, "", apperrors.Dependency("sniff consent file", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, "", apperrors.Dependency("rewind consent file", err)
	}
	return f, mtype.String(), nil
}

func (s *ConsentStore) accepts(mtype *mimetype.MIME) bool {
	for _, a := range s.allowed {
		if mtype.Is(a) {
			return true
		}
	}
	return false
}

func validRef(ref string) bool {
	if ref == "" || filepath.Base(ref) != ref {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(ref, filepath.Ext(ref)))
	return err == nil
}

func fileError(code, message string) error {
	return apperrors.Validation(apperrors.FieldError{Field: "file", Code: code, Message: message})
}
