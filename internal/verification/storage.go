// Package verification stores identity documents and files the review
// request admins approve.
package verification

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Bucket is the storage folder for identity documents.
const Bucket = "identity-documents"

// MaxFileSize is the upload limit per document.
const MaxFileSize = 5 << 20

var (
	ErrInvalidSide      = errors.New("side must be front, back or selfie")
	ErrInvalidExtension = errors.New("file must be jpg, jpeg, png or webp")
	ErrTooLarge         = errors.New("file exceeds 5 MB")
	ErrInvalidPath      = errors.New("invalid document path")
)

var sides = map[string]bool{"front": true, "back": true, "selfie": true}

var extensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "webp": true}

// ObjectPath builds {user_id}/{user_id}_{side}_{timestamp}.{ext} from the
// uploaded file name.
func ObjectPath(userID, side, filename string, at time.Time) (string, error) {
	if !sides[side] {
		return "", ErrInvalidSide
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if !extensions[ext] {
		return "", ErrInvalidExtension
	}
	return fmt.Sprintf("%s/%s_%s_%d.%s", userID, userID, side, at.UnixMilli(), ext), nil
}

// Storage writes documents below Root/Bucket.
type Storage struct {
	Root string
}

func (s Storage) resolve(object string) (string, error) {
	clean := path.Clean("/" + object)
	if clean == "/" || strings.Contains(object, "..") {
		return "", ErrInvalidPath
	}
	return filepath.Join(s.Root, Bucket, filepath.FromSlash(clean)), nil
}

// Put stores r under object, refusing anything larger than MaxFileSize.
func (s Storage) Put(object string, r io.Reader) error {
	full, err := s.resolve(object)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return pkgerrors.Wrap(err, "create document folder")
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return pkgerrors.Wrap(err, "create document")
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxFileSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxFileSize {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(full)
		if errors.Is(err, ErrTooLarge) {
			return err
		}
		return pkgerrors.Wrap(err, "write document")
	}
	return nil
}

// Path returns the file system location of object for serving to admins.
func (s Storage) Path(object string) (string, error) {
	return s.resolve(object)
}
