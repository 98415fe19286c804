// Package storage keeps uploaded file bytes. Callers receive an opaque path
// from Put and use it for every later operation.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/medbook/internal/config"
)

const (
	NamespaceClinicalRecords = "clinical_records"
	NamespaceProfilePhotos   = "profile_photos"
)

var (
	ErrNotFound    = errors.New("stored file not found")
	ErrInvalidPath = errors.New("invalid storage path")
)

type Store interface {
	// Put writes r under namespace/name and returns the path to use later.
	Put(ctx context.Context, namespace, name string, r io.Reader, size int64, contentType string) (string, error)
	// Open returns ErrNotFound when nothing is stored at path.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
	// Delete is a no-op for paths that do not exist.
	Delete(ctx context.Context, path string) error
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "local":
		return NewLocalStore(cfg.LocalRoot)
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName returns a collision-resistant name for an uploaded file:
// <unix nanos>_<sanitized base name>.
func ObjectName(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	return fmt.Sprintf("%d_%s", now.UnixNano(), base)
}

// objectPath joins namespace and name, refusing anything that could escape
// the namespace.
func objectPath(namespace, name string) (string, error) {
	if namespace == "" || name == "" ||
		strings.ContainsAny(namespace, `/\`) || strings.ContainsAny(name, `/\`) ||
		namespace == "." || namespace == ".." || name == "." || name == ".." {
		return "", ErrInvalidPath
	}
	return namespace + "/" + name, nil
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned != p || strings.HasPrefix(cleaned, "..") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}
