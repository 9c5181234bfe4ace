package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
)

// Putter is the subset of S3Store used for uploads.
type Putter interface {
	Put(ctx context.Context, runID, name string, content []byte) error
}

// Publisher uploads files and hands out links to them. S3Store implements it.
type Publisher interface {
	Putter
	List(ctx context.Context, runID string) ([]string, error)
	GetURL(ctx context.Context, runID, name string) (string, error)
}

// ErrMissingUpload is returned by Publish when an uploaded file is not listed afterwards.
var ErrMissingUpload = errors.New("uploaded artifact not found in store")

// Link is a published artifact.
type Link struct {
	Key string
	URL string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// UploadFiles uploads each local file under its base name and returns the
// object keys written. It stops at the first failure.
func UploadFiles(ctx context.Context, store Putter, runID string, files ...string) ([]string, error) {
	logger := ctxlog.Component(ctx, "artifact")

	keys := make([]string, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return keys, fmt.Errorf("failed to read %s: %w", file, err)
		}
		name := filepath.Base(file)
		if err := store.Put(ctx, runID, name, content); err != nil {
			return keys, fmt.Errorf("failed to upload %s: %w", file, err)
		}
		key := objectKey(runID, name)
		logger.Info("uploaded artifact", diag.AttrKey, key, "bytes", len(content))
		keys = append(keys, key)
	}
	return keys, nil
}

func contentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// Publish uploads files, checks that every one of them is listed under the
// run, and returns a presigned download link for each.
func Publish(ctx context.Context, store Publisher, runID string, files ...string) ([]Link, error) {
	keys, err := UploadFiles(ctx, store, runID, files...)
	if err != nil {
		return nil, err
	}

	listed, err := store.List(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run %s: %w", runID, err)
	}
	present := make(map[string]bool, len(listed))
	for _, name := range listed {
		present[name] = true
	}

	links := make([]Link, 0, len(files))
	for i, file := range files {
		name := filepath.Base(file)
		if !present[name] {
			return nil, fmt.Errorf("%w: %s", ErrMissingUpload, keys[i])
		}
		url, err := store.GetURL(ctx, runID, name)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", keys[i], err)
		}
		links = append(links, Link{Key: keys[i], URL: url})
	}
	return links, nil
}
