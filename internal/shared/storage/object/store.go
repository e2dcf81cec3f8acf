package object

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"research-backend/internal/shared/util"
)

// ObjectStore saves and retrieves source files for documents.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// DocumentKey returns the storage key for a document's source file.
func DocumentKey(documentID, fileName string) (string, error) {
	if strings.TrimSpace(documentID) == "" {
		return "", fmt.Errorf("document id is required")
	}
	name, err := util.SanitizeFileName(fileName)
	if err != nil {
		return "", fmt.Errorf("sanitize file name: %w", err)
	}
	return path.Join("documents", documentID, name), nil
}
