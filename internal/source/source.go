// Package source provides schema-document sources. The registry fetches
// the declarative schema document through a Source at startup and on
// explicit reload; implementations cover the local filesystem and S3.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrDocumentNotFound is returned when the configured document does not
// exist at the source.
var ErrDocumentNotFound = errors.New("schema document not found")

// Source fetches the raw schema document bytes.
type Source interface {
	// Fetch returns the current contents of the schema document.
	Fetch(ctx context.Context) ([]byte, error)

	// Describe returns a human-readable location for log messages.
	Describe() string
}

// LocalSource reads the schema document from a local file path.
type LocalSource struct {
	path string
}

// NewLocalSource creates a local file source.
func NewLocalSource(path string) *LocalSource {
	return &LocalSource{path: path}
}

// Fetch reads the document from disk.
func (l *LocalSource) Fetch(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, l.path)
		}
		return nil, fmt.Errorf("failed to read schema document: %w", err)
	}
	return data, nil
}

// Describe returns the file path.
func (l *LocalSource) Describe() string {
	return l.path
}
