package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSourceFetch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yaml")
	require.NoError(t, os.WriteFile(path, []byte("SCHEMAS: {}\n"), 0o644))

	src := NewLocalSource(path)
	data, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SCHEMAS: {}\n", string(data))
	assert.Equal(t, path, src.Describe())
}

func TestLocalSourceMissingFile(t *testing.T) {
	src := NewLocalSource(filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestLocalSourceCancelledContext(t *testing.T) {
	src := NewLocalSource("irrelevant")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3SourceDescribe(t *testing.T) {
	src := NewS3SourceWithClient(nil, "weft-schemas", "prod/entities.yaml")
	assert.Equal(t, "s3://weft-schemas/prod/entities.yaml", src.Describe())
}
