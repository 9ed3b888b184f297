package storage

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBackendWriteOpenDelete(t *testing.T) {
	ctx := context.Background()
	backend, err := NewLocal(t.TempDir(), "/media/")
	require.NoError(t, err)

	key, err := backend.Write(ctx, "Service Agreement.pdf", strings.NewReader("%PDF-1.4 body"), 13, "application/pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "documents/templates/"))
	assert.True(t, strings.HasSuffix(key, "/Service_Agreement.pdf"))

	exists, err := backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	blob, err := backend.Open(ctx, key)
	require.NoError(t, err)
	local, ok := blob.(*LocalPathBlob)
	require.True(t, ok, "local backend must hand out path blobs")
	assert.EqualValues(t, 13, local.Size())
	_, err = os.Stat(local.Path())
	require.NoError(t, err)

	rc, err := blob.Open()
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.4 body", string(data))

	url, err := backend.URL(ctx, key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "/media/documents/templates/"))

	require.NoError(t, backend.Delete(ctx, key))
	exists, err = backend.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = backend.Open(ctx, key)
	assert.ErrorIs(t, err, ErrObjectNotFound)
	// deleting twice is fine
	require.NoError(t, backend.Delete(ctx, key))
}

func TestLocalBackendRejectsTraversal(t *testing.T) {
	backend, err := NewLocal(t.TempDir(), "")
	require.NoError(t, err)

	for _, key := range []string{"../etc/passwd", "/abs/path", "a//b", "a/./b", ""} {
		_, err := backend.Open(context.Background(), key)
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestLocalPathBlobMissingFile(t *testing.T) {
	blob := NewLocalPathBlob("documents/x.pdf", t.TempDir()+"/missing.pdf", 0)
	_, err := blob.Open()
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestBufferedBlobReopensFromStart(t *testing.T) {
	blob := NewBufferedBlob("k", []byte("hello"))
	for i := 0; i < 2; i++ {
		rc, err := blob.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
	}
	assert.EqualValues(t, 5, blob.Size())
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":              "report.pdf",
		"../../secret.docx":       "secret.docx",
		`C:\Users\me\Plan v2.doc`: "Plan_v2.doc",
		"...":                     "file",
		"résumé (final).pdf":      "résumé_final.pdf",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeName(in), in)
	}
}
