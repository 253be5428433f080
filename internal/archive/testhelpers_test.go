package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type zipFile struct {
	name    string
	content string
}

// createTestZIP writes files into a zip in the given order.
func createTestZIP(t *testing.T, files ...zipFile) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for _, zf := range files {
		fw, err := w.Create(zf.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(zf.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func openTestZIP(t *testing.T, files ...zipFile) *Archive {
	t.Helper()
	a, err := Open(createTestZIP(t, files...), 0)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() }) //nolint:errcheck
	return a
}
