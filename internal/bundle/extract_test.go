package bundle

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawTarball(t *testing.T, hdrs ...*tar.Header) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	for _, h := range hdrs {
		require.NoError(t, tw.WriteHeader(h))
		if h.Size > 0 {
			_, err := tw.Write(bytes.Repeat([]byte("x"), int(h.Size)))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestStripComponents(t *testing.T) {
	assert.Equal(t, "a/b", stripComponents("top/a/b", 1))
	assert.Equal(t, "a/b", stripComponents("./top/a/b", 1))
	assert.Equal(t, "", stripComponents("top/", 1))
	assert.Equal(t, "top/a", stripComponents("top/a", 0))
}

func TestExtract_ModesAndLinks(t *testing.T) {
	requireUnix(t)
	data := rawTarball(t,
		&tar.Header{Typeflag: tar.TypeDir, Name: "w/", Mode: 0o755},
		&tar.Header{Typeflag: tar.TypeReg, Name: "w/bin/run.sh", Mode: 0o755, Size: 3},
		&tar.Header{Typeflag: tar.TypeSymlink, Name: "w/bin/alias.sh", Linkname: "run.sh"},
	)
	dest := t.TempDir()
	n, err := Extract(bytes.NewReader(data), dest, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := os.Stat(filepath.Join(dest, "bin", "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), st.Mode().Perm())

	link, err := os.Readlink(filepath.Join(dest, "bin", "alias.sh"))
	require.NoError(t, err)
	assert.Equal(t, "run.sh", link)
}

func TestExtract_RejectsTraversal(t *testing.T) {
	requireUnix(t)
	cases := map[string]*tar.Header{
		"dotdot":       {Typeflag: tar.TypeReg, Name: "w/../../evil", Mode: 0o644, Size: 1},
		"abs symlink":  {Typeflag: tar.TypeSymlink, Name: "w/l", Linkname: "/etc/passwd"},
		"rel escaping": {Typeflag: tar.TypeSymlink, Name: "w/l", Linkname: "../../x"},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "out")
			_, err := Extract(bytes.NewReader(rawTarball(t, h)), dest, 1)
			require.Error(t, err)
			assert.NoFileExists(t, filepath.Join(filepath.Dir(dest), "evil"))
		})
	}
}

func TestExtract_NotGzip(t *testing.T) {
	_, err := Extract(strings.NewReader("plain text"), t.TempDir(), 1)
	require.Error(t, err)
}
