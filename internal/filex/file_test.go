package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) func() {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	return func() { _ = os.Chdir(old) }
}

func TestEnsureDir_CreatesDirectoryInCWD(t *testing.T) {
	tmp, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	defer chdir(t, tmp)()

	got, err := EnsureDir("attachments")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "attachments"), got)

	fi, err := os.Stat(got)
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), fi.Mode().Perm())
	}

	again, err := EnsureDir("attachments")
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestEnsureDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	defer chdir(t, tmp)()

	require.NoError(t, os.WriteFile("attachments", []byte("x"), 0o600))

	_, err := EnsureDir("attachments")
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":          "report.pdf",
		"../../etc/passwd":    "passwd",
		`..\..\windows\x.ini`: "x.ini",
		"":                    "attachment",
		"..":                  "attachment",
		"/":                   "attachment",
		"bad\x00name\n.txt":   "badname.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeName(in), in)
	}
}

func TestWriteUnique(t *testing.T) {
	dir := t.TempDir()

	p1, err := WriteUnique(dir, "note.txt", []byte("one"))
	require.NoError(t, err)
	p2, err := WriteUnique(dir, "note.txt", []byte("two"))
	require.NoError(t, err)
	p3, err := WriteUnique(dir, "../note.txt", []byte("three"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "note.txt"), p1)
	assert.Equal(t, filepath.Join(dir, "note (1).txt"), p2)
	assert.Equal(t, filepath.Join(dir, "note (2).txt"), p3)

	b, err := os.ReadFile(p2)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	_, err = WriteUnique(filepath.Join(dir, "missing"), "x", nil)
	require.Error(t, err)
}
