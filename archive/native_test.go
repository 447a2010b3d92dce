package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhol/marlintool/errors"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	link     string
}

func writeTarGz(t *testing.T, entries []entry) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Typeflag: e.typeflag, Linkname: e.link}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "tool.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestNativeTarGz(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "arduino-1.8.19/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "arduino-1.8.19/arduino", body: "#!/bin/sh\n", mode: 0o755},
		{name: "arduino-1.8.19/lib/version.txt", body: "1.8.19"},
		{name: "arduino-1.8.19/version", typeflag: tar.TypeSymlink, link: "lib/version.txt"},
		{name: "arduino-1.8.19/lib/copy.txt", typeflag: tar.TypeLink, link: "arduino-1.8.19/lib/version.txt"},
	})
	dst := filepath.Join(t.TempDir(), "out")

	require.NoError(t, NewNativeExtractor().Extract(context.Background(), archive, dst))

	info, err := os.Stat(filepath.Join(dst, "arduino-1.8.19", "arduino"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "executable bit kept")

	data, err := os.ReadFile(filepath.Join(dst, "arduino-1.8.19", "version"))
	require.NoError(t, err)
	assert.Equal(t, "1.8.19", string(data))

	data, err = os.ReadFile(filepath.Join(dst, "arduino-1.8.19", "lib", "copy.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1.8.19", string(data))
}

func TestNativeRejectsUnsafeEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
	}{
		{"traversal", []entry{{name: "../evil.txt", body: "x"}}},
		{"nested traversal", []entry{{name: "tool/../../evil.txt", body: "x"}}},
		{"absolute", []entry{{name: "/tmp/evil.txt", body: "x"}}},
		{"escaping symlink", []entry{{name: "tool/link", typeflag: tar.TypeSymlink, link: "../../outside"}}},
		{"absolute symlink", []entry{{name: "tool/link", typeflag: tar.TypeSymlink, link: "/etc/passwd"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			archive := writeTarGz(t, tt.entries)
			parent := t.TempDir()
			dst := filepath.Join(parent, "out")

			err := NewNativeExtractor().Extract(context.Background(), archive, dst)
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))

			_, statErr := os.Stat(filepath.Join(parent, "evil.txt"))
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestNativeLimits(t *testing.T) {
	archive := writeTarGz(t, []entry{
		{name: "a.bin", body: "0123456789"},
		{name: "b.bin", body: "0123456789"},
	})

	t.Run("file size", func(t *testing.T) {
		ex := NewNativeExtractor(WithLimits(Limits{MaxFileSize: 5}))
		err := ex.Extract(context.Background(), archive, t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum file size")
	})

	t.Run("total size", func(t *testing.T) {
		ex := NewNativeExtractor(WithLimits(Limits{MaxTotalSize: 15}))
		err := ex.Extract(context.Background(), archive, t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "maximum extracted size")
	})

	t.Run("entry count", func(t *testing.T) {
		ex := NewNativeExtractor(WithLimits(Limits{MaxFiles: 1}))
		err := ex.Extract(context.Background(), archive, t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "too many entries")
	})
}

func TestNativeZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("arduino-1.8.19/arduino.exe")
	require.NoError(t, err)
	_, err = w.Write([]byte("MZ"))
	require.NoError(t, err)
	hdr := &zip.FileHeader{Name: "arduino-1.8.19/current"}
	hdr.SetMode(os.ModeSymlink | 0o777)
	w, err = zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte("arduino.exe"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "tool.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))
	dst := t.TempDir()

	require.NoError(t, NewNativeExtractor().Extract(context.Background(), archive, dst))

	data, err := os.ReadFile(filepath.Join(dst, "arduino-1.8.19", "current"))
	require.NoError(t, err)
	assert.Equal(t, "MZ", string(data))
}

func TestNativeZipTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../evil.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "evil.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	err = NewNativeExtractor().Extract(context.Background(), archive, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestNativeUnsupportedAndMissing(t *testing.T) {
	err := NewNativeExtractor().Extract(context.Background(), "/nonexistent/tool.tar.xz", t.TempDir())
	assert.Equal(t, errors.CodeNotImplemented, errors.GetCode(err))

	err = NewNativeExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "tool.tar.gz"), t.TempDir())
	assert.Equal(t, errors.CodeNotFound, errors.GetCode(err))

	garbage := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(garbage, []byte("not gzip"), 0o644))
	err = NewNativeExtractor().Extract(context.Background(), garbage, t.TempDir())
	assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
}

func TestNativeCanceled(t *testing.T) {
	archive := writeTarGz(t, []entry{{name: "a.txt", body: "a"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewNativeExtractor().Extract(ctx, archive, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNativeRequire(t *testing.T) {
	e := NewNativeExtractor()
	assert.NoError(t, e.Require("tool.tar.gz"))
	assert.NoError(t, e.Require("tool.tar.bz2"))
	assert.NoError(t, e.Require("tool.zip"))
	assert.Equal(t, errors.CodeNotImplemented, errors.GetCode(e.Require("tool.tar.xz")))
}
