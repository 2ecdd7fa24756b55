package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jarBytes = []byte("PK\x03\x04 fake plantuml jar contents")

func sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func newJarServer(t *testing.T, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/plantuml.jar" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv, &hits
}

func resolverFor(url string, size int64, sha string) func(string) Artifact {
	return func(version string) Artifact {
		return Artifact{Version: version, URL: url, Size: size, SHA256: sha}
	}
}

func TestLookup(t *testing.T) {
	a := Lookup("1.2022.1")
	assert.Equal(t, int64(9942607), a.Size)
	assert.Equal(t, "111995d0f54f18f5a6faa7f4e0360abc2fee9400d54595ca5fe6ab0ddeda1e61", a.SHA256)

	assert.Equal(t,
		"https://github.com/plantuml/plantuml/releases/download/v1.2022.7/plantuml-1.2022.7.jar",
		JarURL("1.2022.7"))
	assert.Zero(t, Lookup("1.2022.7").Size)

	assert.Equal(t,
		[]string{"1.2017.12", "1.2017.13", "1.2017.14", "1.2022.0", "1.2022.1", "1.2022.2"},
		KnownVersions())
}

func TestJarPath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("cache", "jars", "1.2022.7", "plantuml-1.2022.7.jar"),
		JarPath("cache", "1.2022.7"))
}

func TestDefaultCacheDirFromEnv(t *testing.T) {
	t.Setenv(CacheDirEnv, "/tmp/plantuml-cache")
	assert.Equal(t, "/tmp/plantuml-cache", DefaultCacheDir())
}

func TestFetchVerifiesAndSkips(t *testing.T) {
	srv, hits := newJarServer(t, jarBytes)
	d := New(WithResolver(resolverFor(srv.URL+"/plantuml.jar", int64(len(jarBytes)), sum(jarBytes))))

	filename := filepath.Join(t.TempDir(), "plantuml.jar")
	require.NoError(t, d.Fetch(context.Background(), "1.0.0", filename))

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, jarBytes, data)
	assert.Equal(t, int32(1), hits.Load())

	require.NoError(t, d.Fetch(context.Background(), "1.0.0", filename))
	assert.Equal(t, int32(1), hits.Load(), "valid file must not be downloaded again")
}

func TestFetchReplacesCorruptFile(t *testing.T) {
	srv, hits := newJarServer(t, jarBytes)
	d := New(WithResolver(resolverFor(srv.URL+"/plantuml.jar", int64(len(jarBytes)), sum(jarBytes))))

	filename := filepath.Join(t.TempDir(), "plantuml.jar")
	require.NoError(t, os.WriteFile(filename, []byte("garbage"), 0o644))

	require.NoError(t, d.Fetch(context.Background(), "1.0.0", filename))
	assert.Equal(t, int32(1), hits.Load())

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, jarBytes, data)
}

func TestFetchChecksumMismatchRemovesFile(t *testing.T) {
	srv, _ := newJarServer(t, jarBytes)
	d := New(WithResolver(resolverFor(srv.URL+"/plantuml.jar", int64(len(jarBytes)), sum([]byte("other")))))

	filename := filepath.Join(t.TempDir(), "plantuml.jar")
	err := d.Fetch(context.Background(), "1.0.0", filename)

	require.Error(t, err)
	assert.ErrorIs(t, err, plerrors.NewNetworkError(plerrors.ErrCodeChecksumMismatch, "", nil))
	assert.NoFileExists(t, filename)
}

func TestFetchSizeMismatchRemovesFile(t *testing.T) {
	srv, _ := newJarServer(t, jarBytes)
	d := New(WithResolver(resolverFor(srv.URL+"/plantuml.jar", 3, "")))

	filename := filepath.Join(t.TempDir(), "plantuml.jar")
	err := d.Fetch(context.Background(), "1.0.0", filename)

	require.Error(t, err)
	assert.ErrorIs(t, err, plerrors.NewNetworkError(plerrors.ErrCodeSizeMismatch, "", nil))
	assert.NoFileExists(t, filename)
}

func TestFetchHTTPError(t *testing.T) {
	srv, _ := newJarServer(t, jarBytes)
	d := New(WithResolver(resolverFor(srv.URL+"/missing.jar", 0, "")))

	filename := filepath.Join(t.TempDir(), "plantuml.jar")
	err := d.Fetch(context.Background(), "1.0.0", filename)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.NoFileExists(t, filename)
}

func TestEnsure(t *testing.T) {
	srv, _ := newJarServer(t, jarBytes)
	d := New(WithResolver(resolverFor(srv.URL+"/plantuml.jar", 0, "")))

	cacheDir := t.TempDir()
	path, err := d.Ensure(context.Background(), cacheDir, "1.2023.10")
	require.NoError(t, err)
	assert.Equal(t, JarPath(cacheDir, "1.2023.10"), path)
	assert.FileExists(t, path)
}

func TestEnsureRejectsBadInput(t *testing.T) {
	d := New()

	for _, version := range []string{"", "../1.0", "a/b"} {
		_, err := d.Ensure(context.Background(), t.TempDir(), version)
		require.Error(t, err, version)
		assert.True(t, plerrors.IsValidation(err))
	}

	_, err := d.Ensure(context.Background(), "cache/../../etc", "1.2022.0")
	require.Error(t, err)
	assert.True(t, plerrors.IsValidation(err))
}
