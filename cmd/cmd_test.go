package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/conneroisu/plantctl/internal/download"
	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/logging"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serverHomepage = `<html><body><div id="footer">PlantUML version 1.2023.10 (GPL source distribution)</div></body></html>`

// plantumlServer renders "<format>:<source>" and answers 400 for sources
// containing "bad".
type plantumlServer struct {
	*httptest.Server
	renders atomic.Int32
}

func newPlantUMLServer(t *testing.T) *plantumlServer {
	t.Helper()

	s := &plantumlServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/plantuml")
		if path == "" || path == "/" {
			_, _ = w.Write([]byte(serverHomepage))
			return
		}

		parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		src, err := renderer.Decode(parts[1])
		if err != nil {
			http.Error(w, "bad encoding", http.StatusBadRequest)
			return
		}

		s.renders.Add(1)
		if strings.Contains(src, "bad") {
			http.Error(w, "Syntax Error?", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(parts[0] + ":" + src))
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *plantumlServer) host() string {
	return s.URL + "/plantuml"
}

// setupWorkdir isolates a test from the caller's config file and
// environment.
func setupWorkdir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)
	for _, env := range []string{"PLANTUML_JAR", "PLANTUML_HOST", "PLANTCTL_CONFIG_FILE", "PLANTCTL_CONCURRENCY", "PLANTCTL_POLICY"} {
		t.Setenv(env, "")
	}
	t.Setenv("PLANTUML_CACHE_DIR", filepath.Join(dir, "cache"))

	return dir
}

func writeSource(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()

	if a == nil {
		a = &app{v: viper.New(), logger: logging.NewNop()}
	}
	a.logOut = io.Discard

	var out bytes.Buffer
	root := newRootCommand(a)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRenderRemoteWritesInOrder(t *testing.T) {
	dir := setupWorkdir(t)
	srv := newPlantUMLServer(t)

	a := writeSource(t, dir, "a.puml", "@startuml\nA -> B\n@enduml")
	b := writeSource(t, dir, "b.puml", "@startuml\nB -> C\n@enduml")

	out, err := runCLI(t, nil, "render", "-R", "-r", srv.host(), "-t", "svg", "-O", "out", "-n", "2", a, b)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("out", "a.svg")+"\n"+filepath.Join("out", "b.svg")+"\n", out)

	data, err := os.ReadFile(filepath.Join(dir, "out", "a.svg"))
	require.NoError(t, err)
	assert.Equal(t, "svg:@startuml\nA -> B\n@enduml", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "out", "b.svg"))
	require.NoError(t, err)
	assert.Equal(t, "svg:@startuml\nB -> C\n@enduml", string(data))
}

func TestRenderExplicitOutputs(t *testing.T) {
	dir := setupWorkdir(t)
	srv := newPlantUMLServer(t)

	a := writeSource(t, dir, "a.puml", "one")
	b := writeSource(t, dir, "b.puml", "two")

	_, err := runCLI(t, nil, "render", "-R", "-r", srv.host(), "-o", "first.png", "-o", "second.png", a, b)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "second.png"))
	require.NoError(t, err)
	assert.Equal(t, "png:two", string(data))
}

func TestRenderOutputCountMismatch(t *testing.T) {
	dir := setupWorkdir(t)
	srv := newPlantUMLServer(t)

	a := writeSource(t, dir, "a.puml", "one")
	b := writeSource(t, dir, "b.puml", "two")

	_, err := runCLI(t, nil, "render", "-R", "-r", srv.host(), "-o", "only.png", a, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "amount of output file(s) should be 2, but 1 found")
	assert.Equal(t, 2, plerrors.ExitCode(err))
	assert.Zero(t, srv.renders.Load())
}

func TestRenderCollectAllReportsEveryFailure(t *testing.T) {
	dir := setupWorkdir(t)
	srv := newPlantUMLServer(t)

	a := writeSource(t, dir, "a.puml", "good one")
	bad := writeSource(t, dir, "bad.puml", "bad diagram")
	missing := filepath.Join(dir, "missing.puml")
	c := writeSource(t, dir, "c.puml", "good two")

	_, err := runCLI(t, nil, "render", "-R", "-r", srv.host(), "--policy", "collect-all", a, bad, missing, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad+":")
	assert.Contains(t, err.Error(), missing+":")

	assert.FileExists(t, filepath.Join(dir, "a.png"))
	assert.FileExists(t, filepath.Join(dir, "c.png"))
	assert.NoFileExists(t, filepath.Join(dir, "bad.png"))
}

func TestRenderFailFast(t *testing.T) {
	dir := setupWorkdir(t)
	srv := newPlantUMLServer(t)

	bad := writeSource(t, dir, "bad.puml", "bad diagram")

	_, err := runCLI(t, nil, "render", "-R", "-r", srv.host(), "-n", "1", bad)
	require.Error(t, err)

	var httpErr *renderer.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestTextPrintsEverySource(t *testing.T) {
	dir := setupWorkdir(t)
	srv := newPlantUMLServer(t)

	a := writeSource(t, dir, "a.puml", "A -> B")
	bad := writeSource(t, dir, "bad.puml", "bad")
	c := writeSource(t, dir, "c.puml", "C -> D")

	out, err := runCLI(t, nil, "text", "-R", "-r", srv.host(), a, bad, c)
	require.Error(t, err)
	assert.Equal(t, "[ERR_TEXT_GRAPH] 1 error(s) found when generating text graph.", err.Error())
	assert.Equal(t, 3, plerrors.ExitCode(err))

	want := a + ":\ntxt:A -> B\n" +
		bad + ":\nerror: server responded with status 400\nSyntax Error?\n" +
		c + ":\ntxt:C -> D\n"
	assert.Equal(t, want, out)
}

func TestURLUsesBatchOrder(t *testing.T) {
	dir := setupWorkdir(t)

	a := writeSource(t, dir, "a.puml", "A -> B")
	b := writeSource(t, dir, "b.puml", "B -> C")

	out, err := runCLI(t, nil, "url", "-r", "https://plantuml.example.com/plantuml/", "-t", "svg", a, b)
	require.NoError(t, err)

	want := "https://plantuml.example.com/plantuml/svg/" + renderer.Encode("A -> B") + "\n" +
		"https://plantuml.example.com/plantuml/svg/" + renderer.Encode("B -> C") + "\n"
	assert.Equal(t, want, out)

	out, err = runCLI(t, nil, "url", "-r", "https://plantuml.example.com/plantuml", "--homepage", a)
	require.NoError(t, err)
	assert.Equal(t, "https://plantuml.example.com/plantuml/uml/"+renderer.Encode("A -> B")+"\n", out)
}

func TestURLPrintsSuccessesAroundFailure(t *testing.T) {
	dir := setupWorkdir(t)
	host := "http://example.com/plantuml"

	a := writeSource(t, dir, "a.puml", "A -> B")
	missing := filepath.Join(dir, "missing.puml")
	c := writeSource(t, dir, "c.puml", "C -> D")

	out, err := runCLI(t, nil, "url", "-r", host, "-n", "1", a, missing, c)
	require.Error(t, err)
	assert.True(t, plerrors.IsType(err, plerrors.ErrorTypeIO))
	assert.Equal(t, host+"/png/"+renderer.Encode("A -> B")+"\n", out)

	out, err = runCLI(t, nil, "url", "-r", host, "-n", "2", "--policy", "collect-all", a, missing, c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing+":")
	assert.Equal(t, host+"/png/"+renderer.Encode("A -> B")+"\n"+
		host+"/png/"+renderer.Encode("C -> D")+"\n", out)
}

func TestURLRejectsUnknownType(t *testing.T) {
	setupWorkdir(t)

	_, err := runCLI(t, nil, "url", "-t", "gif", "a.puml")
	require.Error(t, err)
	assert.Equal(t, 2, plerrors.ExitCode(err))
}

func TestDecode(t *testing.T) {
	setupWorkdir(t)
	encoded := renderer.Encode("@startuml\nBob -> Alice : hello\n@enduml")

	out, err := runCLI(t, nil, "decode", encoded)
	require.NoError(t, err)
	assert.Equal(t, "@startuml\nBob -> Alice : hello\n@enduml\n", out)

	out, err = runCLI(t, nil, "decode", "http://www.plantuml.com/plantuml/png/"+encoded)
	require.NoError(t, err)
	assert.Contains(t, out, "Bob -> Alice")

	_, err = runCLI(t, nil, "decode", "!!!")
	require.Error(t, err)
}

func TestEncodedPart(t *testing.T) {
	assert.Equal(t, "abc", encodedPart("abc"))
	assert.Equal(t, "abc", encodedPart("http://host/plantuml/svg/abc?x=1"))
	assert.Equal(t, "abc", encodedPart(" svg/abc "))
}

func TestCheckRemoteJSON(t *testing.T) {
	setupWorkdir(t)
	srv := newPlantUMLServer(t)

	out, err := runCLI(t, nil, "check", "-R", "-r", srv.host(), "--format", "json")
	require.NoError(t, err)

	var report CheckReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Renderers, 1)
	assert.Equal(t, "Remote", report.Renderers[0].Name)
	assert.True(t, report.Renderers[0].Available)
	assert.Equal(t, "PlantUML version 1.2023.10 (GPL source distribution)", report.Renderers[0].Version)
	assert.Equal(t, srv.host(), report.Renderers[0].Details["host"])
}

func TestCheckLocalUnavailable(t *testing.T) {
	dir := setupWorkdir(t)

	out, err := runCLI(t, nil, "check", "-L", "-p", filepath.Join(dir, "missing.jar"))
	require.Error(t, err)
	assert.Equal(t, "[ERR_NO_RENDERER] Local plantuml is not usable.", err.Error())
	assert.Contains(t, out, "Local plantuml: unavailable")
}

func TestCheckYAML(t *testing.T) {
	setupWorkdir(t)
	srv := newPlantUMLServer(t)

	out, err := runCLI(t, nil, "check", "-R", "-r", srv.host(), "-f", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "name: Remote")
	assert.Contains(t, out, "available: true")
}

func TestRejectsBadConcurrency(t *testing.T) {
	setupWorkdir(t)

	for _, n := range []string{"0", "-3", "many"} {
		_, err := runCLI(t, nil, "url", "-n", n, "a.puml")
		require.Error(t, err, n)
		assert.True(t, plerrors.IsValidation(err), n)
		assert.Equal(t, 2, plerrors.ExitCode(err), n)
	}
}

func TestRejectsBothRenderers(t *testing.T) {
	setupWorkdir(t)

	_, err := runCLI(t, nil, "check", "-L", "-R")
	require.Error(t, err)
}

func TestConfigShowAndInit(t *testing.T) {
	dir := setupWorkdir(t)

	out, err := runCLI(t, nil, "config", "show", "-n", "3", "--policy", "collect-all")
	require.NoError(t, err)
	assert.Contains(t, out, "concurrency: 3")
	assert.Contains(t, out, "policy: collect-all")

	_, err = runCLI(t, nil, "-r", "https://plantuml.example.com", "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, ".plantctl.yml"))

	// The written file is picked up by the next run.
	out, err = runCLI(t, nil, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "remote_host: https://plantuml.example.com")

	_, err = runCLI(t, nil, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "use --force to overwrite")

	_, err = runCLI(t, nil, "config", "init", "--force")
	require.NoError(t, err)
}

func TestDownloadIntoCache(t *testing.T) {
	dir := setupWorkdir(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jar bytes"))
	}))
	t.Cleanup(srv.Close)

	a := &app{
		v:      viper.New(),
		logger: logging.NewNop(),
		downloadOpts: []download.Option{
			download.WithResolver(func(version string) download.Artifact {
				return download.Artifact{Version: version, URL: srv.URL + "/plantuml.jar"}
			}),
		},
	}

	cache := filepath.Join(dir, "jars-cache")
	out, err := runCLI(t, a, "download", "9.9.9", "--cache-dir", cache)
	require.NoError(t, err)

	want := download.JarPath(cache, "9.9.9")
	assert.Equal(t, want+"\n", out)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "jar bytes", string(data))
}

func TestDownloadList(t *testing.T) {
	setupWorkdir(t)

	out, err := runCLI(t, nil, "download", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, download.DefaultVersion)
}

func TestVersionCommand(t *testing.T) {
	setupWorkdir(t)

	out, err := runCLI(t, nil, "version", "--format", "json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	out, err = runCLI(t, nil, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "plantctl "))
}
