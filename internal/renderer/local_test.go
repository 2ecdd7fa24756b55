package renderer

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeJava behaves like `java -jar plantuml.jar` for the flags the local
// renderer uses. Rendering copies the source into the output directory.
const fakeJava = `#!/bin/sh
shift 2
case "$1" in
-version)
	echo "PlantUML version 1.2023.10 (Sun Aug 21 00:00:00 UTC 2022)"
	echo "(GPL source distribution)"
	;;
-t*)
	fmt=${1#-t}
	cp "$4" "$3/source.$fmt"
	;;
esac
`

const brokenJava = `#!/bin/sh
echo "Error: Unable to access jarfile" >&2
exit 1
`

const silentJava = `#!/bin/sh
exit 0
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func newFakeLocal(t *testing.T, script string) *Local {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake java needs a POSIX shell")
	}

	dir := t.TempDir()
	java := writeScript(t, dir, "java", script)
	jar := filepath.Join(dir, "plantuml.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o644))

	l, err := NewLocal(java, jar, nil)
	require.NoError(t, err)
	return l
}

func TestNewLocalValidation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not meaningful on windows")
	}

	dir := t.TempDir()
	java := writeScript(t, dir, "java", fakeJava)
	jar := filepath.Join(dir, "plantuml.jar")
	require.NoError(t, os.WriteFile(jar, []byte("jar"), 0o644))
	notExec := filepath.Join(dir, "java-noexec")
	require.NoError(t, os.WriteFile(notExec, []byte("x"), 0o644))

	tests := []struct {
		name string
		java string
		jar  string
		code string
	}{
		{"java not given", "", jar, plerrors.ErrCodeFileNotFound},
		{"java missing", filepath.Join(dir, "nope"), jar, plerrors.ErrCodeFileNotFound},
		{"java is directory", dir, jar, plerrors.ErrCodeNotAFile},
		{"java not executable", notExec, jar, plerrors.ErrCodePermissionDenied},
		{"jar not given", java, "", plerrors.ErrCodeFileNotFound},
		{"jar missing", java, filepath.Join(dir, "missing.jar"), plerrors.ErrCodeFileNotFound},
		{"jar is directory", java, dir, plerrors.ErrCodeNotAFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLocal(tt.java, tt.jar, nil)
			require.Error(t, err)

			var pe *plerrors.PlantError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}

	l, err := NewLocal(java, jar, nil)
	require.NoError(t, err)
	assert.Equal(t, KindLocal, l.Kind())
	assert.Equal(t, java, l.Java())
	assert.Equal(t, jar, l.Jar())
	assert.Equal(t, java, l.Describe()["java"])
}

func TestLocalVersion(t *testing.T) {
	l := newFakeLocal(t, fakeJava)

	v, err := l.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PlantUML version 1.2023.10", v)
	assert.NoError(t, l.Check(context.Background()))
}

func TestLocalVersionRejectsOtherOutput(t *testing.T) {
	l := newFakeLocal(t, "#!/bin/sh\necho 'openjdk 17 (build 17+35)'\n")

	_, err := l.Version(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid version of plantuml")
}

func TestLocalRender(t *testing.T) {
	l := newFakeLocal(t, fakeJava)

	src := "@startuml\nA -> B\n@enduml\n"
	for _, format := range Formats() {
		data, err := l.Render(context.Background(), format, src)
		require.NoError(t, err, format.String())
		assert.Equal(t, src, string(data))
	}
}

func TestLocalRenderExecError(t *testing.T) {
	l := newFakeLocal(t, brokenJava)

	_, err := l.Render(context.Background(), FormatTXT, "@startuml\n@enduml")
	require.Error(t, err)

	var execErr *ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.ExitCode)
	assert.Contains(t, execErr.Stderr, "Unable to access jarfile")
	assert.Contains(t, execErr.Args, "-ttxt")
}

func TestLocalRenderNoOutput(t *testing.T) {
	l := newFakeLocal(t, silentJava)

	_, err := l.Render(context.Background(), FormatPNG, "@startuml\n@enduml")
	require.Error(t, err)
	assert.ErrorIs(t, err, plerrors.NewRenderError(plerrors.ErrCodeNoOutput, "", nil))
}

func TestLocalRenderCancelled(t *testing.T) {
	l := newFakeLocal(t, "#!/bin/sh\nsleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Render(ctx, FormatTXT, "@startuml\n@enduml")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
