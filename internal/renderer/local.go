package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/logging"
)

// JarEnv names the environment variable holding the PlantUML jar path.
const JarEnv = "PLANTUML_JAR"

var parenthesized = regexp.MustCompile(`\([^()]*?\)`)

// FindJava looks up a java executable on $PATH. It returns "" when none is
// found.
func FindJava() string {
	path, err := exec.LookPath("java")
	if err != nil {
		return ""
	}
	return path
}

// Local renders diagrams by running `java -jar plantuml.jar`.
type Local struct {
	java   string
	jar    string
	logger logging.Logger
}

// NewLocal validates the java executable and jar file and returns a local
// renderer. A nil logger disables logging.
func NewLocal(java, jar string, logger logging.Logger) (*Local, error) {
	if err := checkLocal(java, jar); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Local{
		java:   java,
		jar:    jar,
		logger: logger.WithComponent("renderer.local"),
	}, nil
}

func checkLocal(java, jar string) error {
	if java == "" {
		return plerrors.NewValidationError(plerrors.ErrCodeFileNotFound, "java executable not given")
	}
	info, err := os.Stat(java)
	if err != nil {
		return plerrors.NewIOError(plerrors.ErrCodeFileNotFound, "java executable not found", err).WithPath(java)
	}
	if !info.Mode().IsRegular() {
		return plerrors.NewIOError(plerrors.ErrCodeNotAFile, "java executable is not a file", nil).WithPath(java)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "java executable not executable", nil).WithPath(java)
	}

	if jar == "" {
		return plerrors.NewValidationError(plerrors.ErrCodeFileNotFound, "plantuml jar file not given")
	}
	info, err = os.Stat(jar)
	if err != nil {
		return plerrors.NewIOError(plerrors.ErrCodeFileNotFound, "plantuml jar file not found", err).WithPath(jar)
	}
	if !info.Mode().IsRegular() {
		return plerrors.NewIOError(plerrors.ErrCodeNotAFile, "plantuml jar file is not a file", nil).WithPath(jar)
	}
	f, err := os.Open(jar)
	if err != nil {
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "plantuml jar file not readable", err).WithPath(jar)
	}
	_ = f.Close()

	return nil
}

// Kind implements Renderer.
func (l *Local) Kind() Kind {
	return KindLocal
}

// Java returns the java executable path.
func (l *Local) Java() string {
	return l.java
}

// Jar returns the PlantUML jar path.
func (l *Local) Jar() string {
	return l.jar
}

// Describe implements Renderer.
func (l *Local) Describe() map[string]string {
	return map[string]string{
		"java":     absOrSelf(l.java),
		"plantuml": absOrSelf(l.jar),
	}
}

func absOrSelf(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// execute runs java -jar <jar> args... and returns its stdout and stderr.
func (l *Local) execute(ctx context.Context, args ...string) (string, string, error) {
	argv := append([]string{"-jar", l.jar}, args...)
	cmd := exec.CommandContext(ctx, l.java, argv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	l.logger.Debug(ctx, "Running renderer", "args", argv)

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", "", fmt.Errorf("plantuml execution cancelled: %w", ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), &ExecError{
				Args:     append([]string{l.java}, argv...),
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return "", "", plerrors.NewRenderError(plerrors.ErrCodeExecFailed, "failed to start java", err)
	}

	return stdout.String(), stderr.String(), nil
}

// Version implements Renderer. It reports the first line of `-version`
// output with parenthesized parts removed.
func (l *Local) Version(ctx context.Context) (string, error) {
	stdout, _, err := l.execute(ctx, "-version")
	if err != nil {
		return "", err
	}

	var first string
	if lines := strings.Split(strings.TrimSpace(stdout), "\n"); len(lines) > 0 {
		first = strings.TrimSpace(lines[0])
	}
	version := strings.TrimSpace(parenthesized.ReplaceAllString(first, ""))

	if version == "" || !strings.Contains(strings.ToLower(version), "plantuml") {
		return "", plerrors.NewRenderError(plerrors.ErrCodeBadVersion,
			fmt.Sprintf("invalid version of plantuml - %q", version), nil)
	}

	return version, nil
}

// Check implements Renderer.
func (l *Local) Check(ctx context.Context) error {
	_, err := l.Version(ctx)
	return err
}

// Render implements Renderer. The source is written to a temporary file and
// the single file PlantUML produces is read back.
func (l *Local) Render(ctx context.Context, format Format, source string) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "puml")
	if err != nil {
		return nil, plerrors.NewIOError(plerrors.ErrCodeInternalError, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "source.puml")
	if err := os.WriteFile(input, []byte(source), 0o600); err != nil {
		return nil, plerrors.NewIOError(plerrors.ErrCodeInternalError, "failed to write source", err)
	}

	outDir := filepath.Join(workDir, "out")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, plerrors.NewIOError(plerrors.ErrCodeInternalError, "failed to create output directory", err)
	}

	if _, _, err := l.execute(ctx, "-t"+format.String(), "-o", outDir, input); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, plerrors.NewIOError(plerrors.ErrCodeInternalError, "failed to list output directory", err)
	}
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			return os.ReadFile(filepath.Join(outDir, entry.Name()))
		}
	}

	return nil, plerrors.NewRenderError(plerrors.ErrCodeNoOutput,
		fmt.Sprintf("no %s output produced", format), nil)
}

var _ Renderer = (*Local)(nil)
