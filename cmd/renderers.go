package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/conneroisu/plantctl/internal/batch"
	"github.com/conneroisu/plantctl/internal/renderer"
	"go.uber.org/multierr"
	"golang.org/x/term"
)

// localCandidate builds the local renderer and, when check is set, verifies
// it answers -version.
func (a *app) localCandidate(ctx context.Context, check bool) renderer.Candidate {
	java := a.cfg.Java
	if java == "" {
		java = renderer.FindJava()
	}

	l, err := renderer.NewLocal(java, a.cfg.Jar, a.logger)
	if err != nil {
		return renderer.Candidate{Err: err}
	}
	if check {
		if err := l.Check(ctx); err != nil {
			return renderer.Candidate{Renderer: l, Err: err}
		}
	}
	return renderer.Candidate{Renderer: l}
}

func (a *app) remote() (*renderer.Remote, error) {
	host := a.cfg.RemoteHost
	if host == "" {
		host = renderer.DefaultHost
	}
	return renderer.NewRemote(host, renderer.WithLogger(a.logger))
}

func (a *app) remoteCandidate(ctx context.Context, check bool) renderer.Candidate {
	r, err := a.remote()
	if err != nil {
		return renderer.Candidate{Err: err}
	}
	if check {
		if err := r.Check(ctx); err != nil {
			return renderer.Candidate{Renderer: r, Err: err}
		}
	}
	return renderer.Candidate{Renderer: r}
}

// selectRenderer honours --use-local / --use-remote, otherwise prefers a
// working local jar and falls back to the server.
func (a *app) selectRenderer(ctx context.Context) (renderer.Renderer, error) {
	var local, remote renderer.Candidate

	if !a.cfg.UseRemote {
		local = a.localCandidate(ctx, !a.cfg.UseLocal)
	}
	if a.cfg.UseRemote || (!a.cfg.UseLocal && local.Err != nil) {
		remote = a.remoteCandidate(ctx, !a.cfg.UseRemote)
	}

	r, err := renderer.Select(local, remote, a.cfg.UseLocal, a.cfg.UseRemote)
	if err != nil {
		return nil, err
	}

	a.logger.Debug(ctx, "Renderer selected", "kind", r.Kind().String())
	return r, nil
}

// batchOptions returns engine options for the configured policy. Under
// collect-all every failure is reported with its source name.
func (a *app) batchOptions(sources []string) batch.Options {
	return batch.Options{
		Concurrency: a.cfg.Concurrency,
		Policy:      a.cfg.BatchPolicy(),
		Aggregate:   sourceFailures(sources),
		Logger:      a.logger,
	}
}

func sourceFailures(sources []string) batch.Aggregator {
	return func(failures []batch.Failure) error {
		var err error
		for _, f := range failures {
			err = multierr.Append(err, fmt.Errorf("%s: %w", sources[f.Index], f.Err))
		}
		return err
	}
}

const (
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorReset = "\033[0m"
)

// colorize wraps s in an ANSI colour when w is a terminal.
func colorize(w io.Writer, color, s string) string {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return s
	}
	return color + s + colorReset
}
