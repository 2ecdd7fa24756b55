package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/conneroisu/plantctl/internal/batch"
	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/conneroisu/plantctl/internal/textfile"
	"github.com/spf13/cobra"
)

// textResult carries a rendering or its failure so that every source is
// printed, including the ones that failed.
type textResult struct {
	text string
	err  error
}

func newTextCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "text [sources...]",
		Short: "Print the ASCII rendering of PlantUML sources",
		Long: `Print the text rendering of each source, in the order given. Sources that
fail are reported in place and counted; the command fails if any did.

Examples:
  plantctl text sequence.puml
  plantctl text -R a.puml b.puml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runText(cmd, args)
		},
	}
}

func (a *app) runText(cmd *cobra.Command, sources []string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	r, err := a.selectRenderer(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0

	work := func(ctx context.Context, _ int, source string) (textResult, error) {
		src, err := textfile.LoadText(source, a.cfg.Encoding)
		if err != nil {
			return textResult{err: err}, nil
		}
		text, err := r.Render(ctx, renderer.FormatTXT, src)
		return textResult{text: string(text), err: err}, nil
	}

	deliver := func(_ int, source string, res textResult) error {
		fmt.Fprintf(out, "%s:\n", source)
		if res.err != nil {
			failed++
			printTextFailure(out, res.err)
			return nil
		}
		fmt.Fprintln(out, strings.TrimRight(res.text, "\n"))
		return nil
	}

	if err := batch.Run(ctx, sources, work, deliver, a.batchOptions(sources)); err != nil {
		return err
	}

	if failed > 0 {
		return plerrors.NewRenderError(plerrors.ErrCodeTextGraph,
			fmt.Sprintf("%d error(s) found when generating text graph.", failed), nil)
	}
	return nil
}

func printTextFailure(w io.Writer, err error) {
	var execErr *renderer.ExecError
	var httpErr *renderer.HTTPError

	switch {
	case errors.As(err, &execErr):
		fmt.Fprintln(w, colorize(w, colorRed, fmt.Sprintf("error: plantuml exited with code %d", execErr.ExitCode)))
		if stderr := strings.TrimSpace(execErr.Stderr); stderr != "" {
			fmt.Fprintln(w, stderr)
		}
	case errors.As(err, &httpErr):
		fmt.Fprintln(w, colorize(w, colorRed, fmt.Sprintf("error: server responded with status %d", httpErr.StatusCode)))
		if body := strings.TrimSpace(string(httpErr.Body)); body != "" {
			fmt.Fprintln(w, body)
		}
	default:
		fmt.Fprintln(w, colorize(w, colorRed, "error: "+err.Error()))
	}
}
