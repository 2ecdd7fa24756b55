package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/conneroisu/plantctl/internal/batch"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/conneroisu/plantctl/internal/textfile"
	"github.com/conneroisu/plantctl/internal/watcher"
	"github.com/spf13/cobra"
)

type renderOptions struct {
	format    string
	outputs   []string
	outputDir string
	watch     bool
	debounce  time.Duration
}

func newRenderCommand(a *app) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render [sources...]",
		Short: "Render PlantUML sources to files",
		Long: `Render each source to one output file. Files are written in the order the
sources were given, even though rendering runs concurrently.

Examples:
  plantctl render a.puml b.puml
  plantctl render -t svg -O out/ *.puml
  plantctl render -o first.png -o second.png a.puml b.puml
  plantctl render --watch diagrams/*.puml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRender(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "type", "t", "", "output type (txt, png, svg, eps, pdf)")
	cmd.Flags().StringArrayVarP(&opts.outputs, "output", "o", nil, "output file, once per source")
	cmd.Flags().StringVarP(&opts.outputDir, "output-dir", "O", "", "directory for output files")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "re-render sources when they change")
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 300*time.Millisecond, "delay for grouping file changes in watch mode")
	AddFlagValidation(cmd.Flags(), "type", ValidateFormat)

	return cmd
}

func (a *app) runRender(cmd *cobra.Command, sources []string, opts *renderOptions) error {
	if err := textfile.CheckOutputs(sources, opts.outputs); err != nil {
		return err
	}

	format := a.cfg.OutputFormat()
	if opts.format != "" {
		format, _ = renderer.ParseFormat(opts.format)
	}
	outputDir := a.cfg.OutputDir
	if opts.outputDir != "" {
		outputDir = opts.outputDir
	}

	ctx, cancel := a.context(cmd)
	defer cancel()

	r, err := a.selectRenderer(ctx)
	if err != nil {
		return err
	}

	job := &renderJob{
		app:       a,
		renderer:  r,
		format:    format,
		sources:   sources,
		outputs:   opts.outputs,
		outputDir: outputDir,
		out:       cmd.OutOrStdout(),
	}

	indices := make([]int, len(sources))
	for i := range indices {
		indices[i] = i
	}
	err = job.run(ctx, indices)
	if !opts.watch {
		return err
	}
	if err != nil {
		a.logger.Warn(ctx, err, "Initial render failed")
	}

	return job.watch(ctx, opts.debounce)
}

// renderJob renders a fixed list of sources. Indices refer to positions in
// sources so explicit output names stay paired with their source.
type renderJob struct {
	app       *app
	renderer  renderer.Renderer
	format    renderer.Format
	sources   []string
	outputs   []string
	outputDir string
	out       io.Writer
}

func (j *renderJob) run(ctx context.Context, indices []int) error {
	names := make([]string, len(indices))
	for k, i := range indices {
		names[k] = j.sources[i]
	}

	work := func(ctx context.Context, _ int, i int) ([]byte, error) {
		src, err := textfile.LoadText(j.sources[i], j.app.cfg.Encoding)
		if err != nil {
			return nil, err
		}
		return j.renderer.Render(ctx, j.format, src)
	}

	deliver := func(_ int, i int, data []byte) error {
		path := textfile.OutputPath(j.sources, j.outputs, i, j.outputDir, j.format.String())
		if err := textfile.SaveBinary(path, data); err != nil {
			return err
		}
		fmt.Fprintln(j.out, path)
		return nil
	}

	return batch.Run(ctx, indices, work, deliver, j.app.batchOptions(names))
}

func (j *renderJob) watch(ctx context.Context, debounce time.Duration) error {
	w, err := watcher.New(debounce, j.app.logger)
	if err != nil {
		return err
	}
	defer w.Close()

	byPath := make(map[string][]int, len(j.sources))
	for i, src := range j.sources {
		abs, err := filepath.Abs(src)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", src, err)
		}
		if err := w.AddPath(abs); err != nil {
			return err
		}
		byPath[abs] = append(byPath[abs], i)
	}

	j.app.logger.Info(ctx, "Watching for changes", "sources", len(j.sources))

	return w.Run(ctx, func(ctx context.Context, paths []string) error {
		var indices []int
		for _, p := range paths {
			indices = append(indices, byPath[p]...)
		}
		if len(indices) == 0 {
			return nil
		}
		return j.run(ctx, indices)
	})
}
