package cmd

import (
	"context"
	"fmt"

	"github.com/conneroisu/plantctl/internal/batch"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/conneroisu/plantctl/internal/textfile"
	"github.com/spf13/cobra"
)

func newURLCommand(a *app) *cobra.Command {
	var (
		format   string
		homepage bool
	)

	cmd := &cobra.Command{
		Use:   "url [sources...]",
		Short: "Print PlantUML server URLs for sources",
		Long: `Print one server URL per source, in the order given. Nothing is sent to the
server; the source is encoded into the URL.

Examples:
  plantctl url flow.puml
  plantctl url -t svg -r https://plantuml.example.com/ a.puml b.puml
  plantctl url --homepage flow.puml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.remote()
			if err != nil {
				return err
			}

			f := a.cfg.OutputFormat()
			if format != "" {
				f, _ = renderer.ParseFormat(format)
			}

			ctx, cancel := a.context(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			work := func(_ context.Context, _ int, source string) (string, error) {
				src, err := textfile.LoadText(source, a.cfg.Encoding)
				if err != nil {
					return "", err
				}
				if homepage {
					return r.HomepageURL(src), nil
				}
				return r.URL(f, src), nil
			}
			deliver := func(_ int, _ string, u string) error {
				_, err := fmt.Fprintln(out, u)
				return err
			}

			return batch.Run(ctx, args, work, deliver, a.batchOptions(args))
		},
	}

	cmd.Flags().StringVarP(&format, "type", "t", "", "output type (txt, png, svg, eps, pdf)")
	cmd.Flags().BoolVar(&homepage, "homepage", false, "print the server's editor page instead of a rendering URL")
	AddFlagValidation(cmd.Flags(), "type", ValidateFormat)

	return cmd
}
