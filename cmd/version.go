package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand(_ *app) *cobra.Command {
	var (
		format string
		short  bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Example: `  plantctl version
  plantctl version --short
  plantctl version --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version.GetShortVersion())
				return nil
			}

			info := version.GetBuildInfo()
			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			case "text":
				printVersion(out, info)
				return nil
			default:
				return plerrors.NewValidationError(plerrors.ErrCodeInvalidFormat,
					fmt.Sprintf("unsupported format %q (text, json)", format))
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json)")
	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version")

	return cmd
}

func printVersion(w io.Writer, info *version.BuildInfo) {
	fmt.Fprintf(w, "plantctl %s\n", info.Version)
	fmt.Fprintf(w, "  commit:   %s\n", info.GitCommit)
	if !info.BuildTime.IsZero() {
		fmt.Fprintf(w, "  built:    %s\n", info.BuildTime.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "  go:       %s\n", info.GoVersion)
	fmt.Fprintf(w, "  platform: %s\n", info.Platform)
	if info.Dirty {
		fmt.Fprintln(w, "  (modified working tree)")
	}
}
