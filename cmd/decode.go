package cmd

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/spf13/cobra"
)

func newDecodeCommand(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <encoded|url>",
		Short: "Print the PlantUML source held in an encoded string or server URL",
		Example: `  plantctl decode SoWkIImgAStDuNBAJrBGjLDmpCbCJbMmKiX8pSd9vt98pKi1IG80
  plantctl decode http://www.plantuml.com/plantuml/png/SoWkIImgAStDuNBAJrBGjLDmpCbCJbMmKiX8pSd9vt98pKi1IG80`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := renderer.Decode(encodedPart(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(source, "\n"))
			return nil
		},
	}
}

// encodedPart returns the last path segment of a URL, or s itself.
func encodedPart(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "/") {
		return s
	}
	if u, err := url.Parse(s); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(s)
}
