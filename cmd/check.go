package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/conneroisu/plantctl/internal/batch"
	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/renderer"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

// RendererStatus is one line of the check report.
type RendererStatus struct {
	Name      string            `json:"name" yaml:"name"`
	Available bool              `json:"available" yaml:"available"`
	Version   string            `json:"version,omitempty" yaml:"version,omitempty"`
	Details   map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
	Error     string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// CheckReport lists the renderers that were checked.
type CheckReport struct {
	Renderers []RendererStatus `json:"renderers" yaml:"renderers"`
}

func newCheckCommand(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report which renderers are usable",
		Long: `Check the local jar and the PlantUML server and print their versions.
With --use-local or --use-remote only that renderer is checked.

Examples:
  plantctl check
  plantctl check -L -p ~/bin/plantuml.jar
  plantctl check --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runCheck(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, yaml)")
	AddFlagValidation(cmd.Flags(), "format", validateReportFormat)

	return cmd
}

func validateReportFormat(s string) error {
	switch s {
	case "text", "json", "yaml":
		return nil
	}
	return plerrors.NewValidationError(plerrors.ErrCodeInvalidFormat,
		fmt.Sprintf("unsupported format %q (text, json, yaml)", s))
}

func (a *app) runCheck(cmd *cobra.Command, format string) error {
	ctx, cancel := a.context(cmd)
	defer cancel()

	var kinds []renderer.Kind
	if !a.cfg.UseRemote {
		kinds = append(kinds, renderer.KindLocal)
	}
	if !a.cfg.UseLocal {
		kinds = append(kinds, renderer.KindRemote)
	}

	statuses, err := batch.Map(ctx, kinds, func(ctx context.Context, _ int, kind renderer.Kind) (RendererStatus, error) {
		return a.rendererStatus(ctx, kind), nil
	}, batch.Options{Concurrency: len(kinds), Logger: a.logger})
	if err != nil {
		return err
	}
	report := CheckReport{Renderers: statuses}

	out := cmd.OutOrStdout()
	if err := writeReport(out, report, format); err != nil {
		return err
	}

	for _, s := range statuses {
		if s.Available {
			return nil
		}
	}

	msg := "Neither local nor remote plantuml is found."
	if len(statuses) == 1 {
		msg = fmt.Sprintf("%s plantuml is not usable.", statuses[0].Name)
	}
	return plerrors.NewRenderError(plerrors.ErrCodeNoRenderer, msg, nil)
}

func (a *app) rendererStatus(ctx context.Context, kind renderer.Kind) RendererStatus {
	var c renderer.Candidate
	if kind == renderer.KindLocal {
		c = a.localCandidate(ctx, false)
	} else {
		c = a.remoteCandidate(ctx, false)
	}

	status := RendererStatus{Name: cases.Title(language.English).String(kind.String())}
	if c.Renderer != nil {
		status.Details = c.Renderer.Describe()
	}
	if c.Err != nil {
		status.Error = c.Err.Error()
		return status
	}

	v, err := c.Renderer.Version(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Available = true
	status.Version = v
	return status
}

func writeReport(w io.Writer, report CheckReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(report)
	}

	for _, s := range report.Renderers {
		if s.Available {
			fmt.Fprintf(w, "%s plantuml: %s\n", s.Name, colorize(w, colorGreen, s.Version))
		} else {
			fmt.Fprintf(w, "%s plantuml: %s\n", s.Name, colorize(w, colorRed, "unavailable"))
		}

		keys := make([]string, 0, len(s.Details))
		for k := range s.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, s.Details[k])
		}
		if s.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", s.Error)
		}
	}
	return nil
}
