// Package renderer turns PlantUML source into diagrams, either by running
// the PlantUML jar locally or by asking a PlantUML server over HTTP.
package renderer

import (
	"context"
	"fmt"
	"strings"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
)

// Kind identifies where a renderer does its work.
type Kind int

const (
	KindLocal Kind = iota + 1
	KindRemote
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Format is an output resource type.
type Format int

const (
	FormatTXT Format = iota + 1
	FormatPNG
	FormatSVG
	FormatEPS
	FormatPDF
)

var formatNames = map[Format]string{
	FormatTXT: "txt",
	FormatPNG: "png",
	FormatSVG: "svg",
	FormatEPS: "eps",
	FormatPDF: "pdf",
}

// Formats lists every supported format in declaration order.
func Formats() []Format {
	return []Format{FormatTXT, FormatPNG, FormatSVG, FormatEPS, FormatPDF}
}

// FormatNames lists the lower-case names of every format.
func FormatNames() []string {
	names := make([]string, 0, len(formatNames))
	for _, f := range Formats() {
		names = append(names, f.String())
	}
	return names
}

// String returns the lower-case name used in URLs, -t flags and file
// extensions.
func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat parses a format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for f, name := range formatNames {
		if name == want {
			return f, nil
		}
	}
	return 0, plerrors.NewValidationError(plerrors.ErrCodeInvalidFormat,
		fmt.Sprintf("unknown resource type %q (%s)", s, strings.Join(FormatNames(), ", ")))
}

// Renderer renders diagram source into a given format.
type Renderer interface {
	Kind() Kind
	// Version reports the renderer's version string.
	Version(ctx context.Context) (string, error)
	// Check returns an error when the renderer is not usable.
	Check(ctx context.Context) error
	Render(ctx context.Context, format Format, source string) ([]byte, error)
	// Describe returns display properties such as paths or host.
	Describe() map[string]string
}
