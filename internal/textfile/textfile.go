// Package textfile loads diagram sources and writes rendered diagrams.
package textfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"github.com/conneroisu/plantctl/internal/validation"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF16LE = []byte{0xFF, 0xFE}
)

// LoadText reads the file at path as text. A non-empty encodingName (any
// WHATWG label such as "gbk" or "utf-16le") forces that encoding. Otherwise a
// byte order mark selects UTF-8 or UTF-16, valid UTF-8 is taken as is, and
// anything else is read as Windows-1252.
func LoadText(path, encodingName string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", readError(path, err)
	}

	return DecodeText(data, encodingName)
}

// DecodeText decodes data following the same rules as LoadText.
func DecodeText(data []byte, encodingName string) (string, error) {
	if encodingName != "" {
		enc, err := htmlindex.Get(encodingName)
		if err != nil {
			return "", plerrors.NewValidationError(plerrors.ErrCodeDecode,
				fmt.Sprintf("unknown text encoding %q", encodingName))
		}
		return decodeWith(enc, data)
	}

	if hasBOM(data) {
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return "", plerrors.NewValidationError(plerrors.ErrCodeDecode, "invalid text: "+err.Error())
		}
		return string(out), nil
	}

	if utf8.Valid(data) {
		return string(data), nil
	}

	return decodeWith(charmap.Windows1252, data)
}

func hasBOM(data []byte) bool {
	return bytes.HasPrefix(data, bomUTF8) ||
		bytes.HasPrefix(data, bomUTF16BE) ||
		bytes.HasPrefix(data, bomUTF16LE)
}

func decodeWith(enc encoding.Encoding, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", plerrors.NewValidationError(plerrors.ErrCodeDecode, "invalid text: "+err.Error())
	}
	return string(out), nil
}

func readError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return plerrors.NewIOError(plerrors.ErrCodeFileNotFound, "source file not found", err).WithPath(path)
	case errors.Is(err, fs.ErrPermission):
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "source file not readable", err).WithPath(path)
	default:
		return plerrors.NewIOError(plerrors.ErrCodeNotAFile, "failed to read source file", err).WithPath(path)
	}
}

// SaveBinary writes data to path atomically: the bytes go to a temporary file
// in the same directory which is then renamed over path. Missing parent
// directories are created.
func SaveBinary(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to create output directory", err).WithPath(dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to create temp file", err).WithPath(path)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to write output", err).WithPath(path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to write output", err).WithPath(path)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to set output mode", err).WithPath(path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return plerrors.NewIOError(plerrors.ErrCodePermissionDenied, "failed to move output into place", err).WithPath(path)
	}

	return nil
}

// CheckOutputs validates explicit output names against the sources. When
// outputs is non-empty it must hold exactly one name per source.
func CheckOutputs(sources, outputs []string) error {
	if len(outputs) == 0 {
		return nil
	}
	if len(outputs) != len(sources) {
		return plerrors.NewValidationError(plerrors.ErrCodeOutputMismatch,
			fmt.Sprintf("amount of output file(s) should be %d, but %d found", len(sources), len(outputs)))
	}
	for _, name := range outputs {
		if err := validation.ValidateOutputName(name); err != nil {
			return err
		}
	}
	return nil
}

// OutputPath returns where the rendering of sources[index] is written: the
// explicit output name at the same position when outputs is non-empty, else
// the source base name with its extension replaced by ext. The name is
// joined under outputDir, which defaults to the current directory.
func OutputPath(sources, outputs []string, index int, outputDir, ext string) string {
	if outputDir == "" {
		outputDir = "."
	}

	var name string
	if len(outputs) > 0 {
		name = outputs[index]
	} else {
		base := filepath.Base(sources[index])
		name = base[:len(base)-len(filepath.Ext(base))] + "." + ext
	}

	return filepath.Join(outputDir, name)
}
