package renderer

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"io"
	"strings"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
)

// plantumlAlphabet is the standard base64 alphabet with A-Za-z0-9+/ moved to
// the positions of 0-9A-Za-z-_, as used in PlantUML server URLs.
const plantumlAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-_"

var plantumlEncoding = base64.NewEncoding(plantumlAlphabet)

// Encode compresses diagram source into the compact text form embedded in
// server URLs: raw deflate, then base64 over the PlantUML alphabet.
func Encode(source string) string {
	var buf bytes.Buffer
	// flate.NewWriter only fails for an invalid level.
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	// Writes to a bytes.Buffer cannot fail.
	_, _ = w.Write([]byte(source))
	_ = w.Close()

	return plantumlEncoding.EncodeToString(buf.Bytes())
}

// Decode reverses Encode. Padding is optional.
func Decode(encoded string) (string, error) {
	encoded = strings.TrimSpace(encoded)

	enc := plantumlEncoding
	if !strings.HasSuffix(encoded, "=") && len(encoded)%4 != 0 {
		enc = plantumlEncoding.WithPadding(base64.NoPadding)
	}

	compressed, err := enc.DecodeString(encoded)
	if err != nil {
		return "", plerrors.NewValidationError(plerrors.ErrCodeDecode, "invalid encoded diagram: "+err.Error())
	}

	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	source, err := io.ReadAll(r)
	if err != nil {
		return "", plerrors.NewValidationError(plerrors.ErrCodeDecode, "invalid compressed diagram: "+err.Error())
	}

	return string(source), nil
}
