package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	plerrors "github.com/conneroisu/plantctl/internal/errors"
)

// ValidateOutputName checks an explicit output file name given with -o. Names
// are joined under the output directory, so they must be relative and must
// not climb out of it.
func ValidateOutputName(name string) error {
	if strings.TrimSpace(name) == "" {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidPath, "output name cannot be empty")
	}

	if strings.ContainsRune(name, 0) {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidPath, "output name contains a NUL byte")
	}

	cleanPath := filepath.Clean(name)
	if filepath.IsAbs(cleanPath) {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidPath,
			fmt.Sprintf("output name should be relative to the output directory: %s", name))
	}

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return plerrors.NewValidationError(plerrors.ErrCodeInvalidPath,
			fmt.Sprintf("output name escapes the output directory: %s", name))
	}

	return nil
}

// ValidateCacheDir rejects cache directories containing path traversal.
func ValidateCacheDir(dir string) error {
	if dir == "" {
		return nil
	}

	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return plerrors.NewValidationError(plerrors.ErrCodeInvalidPath,
				fmt.Sprintf("cache directory contains path traversal: %s", dir))
		}
	}

	return nil
}
