package renderer

import (
	plerrors "github.com/conneroisu/plantctl/internal/errors"
	"go.uber.org/multierr"
)

// ErrNoRenderer is returned by Select when no renderer is usable.
var ErrNoRenderer = plerrors.NewRenderError(plerrors.ErrCodeNoRenderer, "no usable renderer", nil)

// Candidate is a renderer together with the error that occurred while
// constructing or checking it. Either field may be nil.
type Candidate struct {
	Renderer Renderer
	Err      error
}

func (c Candidate) usable() bool {
	return c.Renderer != nil && c.Err == nil
}

// Select picks the renderer to use. An explicit preference for local or
// remote wins and surfaces that candidate's error; otherwise the local
// renderer is preferred when usable, then the remote one.
func Select(local, remote Candidate, useLocal, useRemote bool) (Renderer, error) {
	switch {
	case useLocal:
		return pick(local)
	case useRemote:
		return pick(remote)
	case local.usable():
		return local.Renderer, nil
	case remote.usable():
		return remote.Renderer, nil
	}

	return nil, multierr.Combine(ErrNoRenderer, local.Err, remote.Err)
}

func pick(c Candidate) (Renderer, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Renderer == nil {
		return nil, ErrNoRenderer
	}
	return c.Renderer, nil
}
