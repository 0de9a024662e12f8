//go:build !cgo

package native

import (
	"context"

	"github.com/wippyai/spits"
	"github.com/wippyai/spits/errors"
)

// Library is unavailable without cgo.
type Library struct {
	path string
}

var _ spits.Library = (*Library)(nil)

// Open always fails: loading shared objects needs cgo.
func Open(path string) (*Library, error) {
	return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
		Library(path).
		Detail("native job binaries need cgo").
		Build()
}

func (l *Library) Path() string                       { return l.path }
func (l *Library) Lookup(string) (spits.Symbol, bool) { return nil, false }
func (l *Library) Close(context.Context) error        { return nil }

func (l *Library) Attach(context.Context) (spits.Unit, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native job binaries need cgo")
}
