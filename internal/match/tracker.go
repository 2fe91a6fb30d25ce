package match

import (
	"fmt"
	"sync/atomic"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/pattern"
)

// Tracker records the object and pattern being evaluated, so that an
// interrupted run can tell where it stopped. With several workers it
// reports the most recent one.
type Tracker struct {
	object    atomic.Pointer[string]
	format    atomic.Pointer[catalog.Format]
	signature atomic.Pointer[catalog.Signature]
	pattern   atomic.Pointer[pattern.Pattern]
}

func (t *Tracker) SetObject(name string) {
	t.object.Store(&name)
	t.enter(nil, nil, nil)
}

func (t *Tracker) enter(f *catalog.Format, s *catalog.Signature, p *pattern.Pattern) {
	t.format.Store(f)
	t.signature.Store(s)
	t.pattern.Store(p)
}

// Object returns the name of the object last entered, if any.
func (t *Tracker) Object() string {
	if name := t.object.Load(); name != nil {
		return *name
	}
	return ""
}

// Describe summarizes the current position as
// "<object> (pattern <puid>/<signature>: <expr>)".
func (t *Tracker) Describe() string {
	desc := t.Object()
	if desc == "" {
		desc = "<none>"
	}

	f, s, p := t.format.Load(), t.signature.Load(), t.pattern.Load()
	if f == nil || s == nil || p == nil {
		return desc
	}
	return fmt.Sprintf("%s (pattern %s/%s: %s)", desc, f.PUID, s.Name, p.Expr)
}
