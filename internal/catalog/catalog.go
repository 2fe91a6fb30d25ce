// Package catalog holds the formats, signatures and priority relation that
// objects are identified against.
package catalog

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/ostafen/fido/internal/pattern"
	"github.com/ostafen/fido/pkg/table"
)

var ErrEmptyCatalog = errors.New("catalog contains no formats")

// CycleError reports formats whose priority declarations form a cycle.
type CycleError struct {
	PUIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("priority cycle among formats %s", strings.Join(e.PUIDs, ", "))
}

type Format struct {
	PUID       string
	Name       string
	MIME       string
	Version    string
	Alias      string
	PronomID   string
	AppleUTI   string
	Container  string
	Extensions []string
	Signatures []*Signature

	// PriorityOver holds the PUIDs this format dominates.
	PriorityOver map[string]struct{}
}

// Signature is a conjunction of patterns.
type Signature struct {
	Name     string
	Note     string
	Patterns []*pattern.Pattern

	head []byte
}

// NewSignature builds a signature and records the literal head of its
// first pattern that has one.
func NewSignature(name, note string, patterns ...*pattern.Pattern) *Signature {
	s := &Signature{Name: name, Note: note, Patterns: patterns}
	for _, p := range patterns {
		if head := p.LiteralHead(MaxHeadLen); len(head) > 0 {
			s.head = head
			break
		}
	}
	return s
}

// ExtensionSignature is reported for matches made by file extension.
var ExtensionSignature = &Signature{Name: "FILE EXTENSION"}

// Head returns the literal bytes every object matching s starts with,
// or nil when s has no such prefix.
func (s *Signature) Head() []byte {
	return s.head
}

// Catalog is immutable once built and safe for concurrent use.
type Catalog struct {
	formats []*Format
	order   []*Format
	byPUID  map[string]*Format
	byExt   map[string][]*Format
	heads   *table.PrefixTable[*Signature]
}

// MaxHeadLen bounds the literal prefix registered for each signature.
const MaxHeadLen = 8

// New builds a catalog over formats, in declaration order. Later formats
// replace earlier ones with the same PUID.
func New(formats []*Format) (*Catalog, error) {
	c := &Catalog{
		byPUID: make(map[string]*Format, len(formats)),
		byExt:  make(map[string][]*Format),
		heads:  table.New[*Signature](),
	}

	for _, f := range formats {
		if old, ok := c.byPUID[f.PUID]; ok {
			idx := slices.Index(c.formats, old)
			c.formats[idx] = f
		} else {
			c.formats = append(c.formats, f)
		}
		c.byPUID[f.PUID] = f
	}

	order, err := topoSort(c.formats, c.byPUID)
	if err != nil {
		return nil, err
	}
	c.order = order

	for _, f := range c.formats {
		for _, ext := range f.Extensions {
			c.byExt[ext] = append(c.byExt[ext], f)
		}
		for _, s := range f.Signatures {
			if len(s.head) > 0 {
				c.heads.Insert(s.head, s)
			}
		}
	}
	return c, nil
}

func (c *Catalog) Len() int {
	return len(c.formats)
}

// Formats returns the formats in declaration order.
func (c *Catalog) Formats() []*Format {
	return slices.Clone(c.formats)
}

// Iter yields the formats in a topological order of the priority
// relation: a format always comes before the formats it dominates.
// Formats with no ordering constraint between them come in PUID order.
func (c *Catalog) Iter() iter.Seq[*Format] {
	return func(yield func(*Format) bool) {
		for _, f := range c.order {
			if !yield(f) {
				return
			}
		}
	}
}

func (c *Catalog) Lookup(puid string) (*Format, bool) {
	f, ok := c.byPUID[puid]
	return f, ok
}

// HasPriorityOver reports whether a match of a suppresses a match of b.
func (c *Catalog) HasPriorityOver(a, b *Format) bool {
	_, ok := a.PriorityOver[b.PUID]
	return ok
}

// ByExtension returns the formats declaring ext, which must be lowercase
// and carry its leading dot.
func (c *Catalog) ByExtension(ext string) []*Format {
	return c.byExt[ext]
}

// Extend returns a catalog with the formats of overlay applied on top of c.
//
// An overlay format replaces the format with the same PUID, unless it has
// no signatures: in that case it is merged into the existing format, whose
// signatures are kept.
func (c *Catalog) Extend(overlay *Catalog) (*Catalog, error) {
	formats := slices.Clone(c.formats)
	byPUID := make(map[string]int, len(formats))
	for i, f := range formats {
		byPUID[f.PUID] = i
	}

	for _, f := range overlay.formats {
		idx, ok := byPUID[f.PUID]
		switch {
		case !ok:
			byPUID[f.PUID] = len(formats)
			formats = append(formats, f)
		case len(f.Signatures) == 0:
			formats[idx] = merge(formats[idx], f)
		default:
			formats[idx] = f
		}
	}
	return New(formats)
}

func merge(base, overlay *Format) *Format {
	f := *base

	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&f.Name, overlay.Name)
	pick(&f.MIME, overlay.MIME)
	pick(&f.Version, overlay.Version)
	pick(&f.Alias, overlay.Alias)
	pick(&f.PronomID, overlay.PronomID)
	pick(&f.AppleUTI, overlay.AppleUTI)
	pick(&f.Container, overlay.Container)

	f.Extensions = slices.Clone(base.Extensions)
	for _, ext := range overlay.Extensions {
		if !slices.Contains(f.Extensions, ext) {
			f.Extensions = append(f.Extensions, ext)
		}
	}

	f.PriorityOver = make(map[string]struct{}, len(base.PriorityOver)+len(overlay.PriorityOver))
	for puid := range base.PriorityOver {
		f.PriorityOver[puid] = struct{}{}
	}
	for puid := range overlay.PriorityOver {
		f.PriorityOver[puid] = struct{}{}
	}
	return &f
}

// Restrict returns a catalog limited to the include set, or to every
// format when include is empty, minus the exclude set.
func (c *Catalog) Restrict(include, exclude []string) *Catalog {
	keep := func(f *Format) bool {
		if len(include) > 0 && !slices.Contains(include, f.PUID) {
			return false
		}
		return !slices.Contains(exclude, f.PUID)
	}

	var formats []*Format
	for _, f := range c.formats {
		if keep(f) {
			formats = append(formats, f)
		}
	}

	// Removing formats cannot introduce a cycle.
	r, _ := New(formats)
	return r
}

// Candidates is the set of signatures whose literal head prefixes an
// object's head window.
type Candidates struct {
	allowed map[*Signature]struct{}
}

// Allows reports whether s may match. Signatures without a literal head
// are always allowed.
func (cs Candidates) Allows(s *Signature) bool {
	if len(s.head) == 0 {
		return true
	}
	_, ok := cs.allowed[s]
	return ok
}

func (cs Candidates) Len() int {
	return len(cs.allowed)
}

// Prefilter selects the signatures whose literal head prefixes bof.
func (c *Catalog) Prefilter(bof []byte) Candidates {
	cs := Candidates{allowed: make(map[*Signature]struct{})}
	c.heads.Walk(bof[:min(len(bof), MaxHeadLen)], func(s *Signature) bool {
		cs.allowed[s] = struct{}{}
		return false
	})
	return cs
}
