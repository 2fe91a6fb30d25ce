package container

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/ostafen/fido/internal/pattern"
	"github.com/ostafen/fido/internal/window"
	"github.com/richardlehane/mscfb"
	"github.com/spf13/afero"
)

const (
	TypeZip  = "ZIP"
	TypeOLE2 = "OLE2"
)

// DefaultSignatureBufSize is the window size used to read the members a
// container signature inspects.
const DefaultSignatureBufSize = 512 << 10

type xmlMapping struct {
	Signatures []xmlContainerSignature `xml:"ContainerSignatures>ContainerSignature"`
	Mappings   []xmlFormatMapping      `xml:"FileFormatMappings>FileFormatMapping"`
}

type xmlContainerSignature struct {
	ID          int       `xml:"Id,attr"`
	Type        string    `xml:"ContainerType,attr"`
	Description string    `xml:"Description"`
	Files       []xmlFile `xml:"Files>File"`
}

type xmlFile struct {
	Path     string                 `xml:"Path"`
	Internal []xmlInternalSignature `xml:"BinarySignatures>InternalSignatureCollection>InternalSignature"`
}

type xmlInternalSignature struct {
	ByteSequences []xmlByteSequence `xml:"ByteSequence"`
}

type xmlByteSequence struct {
	Reference    string           `xml:"Reference,attr"`
	SubSequences []xmlSubSequence `xml:"SubSequence"`
}

type xmlSubSequence struct {
	MinOffset string `xml:"SubSeqMinOffset,attr"`
	MaxOffset string `xml:"SubSeqMaxOffset,attr"`
	Sequence  string `xml:"Sequence"`
}

type xmlFormatMapping struct {
	SignatureID int    `xml:"signatureId,attr"`
	PUID        string `xml:"Puid,attr"`
}

// Signature identifies a compound document by the members it contains.
type Signature struct {
	ID          int
	Type        string
	Description string
	Files       []FileRule
	PUIDs       []string
}

// FileRule requires a member at Path. When Internal is not empty, at
// least one of its entries must match the member content; an entry
// matches when all of its patterns do.
type FileRule struct {
	Path     string
	Internal [][]*pattern.Pattern
}

type Signatures struct {
	byType  map[string][]*Signature
	bufsize int
	logger  *slog.Logger
}

type SignatureOption func(*Signatures)

// WithSignatureBufSize sets the window size used to read members.
func WithSignatureBufSize(n int) SignatureOption {
	return func(s *Signatures) {
		if n > 0 {
			s.bufsize = n
		}
	}
}

func WithSignatureLogger(logger *slog.Logger) SignatureOption {
	return func(s *Signatures) {
		s.logger = logger
	}
}

// LoadSignatures decodes a container signature mapping document.
// Signatures without a mapped PUID, of an unknown container type, or
// with a sequence that does not compile are dropped.
func LoadSignatures(r io.Reader, opts ...SignatureOption) (*Signatures, error) {
	s := &Signatures{
		byType:  make(map[string][]*Signature),
		bufsize: DefaultSignatureBufSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	var doc xmlMapping
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode container signatures: %w", err)
	}

	puids := make(map[int][]string)
	for _, m := range doc.Mappings {
		if puid := strings.TrimSpace(m.PUID); puid != "" {
			puids[m.SignatureID] = append(puids[m.SignatureID], puid)
		}
	}

	for _, xs := range doc.Signatures {
		typ := strings.ToUpper(strings.TrimSpace(xs.Type))
		if typ != TypeZip && typ != TypeOLE2 {
			s.logger.Debug("skipping container signature", "id", xs.ID, "type", xs.Type)
			continue
		}
		if len(puids[xs.ID]) == 0 {
			continue
		}

		sig, err := compileContainerSignature(xs)
		if err != nil {
			s.logger.Warn("dropping container signature", "id", xs.ID, "error", err)
			continue
		}
		sig.Type = typ
		sig.PUIDs = puids[xs.ID]
		s.byType[typ] = append(s.byType[typ], sig)
	}
	return s, nil
}

// LoadSignaturesFile loads the container signature file at path on fs.
func LoadSignaturesFile(fs afero.Fs, path string, opts ...SignatureOption) (*Signatures, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := LoadSignatures(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func compileContainerSignature(xs xmlContainerSignature) (*Signature, error) {
	sig := &Signature{ID: xs.ID, Description: strings.TrimSpace(xs.Description)}

	for _, xf := range xs.Files {
		rule := FileRule{Path: strings.TrimSpace(xf.Path)}
		if rule.Path == "" {
			return nil, errors.New("file rule without path")
		}

		for _, xi := range xf.Internal {
			var patterns []*pattern.Pattern
			for _, bs := range xi.ByteSequences {
				anchor := referenceAnchor(bs.Reference)
				for _, sub := range bs.SubSequences {
					p, err := compileSubSequence(anchor, sub)
					if err != nil {
						return nil, err
					}
					patterns = append(patterns, p)
				}
			}
			if len(patterns) > 0 {
				rule.Internal = append(rule.Internal, patterns)
			}
		}
		sig.Files = append(sig.Files, rule)
	}

	if len(sig.Files) == 0 {
		return nil, errors.New("signature without file rules")
	}
	return sig, nil
}

func referenceAnchor(ref string) pattern.Anchor {
	switch strings.TrimSpace(ref) {
	case "BOFoffset":
		return pattern.BOF
	case "EOFoffset":
		return pattern.EOF
	}
	return pattern.VAR
}

// compileSubSequence compiles one sub-sequence. A missing maximum offset
// pins an anchored sequence at its minimum offset.
func compileSubSequence(anchor pattern.Anchor, sub xmlSubSequence) (*pattern.Pattern, error) {
	offset, err := attrInt(sub.MinOffset, 0)
	if err != nil {
		return nil, err
	}

	maxOffset := pattern.NoMaxOffset
	if anchor != pattern.VAR {
		if maxOffset, err = attrInt(sub.MaxOffset, offset); err != nil {
			return nil, err
		}
		if maxOffset < offset {
			maxOffset = offset
		}
	}
	return pattern.Compile(strings.TrimSpace(sub.Sequence), anchor, offset, maxOffset)
}

func attrInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", pattern.ErrInvalidOffset, s)
	}
	return n, nil
}

// Len returns the number of loaded signatures of the given container type.
func (s *Signatures) Len(typ string) int {
	return len(s.byType[typ])
}

// memberSet gives access to the members of an opened container by path.
type memberSet interface {
	has(path string) bool
	window(ctx context.Context, path string) (*window.Window, error)
}

// match returns the PUIDs of every signature of typ accepted by members,
// in signature order and without duplicates.
func (s *Signatures) match(ctx context.Context, typ string, members memberSet) ([]string, error) {
	seen := make(map[string]bool)

	var puids []string
	for _, sig := range s.byType[typ] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := s.matchSignature(ctx, sig, members)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		for _, puid := range sig.PUIDs {
			if !seen[puid] {
				seen[puid] = true
				puids = append(puids, puid)
			}
		}
	}
	return puids, nil
}

func (s *Signatures) matchSignature(ctx context.Context, sig *Signature, members memberSet) (bool, error) {
	for _, rule := range sig.Files {
		if !members.has(rule.Path) {
			return false, nil
		}
		if len(rule.Internal) == 0 {
			continue
		}

		w, err := members.window(ctx, rule.Path)
		if err != nil {
			return false, err
		}
		if !s.matchInternal(sig, w, rule.Internal) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Signatures) matchInternal(sig *Signature, w *window.Window, internal [][]*pattern.Pattern) bool {
	for _, patterns := range internal {
		if matchAll(w, patterns, func(p *pattern.Pattern, err error) {
			s.logger.Warn("container pattern evaluation failed", "id", sig.ID, "pattern", p.String(), "error", err)
		}) {
			return true
		}
	}
	return false
}

func matchAll(w *window.Window, patterns []*pattern.Pattern, onError func(*pattern.Pattern, error)) bool {
	for _, p := range patterns {
		ok, err := p.Match(w)
		if err != nil {
			onError(p, err)
			return false
		}
		if !ok {
			return false
		}
	}
	return true
}

// windowCache reads each member window at most once per container.
type windowCache struct {
	windows map[string]*window.Window
}

func (c *windowCache) get(path string, read func() (*window.Window, error)) (*window.Window, error) {
	if w, ok := c.windows[path]; ok {
		return w, nil
	}

	w, err := read()
	if err != nil {
		return nil, err
	}
	if c.windows == nil {
		c.windows = make(map[string]*window.Window)
	}
	c.windows[path] = w
	return w, nil
}

func (c *windowCache) close() {
	for _, w := range c.windows {
		w.Close()
	}
}

type zipMembers struct {
	files  map[string]*zip.File
	reader *window.Reader
	cache  windowCache
}

func (z *zipMembers) has(path string) bool {
	_, ok := z.files[path]
	return ok
}

func (z *zipMembers) window(ctx context.Context, path string) (*window.Window, error) {
	return z.cache.get(path, func() (*window.Window, error) {
		f := z.files[path]

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		return z.reader.ReadStream(ctx, path, rc, int64(f.UncompressedSize64))
	})
}

// MatchZip returns the PUIDs of the ZIP container signatures accepted by
// the zip archive in ra.
func (s *Signatures) MatchZip(ctx context.Context, ra io.ReaderAt, size int64) ([]string, error) {
	if s.Len(TypeZip) == 0 {
		return nil, nil
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, err
	}

	members := &zipMembers{
		files:  make(map[string]*zip.File, len(zr.File)),
		reader: window.NewReader(s.bufsize),
	}
	defer members.cache.close()

	for _, f := range zr.File {
		if _, dup := members.files[f.Name]; !dup {
			members.files[f.Name] = f
		}
	}
	return s.match(ctx, TypeZip, members)
}

type oleMembers struct {
	paths   map[string]bool
	windows map[string]*window.Window
}

func (o *oleMembers) has(path string) bool {
	return o.paths[olePath(path)]
}

func (o *oleMembers) window(_ context.Context, path string) (*window.Window, error) {
	if w, ok := o.windows[olePath(path)]; ok {
		return w, nil
	}
	return window.New(path, nil, nil, 0), nil
}

// olePath normalizes a stream path. Stream names may start with a
// control character that signature files omit.
func olePath(p string) string {
	p = strings.TrimPrefix(p, "Root Entry/")
	if p != "" && p[0] < 0x20 {
		p = p[1:]
	}
	return p
}

func (s *Signatures) olePaths() map[string]bool {
	paths := make(map[string]bool)
	for _, sig := range s.byType[TypeOLE2] {
		for _, rule := range sig.Files {
			if len(rule.Internal) > 0 {
				paths[olePath(rule.Path)] = true
			}
		}
	}
	return paths
}

// MatchOLE2 returns the PUIDs of the OLE2 container signatures accepted
// by the compound file in ra.
func (s *Signatures) MatchOLE2(ctx context.Context, ra io.ReaderAt) ([]string, error) {
	if s.Len(TypeOLE2) == 0 {
		return nil, nil
	}

	doc, err := mscfb.New(ra)
	if err != nil {
		return nil, err
	}

	var (
		wanted  = s.olePaths()
		reader  = window.NewReader(s.bufsize)
		members = &oleMembers{paths: make(map[string]bool), windows: make(map[string]*window.Window)}
	)
	defer func() {
		for _, w := range members.windows {
			w.Close()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, err := doc.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		path := olePath(strings.Join(append(append([]string(nil), entry.Path...), entry.Name), "/"))
		members.paths[path] = true

		if wanted[path] && members.windows[path] == nil {
			w, err := reader.ReadStream(ctx, path, entry, entry.Size)
			if err != nil {
				return nil, err
			}
			members.windows[path] = w
		}
	}
	return s.match(ctx, TypeOLE2, members)
}
