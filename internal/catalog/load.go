package catalog

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ostafen/fido/internal/pattern"
	"github.com/spf13/afero"
)

type xmlFormats struct {
	Formats []xmlFormat `xml:"format"`
}

type xmlFormat struct {
	PUID         string         `xml:"puid"`
	Name         string         `xml:"name"`
	MIME         string         `xml:"mime"`
	Version      string         `xml:"version"`
	Alias        string         `xml:"alias"`
	PronomID     string         `xml:"pronom_id"`
	AppleUTI     string         `xml:"apple_uid"`
	Container    string         `xml:"container"`
	Extensions   []string       `xml:"extension"`
	PriorityOver []string       `xml:"has_priority_over"`
	Signatures   []xmlSignature `xml:"signature"`
}

type xmlSignature struct {
	Name     string       `xml:"name"`
	Note     string       `xml:"note"`
	Patterns []xmlPattern `xml:"pattern"`
}

type xmlPattern struct {
	Position  string `xml:"position"`
	Offset    string `xml:"offset"`
	MaxOffset string `xml:"max_offset"`
	Expr      string `xml:"pronom_pattern"`
	Regex     string `xml:"regex"`
}

type loadConfig struct {
	logger *slog.Logger
	cache  *PatternCache
}

type LoadOption func(*loadConfig)

func WithLogger(logger *slog.Logger) LoadOption {
	return func(c *loadConfig) {
		c.logger = logger
	}
}

// WithCache shares a pattern cache across several loads.
func WithCache(cache *PatternCache) LoadOption {
	return func(c *loadConfig) {
		c.cache = cache
	}
}

// Load decodes a formats document and compiles its patterns.
//
// Formats without a PUID are dropped. A pattern that does not compile
// drops its whole signature.
func Load(r io.Reader, opts ...LoadOption) (*Catalog, error) {
	cfg := loadConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.cache == nil {
		cache, err := NewPatternCache(DefaultCacheSize)
		if err != nil {
			return nil, err
		}
		cfg.cache = cache
	}

	var doc xmlFormats
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode formats: %w", err)
	}

	formats := make([]*Format, 0, len(doc.Formats))
	for _, xf := range doc.Formats {
		puid := strings.TrimSpace(xf.PUID)
		if puid == "" {
			cfg.logger.Warn("dropping format without puid", "name", xf.Name)
			continue
		}

		f := &Format{
			PUID:         puid,
			Name:         strings.TrimSpace(xf.Name),
			MIME:         strings.TrimSpace(xf.MIME),
			Version:      strings.TrimSpace(xf.Version),
			Alias:        strings.TrimSpace(xf.Alias),
			PronomID:     strings.TrimSpace(xf.PronomID),
			AppleUTI:     strings.TrimSpace(xf.AppleUTI),
			Container:    strings.ToLower(strings.TrimSpace(xf.Container)),
			PriorityOver: make(map[string]struct{}, len(xf.PriorityOver)),
		}

		for _, ext := range xf.Extensions {
			if ext = NormalizeExtension(ext); ext != "" {
				f.Extensions = append(f.Extensions, ext)
			}
		}
		for _, p := range xf.PriorityOver {
			if p = strings.TrimSpace(p); p != "" {
				f.PriorityOver[p] = struct{}{}
			}
		}

		for _, xs := range xf.Signatures {
			sig, err := cfg.compileSignature(xs)
			if err != nil {
				cfg.logger.Warn("dropping signature", "puid", puid, "signature", xs.Name, "error", err)
				continue
			}
			f.Signatures = append(f.Signatures, sig)
		}
		formats = append(formats, f)
	}

	if len(formats) == 0 {
		return nil, ErrEmptyCatalog
	}
	return New(formats)
}

func (cfg *loadConfig) compileSignature(xs xmlSignature) (*Signature, error) {
	if len(xs.Patterns) == 0 {
		return nil, fmt.Errorf("signature has no patterns")
	}

	patterns := make([]*pattern.Pattern, 0, len(xs.Patterns))
	for _, xp := range xs.Patterns {
		anchor, err := pattern.ParseAnchor(xp.Position)
		if err != nil {
			return nil, err
		}

		offset, maxOffset, err := patternOffsets(xp, anchor)
		if err != nil {
			return nil, err
		}

		p, err := cfg.cache.Compile(strings.TrimSpace(xp.Expr), anchor, offset, maxOffset)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	return NewSignature(strings.TrimSpace(xs.Name), strings.TrimSpace(xs.Note), patterns...), nil
}

// patternOffsets reads the explicit offsets of xp. Catalogs generated by
// fido leave them out and encode them in the regex instead.
func patternOffsets(xp xmlPattern, anchor pattern.Anchor) (int, int, error) {
	if strings.TrimSpace(xp.Offset) == "" && strings.TrimSpace(xp.MaxOffset) == "" && strings.TrimSpace(xp.Regex) != "" {
		return regexOffsets(xp.Regex, xp.Expr, anchor)
	}

	offset, err := parseOffset(xp.Offset, 0)
	if err != nil {
		return 0, 0, err
	}

	maxOffset, err := parseOffset(xp.MaxOffset, pattern.NoMaxOffset)
	if err != nil {
		return 0, 0, err
	}
	return offset, maxOffset, nil
}

func parseOffset(s string, def int) (int, error) {
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

// NormalizeExtension lowercases ext and gives it a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// LoadFile loads the formats document at path on fs.
func LoadFile(fs afero.Fs, path string, opts ...LoadOption) (*Catalog, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Load(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
