package container

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// minConfidence is the chardet confidence below which a member name is
// decoded as CP437, the legacy zip code page.
const minConfidence = 50

// decodeName turns a raw member name into UTF-8. legacy is set for zip
// entries whose UTF-8 flag is clear.
func decodeName(raw string, legacy bool) string {
	if isASCII(raw) || (!legacy && utf8.ValidString(raw)) {
		return raw
	}

	if enc := detectEncoding([]byte(raw)); enc != nil {
		if s, err := enc.NewDecoder().String(raw); err == nil && utf8.ValidString(s) {
			return s
		}
	}

	s, err := charmap.CodePage437.NewDecoder().String(raw)
	if err != nil {
		return strings.ToValidUTF8(raw, string(utf8.RuneError))
	}
	return s
}

func detectEncoding(b []byte) encoding.Encoding {
	res, err := chardet.NewTextDetector().DetectBest(b)
	if err != nil || res.Confidence < minConfidence {
		return nil
	}

	enc, err := htmlindex.Get(res.Charset)
	if err != nil {
		return nil
	}
	return enc
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// baseName returns the last element of a display name, whose separators
// are '!' between containers and '/' or '\' inside them.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `!/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}

type suffixRule struct {
	suffix, replace string
}

var compressedSuffixes = map[Kind][]suffixRule{
	KindGzip:     {{".tgz", ".tar"}, {".gzip", ""}, {".gz", ""}},
	KindZstd:     {{".tzst", ".tar"}, {".zstd", ""}, {".zst", ""}},
	KindBzip2:    {{".tbz2", ".tar"}, {".tbz", ".tar"}, {".bz2", ""}, {".bz", ""}},
	KindXz:       {{".txz", ".tar"}, {".xz", ""}},
	KindLz4:      {{".lz4", ""}},
	KindBrotli:   {{".br", ""}},
	KindCompress: {{".taz", ".tar"}, {".z", ""}},
}

// compressedMemberName names the single member of a compressed stream.
// The name stored in the stream header wins; otherwise the compression
// suffix is removed from the outer name.
func compressedMemberName(outer string, kind Kind, stored string) string {
	if stored != "" {
		if name := baseName(decodeName(stored, false)); name != "" {
			return name
		}
	}

	base := baseName(outer)
	lower := strings.ToLower(base)
	for _, rule := range compressedSuffixes[kind] {
		if strings.HasSuffix(lower, rule.suffix) && len(base) > len(rule.suffix) {
			return base[:len(base)-len(rule.suffix)] + rule.replace
		}
	}
	return base
}
