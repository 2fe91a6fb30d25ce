package match

import (
	"strings"

	"github.com/ostafen/fido/internal/catalog"
)

// MatchExtension identifies an object by the extension of its name. The
// last path component is taken after any '/', '\' or '!' separator.
func (m *Matcher) MatchExtension(name string) []Match {
	for _, ext := range m.suffixes(baseName(name)) {
		formats := m.cat.ByExtension(ext)
		if len(formats) == 0 {
			continue
		}

		res := make([]Match, len(formats))
		for i, f := range formats {
			res[i] = Match{Format: f, Signature: catalog.ExtensionSignature}
		}
		return m.Prune(res)
	}
	return nil
}

func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\!`); i >= 0 {
		return name[i+1:]
	}
	return name
}

// suffixes lists the candidate extensions of base, longest first. A
// leading dot does not start an extension.
func (m *Matcher) suffixes(base string) []string {
	base = strings.ToLower(base)

	if m.suffixMode == SuffixLast {
		if i := strings.LastIndexByte(base, '.'); i > 0 && i < len(base)-1 {
			return []string{base[i:]}
		}
		return nil
	}

	var out []string
	for i := 1; i < len(base)-1; i++ {
		if base[i] == '.' {
			out = append(out, base[i:])
		}
	}
	return out
}
