//go:build rure

package pattern

import (
	"strings"

	"github.com/BurntSushi/rure-go"
)

// Builds tagged rure evaluate patterns with the Rust regex engine. Unicode
// mode is disabled so that \xHH and '.' address raw bytes.
func init() {
	externalEngine = func(expr string) (externalMatcher, error) {
		re, err := rure.Compile(strings.Replace(expr, "(?s)", "(?s-u)", 1))
		if err != nil {
			return nil, err
		}
		return re, nil
	}
}
