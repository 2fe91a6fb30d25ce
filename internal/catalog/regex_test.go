package catalog

import (
	"testing"

	"github.com/ostafen/fido/internal/pattern"
	"github.com/stretchr/testify/require"
)

func TestRegexOffsets(t *testing.T) {
	tests := []struct {
		regex     string
		expr      string
		anchor    pattern.Anchor
		offset    int
		maxOffset int
	}{
		{`(?s)\A\x41\x42`, "4142", pattern.BOF, 0, pattern.NoMaxOffset},
		{`(?s)\A.{8}ABCD`, "41424344", pattern.BOF, 8, pattern.NoMaxOffset},
		{`(?s)\A.{0,1024}%PDF`, "25504446", pattern.BOF, 0, 1024},
		{`(?s)\A.{4,16}AB`, "4142", pattern.BOF, 4, 16},
		{`(?s)\A.{65535,65535}.{4465,14465}AB`, "4142", pattern.BOF, 70000, 80000},
		{`(?s)\A.{2}.{4}AB`, "{4}4142", pattern.BOF, 2, pattern.NoMaxOffset},
		{`(?s)%%EOF.{0,1024}\Z`, "2525454F46", pattern.EOF, 0, 1024},
		{`(?s)AB.{3}\z`, "4142", pattern.EOF, 3, pattern.NoMaxOffset},
		{`(?s)AB\Z`, "4142", pattern.EOF, 0, pattern.NoMaxOffset},
		{`(?s)A.{2}B.{5}\Z`, "41{2}42", pattern.EOF, 5, pattern.NoMaxOffset},
		{`(?s)\.{3}\Z`, "2E", pattern.EOF, 0, pattern.NoMaxOffset},
		{`(?s)AB`, "4142", pattern.VAR, 0, pattern.NoMaxOffset},
	}

	for _, tt := range tests {
		offset, maxOffset, err := regexOffsets(tt.regex, tt.expr, tt.anchor)
		require.NoError(t, err, tt.regex)
		require.Equal(t, tt.offset, offset, tt.regex)
		require.Equal(t, tt.maxOffset, maxOffset, tt.regex)
	}
}

func TestRegexOffsets_Rejected(t *testing.T) {
	tests := []struct {
		regex  string
		anchor pattern.Anchor
	}{
		{`(?s)ABCD`, pattern.BOF},
		{`(?s)\AABCD`, pattern.EOF},
		{`(?s)\A.{8,}ABCD`, pattern.BOF},
	}

	for _, tt := range tests {
		_, _, err := regexOffsets(tt.regex, "41424344", tt.anchor)
		require.ErrorIs(t, err, pattern.ErrInvalidOffset, tt.regex)
	}
}
