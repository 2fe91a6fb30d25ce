package container

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestCompressedMemberName(t *testing.T) {
	tests := []struct {
		outer  string
		kind   Kind
		stored string
		want   string
	}{
		{"data.gz", KindGzip, "payload.txt", "payload.txt"},
		{"data.gz", KindGzip, "/tmp/build/readme.md", "readme.md"},
		{"backup.TGZ", KindGzip, "", "backup.tar"},
		{"a.zip!b.tar.gz", KindGzip, "", "b.tar"},
		{"x.bz2", KindBzip2, "", "x"},
		{"x.tbz2", KindBzip2, "", "x.tar"},
		{"archive.tar.Z", KindCompress, "", "archive.tar"},
		{"noext", KindXz, "", "noext"},
		{".gz", KindGzip, "", ".gz"},
		{`C:\in\log.zst`, KindZstd, "", "log"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, compressedMemberName(tt.outer, tt.kind, tt.stored), tt.outer)
	}
}

func TestDecodeName(t *testing.T) {
	require.Equal(t, "docs/report.pdf", decodeName("docs/report.pdf", true))
	require.Equal(t, "résumé.txt", decodeName("résumé.txt", false))

	got := decodeName("\x81ber.txt", true)
	require.True(t, utf8.ValidString(got))
	require.NotEmpty(t, got)
}

func TestBaseName(t *testing.T) {
	require.Equal(t, "c.txt", baseName("a.zip!b/c.txt"))
	require.Equal(t, "x.gz", baseName(`dir\x.gz`))
	require.Equal(t, "plain", baseName("plain"))
}
