package sysinfo

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStat(t *testing.T) {
	info, err := Stat()
	require.NoError(t, err)
	require.NotEmpty(t, info.Name)
	require.NotEmpty(t, info.Machine)

	if runtime.GOOS == "linux" {
		require.Equal(t, "Linux", info.Name)
	}
}

func TestParseOSRelease(t *testing.T) {
	doc := "NAME=\"Debian GNU/Linux\"\nVERSION=\"12 (bookworm)\"\nPRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\n"
	require.Equal(t, "Debian GNU/Linux 12 (bookworm)", parseOSRelease(strings.NewReader(doc)))

	doc = "NAME=Alpine\nVERSION='3.20'\n# comment\n"
	require.Equal(t, "Alpine 3.20", parseOSRelease(strings.NewReader(doc)))

	require.Equal(t, "", parseOSRelease(strings.NewReader("")))
}
