package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/container"
	"github.com/ostafen/fido/internal/match"
	"github.com/ostafen/fido/internal/sink"
)

func newIdentifyCommand(t *testing.T, args ...string) *identifyOptions {
	t.Helper()

	cmd := DefineIdentifyCommand()
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Parse(args))

	opts, err := parseIdentifyOptions(cmd)
	require.NoError(t, err)
	return &opts
}

func TestParseIdentifyOptions_Defaults(t *testing.T) {
	opts := newIdentifyCommand(t)

	require.Equal(t, 128<<10, opts.BufSize)
	require.Equal(t, container.DefaultSignatureBufSize, opts.ContainerBufSize)
	require.Equal(t, []container.Kind{container.KindTar, container.KindZip}, opts.Kinds)
	require.Equal(t, sink.DefaultMatchTemplate, opts.MatchTemplate)
	require.Equal(t, match.SuffixLast, opts.SuffixMode)
	require.Equal(t, match.DefaultSlowThreshold, opts.SlowThreshold)
	require.Equal(t, 1, opts.Workers)
	require.False(t, opts.Traverse)
}

func TestParseIdentifyOptions_Flags(t *testing.T) {
	opts := newIdentifyCommand(t,
		"-rzq",
		"--bufsize", "1MB",
		"--container-kinds", "all",
		"--ext-suffix", "all",
		"--workers", "4",
		"--slow-threshold", "0",
	)

	require.True(t, opts.Recurse)
	require.True(t, opts.Traverse)
	require.True(t, opts.Quiet)
	require.Equal(t, 1000*1000, opts.BufSize)
	require.ElementsMatch(t, container.AllKinds(), opts.Kinds)
	require.Equal(t, match.SuffixAll, opts.SuffixMode)
	require.Equal(t, 4, opts.Workers)
	require.Zero(t, opts.SlowThreshold)
}

func TestParseIdentifyOptions_Errors(t *testing.T) {
	for _, args := range [][]string{
		{"--bufsize", "lots"},
		{"--bufsize", "0"},
		{"--container-kinds", "zip,iso"},
		{"--ext-suffix", "first"},
		{"--workers", "0"},
	} {
		cmd := DefineIdentifyCommand()
		require.NoError(t, cmd.Flags().Parse(args))

		_, err := parseIdentifyOptions(cmd)
		require.Error(t, err, args)
	}
}

func TestApplyConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/fido.yaml", []byte(`
recurse: true
workers: 3
container-kinds: [zip, gzip]
bufsize: 64KiB
`), 0o644))

	cmd := DefineIdentifyCommand()
	cmd.Flags().String("config", "", "")
	require.NoError(t, cmd.Flags().Parse([]string{"--config", "/etc/fido.yaml", "--workers", "8"}))
	require.NoError(t, applyConfigFile(cmd, fs))

	opts, err := parseIdentifyOptions(cmd)
	require.NoError(t, err)
	require.True(t, opts.Recurse)
	require.Equal(t, 8, opts.Workers)
	require.Equal(t, 64<<10, opts.BufSize)
	require.Equal(t, []container.Kind{container.KindGzip, container.KindZip}, opts.Kinds)
}

func TestApplyConfigFile_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("no-such-flag: 1\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/broken.yaml", []byte("workers: [\n"), 0o644))

	for _, path := range []string{"/bad.yaml", "/broken.yaml", "/missing.yaml"} {
		cmd := DefineIdentifyCommand()
		cmd.Flags().String("config", "", "")
		require.NoError(t, cmd.Flags().Parse([]string{"--config", path}))
		require.Error(t, applyConfigFile(cmd, fs), path)
	}
}

func TestReadInputList(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/list.txt", []byte("a.pdf\r\n\n  \nb dir/c.zip\n"), 0o644))

	paths, err := readInputList(fs, "/list.txt", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a.pdf", "b dir/c.zip"}, paths)

	paths, err = readInputList(fs, "-", strings.NewReader("x\ny\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"x", "y"}, paths)

	_, err = readInputList(fs, "/missing.txt", nil)
	require.Error(t, err)
}

func TestWriteFormats(t *testing.T) {
	cat, err := catalog.New([]*catalog.Format{
		{PUID: "x-fmt/263", Name: "ZIP Format", Extensions: []string{".zip"}},
		{PUID: "fmt/1", Name: "Plain", Version: "1.0", Extensions: []string{".txt", ".text"}},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeFormats(&buf, cat))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "PUID"))
	require.Contains(t, buf.String(), ".txt,.text")
	require.Regexp(t, `x-fmt/263\s+ZIP Format\s+\.zip\s+zip\s+0`, buf.String())
}

func TestWriteVersion(t *testing.T) {
	m := catalog.DefaultManifest()
	m.UpdateSite = "https://example.org/pronom"

	var buf bytes.Buffer
	require.NoError(t, writeVersion(&buf, "/opt/fido/conf", &m))

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "fido "))
	require.Contains(t, out, "PRONOM version:       75\n")
	require.Contains(t, out, "PRONOM signatures:    formats-v75.xml\n")
	require.Contains(t, out, "Update site:          https://example.org/pronom\n")
}
