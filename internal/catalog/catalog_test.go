package catalog_test

import (
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const formatsXML = `<?xml version="1.0" encoding="UTF-8"?>
<formats version="0.1">
  <format>
    <puid>fmt/18</puid>
    <name>Acrobat PDF 1.4 - Portable Document Format</name>
    <version>1.4</version>
    <mime>application/pdf</mime>
    <extension>PDF</extension>
    <has_priority_over>fmt/14</has_priority_over>
    <signature>
      <name>PDF 1.4</name>
      <pattern>
        <position>BOF</position>
        <pronom_pattern>255044462D312E34</pronom_pattern>
      </pattern>
      <pattern>
        <position>EOF</position>
        <max_offset>1024</max_offset>
        <pronom_pattern>2525454F46</pronom_pattern>
      </pattern>
    </signature>
    <details><description>ignored</description></details>
  </format>
  <format>
    <puid>fmt/14</puid>
    <name>Acrobat PDF 1.0 - Portable Document Format</name>
    <extension>pdf</extension>
    <signature>
      <name>PDF generic</name>
      <pattern>
        <position>Absolute from BOF</position>
        <pronom_pattern>25504446</pronom_pattern>
      </pattern>
    </signature>
    <signature>
      <name>broken</name>
      <pattern>
        <position>BOF</position>
        <pronom_pattern>2550(44</pronom_pattern>
      </pattern>
    </signature>
  </format>
  <format>
    <name>no puid</name>
  </format>
  <format>
    <puid>x-fmt/111</puid>
    <name>Plain Text File</name>
    <extension>.txt</extension>
  </format>
</formats>`

func load(t *testing.T, doc string) *catalog.Catalog {
	t.Helper()

	c, err := catalog.Load(strings.NewReader(doc), catalog.WithLogger(logger.Discard()))
	require.NoError(t, err)
	return c
}

func puids(c *catalog.Catalog) []string {
	var out []string
	for f := range c.Iter() {
		out = append(out, f.PUID)
	}
	return out
}

func TestLoad(t *testing.T) {
	c := load(t, formatsXML)
	require.Equal(t, 3, c.Len())

	pdf14, ok := c.Lookup("fmt/18")
	require.True(t, ok)
	require.Equal(t, "application/pdf", pdf14.MIME)
	require.Equal(t, []string{".pdf"}, pdf14.Extensions)
	require.Len(t, pdf14.Signatures, 1)
	require.Len(t, pdf14.Signatures[0].Patterns, 2)
	require.Equal(t, []byte("%PDF-1.4"), pdf14.Signatures[0].Head())

	eof := pdf14.Signatures[0].Patterns[1]
	require.Equal(t, 0, eof.Offset)
	require.Equal(t, 1024, eof.MaxOffset)

	pdf10, ok := c.Lookup("fmt/14")
	require.True(t, ok)
	require.Len(t, pdf10.Signatures, 1, "a signature with an invalid pattern is dropped")
	require.Equal(t, "PDF generic", pdf10.Signatures[0].Name)

	require.True(t, c.HasPriorityOver(pdf14, pdf10))
	require.False(t, c.HasPriorityOver(pdf10, pdf14))

	require.Len(t, c.ByExtension(".pdf"), 2)
	require.Len(t, c.ByExtension(".txt"), 1)
	require.Empty(t, c.ByExtension(".doc"))
}

// Catalogs generated by fido carry the offsets in the regex only.
const fidoFormatsXML = `<formats version="0.1">
  <format>
    <puid>fmt/900</puid>
    <name>Shifted</name>
    <signature>
      <name>shifted</name>
      <pattern>
        <position>BOF</position>
        <pronom_pattern>41424344</pronom_pattern>
        <regex>(?s)\A.{8}ABCD</regex>
      </pattern>
    </signature>
    <signature>
      <name>trailer</name>
      <pattern>
        <position>EOF</position>
        <pronom_pattern>5A5A</pronom_pattern>
        <regex>(?s)ZZ.{0,4}\Z</regex>
      </pattern>
    </signature>
    <signature>
      <name>unanchored</name>
      <pattern>
        <position>BOF</position>
        <pronom_pattern>41424344</pronom_pattern>
        <regex>(?s)ABCD</regex>
      </pattern>
    </signature>
  </format>
</formats>`

func TestLoad_RegexOffsets(t *testing.T) {
	c := load(t, fidoFormatsXML)

	f, ok := c.Lookup("fmt/900")
	require.True(t, ok)
	require.Len(t, f.Signatures, 2, "a pattern whose regex has no anchor is dropped")

	bof := f.Signatures[0].Patterns[0]
	require.Equal(t, 8, bof.Offset)

	for _, tt := range []struct {
		data string
		want bool
	}{
		{"ABCD", false},
		{"12345678ABCD", true},
		{"1234567ABCD", false},
	} {
		ok, err := bof.MatchBytes([]byte(tt.data))
		require.NoError(t, err)
		require.Equal(t, tt.want, ok, tt.data)
	}

	eof := f.Signatures[1].Patterns[0]
	require.Equal(t, 0, eof.Offset)
	require.Equal(t, 4, eof.MaxOffset)
}

func TestLoad_Empty(t *testing.T) {
	_, err := catalog.Load(strings.NewReader(`<formats><format><name>x</name></format></formats>`),
		catalog.WithLogger(logger.Discard()))
	require.ErrorIs(t, err, catalog.ErrEmptyCatalog)

	_, err = catalog.Load(strings.NewReader(`<formats>`), catalog.WithLogger(logger.Discard()))
	require.Error(t, err)
}

func TestLoad_Cycle(t *testing.T) {
	doc := `<formats>
  <format><puid>a</puid><has_priority_over>b</has_priority_over></format>
  <format><puid>b</puid><has_priority_over>c</has_priority_over></format>
  <format><puid>c</puid><has_priority_over>a</has_priority_over></format>
  <format><puid>d</puid></format>
</formats>`

	_, err := catalog.Load(strings.NewReader(doc), catalog.WithLogger(logger.Discard()))

	var cerr *catalog.CycleError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, []string{"a", "b", "c"}, cerr.PUIDs)

	self := `<formats><format><puid>a</puid><has_priority_over>a</has_priority_over></format></formats>`
	_, err = catalog.Load(strings.NewReader(self), catalog.WithLogger(logger.Discard()))
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, []string{"a"}, cerr.PUIDs)
}

func TestIter_TopologicalOrder(t *testing.T) {
	f := func(puid string, over ...string) *catalog.Format {
		po := make(map[string]struct{})
		for _, p := range over {
			po[p] = struct{}{}
		}
		return &catalog.Format{PUID: puid, PriorityOver: po}
	}

	c, err := catalog.New([]*catalog.Format{
		f("fmt/3"),
		f("fmt/9", "fmt/1"),
		f("fmt/1", "fmt/2", "x-fmt/404"),
		f("fmt/2"),
		f("fmt/5", "fmt/2"),
	})
	require.NoError(t, err)

	order := puids(c)
	require.Equal(t, []string{"fmt/3", "fmt/5", "fmt/9", "fmt/1", "fmt/2"}, order)

	// Dominating formats always come first.
	for a := range c.Iter() {
		for b := range c.Iter() {
			if c.HasPriorityOver(a, b) {
				require.Less(t, slices.Index(order, a.PUID), slices.Index(order, b.PUID))
			}
		}
	}
}

func TestExtend(t *testing.T) {
	base := load(t, formatsXML)

	overlay := load(t, `<formats>
  <format>
    <puid>fmt/14</puid>
    <mime>application/pdf</mime>
    <extension>ai</extension>
    <extension>pdf</extension>
  </format>
  <format>
    <puid>x-fmt/111</puid>
    <name>Text</name>
    <signature>
      <name>ascii</name>
      <pattern><position>VAR</position><pronom_pattern>0D0A</pronom_pattern></pattern>
    </signature>
  </format>
  <format>
    <puid>fmt/999</puid>
    <name>New</name>
  </format>
</formats>`)

	c, err := base.Extend(overlay)
	require.NoError(t, err)
	require.Equal(t, 4, c.Len())

	merged, _ := c.Lookup("fmt/14")
	require.Equal(t, "Acrobat PDF 1.0 - Portable Document Format", merged.Name)
	require.Equal(t, "application/pdf", merged.MIME)
	require.Equal(t, []string{".pdf", ".ai"}, merged.Extensions)
	require.Len(t, merged.Signatures, 1)

	replaced, _ := c.Lookup("x-fmt/111")
	require.Equal(t, "Text", replaced.Name)
	require.Len(t, replaced.Signatures, 1)
	require.Empty(t, replaced.Extensions)

	// The base catalog is unchanged.
	orig, _ := base.Lookup("fmt/14")
	require.Empty(t, orig.MIME)
	require.Equal(t, []string{".pdf"}, orig.Extensions)

	require.Len(t, c.ByExtension(".ai"), 1)
}

func TestExtend_Cycle(t *testing.T) {
	base := load(t, formatsXML)
	overlay := load(t, `<formats><format><puid>fmt/14</puid><has_priority_over>fmt/18</has_priority_over></format></formats>`)

	_, err := base.Extend(overlay)

	var cerr *catalog.CycleError
	require.True(t, errors.As(err, &cerr))
}

func TestRestrict(t *testing.T) {
	c := load(t, formatsXML)

	r := c.Restrict([]string{"fmt/14", "fmt/18"}, nil)
	require.ElementsMatch(t, []string{"fmt/14", "fmt/18"}, puids(r))

	r = c.Restrict(nil, []string{"fmt/18"})
	require.ElementsMatch(t, []string{"fmt/14", "x-fmt/111"}, puids(r))

	r = c.Restrict([]string{"fmt/14", "fmt/18"}, []string{"fmt/14"})
	require.Equal(t, []string{"fmt/18"}, puids(r))

	require.Equal(t, 3, c.Len())
}

func TestPrefilter(t *testing.T) {
	c := load(t, formatsXML)

	pdf14, _ := c.Lookup("fmt/18")
	pdf10, _ := c.Lookup("fmt/14")

	cs := c.Prefilter([]byte("%PDF-1.4\n%binary"))
	require.True(t, cs.Allows(pdf14.Signatures[0]))
	require.True(t, cs.Allows(pdf10.Signatures[0]))
	require.Equal(t, 2, cs.Len())

	cs = c.Prefilter([]byte("%PDF-1.7"))
	require.False(t, cs.Allows(pdf14.Signatures[0]))
	require.True(t, cs.Allows(pdf10.Signatures[0]))

	cs = c.Prefilter([]byte("GIF89a"))
	require.False(t, cs.Allows(pdf10.Signatures[0]))
	require.Zero(t, cs.Len())

	require.True(t, cs.Allows(catalog.ExtensionSignature))
}

func TestPatternCache(t *testing.T) {
	cache, err := catalog.NewPatternCache(4)
	require.NoError(t, err)

	doc := `<formats>
  <format><puid>a</puid><signature><name>s</name><pattern><position>BOF</position><pronom_pattern>0102</pronom_pattern></pattern></signature></format>
  <format><puid>b</puid><signature><name>s</name><pattern><position>BOF</position><pronom_pattern>0102</pronom_pattern></pattern></signature></format>
</formats>`

	c, err := catalog.Load(strings.NewReader(doc), catalog.WithCache(cache), catalog.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	a, _ := c.Lookup("a")
	b, _ := c.Lookup("b")
	require.Same(t, a.Signatures[0].Patterns[0], b.Signatures[0].Patterns[0])
}

func TestOpenConfigDir(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fs, "conf/versions.xml", []byte(`<?xml version="1.0"?>
<versions>
  <pronomVersion>84</pronomVersion>
  <pronomSignature>formats-v84.xml</pronomSignature>
  <fidoExtensionSignature>format_extensions.xml</fidoExtensionSignature>
  <updateSite>https://example.org</updateSite>
</versions>`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "conf/formats-v84.xml", []byte(formatsXML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "conf/format_extensions.xml", []byte(`<formats>
  <format><puid>fmt/100</puid><name>Extension only</name><extension>xyz</extension></format>
</formats>`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "extra.xml", []byte(`<formats>
  <format><puid>fmt/101</puid><name>Extra</name></format>
</formats>`), 0o644))

	opts := catalog.ConfigOptions{Logger: slog.New(slog.DiscardHandler)}

	c, m, err := catalog.OpenConfigDir(fs, "conf", opts)
	require.NoError(t, err)
	require.Equal(t, "84", m.PronomVersion)
	require.Equal(t, "https://example.org", m.UpdateSite)
	require.Equal(t, "container-signature-20160121.xml", m.PronomContainerSignature)
	require.Equal(t, 4, c.Len())
	require.Len(t, c.ByExtension(".xyz"), 1)

	opts.PronomOnly = true
	opts.Extra = []string{"extra.xml"}
	c, _, err = catalog.OpenConfigDir(fs, "conf", opts)
	require.NoError(t, err)
	require.Equal(t, 4, c.Len())
	require.Empty(t, c.ByExtension(".xyz"))

	_, ok := c.Lookup("fmt/101")
	require.True(t, ok)
}

func TestLoadManifest_Default(t *testing.T) {
	m, err := catalog.LoadManifest(afero.NewMemMapFs(), "missing")
	require.NoError(t, err)
	require.Equal(t, catalog.DefaultManifest().PronomSignature, m.PronomSignature)
}
