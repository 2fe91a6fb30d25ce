package container_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ostafen/fido/internal/container"
	"github.com/ostafen/fido/internal/logger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const containerSignaturesXML = `<?xml version="1.0" encoding="UTF-8"?>
<ContainerSignatureMapping schemaVersion="1.0" signatureVersion="1">
  <ContainerSignatures>
    <ContainerSignature Id="1030" ContainerType="ZIP">
      <Description>Word OOXML</Description>
      <Files>
        <File>
          <Path>[Content_Types].xml</Path>
          <BinarySignatures>
            <InternalSignatureCollection>
              <InternalSignature ID="1">
                <ByteSequence Reference="BOFoffset">
                  <SubSequence Position="1" SubSeqMinOffset="0">
                    <Sequence>'&lt;Types'</Sequence>
                  </SubSequence>
                </ByteSequence>
                <ByteSequence>
                  <SubSequence Position="1" SubSeqMinOffset="0">
                    <Sequence>'wordprocessingml'</Sequence>
                  </SubSequence>
                </ByteSequence>
              </InternalSignature>
            </InternalSignatureCollection>
          </BinarySignatures>
        </File>
        <File>
          <Path>word/document.xml</Path>
        </File>
      </Files>
    </ContainerSignature>
    <ContainerSignature Id="1040" ContainerType="ZIP">
      <Description>Excel OOXML</Description>
      <Files>
        <File><Path>xl/workbook.xml</Path></File>
      </Files>
    </ContainerSignature>
    <ContainerSignature Id="2000" ContainerType="OLE2">
      <Description>Word 97</Description>
      <Files>
        <File>
          <Path>WordDocument</Path>
          <BinarySignatures>
            <InternalSignatureCollection>
              <InternalSignature ID="2">
                <ByteSequence Reference="BOFoffset">
                  <SubSequence Position="1" SubSeqMinOffset="0"><Sequence>ECA5</Sequence></SubSequence>
                </ByteSequence>
              </InternalSignature>
            </InternalSignatureCollection>
          </BinarySignatures>
        </File>
      </Files>
    </ContainerSignature>
    <ContainerSignature Id="3000" ContainerType="ZIP">
      <Description>Broken</Description>
      <Files>
        <File>
          <Path>broken</Path>
          <BinarySignatures>
            <InternalSignatureCollection>
              <InternalSignature ID="3">
                <ByteSequence><SubSequence Position="1"><Sequence>GG</Sequence></SubSequence></ByteSequence>
              </InternalSignature>
            </InternalSignatureCollection>
          </BinarySignatures>
        </File>
      </Files>
    </ContainerSignature>
    <ContainerSignature Id="4000" ContainerType="ZIP">
      <Description>Unmapped</Description>
      <Files><File><Path>mimetype</Path></File></Files>
    </ContainerSignature>
  </ContainerSignatures>
  <FileFormatMappings>
    <FileFormatMapping signatureId="1030" Puid="fmt/412"/>
    <FileFormatMapping signatureId="1040" Puid="fmt/214"/>
    <FileFormatMapping signatureId="2000" Puid="fmt/40"/>
    <FileFormatMapping signatureId="3000" Puid="fmt/999"/>
  </FileFormatMappings>
</ContainerSignatureMapping>`

const contentTypes = `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

func loadSignatures(t *testing.T) *container.Signatures {
	t.Helper()

	sigs, err := container.LoadSignatures(strings.NewReader(containerSignaturesXML),
		container.WithSignatureLogger(logger.Discard()),
		container.WithSignatureBufSize(1024),
	)
	require.NoError(t, err)
	return sigs
}

func TestLoadSignatures(t *testing.T) {
	sigs := loadSignatures(t)
	require.Equal(t, 2, sigs.Len(container.TypeZip))
	require.Equal(t, 1, sigs.Len(container.TypeOLE2))

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/conf/container.xml", []byte(containerSignaturesXML), 0o644))

	sigs, err := container.LoadSignaturesFile(fs, "/conf/container.xml", container.WithSignatureLogger(logger.Discard()))
	require.NoError(t, err)
	require.Equal(t, 2, sigs.Len(container.TypeZip))

	_, err = container.LoadSignaturesFile(fs, "/conf/missing.xml")
	require.Error(t, err)

	_, err = container.LoadSignatures(strings.NewReader("<ContainerSignatureMapping>"))
	require.Error(t, err)
}

func TestMatchZip(t *testing.T) {
	sigs := loadSignatures(t)

	docx := buildZip(t,
		file{"[Content_Types].xml", contentTypes},
		file{"_rels/.rels", "<Relationships/>"},
		file{"word/document.xml", "<w:document/>"},
	)
	puids, err := sigs.MatchZip(context.Background(), bytes.NewReader(docx), int64(len(docx)))
	require.NoError(t, err)
	require.Equal(t, []string{"fmt/412"}, puids)

	// The internal signature holds but a required member is missing.
	partial := buildZip(t, file{"[Content_Types].xml", contentTypes})
	puids, err = sigs.MatchZip(context.Background(), bytes.NewReader(partial), int64(len(partial)))
	require.NoError(t, err)
	require.Empty(t, puids)

	// Every member is there but the content types do not match.
	other := buildZip(t,
		file{"[Content_Types].xml", `<Types><Override ContentType="spreadsheetml"/></Types>`},
		file{"word/document.xml", "<w:document/>"},
		file{"xl/workbook.xml", "<workbook/>"},
	)
	puids, err = sigs.MatchZip(context.Background(), bytes.NewReader(other), int64(len(other)))
	require.NoError(t, err)
	require.Equal(t, []string{"fmt/214"}, puids)
}

func TestMatchZip_NotAZip(t *testing.T) {
	sigs := loadSignatures(t)

	data := []byte("PK but not really")
	_, err := sigs.MatchZip(context.Background(), bytes.NewReader(data), int64(len(data)))
	require.Error(t, err)
}

func TestMatchOLE2_NotACompoundFile(t *testing.T) {
	sigs := loadSignatures(t)

	_, err := sigs.MatchOLE2(context.Background(), bytes.NewReader([]byte("garbage")))
	require.Error(t, err)
}
