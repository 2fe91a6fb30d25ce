// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package sink

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ostafen/fido/internal/env"
)

const (
	DefaultMatchTemplate   = `OK,{elapsed_ms},{puid},"{format_name}","{signature_name}",{size},"{filename}","{mimetype}","{match_type}"\n`
	DefaultNoMatchTemplate = `KO,{elapsed_ms},,,,{size},"{filename}",,"{match_type}"\n`
)

var (
	ErrUnknownField  = errors.New("unknown template field")
	ErrUnclosedField  = errors.New("unclosed template field")
)

// Field is a placeholder a template line may reference as {name}.
type Field string

const (
	FieldPUID          Field = "puid"
	FieldFormatName    Field = "format_name"
	FieldSignatureName Field = "signature_name"
	FieldMIMEType      Field = "mimetype"
	FieldSize          Field = "size"
	FieldFilename      Field = "filename"
	FieldElapsedMs     Field = "elapsed_ms"
	FieldMatchCount    Field = "match_count"
	FieldMatchIndex    Field = "match_index"
	FieldMatchType     Field = "match_type"
	FieldFormatVersion Field = "format_version"
)

var knownFields = map[Field]struct{}{
	FieldPUID:          {},
	FieldFormatName:    {},
	FieldSignatureName: {},
	FieldMIMEType:      {},
	FieldSize:          {},
	FieldFilename:      {},
	FieldElapsedMs:     {},
	FieldMatchCount:    {},
	FieldMatchIndex:    {},
	FieldMatchType:     {},
	FieldFormatVersion: {},
}

type segment struct {
	text  string
	field Field
}

// Line is a parsed output template. Fields are written as {name}, braces
// are escaped by doubling them, and \n, \t, \r and \\ are unescaped.
type Line struct {
	segs []segment
}

func ParseLine(tmpl string) (*Line, error) {
	var (
		segs []segment
		text strings.Builder
	)
	flush := func() {
		if text.Len() > 0 {
			segs = append(segs, segment{text: text.String()})
			text.Reset()
		}
	}

	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch {
		case c == '\\' && i+1 < len(tmpl):
			switch tmpl[i+1] {
			case 'n':
				text.WriteByte('\n')
			case 't':
				text.WriteByte('\t')
			case 'r':
				text.WriteByte('\r')
			case '\\':
				text.WriteByte('\\')
			default:
				text.WriteByte(c)
				continue
			}
			i++
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			text.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			text.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w at offset %d of %q", ErrUnclosedField, i, tmpl)
			}
			name := Field(tmpl[i+1 : i+end])
			if _, ok := knownFields[name]; !ok {
				return nil, fmt.Errorf("%w %q in %q", ErrUnknownField, name, tmpl)
			}
			flush()
			segs = append(segs, segment{field: name})
			i += end
		default:
			text.WriteByte(c)
		}
	}
	flush()

	return &Line{segs: segs}, nil
}

// Append renders the line for the idx-th match of r, or for the
// no-match case when idx is negative.
func (l *Line) Append(dst []byte, r Result, idx int) []byte {
	for _, seg := range l.segs {
		if seg.field == "" {
			dst = append(dst, seg.text...)
			continue
		}
		dst = appendField(dst, seg.field, r, idx)
	}
	return dst
}

func appendField(dst []byte, f Field, r Result, idx int) []byte {
	switch f {
	case FieldSize:
		return strconv.AppendInt(dst, r.Size, 10)
	case FieldFilename:
		return append(dst, r.Name...)
	case FieldElapsedMs:
		return strconv.AppendInt(dst, r.Elapsed.Milliseconds(), 10)
	case FieldMatchCount:
		return strconv.AppendInt(dst, int64(len(r.Matches)), 10)
	case FieldMatchType:
		return append(dst, r.Type...)
	case FieldMatchIndex:
		return strconv.AppendInt(dst, int64(idx+1), 10)
	}

	if idx < 0 || idx >= len(r.Matches) {
		return dst
	}

	m := r.Matches[idx]
	switch f {
	case FieldPUID:
		return append(dst, m.Format.PUID...)
	case FieldFormatName:
		return append(dst, m.Format.Name...)
	case FieldFormatVersion:
		return append(dst, m.Format.Version...)
	case FieldMIMEType:
		return append(dst, m.Format.MIME...)
	case FieldSignatureName:
		return append(dst, m.Signature.Name...)
	}
	return dst
}

// Template writes one line per match, or a single no-match line, to out.
// Results carrying an error are written to diag instead. Template is not
// safe for concurrent use; wrap it with Serialize.
type Template struct {
	out     io.Writer
	diag    io.Writer
	match   *Line
	nomatch *Line
	buf     []byte
}

func NewTemplate(out, diag io.Writer, matchTmpl, nomatchTmpl string) (*Template, error) {
	matchLine, err := ParseLine(matchTmpl)
	if err != nil {
		return nil, fmt.Errorf("match template: %w", err)
	}

	nomatchLine, err := ParseLine(nomatchTmpl)
	if err != nil {
		return nil, fmt.Errorf("no-match template: %w", err)
	}

	return &Template{
		out:     out,
		diag:    diag,
		match:   matchLine,
		nomatch: nomatchLine,
	}, nil
}

func (t *Template) Report(r Result) error {
	if r.Err != nil {
		_, err := fmt.Fprintf(t.diag, "%s: error identifying %s: %v\n", env.AppName, r.Name, r.Err)
		return err
	}

	buf := t.buf[:0]
	if len(r.Matches) == 0 {
		buf = t.nomatch.Append(buf, r, -1)
	}
	for i := range r.Matches {
		buf = t.match.Append(buf, r, i)
	}
	t.buf = buf

	_, err := t.out.Write(buf)
	return err
}
