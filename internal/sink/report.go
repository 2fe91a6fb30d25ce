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
	"io"

	"github.com/ostafen/fido/pkg/dfxml"
)

// Report writes results as a DFXML document, one fileobject per result.
// The document is complete once Close returns.
type Report struct {
	w *dfxml.Writer
}

func NewReport(w io.Writer, hdr dfxml.DFXMLHeader) (*Report, error) {
	dw := dfxml.NewWriter(w)
	if err := dw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	return &Report{w: dw}, nil
}

func (s *Report) Report(r Result) error {
	obj := dfxml.FileObject{
		Filename:  r.Name,
		FileSize:  r.Size,
		Depth:     r.Depth,
		MatchType: string(r.Type),
		ElapsedMs: r.Elapsed.Milliseconds(),
	}
	if r.Err != nil {
		obj.Error = r.Err.Error()
	}

	for _, m := range r.Matches {
		obj.Identifications = append(obj.Identifications, dfxml.Identification{
			PUID:          m.Format.PUID,
			FormatName:    m.Format.Name,
			FormatVersion: m.Format.Version,
			SignatureName: m.Signature.Name,
			MIMEType:      m.Format.MIME,
		})
	}
	return s.w.WriteFileObject(obj)
}

func (s *Report) Close() error {
	return s.w.Close()
}
