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
package dfxml

import (
	"encoding/xml"
	"os"
	"os/user"
	"strconv"
	"time"

	"github.com/ostafen/fido/pkg/sysinfo"
)

const XmlOutputVersion = "1.1"

var DefaultMetadata = Metadata{
	Xmlns:    "http://www.forensicswiki.org/wiki/Category:Digital_Forensics_XML",
	XmlnsXsi: "http://www.w3.org/2001/XMLSchema-instance",
	XmlnsDC:  "http://purl.org/dc/elements/1.1/",
	Type:     "Identification Report",
}

// DFXMLHeader is everything preceding the first fileobject.
type DFXMLHeader struct {
	XMLName   xml.Name `xml:"dfxml"`
	XmlOutput string   `xml:"xmloutputversion,attr,omitempty"`
	Metadata  Metadata `xml:"metadata"`
	Creator   Creator  `xml:"creator"`
	Source    Source   `xml:"source"`
}

type Metadata struct {
	Xmlns    string `xml:"xmlns,attr"`
	XmlnsXsi string `xml:"xmlns:xsi,attr"`
	XmlnsDC  string `xml:"xmlns:dc,attr"`
	Type     string `xml:"dc:type"`
}

type Creator struct {
	Package              string    `xml:"package"`
	Version              string    `xml:"version"`
	CommandLine          string    `xml:"command_line,omitempty"`
	Libraries            []Library `xml:"library"`
	ExecutionEnvironment ExecEnv   `xml:"execution_environment"`
}

// Library names a signature file the run was configured with.
type Library struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr"`
}

type ExecEnv struct {
	OS           string `xml:"os_sysname"`
	Release      string `xml:"os_release"`
	Version      string `xml:"os_version"`
	Distribution string `xml:"os_distribution,omitempty"`
	Host         string `xml:"host"`
	Arch         string `xml:"arch"`
	UID          int    `xml:"uid"`
	Start        string `xml:"start_time"`
}

// Source lists the inputs given on the command line.
type Source struct {
	Filenames []string `xml:"image_filename"`
}

// FileObject is a single identified object. Container members carry
// their full "outer!inner" name.
type FileObject struct {
	XMLName         xml.Name         `xml:"fileobject"`
	Filename        string           `xml:"filename"`
	FileSize        int64            `xml:"filesize"`
	Depth           int              `xml:"depth,omitempty"`
	MatchType       string           `xml:"match_type"`
	ElapsedMs       int64            `xml:"elapsed_ms"`
	Identifications []Identification `xml:"identification"`
	Error           string           `xml:"error,omitempty"`
}

type Identification struct {
	PUID          string `xml:"puid,attr"`
	FormatName    string `xml:"format_name"`
	FormatVersion string `xml:"format_version,omitempty"`
	SignatureName string `xml:"signature_name"`
	MIMEType      string `xml:"mimetype,omitempty"`
}

func GetExecEnv() ExecEnv {
	sinfo, err := sysinfo.Stat()
	if err != nil {
		sinfo = &sysinfo.SysUnknown
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown_host"
	}

	uid := 0
	if u, err := user.Current(); err == nil {
		if id, err := strconv.Atoi(u.Uid); err == nil {
			uid = id
		}
	}

	return ExecEnv{
		OS:           sinfo.Name,
		Release:      sinfo.Release,
		Version:      sinfo.Version,
		Distribution: sinfo.Distribution,
		Host:         host,
		Arch:         sinfo.Machine,
		UID:          uid,
		Start:        time.Now().UTC().Format(time.RFC3339),
	}
}
