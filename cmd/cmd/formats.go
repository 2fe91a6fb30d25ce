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
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/container"
)

func DefineFormatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "formats",
		Short: "List the formats of the loaded catalog",
		Long: `The 'formats' command displays a table of the formats fido can report, in priority order.
Each format includes its PUID, name, extensions, container kind and number of signatures.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         RunFormats,
	}

	addCatalogFlags(cmd.Flags())
	return cmd
}

func RunFormats(cmd *cobra.Command, args []string) error {
	fsys := afero.NewOsFs()

	if err := applyConfigFile(cmd, fsys); err != nil {
		return err
	}

	log, closeLog, err := openLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	cat, _, err := loadCatalog(cmd, fsys, log)
	if err != nil {
		return err
	}
	return writeFormats(os.Stdout, cat)
}

func writeFormats(out io.Writer, cat *catalog.Catalog) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUID\tNAME\tVERSION\tEXTENSIONS\tCONTAINER\tSIGNATURES")

	for f := range cat.Iter() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			f.PUID,
			f.Name,
			f.Version,
			strings.Join(f.Extensions, ","),
			container.KindOf(f),
			strconv.Itoa(len(f.Signatures)),
		)
	}
	return w.Flush()
}
