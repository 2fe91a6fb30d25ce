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

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/env"
)

func DefineVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "version",
		Short:        "Print the program version and the signature files in use",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         RunVersion,
	}

	cmd.Flags().String("confdir", defaultConfDir(), "configuration directory holding the signature files")
	return cmd
}

func RunVersion(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("confdir")

	m, err := catalog.LoadManifest(afero.NewOsFs(), dir)
	if err != nil {
		return err
	}
	return writeVersion(os.Stdout, dir, m)
}

func writeVersion(w io.Writer, dir string, m *catalog.Manifest) error {
	_, err := fmt.Fprintf(w, `%s %s
Commit:               %s
Build Time:           %s
Configuration:        %s
PRONOM version:       %s
PRONOM signatures:    %s
Container signatures: %s
Extension signatures: %s
`,
		env.AppName, env.Version,
		env.CommitHash,
		env.BuildTime,
		dir,
		m.PronomVersion,
		m.PronomSignature,
		m.PronomContainerSignature,
		m.FidoExtensionSignature,
	)
	if err != nil || m.UpdateSite == "" {
		return err
	}

	_, err = fmt.Fprintf(w, "Update site:          %s\n", m.UpdateSite)
	return err
}
