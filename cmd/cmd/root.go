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
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ostafen/fido/internal/env"
)

const (
	ExitOK          = 0
	ExitError       = 1
	ExitInterrupted = 130
)

// ErrInterrupted is returned by commands stopped by a signal, after they
// printed their own diagnostic.
var ErrInterrupted = errors.New("interrupted")

// Execute runs the command line and returns the process exit code.
func Execute() int {
	rootCmd := &cobra.Command{
		Use:           env.AppName,
		Short:         env.AppName + " - format identification for digital preservation",
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("log-level", "WARN", "minimum log level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")
	rootCmd.PersistentFlags().String("config", "", "YAML file of flag defaults; flags given explicitly win")

	rootCmd.AddCommand(
		DefineIdentifyCommand(),
		DefineFormatsCommand(),
		DefineVersionCommand(),
	)

	err := rootCmd.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInterrupted):
		return ExitInterrupted
	}

	fmt.Fprintf(os.Stderr, "%s: %v\n", env.AppName, err)
	return ExitError
}
