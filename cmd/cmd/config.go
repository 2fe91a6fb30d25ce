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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/logger"
)

// ConfDirEnv overrides the default configuration directory.
const ConfDirEnv = "FIDO_CONFDIR"

func defaultConfDir() string {
	if dir := os.Getenv(ConfDirEnv); dir != "" {
		return dir
	}

	exe, err := os.Executable()
	if err != nil {
		return "conf"
	}
	return filepath.Join(filepath.Dir(exe), "conf")
}

func addCatalogFlags(flags *pflag.FlagSet) {
	flags.String("confdir", defaultConfDir(), "configuration directory holding the signature files")
	flags.Bool("pronom-only", false, "do not load the extension overlay")
	flags.StringSlice("loadformats", nil, "extra format catalogs to overlay, in order")
	flags.StringSlice("useformats", nil, "identify only these PUIDs")
	flags.StringSlice("nouseformats", nil, "never report these PUIDs")
}

// loadCatalog opens the catalog named by the catalog flags of cmd.
func loadCatalog(cmd *cobra.Command, fsys afero.Fs, log *slog.Logger) (*catalog.Catalog, *catalog.Manifest, error) {
	flags := cmd.Flags()

	dir, _ := flags.GetString("confdir")
	pronomOnly, _ := flags.GetBool("pronom-only")
	extra, _ := flags.GetStringSlice("loadformats")
	include, _ := flags.GetStringSlice("useformats")
	exclude, _ := flags.GetStringSlice("nouseformats")

	cat, manifest, err := catalog.OpenConfigDir(fsys, dir, catalog.ConfigOptions{
		PronomOnly: pronomOnly,
		Extra:      extra,
		Logger:     log,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog from %s: %w", dir, err)
	}

	if len(include) > 0 || len(exclude) > 0 {
		cat = cat.Restrict(include, exclude)
	}
	if cat.Len() == 0 {
		return nil, nil, catalog.ErrEmptyCatalog
	}
	return cat, manifest, nil
}

// openLogger sets up logging from the persistent flags. The returned
// closer is never nil.
func openLogger(cmd *cobra.Command) (*slog.Logger, func() error, error) {
	level, _ := cmd.Flags().GetString("log-level")
	file, _ := cmd.Flags().GetString("log-file")

	log, closer, err := logger.Open(file, logger.ParseLevel(level))
	if err != nil {
		return nil, nil, err
	}
	return log, closer.Close, nil
}

// applyConfigFile sets every flag named in the YAML file given by
// --config, unless it was set on the command line. Lists become
// comma-separated values.
func applyConfigFile(cmd *cobra.Command, fsys afero.Fs) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return applyValues(cmd.Flags(), values)
}

var errUnknownSetting = errors.New("unknown setting")

func applyValues(flags *pflag.FlagSet, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f := flags.Lookup(key)
		if f == nil {
			return fmt.Errorf("%w %q", errUnknownSetting, key)
		}
		if f.Changed {
			continue
		}

		if err := flags.Set(key, configValue(values[key])); err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
	}
	return nil
}

func configValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = configValue(item)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// readInputList returns the paths listed one per line in the file at
// path, or on stdin when path is "-". Blank lines are skipped.
func readInputList(fsys afero.Fs, path string, stdin io.Reader) ([]string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = afero.ReadFile(fsys, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read input list: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
