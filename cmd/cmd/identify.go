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
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ostafen/fido/internal/catalog"
	"github.com/ostafen/fido/internal/container"
	"github.com/ostafen/fido/internal/env"
	"github.com/ostafen/fido/internal/identify"
	"github.com/ostafen/fido/internal/match"
	"github.com/ostafen/fido/internal/sink"
	"github.com/ostafen/fido/pkg/dfxml"
	"github.com/ostafen/fido/pkg/pbar"
)

func DefineIdentifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identify [flags] FILE...",
		Short: "Identify the format of files, directories or standard input",
		Long: `The 'identify' command matches every object against the PRONOM signatures of the
configuration directory and prints one line per match. A single "-" reads standard input.`,
		SilenceUsage: true,
		RunE:         RunIdentify,
	}

	flags := cmd.Flags()
	addCatalogFlags(flags)

	flags.BoolP("recurse", "r", false, "recurse into subdirectories")
	flags.BoolP("zip", "z", false, "identify the members of containers")
	flags.String("container-kinds", "zip,tar", `container kinds to traverse, or "all"`)
	flags.Bool("noextension", false, "disable the extension fallback")
	flags.Bool("nocontainer", false, "content only: no container signatures and no traversal")
	flags.String("bufsize", humanize.IBytes(uint64(128<<10)), "size of the head and tail windows")
	flags.String("container-bufsize", humanize.IBytes(uint64(container.DefaultSignatureBufSize)), "window size for container members")
	flags.String("filename", "", "file name hint for standard input, used by the extension fallback")
	flags.String("input", "", `file listing paths to identify, one per line ("-" for stdin)`)
	flags.String("matchprintf", sink.DefaultMatchTemplate, "output template for each match")
	flags.String("nomatchprintf", sink.DefaultNoMatchTemplate, "output template for objects without matches")
	flags.Int("workers", 1, "number of objects identified at once")
	flags.Bool("mmap", false, "map windows into memory instead of reading them")
	flags.Int("max-depth", container.DefaultMaxDepth, "maximum container nesting")
	flags.Duration("slow-threshold", match.DefaultSlowThreshold, "log patterns slower than this (0 disables)")
	flags.Bool("var-tail", false, "VAR patterns also scan the tail window")
	flags.String("ext-suffix", "last", `extension matching: "last" or "all" dot-suffixes`)
	flags.String("report", "", "write a DFXML report to this path")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile")
	flags.BoolP("quiet", "q", false, "no banner and no summary")
	flags.Bool("progress", false, "show progress on stderr")

	return cmd
}

type identifyOptions struct {
	Recurse          bool
	Traverse         bool
	Kinds            []container.Kind
	NoExtension      bool
	ContentOnly      bool
	BufSize          int
	ContainerBufSize int
	NameHint         string
	InputList        string
	MatchTemplate    string
	NoMatchTemplate  string
	Workers          int
	Mmap             bool
	MaxDepth         int
	SlowThreshold    time.Duration
	VarTail          bool
	SuffixMode       match.SuffixMode
	ReportFile       string
	MetricsFile      string
	Quiet            bool
	Progress         bool
}

func parseIdentifyOptions(cmd *cobra.Command) (identifyOptions, error) {
	flags := cmd.Flags()

	var opts identifyOptions
	opts.Recurse, _ = flags.GetBool("recurse")
	opts.Traverse, _ = flags.GetBool("zip")
	opts.NoExtension, _ = flags.GetBool("noextension")
	opts.ContentOnly, _ = flags.GetBool("nocontainer")
	opts.NameHint, _ = flags.GetString("filename")
	opts.InputList, _ = flags.GetString("input")
	opts.MatchTemplate, _ = flags.GetString("matchprintf")
	opts.NoMatchTemplate, _ = flags.GetString("nomatchprintf")
	opts.Workers, _ = flags.GetInt("workers")
	opts.Mmap, _ = flags.GetBool("mmap")
	opts.MaxDepth, _ = flags.GetInt("max-depth")
	opts.SlowThreshold, _ = flags.GetDuration("slow-threshold")
	opts.VarTail, _ = flags.GetBool("var-tail")
	opts.ReportFile, _ = flags.GetString("report")
	opts.MetricsFile, _ = flags.GetString("metrics-file")
	opts.Quiet, _ = flags.GetBool("quiet")
	opts.Progress, _ = flags.GetBool("progress")

	var err error
	if opts.BufSize, err = getBytes(cmd, "bufsize"); err != nil {
		return opts, err
	}
	if opts.ContainerBufSize, err = getBytes(cmd, "container-bufsize"); err != nil {
		return opts, err
	}

	kinds, _ := flags.GetString("container-kinds")
	if opts.Kinds, err = container.ParseKinds(kinds); err != nil {
		return opts, fmt.Errorf("--container-kinds: %w", err)
	}

	suffix, _ := flags.GetString("ext-suffix")
	switch suffix {
	case "last":
		opts.SuffixMode = match.SuffixLast
	case "all":
		opts.SuffixMode = match.SuffixAll
	default:
		return opts, fmt.Errorf("--ext-suffix: unknown mode %q", suffix)
	}

	if opts.Workers < 1 {
		return opts, fmt.Errorf("--workers: must be at least 1, got %d", opts.Workers)
	}
	return opts, nil
}

// getBytes parses a humanized byte size such as "128KiB" or "1MB".
func getBytes(cmd *cobra.Command, name string) (int, error) {
	s, _ := cmd.Flags().GetString(name)

	v, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	if v == 0 || v > 1<<30 {
		return 0, fmt.Errorf("--%s: size %s out of range", name, s)
	}
	return int(v), nil
}

func RunIdentify(cmd *cobra.Command, args []string) error {
	fsys := afero.NewOsFs()

	if err := applyConfigFile(cmd, fsys); err != nil {
		return err
	}

	opts, err := parseIdentifyOptions(cmd)
	if err != nil {
		return err
	}

	matchLine, err := sink.NewTemplate(os.Stdout, os.Stderr, opts.MatchTemplate, opts.NoMatchTemplate)
	if err != nil {
		return err
	}

	paths := args
	if opts.InputList != "" {
		listed, err := readInputList(fsys, opts.InputList, os.Stdin)
		if err != nil {
			return err
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return errors.New("no input: give files, directories, \"-\" or --input")
	}

	log, closeLog, err := openLogger(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	if !opts.Quiet {
		printBanner(os.Stderr)
	}

	cat, manifest, err := loadCatalog(cmd, fsys, log)
	if err != nil {
		return err
	}

	csigs := loadContainerSignatures(cmd, fsys, manifest, opts, log)

	stats := sink.NewStats()
	sinks := []sink.Sink{matchLine, stats}

	if opts.MetricsFile != "" {
		sinks = append(sinks, sink.NewMetrics(opts.MetricsFile))
	}

	if opts.ReportFile != "" {
		report, closeReport, err := openReport(cmd, opts.ReportFile, manifest, paths)
		if err != nil {
			return err
		}
		defer closeReport()
		sinks = append(sinks, report)
	}

	var progress *pbar.ProgressBarState
	if opts.Progress {
		progress = pbar.NewProgressBarState(os.Stderr, 0)
		sinks = append(sinks, sink.Func(func(r sink.Result) error {
			progress.Add(r.Depth, r.Size)
			return nil
		}))
	}

	out := sink.Tee(sinks...)
	tracker := &match.Tracker{}

	idOpts := []identify.Option{
		identify.WithFs(fsys),
		identify.WithLogger(log),
		identify.WithSink(out),
		identify.WithTracker(tracker),
		identify.WithBufSize(opts.BufSize),
		identify.WithMmap(opts.Mmap),
		identify.WithRecurse(opts.Recurse),
		identify.WithTraverse(opts.Traverse),
		identify.WithContainerKinds(opts.Kinds...),
		identify.WithMaxDepth(opts.MaxDepth),
		identify.WithExtensionFallback(!opts.NoExtension),
		identify.WithContentOnly(opts.ContentOnly),
		identify.WithWorkers(opts.Workers),
		identify.WithMatchOptions(
			match.WithSlowThreshold(opts.SlowThreshold),
			match.WithVarScansTail(opts.VarTail),
			match.WithSuffixMode(opts.SuffixMode),
		),
	}
	if csigs != nil {
		idOpts = append(idOpts, identify.WithContainerSignatures(csigs))
	}
	id := identify.New(cat, idOpts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	err = identifyInputs(ctx, id, paths, opts.NameHint, progress)

	if progress != nil {
		progress.Finish()
	}
	if closeErr := sink.Close(out); closeErr != nil {
		log.Error("cannot finalize output", "error", closeErr)
	}

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%s: interrupted while identifying %s\n", env.AppName, tracker.Describe())
		return ErrInterrupted
	}
	if err != nil {
		return err
	}

	if !opts.Quiet {
		return stats.WriteSummary(os.Stderr, time.Since(start))
	}
	return nil
}

// identifyInputs identifies paths in order. Each "-" reads standard
// input; runs of other paths are identified as a batch.
func identifyInputs(ctx context.Context, id *identify.Identifier, paths []string, nameHint string, progress *pbar.ProgressBarState) error {
	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}

		files := id.Collect(batch)
		batch = nil
		if progress != nil {
			progress.TotalObjects += len(files)
		}
		return id.IdentifyAll(ctx, files)
	}

	for _, path := range paths {
		if path != "-" {
			batch = append(batch, path)
			continue
		}

		if err := flush(); err != nil {
			return err
		}
		if progress != nil {
			progress.TotalObjects++
		}
		if err := id.IdentifyStream(ctx, os.Stdin, nameHint); err != nil {
			return err
		}
	}
	return flush()
}

func loadContainerSignatures(cmd *cobra.Command, fsys afero.Fs, manifest *catalog.Manifest, opts identifyOptions, log *slog.Logger) *container.Signatures {
	if opts.ContentOnly {
		return nil
	}

	dir, _ := cmd.Flags().GetString("confdir")
	path := manifest.ContainerSignaturePath(dir)

	csigs, err := container.LoadSignaturesFile(fsys, path,
		container.WithSignatureBufSize(opts.ContainerBufSize),
		container.WithSignatureLogger(log),
	)
	if err != nil {
		log.Warn("container signatures disabled", "path", path, "error", err)
		return nil
	}
	return csigs
}

func openReport(cmd *cobra.Command, path string, manifest *catalog.Manifest, inputs []string) (sink.Sink, func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create report: %w", err)
	}

	report, err := sink.NewReport(f, dfxml.DFXMLHeader{
		XmlOutput: dfxml.XmlOutputVersion,
		Metadata:  dfxml.DefaultMetadata,
		Creator: dfxml.Creator{
			Package:     env.AppName,
			Version:     env.Version,
			CommandLine: strings.Join(os.Args, " "),
			Libraries: []dfxml.Library{
				{Name: manifest.PronomSignature, Version: manifest.PronomVersion},
				{Name: manifest.PronomContainerSignature, Version: manifest.PronomVersion},
				{Name: manifest.FidoExtensionSignature, Version: env.Version},
			},
			ExecutionEnvironment: dfxml.GetExecEnv(),
		},
		Source: dfxml.Source{Filenames: inputs},
	})
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("write report header: %w", err)
	}
	return report, f.Close, nil
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, "  __ _     _       ")
	fmt.Fprintln(w, " / _(_) __| | ___  ")
	fmt.Fprintln(w, "| |_| |/ _` |/ _ \\ ")
	fmt.Fprintln(w, "|  _| | (_| | (_) |")
	fmt.Fprintln(w, "|_| |_|\\__,_|\\___/ ")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Format Identification for Digital Objects, version %s\n", env.Version)
	fmt.Fprintln(w)
}
