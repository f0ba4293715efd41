package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/yuanying/epubinline/internal/compose"
	"github.com/yuanying/epubinline/internal/config"
	"github.com/yuanying/epubinline/internal/metrics"
	"github.com/yuanying/epubinline/internal/pipeline"
)

const (
	formatHTML     = "html"
	formatMarkdown = "markdown"
)

var errTimeout = errors.New("conversion timed out")

type cliOptions struct {
	InputPath   string
	OutputPath  string // "-" writes to stdout
	Format      string
	MetricsPath string
	Timeout     time.Duration
	Pipeline    pipeline.Options
	Logger      *slog.Logger
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epubinline <book.epub>",
		Short: "Flatten an EPUB into a single self-contained HTML fragment",
		Long: `epubinline reads an EPUB archive and writes its chapters, in reading
order, as one HTML fragment. Images are embedded as data URIs and links
between chapters are rewritten to point inside the fragment.

Settings can also be given as EPUBINLINE_* environment variables;
flags take precedence.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := readCLIOptions(cmd, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), afero.NewOsFs(), cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringP("output", "o", "", "Output file path, - for stdout (default: input with .html or .md extension)")
	flags.String("format", formatHTML, "Output format: html, markdown")
	flags.Int("image-batch", pipeline.DefaultImageBatchSize, fmt.Sprintf("Images resolved per batch (%d-%d)", pipeline.MinImageBatchSize, pipeline.MaxImageBatchSize))
	flags.Int("chapter-batch", pipeline.DefaultChapterBatchSize, fmt.Sprintf("Chapters composed per batch (%d-%d)", pipeline.MinChapterBatchSize, pipeline.MaxChapterBatchSize))
	flags.Int("max-image-width", 0, "Downscale JPEG/PNG images wider than this many pixels (0 keeps originals)")
	flags.String("max-entry-size", "256MiB", "Largest decompressed archive entry accepted")
	flags.Bool("unlisted-images", false, "Inline images referenced by chapters but missing from the manifest")
	flags.Duration("timeout", 0, "Abort the conversion after this long (0 disables)")
	flags.String("metrics-file", "", "Write pipeline metrics in Prometheus text format to this file")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "text", "Log format: text, json")
	flags.BoolP("verbose", "v", false, "Shorthand for --log-level debug")
	return cmd
}

// readCLIOptions merges environment configuration with the flags that were
// set explicitly.
func readCLIOptions(cmd *cobra.Command, args []string) (*cliOptions, error) {
	conf, err := config.Parse()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()

	opts := &cliOptions{
		InputPath: args[0],
		Timeout:   conf.Pipeline.Timeout,
		Pipeline: pipeline.Options{
			ImageBatchSize:   conf.Pipeline.ImageBatchSize,
			ChapterBatchSize: conf.Pipeline.ChapterBatchSize,
			MaxImageWidth:    conf.Pipeline.MaxImageWidth,
			MaxEntrySize:     conf.Pipeline.MaxEntrySize,
			ResolveUnlisted:  conf.Pipeline.ResolveUnlisted,
		},
	}

	opts.Format, _ = flags.GetString("format")
	opts.Format = strings.ToLower(opts.Format)
	if opts.Format != formatHTML && opts.Format != formatMarkdown {
		return nil, fmt.Errorf("--format must be %s or %s, got %q", formatHTML, formatMarkdown, opts.Format)
	}

	opts.OutputPath, _ = flags.GetString("output")
	if opts.OutputPath == "" {
		opts.OutputPath = defaultOutputPath(opts.InputPath, opts.Format)
	}
	opts.MetricsPath, _ = flags.GetString("metrics-file")

	if flags.Changed("image-batch") {
		opts.Pipeline.ImageBatchSize, _ = flags.GetInt("image-batch")
	}
	if n := opts.Pipeline.ImageBatchSize; n < pipeline.MinImageBatchSize || n > pipeline.MaxImageBatchSize {
		return nil, fmt.Errorf("--image-batch must be between %d and %d, got %d", pipeline.MinImageBatchSize, pipeline.MaxImageBatchSize, n)
	}
	if flags.Changed("chapter-batch") {
		opts.Pipeline.ChapterBatchSize, _ = flags.GetInt("chapter-batch")
	}
	if n := opts.Pipeline.ChapterBatchSize; n < pipeline.MinChapterBatchSize || n > pipeline.MaxChapterBatchSize {
		return nil, fmt.Errorf("--chapter-batch must be between %d and %d, got %d", pipeline.MinChapterBatchSize, pipeline.MaxChapterBatchSize, n)
	}
	if flags.Changed("max-image-width") {
		opts.Pipeline.MaxImageWidth, _ = flags.GetInt("max-image-width")
	}
	if opts.Pipeline.MaxImageWidth < 0 {
		return nil, fmt.Errorf("--max-image-width must be >= 0, got %d", opts.Pipeline.MaxImageWidth)
	}
	if flags.Changed("max-entry-size") {
		raw, _ := flags.GetString("max-entry-size")
		size, err := humanize.ParseBytes(raw)
		if err != nil || size == 0 {
			return nil, fmt.Errorf("--max-entry-size must be a positive size such as 64MB, got %q", raw)
		}
		opts.Pipeline.MaxEntrySize = int64(size)
	}
	if flags.Changed("unlisted-images") {
		opts.Pipeline.ResolveUnlisted, _ = flags.GetBool("unlisted-images")
	}
	if flags.Changed("timeout") {
		opts.Timeout, _ = flags.GetDuration("timeout")
	}
	if opts.Timeout < 0 {
		return nil, fmt.Errorf("--timeout must be >= 0, got %s", opts.Timeout)
	}

	level := conf.Logger.Level
	if flags.Changed("log-level") {
		raw, _ := flags.GetString("log-level")
		if level, err = parseLogLevel(raw); err != nil {
			return nil, fmt.Errorf("--log-level: %w", err)
		}
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	format, _ := flags.GetString("log-format")
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return nil, fmt.Errorf("--log-format must be text or json, got %q", format)
	}
	opts.Logger = buildLogger(cmd.ErrOrStderr(), level, format)
	opts.Pipeline.Logger = opts.Logger

	return opts, nil
}

func run(ctx context.Context, fs afero.Fs, stdout io.Writer, opts *cliOptions) error {
	logger := opts.Logger
	started := time.Now()

	data, err := afero.ReadFile(fs, opts.InputPath)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	logger.InfoContext(ctx, "converting", "input", opts.InputPath, "size", humanize.Bytes(uint64(len(data))))

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, errTimeout)
		defer cancel()
	}

	collector := metrics.NewCollector()
	popts := opts.Pipeline
	popts.Diagnostics = collector

	res, err := pipeline.New(popts).Run(ctx, data)
	if opts.MetricsPath != "" {
		if merr := writeMetrics(fs, opts.MetricsPath, collector); merr != nil {
			logger.WarnContext(ctx, "failed to write metrics", "path", opts.MetricsPath, "error", merr)
		}
	}
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	out := res.Body
	if opts.Format == formatMarkdown {
		if out, err = compose.Markdown(res.Body); err != nil {
			return err
		}
	}

	if opts.OutputPath == "-" {
		if _, err := io.WriteString(stdout, out); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else if err := afero.WriteFile(fs, opts.OutputPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	logger.InfoContext(ctx, "done",
		"output", opts.OutputPath,
		"title", res.Title,
		"chapters", len(res.Chapters),
		"images", res.ImagesResolved,
		"size", humanize.Bytes(uint64(len(out))),
		"elapsed", time.Since(started).Round(time.Millisecond))
	if res.ImagesUnresolved > 0 || res.ImagesMissing > 0 {
		logger.WarnContext(ctx, "some images were not inlined",
			"unresolved_manifest_images", res.ImagesUnresolved,
			"placeholders", res.ImagesMissing)
	}
	return nil
}

func writeMetrics(fs afero.Fs, path string, c *metrics.Collector) error {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	if err := c.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(raw) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", raw)
}

func buildLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func defaultOutputPath(inputPath, format string) string {
	ext := ".html"
	if format == formatMarkdown {
		ext = ".md"
	}
	return strings.TrimSuffix(inputPath, filepath.Ext(inputPath)) + ext
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "epubinline:", err)
		stop()
		os.Exit(1)
	}
}
