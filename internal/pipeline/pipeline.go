// Package pipeline turns the bytes of an EPUB into one self-contained HTML
// fragment. A run walks a fixed sequence of states, resolving images and
// composing chapters in small concurrent batches and yielding between them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/yuanying/epubinline/internal/compose"
	"github.com/yuanying/epubinline/internal/epub"
	"github.com/yuanying/epubinline/internal/resolver"
	"golang.org/x/sync/errgroup"
)

// Batch size bounds. Values outside are clamped; zero selects the default.
const (
	DefaultImageBatchSize = 8
	MinImageBatchSize     = 5
	MaxImageBatchSize     = 10

	DefaultChapterBatchSize = 4
	MinChapterBatchSize     = 3
	MaxChapterBatchSize     = 5
)

// Options configures a Pipeline.
type Options struct {
	ImageBatchSize   int
	ChapterBatchSize int

	// MaxEntrySize caps the decompressed size of one archive entry.
	// Zero keeps the archive default.
	MaxEntrySize int64
	// MaxImageWidth downscales wider JPEG/PNG images. Zero disables.
	MaxImageWidth int
	// ResolveUnlisted inlines images referenced by chapters but missing
	// from the manifest.
	ResolveUnlisted bool

	Logger      *slog.Logger
	Diagnostics Diagnostics

	// Yield is called after every batch. It defaults to runtime.Gosched.
	Yield func()
	// ChapterLoadHook, when set, runs before each chapter is composed.
	ChapterLoadHook func(ctx context.Context, index int, idref string)
}

// Result is the output of a successful run.
type Result struct {
	Body     string
	Title    string
	Language string
	Creators []string

	// Cover is nil when the book declares no recognizable cover image.
	Cover    *epub.CoverInfo
	CoverURI string

	Chapters         []compose.Chapter
	ImagesResolved   int
	ImagesUnresolved int
	ImagesMissing    int // chapter references replaced by a placeholder
}

// Pipeline runs EPUB conversions. It holds no per-run state and may be
// used by several goroutines at once.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
	diag   Diagnostics
}

// New returns a pipeline with opts, applying defaults and clamping batch
// sizes into range.
func New(opts Options) *Pipeline {
	opts.ImageBatchSize = clamp(opts.ImageBatchSize, DefaultImageBatchSize, MinImageBatchSize, MaxImageBatchSize)
	opts.ChapterBatchSize = clamp(opts.ChapterBatchSize, DefaultChapterBatchSize, MinChapterBatchSize, MaxChapterBatchSize)
	if opts.Yield == nil {
		opts.Yield = runtime.Gosched
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	diag := opts.Diagnostics
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &Pipeline{opts: opts, logger: logger, diag: diag}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Run converts data. It returns a *ParseError for structural failures and
// an error wrapping ErrCancelled when ctx ends first; in both cases the
// Result is nil. Missing chapters and images never fail a run.
func (p *Pipeline) Run(ctx context.Context, data []byte) (*Result, error) {
	r := &run{
		p:       p,
		state:   StateIdle,
		entered: time.Now(),
	}
	res, err := r.execute(ctx, data)
	if r.archive != nil {
		r.archive.Release()
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

type run struct {
	p       *Pipeline
	state   State
	entered time.Time

	archive *epub.Archive
	pkg     *epub.Package
	assets  *resolver.Resolver
	result  Result
}

func (r *run) execute(ctx context.Context, data []byte) (*Result, error) {
	if err := r.enter(ctx, StateLoading); err != nil {
		return nil, err
	}
	if err := r.load(ctx, data); err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := r.enter(ctx, StateResolvingContainer); err != nil {
		return nil, err
	}
	opfPath, err := epub.ResolveOPFPath(r.archive)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	if err := r.enter(ctx, StateResolvingPackage); err != nil {
		return nil, err
	}
	if r.pkg, err = epub.ParsePackage(r.archive, opfPath); err != nil {
		return nil, r.fail(ctx, err)
	}
	r.result.Title = r.pkg.Metadata.Title
	r.result.Language = r.pkg.Metadata.Language
	r.result.Creators = r.pkg.Metadata.Creators
	r.result.Cover = r.pkg.DetectCover()

	if err := r.enter(ctx, StateResolvingAssets); err != nil {
		return nil, err
	}
	if err := r.resolveAssets(ctx); err != nil {
		return nil, err
	}

	if err := r.enter(ctx, StateComposing); err != nil {
		return nil, err
	}
	composed, err := r.compose(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.enter(ctx, StateExtractingBody); err != nil {
		return nil, err
	}
	r.result.Body = compose.ExtractBody(composed)

	if err := r.enter(ctx, StateDone); err != nil {
		return nil, err
	}
	r.p.logger.InfoContext(ctx, "epub composed",
		"title", r.result.Title,
		"chapters", len(r.result.Chapters),
		"images", r.result.ImagesResolved,
		"unresolved_images", r.result.ImagesUnresolved)
	return &r.result, nil
}

// enter moves the run to state to, unless ctx has ended, in which case the
// run is cancelled instead.
func (r *run) enter(ctx context.Context, to State) error {
	if ctx.Err() != nil {
		return r.cancel(ctx)
	}
	r.transition(ctx, to)
	return nil
}

func (r *run) transition(ctx context.Context, to State) {
	from := r.state
	now := time.Now()
	if from != StateIdle {
		r.p.diag.StageCompleted(from, now.Sub(r.entered))
	}
	r.state = to
	r.entered = now
	r.p.diag.StateChanged(from, to)
	r.p.logger.DebugContext(ctx, "pipeline state", "from", from, "to", to)
}

func (r *run) cancel(ctx context.Context) error {
	if !r.state.Terminal() {
		r.transition(ctx, StateCancelled)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

func (r *run) fail(ctx context.Context, err error) error {
	perr := &ParseError{Stage: r.state, Err: err}
	r.p.logger.ErrorContext(ctx, "epub rejected", "stage", r.state, "error", err)
	r.transition(ctx, StateFailed)
	return perr
}

func (r *run) load(ctx context.Context, data []byte) error {
	var opts []epub.ArchiveOption
	if r.p.opts.MaxEntrySize > 0 {
		opts = append(opts, epub.WithMaxEntrySize(r.p.opts.MaxEntrySize))
	}
	a, err := epub.OpenArchive(data, opts...)
	if err != nil {
		return err
	}
	r.archive = a
	r.p.logger.DebugContext(ctx, "archive loaded", "entries", a.Len())
	return epub.CheckDRM(a)
}

// resolveAssets inlines every manifest image, a batch at a time. Results
// are registered in manifest order once their batch completes, so which
// image wins a shared cache key never depends on scheduling.
func (r *run) resolveAssets(ctx context.Context) error {
	r.assets = resolver.New(r.archive, r.pkg.BaseDir, resolver.Options{
		MaxImageWidth: r.p.opts.MaxImageWidth,
		Logger:        r.p.logger,
	})

	images := r.pkg.Images()
	for start := 0; start < len(images); start += r.p.opts.ImageBatchSize {
		if ctx.Err() != nil {
			return r.cancel(ctx)
		}
		batch := images[start:min(start+r.p.opts.ImageBatchSize, len(images))]
		results := make([]resolver.Resolution, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		for i, item := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[i] = r.assets.ResolveItem(gctx, item)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return r.cancel(ctx)
		}

		for _, res := range results {
			r.assets.Register(res)
			r.p.diag.AssetResolved(res.Item.Href, res.OK())
			if res.OK() {
				r.result.ImagesResolved++
			} else {
				r.result.ImagesUnresolved++
			}
		}
		r.p.opts.Yield()
	}

	if cover := r.result.Cover; cover != nil {
		r.result.CoverURI, _ = r.assets.Cache().LookupAny(resolver.ImageCandidates(r.assets.BaseDir(), cover.Item.Href))
	}
	return nil
}

// compose renders the spine a batch at a time. Chapters of a batch finish
// in any order; the assembler emits them in spine order.
func (r *run) compose(ctx context.Context) (string, error) {
	c := compose.NewCompositor(r.archive, r.pkg, r.assets, compose.Options{
		ResolveUnlisted: r.p.opts.ResolveUnlisted,
		Logger:          r.p.logger,
	})
	asm := compose.NewAssembler()

	spine := r.pkg.Spine
	for start := 0; start < len(spine); start += r.p.opts.ChapterBatchSize {
		if ctx.Err() != nil {
			return "", r.cancel(ctx)
		}
		end := min(start+r.p.opts.ChapterBatchSize, len(spine))

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			ref := spine[i]
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if hook := r.p.opts.ChapterLoadHook; hook != nil {
					hook(gctx, i, ref.IDRef)
				}
				ch := c.ComposeChapter(gctx, i, ref)
				r.p.diag.ChapterComposed(ch.ManifestID, ch.Missing)
				return asm.Add(ch)
			})
		}
		if err := g.Wait(); err != nil {
			if ctx.Err() != nil {
				return "", r.cancel(ctx)
			}
			return "", r.fail(ctx, err)
		}
		r.p.opts.Yield()
	}

	if n := asm.Pending(); n > 0 {
		return "", r.fail(ctx, fmt.Errorf("%d chapters left unassembled", n))
	}
	r.result.Chapters = asm.Written()
	for _, ch := range r.result.Chapters {
		r.result.ImagesMissing += ch.ImagesMissing
	}
	return asm.String(), nil
}

func clamp(v, def, lo, hi int) int {
	switch {
	case v == 0:
		return def
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
