// Package uploadwatch uploads documents dropped into a directory. A file is
// uploaded once it has stopped changing for the settle period, so partially
// copied files are not sent.
package uploadwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/logger"
	"go.uber.org/zap"
)

// Uploader sends one file to the backend.
type Uploader interface {
	UploadFile(ctx context.Context, upload backend.UploadRequest) error
}

// Result reports the outcome of one upload.
type Result struct {
	Path string
	Err  error
}

// Opts holds parameters for creating a Watcher.
type Opts struct {
	Dir          string
	Extensions   []string      // defaults to .pdf
	Settle       time.Duration // defaults to config.DefaultUploadSettle
	Uploader     Uploader
	CompanyName  string
	DocumentType string
	Fields       map[string]string
	Logger       *zap.Logger
	OnResult     func(Result) // optional, called on the Run goroutine
}

// Watcher watches one directory.
type Watcher struct {
	fw       *fsnotify.Watcher
	dir      string
	exts     map[string]bool
	settle   time.Duration
	uploader Uploader
	req      backend.UploadRequest
	log      *zap.Logger
	onResult func(Result)
}

// New starts watching opts.Dir. Events are only processed while Run is
// running.
func New(opts Opts) (*Watcher, error) {
	if opts.Uploader == nil {
		return nil, fmt.Errorf("uploadwatch: uploader is required")
	}
	info, err := os.Stat(opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("uploadwatch: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("uploadwatch: %s is not a directory", opts.Dir)
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		extSet[e] = true
	}
	settle := opts.Settle
	if settle <= 0 {
		settle = config.DefaultUploadSettle
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("uploadwatch: create watcher: %w", err)
	}
	if err := fw.Add(opts.Dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("uploadwatch: watch %s: %w", opts.Dir, err)
	}

	return &Watcher{
		fw:       fw,
		dir:      opts.Dir,
		exts:     extSet,
		settle:   settle,
		uploader: opts.Uploader,
		req: backend.UploadRequest{
			CompanyName:  opts.CompanyName,
			DocumentType: opts.DocumentType,
			Fields:       opts.Fields,
		},
		log:      logger.OrNop(opts.Logger),
		onResult: opts.OnResult,
	}, nil
}

// Run processes events until ctx is done or the watcher is closed. Uploads
// run one at a time; failures are logged and not retried.
func (w *Watcher) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	d := newDebouncer(w.settle, done)
	defer d.stop()

	w.log.Info("uploadwatch: watching", zap.String("dir", w.dir), zap.Duration("settle", w.settle))
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !w.matches(ev.Name) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				d.cancel(ev.Name)
			case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
				d.touch(ev.Name)
			}

		case f := <-d.ready:
			if !d.take(f) {
				continue
			}
			w.report(Result{Path: f.path, Err: w.upload(ctx, f.path)})

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("uploadwatch: watcher error", zap.Error(err))
		}
	}
}

// settled is a file whose timer fired. gen identifies the timer, so a fire
// that was overtaken by a later write can be told apart from the current one.
type settled struct {
	path string
	gen  uint64
}

type pendingFile struct {
	timer *time.Timer
	gen   uint64
}

// debouncer tracks one settle timer per path. It is owned by the Run
// goroutine; only the timer callbacks run elsewhere, and they only send on
// ready.
type debouncer struct {
	settle  time.Duration
	ready   chan settled
	done    <-chan struct{}
	pending map[string]pendingFile
	gen     uint64
}

func newDebouncer(settle time.Duration, done <-chan struct{}) *debouncer {
	return &debouncer{
		settle:  settle,
		ready:   make(chan settled, 16),
		done:    done,
		pending: make(map[string]pendingFile),
	}
}

// touch (re)starts the settle timer for path. A fire already queued from an
// earlier timer becomes stale.
func (d *debouncer) touch(path string) {
	if p, ok := d.pending[path]; ok {
		p.timer.Stop()
	}
	d.gen++
	f := settled{path: path, gen: d.gen}
	d.pending[path] = pendingFile{
		gen: f.gen,
		timer: time.AfterFunc(d.settle, func() {
			select {
			case d.ready <- f:
			case <-d.done:
			}
		}),
	}
}

func (d *debouncer) cancel(path string) {
	if p, ok := d.pending[path]; ok {
		p.timer.Stop()
		delete(d.pending, path)
	}
}

// take reports whether f is the current timer for its path and, if so,
// forgets the path.
func (d *debouncer) take(f settled) bool {
	p, ok := d.pending[f.path]
	if !ok || p.gen != f.gen {
		return false
	}
	delete(d.pending, f.path)
	return true
}

func (d *debouncer) stop() {
	for _, p := range d.pending {
		p.timer.Stop()
	}
}

func (w *Watcher) matches(path string) bool {
	return w.exts[strings.ToLower(filepath.Ext(path))]
}

func (w *Watcher) upload(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("uploadwatch: open %s: %w", path, err)
	}
	defer f.Close()

	req := w.req
	req.FileName = filepath.Base(path)
	req.Content = f
	return w.uploader.UploadFile(ctx, req)
}

func (w *Watcher) report(r Result) {
	if r.Err != nil {
		w.log.Error("uploadwatch: upload failed", zap.String("path", r.Path), zap.Error(r.Err))
	} else {
		w.log.Info("uploadwatch: uploaded", zap.String("path", r.Path))
	}
	if w.onResult != nil {
		w.onResult(r)
	}
}

// Close stops watching. Run returns after Close.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
