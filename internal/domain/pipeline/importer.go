package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/GriffinCanCode/applibrary/internal/domain/acquisition"
	"github.com/GriffinCanCode/applibrary/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/applibrary/internal/shared/id"
	"github.com/GriffinCanCode/applibrary/internal/shared/paths"
	"github.com/GriffinCanCode/applibrary/internal/shared/types"
	"go.uber.org/zap"
)

var (
	ErrInvalidURL         = errors.New("url must match https://.+")
	ErrUnsupportedArchive = errors.New("file must be an .ipa or .tipa archive")
	ErrNotReadable        = errors.New("file is not a readable regular file")
	ErrClosed             = errors.New("importer is closed")
)

var remoteURLPattern = regexp.MustCompile(`^https://.+$`)

// AcceptedExtensions lists archive extensions accepted for local import
var AcceptedExtensions = []string{".ipa", ".tipa"}

// ValidateRemoteURL rejects anything but an https URL.
func ValidateRemoteURL(url string) error {
	if !remoteURLPattern.MatchString(url) {
		return ErrInvalidURL
	}
	return nil
}

// IsAcceptedArchive reports whether path has an accepted extension.
func IsAcceptedArchive(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// Downloader queues remote fetches
type Downloader interface {
	SubmitWithStart(ctx context.Context, url, importID string, onStart func()) (<-chan acquisition.Result, error)
}

// Extractor expands archives into scratch directories
type Extractor interface {
	Extract(ctx context.Context, importID, src string) (string, error)
	Discard(importID string) error
}

// Registrar commits expanded bundles
type Registrar interface {
	Register(ctx context.Context, bundlePath, importID, sourceLocation string) (*types.CatalogEntry, error)
}

// Presenter shows and dismisses blocking progress for one import
type Presenter interface {
	ShowBlockingProgress(importID string)
	DismissBlockingProgress(importID string)
}

// CleanupPolicy decides what happens to scratch output of a failed run
type CleanupPolicy int

const (
	// CleanupOnFailure removes the scratch directory of a failed run
	CleanupOnFailure CleanupPolicy = iota
	// KeepOnFailure leaves it for inspection; Sweep collects it later
	KeepOnFailure
)

func (p CleanupPolicy) String() string {
	if p == KeepOnFailure {
		return "keep"
	}
	return "cleanup"
}

// Options configures an Importer
type Options struct {
	// InboxDir holds uploaded archives; files inside it are removed once
	// their import ends
	InboxDir  string
	Cleanup   CleanupPolicy
	Presenter Presenter
	Tracker   *Tracker
	Logger    *zap.Logger
	Metrics   *monitoring.Metrics
}

// Importer resolves a local file or remote URL into a catalog entry by
// running acquire, extract and register in order on a background goroutine.
type Importer struct {
	ctx        context.Context
	downloader Downloader
	extractor  Extractor
	registrar  Registrar
	opts       Options
	logger     *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewImporter creates an importer. ctx bounds every background run.
func NewImporter(ctx context.Context, downloader Downloader, extractor Extractor, registrar Registrar, opts Options) *Importer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Presenter == nil {
		opts.Presenter = nopPresenter{}
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker(DefaultRetention)
	}
	return &Importer{
		ctx:        ctx,
		downloader: downloader,
		extractor:  extractor,
		registrar:  registrar,
		opts:       opts,
		logger:     opts.Logger,
	}
}

// Tracker exposes import status for polling
func (i *Importer) Tracker() *Tracker {
	return i.opts.Tracker
}

// archiveRef is a local archive waiting for extraction.
type archiveRef struct {
	importID       string
	path           string
	sourceLocation string
}

// expanded is an extracted bundle waiting for registration.
type expanded struct {
	importID       string
	bundlePath     string
	sourceLocation string
}

// download is an accepted remote request waiting for its archive.
type download struct {
	importID       string
	sourceLocation string
	results        <-chan acquisition.Result
	started        <-chan struct{}
}

// ImportLocal imports an archive already on disk. Input problems are
// returned before anything starts; the returned ID identifies the run.
func (i *Importer) ImportLocal(path string) (string, error) {
	if !IsAcceptedArchive(path) {
		i.logger.Warn("Rejected local import", zap.String("path", path), zap.Error(ErrUnsupportedArchive))
		return "", ErrUnsupportedArchive
	}
	if err := checkReadable(path); err != nil {
		i.logger.Warn("Rejected local import", zap.String("path", path), zap.Error(err))
		return "", err
	}

	importID := id.NewImportID().String()
	run := Then(
		track(i, importID, StageExtract, types.ImportExtracting, i.extractStage()),
		track(i, importID, StageRegister, types.ImportRegistering, i.registerStage()),
	)
	in := archiveRef{importID: importID, path: path, sourceLocation: types.SourceLocalFile}

	err := i.launch(importID, types.ImportSourceLocal, path, types.SourceLocalFile, types.ImportExtracting,
		func(ctx context.Context) (*types.CatalogEntry, error) {
			return run(ctx, in)
		},
		func() {
			if i.opts.InboxDir != "" && paths.Within(i.opts.InboxDir, path) {
				os.Remove(path)
			}
		})
	if err != nil {
		return "", err
	}
	return importID, nil
}

// ImportRemote downloads url and imports it. sourceLocation is stored as
// provenance. A full acquisition queue is reported here, before any
// progress is shown.
func (i *Importer) ImportRemote(url, sourceLocation string) (string, error) {
	if err := ValidateRemoteURL(url); err != nil {
		i.logger.Warn("Rejected remote import", zap.String("url", url), zap.Error(err))
		return "", err
	}
	if sourceLocation == "" {
		sourceLocation = types.SourceURL
	}
	if i.isClosed() {
		return "", ErrClosed
	}

	importID := id.NewImportID().String()
	started := make(chan struct{})
	results, err := i.downloader.SubmitWithStart(i.ctx, url, importID, func() { close(started) })
	if err != nil {
		i.logger.Warn("Rejected remote import", zap.String("url", url), zap.Error(err))
		return "", err
	}

	var archivePath string
	run := Then(
		Then(
			track(i, importID, StageAcquire, "", i.acquireStage(&archivePath)),
			track(i, importID, StageExtract, types.ImportExtracting, i.extractStage()),
		),
		track(i, importID, StageRegister, types.ImportRegistering, i.registerStage()),
	)
	in := download{importID: importID, sourceLocation: sourceLocation, results: results, started: started}

	err = i.launch(importID, types.ImportSourceRemote, url, sourceLocation, types.ImportQueued,
		func(ctx context.Context) (*types.CatalogEntry, error) {
			return run(ctx, in)
		},
		func() {
			if archivePath != "" {
				os.Remove(archivePath)
			}
		})
	if err != nil {
		// The download was already queued; drop whatever it produces
		go func() {
			if res := <-results; res.Path != "" {
				os.Remove(res.Path)
			}
		}()
		return "", err
	}
	return importID, nil
}

// Wait blocks until every running import has finished.
func (i *Importer) Wait() {
	i.wg.Wait()
}

// Close stops accepting imports and waits for running ones.
func (i *Importer) Close() {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()
	i.wg.Wait()
}

func (i *Importer) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

// launch registers the run and starts it in the background.
func (i *Importer) launch(importID string, source types.ImportSource, origin, sourceLocation string,
	initial types.ImportState, run func(context.Context) (*types.CatalogEntry, error), release func()) error {

	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return ErrClosed
	}
	i.wg.Add(1)
	i.mu.Unlock()

	i.opts.Tracker.Start(importID, source, origin, sourceLocation, initial)
	i.opts.Presenter.ShowBlockingProgress(importID)

	go func() {
		defer i.wg.Done()
		defer i.opts.Presenter.DismissBlockingProgress(importID)
		defer release()

		entry, err := run(i.ctx)
		i.finish(importID, source, entry, err)
	}()
	return nil
}

func (i *Importer) finish(importID string, source types.ImportSource, entry *types.CatalogEntry, err error) {
	log := i.logger.With(zap.String("import_id", importID), zap.String("source", string(source)))

	if err != nil {
		stage := FailedStage(err)
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			stageErr.ImportID = importID
		}

		if i.opts.Cleanup == CleanupOnFailure {
			if derr := i.extractor.Discard(importID); derr != nil {
				log.Warn("Failed to discard scratch directory", zap.Error(derr))
			}
		}

		i.opts.Tracker.Fail(importID, stage, err)
		i.opts.Metrics.RecordImport(string(source), false)
		log.Error("Failed to import",
			zap.String("stage", stage),
			zap.String("cleanup", i.opts.Cleanup.String()),
			zap.Error(err))
		return
	}

	// The bundle has moved out; what is left of scratch is empty shells
	if derr := i.extractor.Discard(importID); derr != nil {
		log.Warn("Failed to discard scratch directory", zap.Error(derr))
	}

	i.opts.Tracker.Complete(importID, entry.ID)
	i.opts.Metrics.RecordImport(string(source), true)
	log.Info("Import complete",
		zap.String("entry_id", entry.ID),
		zap.String("name", entry.Name),
		zap.String("bundle_identifier", entry.BundleIdentifier))
}

// track names s, records its state and measures it. An empty state leaves
// the tracked state to the stage itself.
func track[In, Out any](i *Importer, importID, name string, state types.ImportState, s Stage[In, Out]) Stage[In, Out] {
	return Named(name, func(ctx context.Context, in In) (Out, error) {
		if state != "" {
			i.opts.Tracker.SetState(importID, state)
		}
		timer := monitoring.NewTimer(i.opts.Metrics, name)
		out, err := s(ctx, in)
		timer.Stop(err)
		return out, err
	})
}

func (i *Importer) acquireStage(archivePath *string) Stage[download, archiveRef] {
	return func(ctx context.Context, d download) (archiveRef, error) {
		res, err := i.awaitDownload(ctx, d)
		if err != nil {
			return archiveRef{}, err
		}
		if res.Err != nil {
			return archiveRef{}, res.Err
		}
		*archivePath = res.Path
		return archiveRef{importID: d.importID, path: res.Path, sourceLocation: d.sourceLocation}, nil
	}
}

func (i *Importer) extractStage() Stage[archiveRef, expanded] {
	return func(ctx context.Context, a archiveRef) (expanded, error) {
		bundlePath, err := i.extractor.Extract(ctx, a.importID, a.path)
		if err != nil {
			return expanded{}, err
		}
		return expanded{importID: a.importID, bundlePath: bundlePath, sourceLocation: a.sourceLocation}, nil
	}
}

func (i *Importer) registerStage() Stage[expanded, *types.CatalogEntry] {
	return func(ctx context.Context, e expanded) (*types.CatalogEntry, error) {
		return i.registrar.Register(ctx, e.bundlePath, e.importID, e.sourceLocation)
	}
}

func checkReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadable, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotReadable, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadable, err)
	}
	return f.Close()
}

type nopPresenter struct{}

func (nopPresenter) ShowBlockingProgress(string)    {}
func (nopPresenter) DismissBlockingProgress(string) {}

// awaitDownload waits for the result, moving the import from queued to
// downloading once the worker picks it up.
func (i *Importer) awaitDownload(ctx context.Context, d download) (acquisition.Result, error) {
	started := d.started
	for {
		select {
		case <-started:
			i.opts.Tracker.SetState(d.importID, types.ImportDownloading)
			started = nil
		case res := <-d.results:
			return res, nil
		case <-ctx.Done():
			return acquisition.Result{}, ctx.Err()
		}
	}
}
