package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rowhouse/rowhouse/internal/files"
	"github.com/rowhouse/rowhouse/internal/sheet"
)

// JobTimeout is the maximum duration for a deferred ingest job.
var JobTimeout = 10 * time.Minute

// Service orchestrates ingestion: it saves uploads, decodes and normalizes
// sheets, schedules the work per the requested mode, and merges results into
// the dataset store.
type Service struct {
	store   Store
	dir     *files.Dir
	limits  Limits
	limiter *IngestLimiter
	jobs    *jobRegistry
}

// NewService creates a Service. A zero limits value falls back to
// DefaultLimits; a nil limiter gets the default concurrency bounds.
func NewService(store Store, dir *files.Dir, limits Limits, limiter *IngestLimiter) *Service {
	if limits == (Limits{}) {
		limits = DefaultLimits
	}
	if limiter == nil {
		limiter = NewIngestLimiter(0, 0)
	}
	return &Service{
		store:   store,
		dir:     dir,
		limits:  limits,
		limiter: limiter,
		jobs:    newJobRegistry(),
	}
}

// Limits returns the row caps the service was built with.
func (s *Service) Limits() Limits {
	return s.limits
}

// IngestStatus reports current ingest slot usage for health checks.
func (s *Service) IngestStatus() LimiterStatus {
	return s.limiter.Status()
}

// IngestResult is the outcome of an upload or reprocess request. Exactly one
// field is set, matching the requested mode: Preview for preview mode,
// RowSet for sync and async.
type IngestResult struct {
	Preview *Preview
	RowSet  *RowSet
}

// Upload stores a new spreadsheet in the temp area and runs it through the
// requested mode. The returned result carries the stored filename callers
// need for later /process and /check-file requests.
func (s *Service) Upload(ctx context.Context, src io.Reader, originalName string, opts ProcessOptions) (*IngestResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !sheet.Supported(originalName) {
		return nil, ValidationError("unsupported spreadsheet type %q", filepath.Ext(originalName))
	}

	stored, err := s.dir.Save(src, originalName)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	slog.Info("upload stored", "file", stored, "mode", opts.ModeOrDefault())

	return s.run(ctx, stored, opts)
}

// Reprocess re-ingests a previously uploaded file by its stored name,
// filling any omitted options from the dataset's stored options.
func (s *Service) Reprocess(ctx context.Context, storedName string, opts ProcessOptions) (*IngestResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.dir.Stat(storedName); err != nil {
		return nil, fileError(storedName, err)
	}

	ds, err := s.store.DatasetByName(ctx, storedName)
	switch {
	case err == nil:
		opts = opts.MergeStored(ds.Options)
	case !IsKind(err, KindNotFound):
		return nil, err
	}

	return s.run(ctx, storedName, opts)
}

// run dispatches a stored file to the mode's pipeline.
func (s *Service) run(ctx context.Context, stored string, opts ProcessOptions) (*IngestResult, error) {
	switch opts.ModeOrDefault() {
	case ModePreview:
		p, err := s.preview(ctx, stored, opts)
		if err != nil {
			return nil, err
		}
		return &IngestResult{Preview: p}, nil
	case ModeAsync:
		rs, err := s.deferIngest(ctx, stored, opts)
		if err != nil {
			return nil, err
		}
		return &IngestResult{RowSet: rs}, nil
	default:
		rs, err := s.syncIngest(ctx, stored, opts)
		if err != nil {
			return nil, err
		}
		return &IngestResult{RowSet: rs}, nil
	}
}

// preview normalizes a sample of every sheet concurrently. Nothing is
// persisted; the temp file stays so the caller can /process afterwards.
func (s *Service) preview(ctx context.Context, stored string, opts ProcessOptions) (*Preview, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	s.dir.MarkInUse(stored)
	defer s.dir.Release(stored)

	f, err := s.dir.Open(stored)
	if err != nil {
		return nil, fileError(stored, err)
	}
	defer f.Close()

	sheets, err := sheet.ReadAll(f, stored, 0)
	if err != nil {
		return nil, ProcessingError(err, "could not read %s", stored)
	}

	limit := s.limits.PreviewCap(opts.Max)
	previews := make([]SheetPreview, len(sheets))

	g, gctx := errgroup.WithContext(ctx)
	for i := range sheets {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sh := sheets[i]
			rows := NormalizeRows(sh.Rows, opts.HeaderIndexValue(), opts.Keys, opts.Cols, 0)
			sample := rows
			if len(sample) > limit {
				sample = sample[:limit]
			}
			if sample == nil {
				sample = []Row{}
			}
			previews[i] = SheetPreview{Index: sh.Index, Name: sh.Name, Total: len(rows), Rows: sample}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Preview{Mode: ModePreview, Filename: stored, Limit: limit, Sheets: previews}, nil
}

// syncIngest normalizes the selected sheet and merges it into the store
// before responding.
func (s *Service) syncIngest(ctx context.Context, stored string, opts ProcessOptions) (*RowSet, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	s.dir.MarkInUse(stored)
	defer s.dir.Release(stored)

	rows, err := s.normalizeStored(ctx, stored, opts)
	if err != nil {
		return nil, err
	}

	ds, err := s.mergeRows(ctx, stored, opts, rows)
	if err != nil {
		return nil, err
	}
	return s.assembleRowSet(ctx, ds, Query{Limit: s.limits.PageLimit(0)})
}

// deferIngest persists the dataset with a processing import and hands the
// normalization to a background job. A concurrent request for the same
// import joins the job already in flight instead of starting another.
func (s *Service) deferIngest(ctx context.Context, stored string, opts ProcessOptions) (*RowSet, error) {
	key := importKey(stored, opts.SheetIndexValue())
	job, started := s.jobs.Begin(key)
	if !started {
		slog.Info("joined in-flight ingest", "key", key)
		ds, err := s.store.DatasetByName(ctx, stored)
		if err != nil {
			return nil, err
		}
		return s.deferredRowSet(ds), nil
	}

	ds, imp, err := s.deferShell(ctx, stored, opts)
	if err != nil {
		s.jobs.Finish(job, err)
		return nil, err
	}

	s.dir.MarkInUse(stored)
	go s.runDeferred(job, ds.ID, imp, stored, opts)

	slog.Info("ingest deferred", "dataset", ds.ID, "file", stored, "sheet", imp.SheetIndex)
	return s.deferredRowSet(ds), nil
}

// deferredRowSet is the immediate response for async mode: dataset metadata
// with the import marked processing and no rows.
func (s *Service) deferredRowSet(ds *Dataset) *RowSet {
	return &RowSet{
		Total:   0,
		Limit:   s.limits.PageLimit(0),
		Skip:    0,
		Dataset: ds,
		Rows:    []Row{},
	}
}

// deferShell creates or updates the dataset so the processing import is
// visible before the background job starts.
func (s *Service) deferShell(ctx context.Context, stored string, opts ProcessOptions) (*Dataset, Import, error) {
	now := time.Now().UTC()
	idx := opts.SheetIndexValue()

	ds, err := s.store.DatasetByName(ctx, stored)
	switch {
	case IsKind(err, KindNotFound):
		ds = s.newDataset(stored, opts, StatusProcessing, now)
		if err := s.store.CreateDataset(ctx, ds, nil); err != nil {
			return nil, Import{}, err
		}
	case err != nil:
		return nil, Import{}, err
	default:
		applyMeta(ds, opts, now)
		if err := s.store.UpdateMeta(ctx, ds); err != nil {
			return nil, Import{}, err
		}
		if existing := ds.ImportBySheet(stored, idx); existing != nil {
			if err := s.store.SetImportStatus(ctx, ds.ID, existing.ID, StatusProcessing, ""); err != nil {
				return nil, Import{}, err
			}
		} else {
			imp := Import{ID: uuid.NewString(), Dt: now, Filename: stored, SheetIndex: idx, Status: StatusProcessing}
			if err := s.store.AppendImport(ctx, ds.ID, imp, nil); err != nil {
				return nil, Import{}, err
			}
		}
	}

	fresh, err := s.store.Dataset(ctx, ds.ID)
	if err != nil {
		return nil, Import{}, err
	}
	imp := fresh.ImportBySheet(stored, idx)
	if imp == nil {
		return nil, Import{}, fmt.Errorf("dataset %s lost import for sheet %d", fresh.ID, idx)
	}
	return fresh, *imp, nil
}

// runDeferred executes one background ingest job to completion, recording
// the outcome on the import and in the job registry. It runs on a detached
// context so the originating request can return immediately.
func (s *Service) runDeferred(job *ingestJob, datasetID string, imp Import, stored string, opts ProcessOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
	defer cancel()
	defer s.dir.Release(stored)

	err := s.completeDeferred(ctx, job, datasetID, imp, stored, opts)
	if err != nil {
		slog.Error("deferred ingest failed", "dataset", datasetID, "file", stored, "error", err)
		if serr := s.store.SetImportStatus(ctx, datasetID, imp.ID, StatusFailed, PublicMessage(err)); serr != nil {
			slog.Error("could not record import failure", "dataset", datasetID, "error", serr)
		}
	} else {
		slog.Info("deferred ingest completed", "dataset", datasetID, "file", stored)
	}
	s.jobs.Finish(job, err)
}

// completeDeferred does the job's work: wait for a slot, normalize, replace
// the import's rows.
func (s *Service) completeDeferred(ctx context.Context, job *ingestJob, datasetID string, imp Import, stored string, opts ProcessOptions) error {
	if err := s.limiter.Acquire(ctx); err != nil {
		return err
	}
	defer s.limiter.Release()
	job.setPhase(PhaseProcessing)

	rows, err := s.normalizeStored(ctx, stored, opts)
	if err != nil {
		return err
	}

	imp.Dt = time.Now().UTC()
	imp.Status = StatusReady
	imp.Error = ""
	return s.store.ReplaceImportRows(ctx, datasetID, imp, rows)
}

// normalizeStored decodes the selected sheet of a stored file and normalizes
// it under the effective row cap.
func (s *Service) normalizeStored(ctx context.Context, stored string, opts ProcessOptions) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := s.dir.Open(stored)
	if err != nil {
		return nil, fileError(stored, err)
	}
	defer f.Close()

	sh, err := sheet.ReadOne(f, stored, opts.SheetIndexValue(), 0)
	if err != nil {
		switch {
		case errors.Is(err, sheet.ErrSheetIndex):
			return nil, ValidationError("sheet_index %d is out of range for %s", opts.SheetIndexValue(), stored)
		case errors.Is(err, sheet.ErrUnknownFormat):
			return nil, ValidationError("unsupported spreadsheet type %q", filepath.Ext(stored))
		default:
			return nil, ProcessingError(err, "could not read %s", stored)
		}
	}

	max := s.limits.RowCap(opts.Max)
	return NormalizeRows(sh.Rows, opts.HeaderIndexValue(), opts.Keys, opts.Cols, max), nil
}

// mergeRows persists a finished normalization run: first sight of a filename
// creates the dataset, a known (filename, sheet) pair replaces that import's
// rows, and a new sheet on a known file appends an import.
func (s *Service) mergeRows(ctx context.Context, stored string, opts ProcessOptions, rows []Row) (*Dataset, error) {
	now := time.Now().UTC()
	idx := opts.SheetIndexValue()

	ds, err := s.store.DatasetByName(ctx, stored)
	switch {
	case IsKind(err, KindNotFound):
		ds = s.newDataset(stored, opts, StatusReady, now)
		if err := s.store.CreateDataset(ctx, ds, rows); err != nil {
			return nil, err
		}
		return s.store.Dataset(ctx, ds.ID)
	case err != nil:
		return nil, err
	}

	applyMeta(ds, opts, now)
	if err := s.store.UpdateMeta(ctx, ds); err != nil {
		return nil, err
	}

	if existing := ds.ImportBySheet(stored, idx); existing != nil {
		imp := *existing
		imp.Dt = now
		imp.Status = StatusReady
		imp.Error = ""
		if err := s.store.ReplaceImportRows(ctx, ds.ID, imp, rows); err != nil {
			return nil, err
		}
	} else {
		imp := Import{ID: uuid.NewString(), Dt: now, Filename: stored, SheetIndex: idx, Status: StatusReady}
		if err := s.store.AppendImport(ctx, ds.ID, imp, rows); err != nil {
			return nil, err
		}
	}
	return s.store.Dataset(ctx, ds.ID)
}

// newDataset builds a dataset shell with a single import for its first run.
func (s *Service) newDataset(stored string, opts ProcessOptions, status ImportStatus, now time.Time) *Dataset {
	return &Dataset{
		ID:          uuid.NewString(),
		Name:        stored,
		Title:       opts.Title,
		Description: opts.Description,
		UserRef:     opts.UserRef,
		Options:     opts.Resolved(),
		Imports: []Import{{
			ID:         uuid.NewString(),
			Dt:         now,
			Filename:   stored,
			SheetIndex: opts.SheetIndexValue(),
			Status:     status,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// applyMeta refreshes a dataset's descriptive fields and stored options from
// a merged request.
func applyMeta(ds *Dataset, opts ProcessOptions, now time.Time) {
	ds.Title = opts.Title
	ds.Description = opts.Description
	ds.UserRef = opts.UserRef
	ds.Options = opts.Resolved()
	ds.UpdatedAt = now
}

// Query filters, sorts and pages a dataset's rows.
func (s *Service) Query(ctx context.Context, datasetID string, q Query) (*RowSet, error) {
	ds, err := s.store.Dataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	q.Limit = s.limits.PageLimit(q.Limit)
	return s.assembleRowSet(ctx, ds, q)
}

// assembleRowSet loads the dataset's rows and applies q to them.
func (s *Service) assembleRowSet(ctx context.Context, ds *Dataset, q Query) (*RowSet, error) {
	all, err := s.store.Rows(ctx, ds.ID)
	if err != nil {
		return nil, err
	}
	total, page, err := ApplyQuery(all, q)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = []Row{}
	}
	return &RowSet{Total: total, Limit: q.Limit, Skip: q.Start, Dataset: ds, Rows: page}, nil
}

// FileCheck is the /check-file response: whether the stored upload still
// exists, with its stats when it does.
type FileCheck struct {
	Exists bool        `json:"exists"`
	Info   *files.Info `json:"info,omitempty"`
}

// CheckFile reports whether a stored upload is still available for
// reprocessing.
func (s *Service) CheckFile(name string) (*FileCheck, error) {
	info, err := s.dir.Stat(name)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &FileCheck{Exists: false}, nil
	case errors.Is(err, files.ErrBadName):
		return nil, ValidationError("invalid filename %q", name)
	case err != nil:
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	return &FileCheck{Exists: true, Info: &info}, nil
}

// WaitForJobs blocks until every deferred ingest job has finished or ctx
// expires. Used during graceful shutdown.
func (s *Service) WaitForJobs(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.jobs.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fileError maps temp-area failures onto the domain vocabulary.
func fileError(name string, err error) error {
	switch {
	case errors.Is(err, files.ErrBadName):
		return ValidationError("invalid filename %q", name)
	case errors.Is(err, fs.ErrNotExist):
		return ExpiredResourceError("file %q is no longer available; upload it again", name)
	default:
		return fmt.Errorf("access %s: %w", name, err)
	}
}
