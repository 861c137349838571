package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/docimport/internal/logging"
	"github.com/JonMunkholm/docimport/internal/schema"
	"github.com/JonMunkholm/docimport/internal/store"
)

// DefaultLocale is used when neither the request nor the config names one.
const DefaultLocale = "en-GB"

// Options tunes a Service.
type Options struct {
	MaxConcurrent  int           // concurrent runs
	MaxWait        time.Duration // wait for a run slot
	Timeout        time.Duration // per-run deadline, 0 for none
	MapConcurrency int           // rows mapped in parallel per run
	DefaultLocale  string
	Details        bool // include per-record details in results
}

// Service runs imports against a store.
type Service struct {
	store     store.MediaStore
	schemas   schema.Provider
	fetcher   Fetcher
	limiter   *ImportLimiter
	logger    *slog.Logger
	opts      Options
	mediaOpts []MediaOption
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithFetcher sets the media fetcher. The default is an HTTPFetcher with a
// 30s timeout.
func WithFetcher(f Fetcher) ServiceOption {
	return func(s *Service) { s.fetcher = f }
}

// WithMediaOptions passes options to every run's MediaIngestor.
func WithMediaOptions(opts ...MediaOption) ServiceOption {
	return func(s *Service) { s.mediaOpts = append(s.mediaOpts, opts...) }
}

// NewService creates an import service.
func NewService(st store.MediaStore, schemas schema.Provider, opts Options, logger *slog.Logger, extra ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MapConcurrency <= 0 {
		opts.MapConcurrency = 16
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = DefaultLocale
	}

	s := &Service{
		store:   st,
		schemas: schemas,
		limiter: NewImportLimiter(opts.MaxConcurrent, opts.MaxWait),
		logger:  logger,
		opts:    opts,
	}
	for _, opt := range extra {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = NewHTTPFetcher(HTTPFetcherConfig{Timeout: 30 * time.Second, UserAgent: "docimport/1.0"})
	}
	return s
}

// Submit validates req and runs the import. The error is a
// *RequestValidationError for malformed requests, ErrTooManyImports when no
// run slot frees up in time, or an *UnexpectedError when the run itself
// broke. Row-level failures never produce an error; they are listed in the
// result.
//
// ctx only bounds the wait for a run slot. Once a run starts it keeps the
// request values of ctx but not its cancellation, so every row is attempted
// even if the caller goes away; Options.Timeout is the only deadline.
func (s *Service) Submit(ctx context.Context, req Request) (*ImportResult, error) {
	coll, err := ValidateRequest(&req, s.schemas)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx = context.WithoutCancel(ctx)
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	return s.run(ctx, req, coll)
}

func (s *Service) run(ctx context.Context, req Request, coll schema.Collection) (result *ImportResult, err error) {
	ctx = logging.WithRunID(ctx, uuid.NewString())
	log := logging.FromContext(ctx, s.logger).With(
		"collection", coll.Slug,
		"mode", req.Settings.Mode,
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("import run panicked", "panic", r)
			result = nil
			err = &UnexpectedError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	start := time.Now()
	log.Info("import started",
		"rows", len(req.Data),
		"mappings", len(req.Settings.FieldMappings),
		"ip", GetIPAddressFromContext(ctx),
	)

	idx := coll.Index()
	ingestor := NewMediaIngestor(s.store, s.fetcher, NewMediaCache(), log, s.mediaOpts...)
	mapper := NewRowMapper(ingestor, log)
	resolver := NewRecordResolver(s.store, s.opts.DefaultLocale, log)

	mapped, mapErrs := s.mapRows(ctx, mapper, req, idx, coll)

	result = &ImportResult{Success: true, Errors: []string{}}
	for i, rec := range mapped {
		if mapErrs[i] != nil {
			result.Errors = append(result.Errors, mapErrs[i].Error())
			continue
		}
		if rec == nil {
			continue
		}

		out, err := resolver.Apply(ctx, rec, req.Settings, coll.Slug)
		if err != nil {
			rowErr := &RowError{Row: i + 1, Err: err}
			log.Debug("row failed", "row", i+1, "error", err)
			result.Errors = append(result.Errors, rowErr.Error())
			continue
		}

		switch out.Action {
		case ActionCreated:
			result.Created++
		case ActionUpdated:
			result.Updated++
		}

		if s.opts.Details {
			data := rec
			if req.Settings.Mode == ModeCreate {
				data = stripIdentity(rec)
			}
			result.Details = append(result.Details, RecordDetail{ID: out.ID, Action: out.Action, Data: data})
		}
	}

	result.Message = fmt.Sprintf("Import completed: created %d, updated %d records", result.Created, result.Updated)

	log.Info("import finished",
		"created", result.Created,
		"updated", result.Updated,
		"errors", len(result.Errors),
		"duration", time.Since(start),
	)
	return result, nil
}

// mapRows maps every row concurrently. Results are indexed by row position;
// a failed row has a nil record and a non-nil error.
func (s *Service) mapRows(ctx context.Context, mapper *RowMapper, req Request, idx schema.Index, coll schema.Collection) ([]MappedRecord, []error) {
	mapped := make([]MappedRecord, len(req.Data))
	errs := make([]error, len(req.Data))

	var g errgroup.Group
	g.SetLimit(s.opts.MapConcurrency)
	for i, row := range req.Data {
		i, row := i, row
		g.Go(func() error {
			mapped[i], errs[i] = mapper.Map(ctx, i+1, row, req.Settings, idx, coll)
			return nil
		})
	}
	_ = g.Wait()

	return mapped, errs
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// Collections lists the collections the service can import into.
func (s *Service) Collections() []schema.Collection {
	return s.schemas.All()
}

// Collection returns the named collection.
func (s *Service) Collection(slug string) (schema.Collection, bool) {
	return s.schemas.Get(slug)
}

// FailedResult is the response body for a run that did not complete.
func FailedResult(message string, problems ...string) *ImportResult {
	if problems == nil {
		problems = []string{}
	}
	return &ImportResult{Success: false, Errors: problems, Message: message}
}

// ResultForError builds the failure body for an error returned by Submit.
func ResultForError(err error) *ImportResult {
	var verr *RequestValidationError
	if errors.As(err, &verr) {
		return FailedResult("Invalid import payload", verr.Problems...)
	}
	if errors.Is(err, ErrTooManyImports) {
		return FailedResult(ErrTooManyImports.Error())
	}
	return FailedResult("Internal server error")
}

func stripIdentity(rec MappedRecord) MappedRecord {
	out := make(MappedRecord, len(rec))
	for k, v := range rec {
		if k != identityField {
			out[k] = v
		}
	}
	return out
}
