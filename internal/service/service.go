package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/olgkv/bookmarkchecker/internal/domain"
	"github.com/olgkv/bookmarkchecker/internal/export"
	"github.com/olgkv/bookmarkchecker/internal/locale"
	"github.com/olgkv/bookmarkchecker/internal/ports"
)

var ErrNoBookmarks = errors.New("no bookmarks to check")

type Service struct {
	validator *Validator
	storage   ports.RunStorage
	logger    *slog.Logger

	inflight sync.WaitGroup
}

func New(v *Validator, storage ports.RunStorage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{validator: v, storage: storage, logger: logger}
}

// CheckBookmarks validates the batch and stores it as a new run. Individual
// link failures end up in the results; an error is returned only when the
// batch is empty or the run cannot be saved.
func (s *Service) CheckBookmarks(ctx context.Context, bookmarks []domain.Bookmark) (*domain.Run, error) {
	if len(bookmarks) == 0 {
		return nil, ErrNoBookmarks
	}

	s.inflight.Add(1)
	defer s.inflight.Done()

	results := s.validator.Validate(ctx, bookmarks)
	run, err := s.storage.SaveRun(results)
	if err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	s.logger.InfoContext(ctx, "run stored",
		slog.String("run_id", run.ID),
		slog.Int("total", run.Summary.Total),
		slog.Int("error", run.Summary.Error),
	)
	return run, nil
}

func (s *Service) Run(id string) (*domain.Run, error) {
	return s.storage.GetRun(id)
}

// Export encodes a stored run in the requested format.
func (s *Service) Export(ctx context.Context, id string, format export.Format, filter domain.Filter, lang locale.Lang) (*export.Document, error) {
	run, err := s.storage.GetRun(id)
	if err != nil {
		return nil, err
	}
	doc, err := export.Build(ctx, run.Results, format, filter, lang)
	if err != nil {
		return nil, fmt.Errorf("export run %s: %w", id, err)
	}
	return doc, nil
}

// Wait blocks until all in-flight checks have finished and their runs are stored.
func (s *Service) Wait() {
	s.inflight.Wait()
}
