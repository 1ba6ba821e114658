// Package history keeps the bounded, newest-first log of completed
// distributions.
package history

import (
	"context"
	"fmt"
	"log/slog"

	"faucet/internal/faucet/metrics"
	"faucet/internal/faucet/models"
	"faucet/internal/faucet/ports"
	"faucet/internal/faucet/store/records"
	dErrors "faucet/pkg/domain-errors"
)

type Store = ports.Store

type Service struct {
	doc     *records.Document[[]models.DistributionRecord]
	logger  *slog.Logger
	metrics *metrics.Metrics
	retries int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithUpdateAttempts bounds the compare-and-swap retries per record.
func WithUpdateAttempts(n int) Option {
	return func(s *Service) {
		s.retries = n
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("history store is required")
	}
	svc := &Service{logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	svc.doc = records.NewDocument[[]models.DistributionRecord](store, models.KeyHistory,
		records.WithConflictHook(svc.metrics.IncConflict),
		records.WithMaxAttempts(svc.retries),
	)
	return svc, nil
}

// Record prepends entry, evicting the oldest records beyond the cap.
func (s *Service) Record(ctx context.Context, entry models.DistributionRecord) error {
	_, err := s.doc.Update(ctx, func(list *[]models.DistributionRecord) error {
		next := make([]models.DistributionRecord, 0, min(len(*list)+1, models.MaxHistoryRecords))
		next = append(next, entry)
		for _, r := range *list {
			if len(next) == models.MaxHistoryRecords {
				break
			}
			next = append(next, r)
		}
		*list = next
		return nil
	})
	if err != nil {
		if _, ok := dErrors.As(err); ok {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record distribution")
	}
	return nil
}

// Recent returns up to limit records, newest first. A non-positive limit
// returns everything retained.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.DistributionRecord, error) {
	list, err := s.doc.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read distribution history")
	}
	return truncate(list, limit), nil
}

// Public is Recent without the records whose owner asked to stay anonymous.
func (s *Service) Public(ctx context.Context, limit int) ([]models.DistributionRecord, error) {
	list, err := s.doc.Load(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read distribution history")
	}
	visible := make([]models.DistributionRecord, 0, len(list))
	for _, r := range list {
		if !r.Anonymous {
			visible = append(visible, r)
		}
	}
	return truncate(visible, limit), nil
}

func truncate(list []models.DistributionRecord, limit int) []models.DistributionRecord {
	if list == nil {
		return []models.DistributionRecord{}
	}
	if limit > 0 && limit < len(list) {
		return list[:limit]
	}
	return list
}
