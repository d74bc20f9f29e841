package itemsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pluggysync/internal/infrastructure/pluggy"
	"pluggysync/internal/shared/logger"
)

var (
	// ErrAuthFailed wraps any failure to obtain an API key. Fatal for the run.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrAggregationFailed wraps any failure to fetch the item's accounts. Fatal for the run.
	ErrAggregationFailed = errors.New("item data unavailable")
)

var runTotal, _ = fetchMeter.Int64Counter("itemsync.run.total", metric.WithDescription("Sync runs by outcome"))

// Writer persists the aggregated item data.
type Writer interface {
	Write(ctx context.Context, data *ItemData) (*PersistResult, error)
}

// Forwarder delivers the aggregated item data downstream.
type Forwarder interface {
	Forward(ctx context.Context, runID string, data *ItemData) error
}

// Credentials are the client credentials exchanged for an API key.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Service runs one item sync.
type Service struct {
	client      pluggy.ClientInterface
	aggregator  *Aggregator
	writer      Writer
	forwarder   Forwarder
	credentials Credentials
	itemID      string
	logger      zerolog.Logger
	newRunID    func() string
}

// NewService creates a new item sync service
func NewService(
	client pluggy.ClientInterface,
	aggregator *Aggregator,
	writer Writer,
	forwarder Forwarder,
	credentials Credentials,
	itemID string,
	log zerolog.Logger,
) *Service {
	return &Service{
		client:      client,
		aggregator:  aggregator,
		writer:      writer,
		forwarder:   forwarder,
		credentials: credentials,
		itemID:      itemID,
		logger:      log,
		newRunID:    uuid.NewString,
	}
}

// Run authenticates, aggregates, persists and forwards.
//
// Authentication and account-fetch failures stop the run and are returned.
// A persistence failure is logged and recorded in the result, and the same
// data is still forwarded. A forwarding failure is logged and recorded.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{
		RunID:     s.newRunID(),
		ItemID:    s.itemID,
		StartedAt: time.Now(),
	}

	log := s.logger.With().Str("run_id", result.RunID).Str("item_id", s.itemID).Logger()
	ctx = logger.WithContext(ctx, log)

	ctx, span := fetchTracer.Start(ctx, "itemsync.run", trace.WithAttributes(
		attribute.String("run.id", result.RunID),
		attribute.String("item.id", s.itemID),
	))
	defer span.End()

	log.Info().Msg("Starting item sync")

	apiKey, err := s.client.Authenticate(ctx, s.credentials.ClientID, s.credentials.ClientSecret)
	if err != nil {
		log.Error().Err(err).Msg("Error getting API key")
		return s.abort(ctx, span, result, fmt.Errorf("%w: %w", ErrAuthFailed, err))
	}

	data, report, err := s.aggregator.FetchItemData(ctx, apiKey, s.itemID)
	if err != nil {
		log.Error().Err(err).Msg("Error getting item data")
		return s.abort(ctx, span, result, fmt.Errorf("%w: %w", ErrAggregationFailed, err))
	}
	result.Report = report

	persisted, err := s.writer.Write(ctx, data)
	if err != nil {
		result.PersistErr = err
		span.RecordError(err)
		log.Error().Err(err).Msg("Error saving data to database")
	} else if persisted != nil {
		result.Persisted = persisted.Inserted
	}

	if err := s.forwarder.Forward(ctx, result.RunID, data); err != nil {
		result.ForwardErr = err
		span.RecordError(err)
		log.Error().Err(err).Msg("Error sending data to endpoint")
	} else {
		result.Forwarded = true
	}

	result.FinishedAt = time.Now()
	outcome := "success"
	if result.PersistErr != nil || result.ForwardErr != nil || len(report.Degraded) > 0 {
		outcome = "partial"
	}
	runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	log.Info().
		Str("outcome", outcome).
		Int("accounts", report.AccountsFound).
		Int("transactions", report.TransactionsFound).
		Int("degraded_accounts", len(report.Degraded)).
		Int("persisted", result.Persisted).
		Bool("forwarded", result.Forwarded).
		Dur("elapsed", result.FinishedAt.Sub(result.StartedAt)).
		Msg("Item sync finished")

	return result, nil
}

func (s *Service) abort(ctx context.Context, span trace.Span, result *RunResult, err error) (*RunResult, error) {
	result.FinishedAt = time.Now()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	runTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "aborted")))
	return result, err
}
