package itemsync

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"pluggysync/internal/infrastructure/pluggy"
)

var (
	fetchTracer      = otel.Tracer("pluggysync/itemsync")
	fetchMeter       = otel.Meter("pluggysync/itemsync")
	fetchDuration, _ = fetchMeter.Float64Histogram("itemsync.transactions.fetch.duration", metric.WithDescription("Transaction fetch duration in seconds"), metric.WithUnit("s"))
	fetchTotal, _    = fetchMeter.Int64Counter("itemsync.transactions.fetch.total", metric.WithDescription("Transaction fetches by status"))
	fetchedTotal, _  = fetchMeter.Int64Counter("itemsync.transactions.fetched", metric.WithDescription("Transactions received from the provider"))
)

type fetchResult struct {
	transactions []pluggy.Transaction
	err          error
}

// fetchTransactions returns one result per account, in account order.
// With more than one worker, a fixed pool of goroutines drains a channel of
// account indices; each worker writes only its own result slots.
func (a *Aggregator) fetchTransactions(ctx context.Context, apiKey string, accounts []pluggy.Account) []fetchResult {
	results := make([]fetchResult, len(accounts))

	workers := min(a.workers, len(accounts))
	if workers <= 1 {
		for i := range accounts {
			results[i] = a.fetchOne(ctx, 0, apiKey, accounts[i].ID)
		}
		return results
	}

	jobs := make(chan int, len(accounts))
	for i := range accounts {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for id := 1; id <= workers; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				results[i] = a.fetchOne(ctx, workerID, apiKey, accounts[i].ID)
			}
		}(id)
	}
	wg.Wait()

	return results
}

func (a *Aggregator) fetchOne(ctx context.Context, workerID int, apiKey, accountID string) fetchResult {
	ctx, span := fetchTracer.Start(ctx, "itemsync.fetch_transactions",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.String("account.id", accountID),
		),
	)
	defer span.End()

	start := time.Now()
	page, err := a.client.GetTransactions(ctx, apiKey, accountID)
	fetchDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		fetchTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		return fetchResult{err: err}
	}

	fetchTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "success")))

	var txs []pluggy.Transaction
	if page != nil {
		txs = page.Results
	}
	fetchedTotal.Add(ctx, int64(len(txs)))
	span.SetAttributes(attribute.Int("transactions.count", len(txs)))

	return fetchResult{transactions: txs}
}
