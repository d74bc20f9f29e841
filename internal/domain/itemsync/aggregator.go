package itemsync

import (
	"context"
	"errors"
	"fmt"

	"pluggysync/internal/infrastructure/pluggy"
	"pluggysync/internal/shared/logger"
)

// ErrNoAccounts is returned when the item has no accounts to sync.
var ErrNoAccounts = errors.New("item has no accounts")

// Aggregator attaches a transaction list to every account of an item.
type Aggregator struct {
	client  pluggy.ClientInterface
	workers int
}

// NewAggregator creates an aggregator. workers bounds concurrent transaction
// fetches; values below 2 fetch sequentially.
func NewAggregator(client pluggy.ClientInterface, workers int) *Aggregator {
	if workers < 1 {
		workers = 1
	}
	return &Aggregator{client: client, workers: workers}
}

// FetchItemData fetches the item's accounts and then each account's transactions.
// A failed account fetch (or an empty account list) is returned as an error and no
// transaction is requested. A failed transaction fetch only affects its own account,
// which gets an empty list and is listed in the report.
func (a *Aggregator) FetchItemData(ctx context.Context, apiKey, itemID string) (*ItemData, *AggregateReport, error) {
	log := logger.FromContext(ctx)

	page, err := a.client.GetAccounts(ctx, apiKey, itemID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}
	if page == nil || len(page.Results) == 0 {
		return nil, nil, ErrNoAccounts
	}

	providerAccounts := page.Results
	report := &AggregateReport{AccountsFound: len(providerAccounts)}
	log.Info().Int("accounts", report.AccountsFound).Msg("Fetching transactions for accounts")

	results := a.fetchTransactions(ctx, apiKey, providerAccounts)

	accounts := make([]Account, len(providerAccounts))
	for i, pa := range providerAccounts {
		res := results[i]
		txs := res.transactions
		if res.err != nil {
			log.Warn().Err(res.err).Str("account_id", pa.ID).Msg("Error getting transactions; using empty list")
			report.Degraded = append(report.Degraded, DegradedAccount{AccountID: pa.ID, Err: res.err})
			txs = nil
		}
		if txs == nil {
			txs = []pluggy.Transaction{}
		}
		accounts[i] = Account{Account: pa, Transactions: txs}
		report.TransactionsFound += len(txs)
	}

	log.Info().
		Int("accounts", report.AccountsFound).
		Int("transactions", report.TransactionsFound).
		Int("degraded", len(report.Degraded)).
		Msg("Aggregated item data")

	return &ItemData{ItemID: itemID, Accounts: accounts}, report, nil
}
