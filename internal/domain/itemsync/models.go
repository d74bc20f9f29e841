// Package itemsync aggregates an item's accounts and transactions and runs
// the sync: authenticate, aggregate, persist, forward.
package itemsync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"pluggysync/internal/infrastructure/pluggy"
)

// Account is a provider account with its transaction list attached.
// Transactions is never nil once the account has been through the aggregator.
type Account struct {
	pluggy.Account
	Transactions []pluggy.Transaction
}

// MarshalJSON writes the provider's account object with a "transactions"
// member added, or replaced if the provider already sent one.
func (a Account) MarshalJSON() ([]byte, error) {
	obj, err := a.Account.MarshalJSON()
	if err != nil {
		return nil, err
	}

	txs := a.Transactions
	if txs == nil {
		txs = []pluggy.Transaction{}
	}
	list, err := marshalVerbatim(txs)
	if err != nil {
		return nil, err
	}

	return setMember(obj, "transactions", list)
}

// marshalVerbatim is json.Marshal without HTML escaping, so provider strings
// such as "A&B" come out byte for byte.
func marshalVerbatim(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// setMember adds key to a JSON object, keeping the existing members in order.
func setMember(obj []byte, key string, value json.RawMessage) ([]byte, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(obj, &members); err != nil {
		return nil, fmt.Errorf("account is not a JSON object: %w", err)
	}
	if _, ok := members[key]; ok {
		members[key] = value
		return marshalVerbatim(members)
	}

	obj = bytes.TrimSpace(obj)
	var buf bytes.Buffer
	buf.Write(obj[:len(obj)-1])
	if len(members) > 0 {
		buf.WriteByte(',')
	}
	fmt.Fprintf(&buf, "%q:", key)
	buf.Write(value)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ItemData is the composite document that is persisted and forwarded.
type ItemData struct {
	ItemID   string    `json:"-"`
	Accounts []Account `json:"accounts"`
}

// TransactionCount returns the number of (account, transaction) pairs.
func (d *ItemData) TransactionCount() int {
	n := 0
	for _, acc := range d.Accounts {
		n += len(acc.Transactions)
	}
	return n
}

// AggregateReport records which accounts fell back to an empty transaction list.
type AggregateReport struct {
	AccountsFound     int
	TransactionsFound int
	Degraded          []DegradedAccount
}

type DegradedAccount struct {
	AccountID string
	Err       error
}

// PersistResult is returned by a successful write.
type PersistResult struct {
	Inserted int
}

// RunResult summarizes one sync run. PersistErr and ForwardErr are
// recoverable failures; fatal failures are returned by Run instead.
type RunResult struct {
	RunID      string
	ItemID     string
	StartedAt  time.Time
	FinishedAt time.Time
	Report     *AggregateReport
	Persisted  int
	PersistErr error
	Forwarded  bool
	ForwardErr error
}
