package pluggy

import (
	"context"
)

// ClientInterface defines the methods required from the Pluggy API client
type ClientInterface interface {
	Authenticate(ctx context.Context, clientID, clientSecret string) (string, error)
	GetAccounts(ctx context.Context, apiKey, itemID string) (*Page[Account], error)
	GetTransactions(ctx context.Context, apiKey, accountID string) (*Page[Transaction], error)
}
