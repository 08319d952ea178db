package plaid

import (
	"context"

	"github.com/plaid/plaid-go/v41/plaid"
)

// WebhookKey fetches the JWK that signed a webhook.
func (a *Aggregator) WebhookKey(ctx context.Context, kid string) (*plaid.JWKPublicKey, error) {
	ctx, finish := a.begin(ctx, "WebhookVerificationKeyGet")

	req := *plaid.NewWebhookVerificationKeyGetRequest(kid)
	resp, _, err := a.client.PlaidApi.WebhookVerificationKeyGet(ctx).
		WebhookVerificationKeyGetRequest(req).
		Execute()
	if err = finish(err); err != nil {
		return nil, err
	}
	key := resp.GetKey()
	return &key, nil
}
