package plaid

import (
	"bonustrack-server/src/models"
	"bonustrack-server/src/services"
	"bonustrack-server/src/util"
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	transactionsPageSize = 500
	codeInvalidPublicTok = "INVALID_PUBLIC_TOKEN"
)

var tracer = otel.Tracer("bonustrack-server/plaid")

// Aggregator implements services.Aggregator on top of the Plaid API. Every
// call runs under its own timeout; failures come back as
// models.ErrUpstreamUnavailable or models.ErrInvalidSessionResult.
type Aggregator struct {
	client     *plaid.APIClient
	clientName string
	webhookURL string
	timeout    time.Duration
}

var _ services.Aggregator = (*Aggregator)(nil)

func NewAggregator(client *plaid.APIClient, clientName, webhookURL string, timeout time.Duration) *Aggregator {
	return &Aggregator{client: client, clientName: clientName, webhookURL: webhookURL, timeout: timeout}
}

// begin starts a bounded, traced call. The returned finish func must be called exactly once.
func (a *Aggregator) begin(ctx context.Context, op string) (context.Context, func(error) error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	ctx, finish := a.trace(ctx, op)
	return ctx, func(err error) error {
		defer cancel()
		return finish(err)
	}
}

// trace starts a span without a deadline, for operations made of several bounded calls.
func (a *Aggregator) trace(ctx context.Context, op string) (context.Context, func(error) error) {
	ctx, span := tracer.Start(ctx, "plaid."+op, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, func(err error) error {
		defer span.End()
		if err == nil {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, op)
		return classify(op, err)
	}
}

func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("plaid %s timed out: %w", op, models.ErrUpstreamUnavailable)
	}
	if perr, convErr := plaid.ToPlaidError(err); convErr == nil {
		if perr.GetErrorCode() == codeInvalidPublicTok {
			return fmt.Errorf("plaid %s: %s: %w", op, perr.GetErrorMessage(), models.ErrInvalidSessionResult)
		}
		return fmt.Errorf("plaid %s: %s %s: %w", op, perr.GetErrorCode(), perr.GetErrorMessage(), models.ErrUpstreamUnavailable)
	}
	return fmt.Errorf("plaid %s: %w: %w", op, models.ErrUpstreamUnavailable, err)
}

func (a *Aggregator) CreateLinkSession(ctx context.Context, userID int64) (string, error) {
	ctx, finish := a.begin(ctx, "LinkTokenCreate")

	user := plaid.LinkTokenCreateRequestUser{
		ClientUserId: strconv.FormatInt(userID, 10),
	}
	request := plaid.NewLinkTokenCreateRequest(
		a.clientName,
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
	)
	request.SetUser(user)
	request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	if a.webhookURL != "" {
		request.SetWebhook(a.webhookURL)
	}

	resp, _, err := a.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*request).Execute()
	if err = finish(err); err != nil {
		return "", err
	}
	return resp.GetLinkToken(), nil
}

func (a *Aggregator) ExchangeSession(ctx context.Context, publicToken string) (*models.AccessGrant, error) {
	ctx, finish := a.begin(ctx, "ItemPublicTokenExchange")

	request := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := a.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*request).Execute()
	if err = finish(err); err != nil {
		return nil, err
	}
	return &models.AccessGrant{AccessToken: resp.GetAccessToken(), ItemID: resp.GetItemId()}, nil
}

// GetInstitution returns "" when the item has no institution attached.
func (a *Aggregator) GetInstitution(ctx context.Context, accessToken string) (string, error) {
	ctx, finish := a.begin(ctx, "ItemGet")

	request := plaid.NewItemGetRequest(accessToken)
	resp, _, err := a.client.PlaidApi.ItemGet(ctx).ItemGetRequest(*request).Execute()
	if err = finish(err); err != nil {
		return "", err
	}
	item := resp.GetItem()
	return item.GetInstitutionId(), nil
}

func (a *Aggregator) GetInstitutionName(ctx context.Context, institutionID string) (string, error) {
	ctx, finish := a.begin(ctx, "InstitutionsGetById")

	request := plaid.NewInstitutionsGetByIdRequest(institutionID, []plaid.CountryCode{plaid.COUNTRYCODE_US})
	resp, _, err := a.client.PlaidApi.InstitutionsGetById(ctx).InstitutionsGetByIdRequest(*request).Execute()
	if err = finish(err); err != nil {
		return "", err
	}
	institution := resp.GetInstitution()
	return institution.GetName(), nil
}

func (a *Aggregator) GetAccounts(ctx context.Context, accessToken string) ([]models.ExternalAccount, error) {
	ctx, finish := a.begin(ctx, "AccountsGet")

	request := plaid.NewAccountsGetRequest(accessToken)
	resp, _, err := a.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*request).Execute()
	if err = finish(err); err != nil {
		return nil, err
	}

	accounts := make([]models.ExternalAccount, 0, len(resp.GetAccounts()))
	for _, acc := range resp.GetAccounts() {
		accounts = append(accounts, toExternalAccount(acc))
	}
	return accounts, nil
}

// GetTransactions pages through TransactionsGet until the reported total is
// reached. Each page gets its own timeout.
func (a *Aggregator) GetTransactions(ctx context.Context, accessToken string, start, end time.Time) ([]models.AggregatorTransaction, error) {
	ctx, finish := a.trace(ctx, "TransactionsGet")
	span := trace.SpanFromContext(ctx)

	request := plaid.NewTransactionsGetRequest(accessToken, start.Format(util.DateLayout), end.Format(util.DateLayout))
	var out []models.AggregatorTransaction
	var offset int32
	for {
		options := plaid.TransactionsGetRequestOptions{}
		options.SetCount(transactionsPageSize)
		options.SetOffset(offset)
		request.SetOptions(options)

		resp, err := a.transactionsPage(ctx, request)
		if err != nil {
			return nil, finish(err)
		}

		page := resp.GetTransactions()
		for _, t := range page {
			converted, err := toAggregatorTransaction(t)
			if err != nil {
				log.Printf("WARN: Skipping Plaid transaction %s: %v", t.GetTransactionId(), err)
				continue
			}
			out = append(out, converted)
		}

		offset += int32(len(page))
		if len(page) == 0 || offset >= resp.GetTotalTransactions() {
			break
		}
	}

	span.SetAttributes(attribute.Int("plaid.transactions", len(out)))
	return out, finish(nil)
}

func toExternalAccount(acc plaid.AccountBase) models.ExternalAccount {
	balances := acc.GetBalances()
	return models.ExternalAccount{
		ID:           acc.GetAccountId(),
		Name:         acc.GetName(),
		OfficialName: acc.GetOfficialName(),
		Type:         string(acc.GetType()),
		Subtype:      string(acc.GetSubtype()),
		Mask:         acc.GetMask(),
		Balances: models.AccountBalances{
			Current:   balances.Current.Get(),
			Available: balances.Available.Get(),
			Limit:     balances.Limit.Get(),
			Currency:  balances.GetIsoCurrencyCode(),
		},
	}
}

func toAggregatorTransaction(t plaid.Transaction) (models.AggregatorTransaction, error) {
	date, err := time.Parse(util.DateLayout, t.GetDate())
	if err != nil {
		return models.AggregatorTransaction{}, fmt.Errorf("parse date %q: %w", t.GetDate(), err)
	}
	category := ""
	if pfc, ok := t.GetPersonalFinanceCategoryOk(); ok && pfc != nil {
		category = pfc.GetPrimary()
	}
	return models.AggregatorTransaction{
		ExternalAccountID: t.GetAccountId(),
		ExternalTxnID:     t.GetTransactionId(),
		Amount:            decimal.NewFromFloat(t.GetAmount()).Round(2),
		MerchantName:      t.GetMerchantName(),
		Description:       t.GetName(),
		Category:          category,
		Date:              date,
		Pending:           t.GetPending(),
	}, nil
}

func (a *Aggregator) transactionsPage(ctx context.Context, request *plaid.TransactionsGetRequest) (plaid.TransactionsGetResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	resp, _, err := a.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*request).Execute()
	return resp, err
}
