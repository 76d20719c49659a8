package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"club-ticketing/internal/config"
)

// PaymentGateway is the boundary to the card/wallet payment provider.
type PaymentGateway interface {
	GetAcceptanceTokens(ctx context.Context) (*AcceptanceTokens, error)
	TokenizeCard(ctx context.Context, card CardData) (string, error)
	CreatePaymentSource(ctx context.Context, cardToken, acceptanceToken, customerEmail string) (string, error)
	CreateTransaction(ctx context.Context, req *TransactionRequest) (*Transaction, error)
	GetTransactionStatus(ctx context.Context, id string) (*Transaction, error)
	// PollTransactionAsyncURL waits for the redirect URL of an
	// asynchronous payment method, up to the configured timeout. An
	// empty URL with a nil error means the caller should report
	// pending and let the client re-poll.
	PollTransactionAsyncURL(ctx context.Context, id string) (string, error)
}

type AcceptanceTokens struct {
	Acceptance   string `json:"acceptance_token"`
	PersonalData string `json:"accept_personal_auth"`
}

type CardData struct {
	Number   string `json:"number"`
	CVC      string `json:"cvc"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	Holder   string `json:"card_holder"`
}

type TransactionRequest struct {
	AmountInCents   int64  `json:"amount_in_cents"`
	Currency        string `json:"currency"`
	Reference       string `json:"reference"`
	Signature       string `json:"signature"`
	CustomerEmail   string `json:"customer_email"`
	PaymentMethod   string `json:"-"`
	PaymentSourceID string `json:"-"`
	AcceptanceToken string `json:"-"`
	CardToken       string `json:"-"`
}

type Transaction struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // PENDING, APPROVED, DECLINED, VOIDED, ERROR
	RedirectURL string `json:"redirect_url"`
}

// IntegritySignature computes the shared-secret signature over
// (reference, amount, currency). The gateway recomputes it server-side;
// a transaction whose signature we did not generate is rejected there.
func IntegritySignature(reference string, amountInCents int64, currency, secret string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s%s", reference, amountInCents, currency, secret)))
	return hex.EncodeToString(sum[:])
}

type gatewayClientImpl struct {
	httpClient      *http.Client
	baseApiURL      string
	publicKey       string
	privateKey      string
	integritySecret string
	redirectURL     string
	pollTimeout     time.Duration
	pollInterval    time.Duration
}

func NewPaymentGateway(cfg *config.Gateway) PaymentGateway {
	return &gatewayClientImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:      cfg.BaseApiURL,
		publicKey:       cfg.PublicKey,
		privateKey:      cfg.PrivateKey,
		integritySecret: cfg.IntegritySecret,
		redirectURL:     cfg.RedirectURL,
		pollTimeout:     time.Duration(cfg.PollTimeoutSeconds) * time.Second,
		pollInterval:    time.Duration(cfg.PollIntervalSeconds) * time.Second,
	}
}

func (c *gatewayClientImpl) doJSON(ctx context.Context, method, path, bearer string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal req payload: %w", err)
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseApiURL+path, body)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(b))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode gateway response: %w", err)
		}
	}
	return nil
}

func (c *gatewayClientImpl) GetAcceptanceTokens(ctx context.Context) (*AcceptanceTokens, error) {
	var res struct {
		Data struct {
			PresignedAcceptance struct {
				Token string `json:"acceptance_token"`
			} `json:"presigned_acceptance"`
			PresignedPersonalData struct {
				Token string `json:"acceptance_token"`
			} `json:"presigned_personal_data_auth"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/merchants/"+c.publicKey, c.publicKey, nil, &res); err != nil {
		return nil, fmt.Errorf("get acceptance tokens: %w", err)
	}
	return &AcceptanceTokens{
		Acceptance:   res.Data.PresignedAcceptance.Token,
		PersonalData: res.Data.PresignedPersonalData.Token,
	}, nil
}

func (c *gatewayClientImpl) TokenizeCard(ctx context.Context, card CardData) (string, error) {
	var res struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/tokens/cards", c.publicKey, card, &res); err != nil {
		return "", fmt.Errorf("tokenize card: %w", err)
	}
	return res.Data.ID, nil
}

func (c *gatewayClientImpl) CreatePaymentSource(ctx context.Context, cardToken, acceptanceToken, customerEmail string) (string, error) {
	payload := map[string]any{
		"type":             "CARD",
		"token":            cardToken,
		"acceptance_token": acceptanceToken,
		"customer_email":   customerEmail,
	}
	var res struct {
		Data struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/payment_sources", c.privateKey, payload, &res); err != nil {
		return "", fmt.Errorf("create payment source: %w", err)
	}
	return fmt.Sprintf("%d", res.Data.ID), nil
}

func (c *gatewayClientImpl) CreateTransaction(ctx context.Context, req *TransactionRequest) (*Transaction, error) {
	// recompute and verify before sending; never trust a signature
	// that arrived on the request
	want := IntegritySignature(req.Reference, req.AmountInCents, req.Currency, c.integritySecret)
	if req.Signature != want {
		return nil, fmt.Errorf("integrity signature mismatch for reference %s", req.Reference)
	}

	method := map[string]any{"type": req.PaymentMethod}
	if req.CardToken != "" {
		method["token"] = req.CardToken
		method["installments"] = 1
	}

	payload := map[string]any{
		"amount_in_cents": req.AmountInCents,
		"currency":        req.Currency,
		"reference":       req.Reference,
		"signature":       req.Signature,
		"customer_email":  req.CustomerEmail,
		"payment_method":  method,
		"redirect_url":    c.redirectURL,
	}
	if req.AcceptanceToken != "" {
		payload["acceptance_token"] = req.AcceptanceToken
	}
	if req.PaymentSourceID != "" {
		payload["payment_source_id"] = req.PaymentSourceID
	}

	var res struct {
		Data Transaction `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/transactions", c.privateKey, payload, &res); err != nil {
		return nil, fmt.Errorf("create gateway transaction: %w", err)
	}
	return &res.Data, nil
}

func (c *gatewayClientImpl) GetTransactionStatus(ctx context.Context, id string) (*Transaction, error) {
	var res struct {
		Data struct {
			ID            string `json:"id"`
			Status        string `json:"status"`
			PaymentMethod struct {
				Extra struct {
					AsyncPaymentURL string `json:"async_payment_url"`
				} `json:"extra"`
			} `json:"payment_method"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/transactions/"+id, c.privateKey, nil, &res); err != nil {
		return nil, fmt.Errorf("get transaction status: %w", err)
	}
	return &Transaction{
		ID:          res.Data.ID,
		Status:      res.Data.Status,
		RedirectURL: res.Data.PaymentMethod.Extra.AsyncPaymentURL,
	}, nil
}

func (c *gatewayClientImpl) PollTransactionAsyncURL(ctx context.Context, id string) (string, error) {
	deadline := time.Now().Add(c.pollTimeout)
	for {
		tx, err := c.GetTransactionStatus(ctx, id)
		if err != nil {
			return "", err
		}
		if tx.RedirectURL != "" {
			return tx.RedirectURL, nil
		}
		if time.Now().After(deadline) {
			// bounded timeout: report pending, client re-polls
			return "", nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}
