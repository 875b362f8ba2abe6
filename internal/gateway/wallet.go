package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velikanov/digital_shop/internal/models"
)

const walletSignatureHeader = "X-Wallet-Signature"

// WalletGateway talks to the wallet provider's REST API. Webhook
// deliveries are authenticated with an HMAC-SHA256 of the raw body.
type WalletGateway struct {
	Secret  []byte
	APIBase string
	Client  *http.Client
}

func NewWalletGateway(secret, apiBase string) *WalletGateway {
	return &WalletGateway{
		Secret:  []byte(secret),
		APIBase: apiBase,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *WalletGateway) Name() string { return "wallet" }

func (g *WalletGateway) sign(body []byte) string {
	mac := hmac.New(sha256.New, g.Secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *WalletGateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.APIBase+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(walletSignatureHeader, g.sign(body))

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (g *WalletGateway) CreateIntent(ctx context.Context, order *models.Order, currency string) (string, error) {
	var resp struct {
		TransactionID string `json:"transaction_id"`
	}
	payload := map[string]any{
		"order_id": order.ID,
		"amount":   order.Total,
		"currency": currency,
	}
	if err := g.post(ctx, "/v1/intents", payload, &resp); err != nil {
		return "", fmt.Errorf("wallet: create intent: %w", err)
	}
	return resp.TransactionID, nil
}

func (g *WalletGateway) VerifyWebhook(r *http.Request) (*Event, error) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	sig := r.Header.Get(walletSignatureHeader)
	if sig == "" || !hmac.Equal([]byte(sig), []byte(g.sign(payload))) {
		return nil, fmt.Errorf("%w: bad %s header", ErrSignature, walletSignatureHeader)
	}

	var body struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("wallet: unmarshal event: %w", err)
	}

	typ := EventIgnored
	switch body.Status {
	case "succeeded":
		typ = EventSucceeded
	case "failed":
		typ = EventFailed
	}
	return &Event{ExternalID: body.TransactionID, Type: typ, Raw: payload}, nil
}

func (g *WalletGateway) Refund(ctx context.Context, payment *models.Payment, reason string) (string, error) {
	var resp struct {
		RefundID string `json:"refund_id"`
	}
	payload := map[string]any{
		"transaction_id": payment.ExternalTransactionID,
		"amount":         payment.Amount,
		"reason":         reason,
	}
	if err := g.post(ctx, "/v1/refunds", payload, &resp); err != nil {
		return "", fmt.Errorf("wallet: refund: %w", err)
	}
	return resp.RefundID, nil
}
