package razorpay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	rzp "github.com/razorpay/razorpay-go"

	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

type GatewayOrder struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// Gateway creates checkout orders. KeyID is handed to the browser checkout.
type Gateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error)
}

type gateway struct {
	log    *logger.Logger
	client *rzp.Client
	keyID  string
}

func NewGateway(log *logger.Logger, keyID, keySecret string) (Gateway, error) {
	if strings.TrimSpace(keyID) == "" || strings.TrimSpace(keySecret) == "" {
		return nil, errors.New("missing RAZORPAY_KEY_ID or RAZORPAY_KEY_SECRET")
	}
	return &gateway{
		log:    log.With("client", "RazorpayGateway"),
		client: rzp.NewClient(keyID, keySecret),
		keyID:  keyID,
	}, nil
}

func (g *gateway) KeyID() string { return g.keyID }

// CreateOrder is synchronous in the SDK; ctx only guards against starting a
// call for an already canceled request.
func (g *gateway) CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("invalid order amount %d", req.Amount)
	}
	notes := map[string]interface{}{}
	for k, v := range req.Notes {
		notes[k] = v
	}
	body, err := g.client.Order.Create(map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes":    notes,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	out := parseOrder(body)
	if out.ID == "" {
		return nil, errors.New("razorpay create order: response has no id")
	}
	g.log.Info("razorpay order created", "razorpay_order_id", out.ID, "amount", out.Amount, "receipt", req.Receipt)
	return out, nil
}

func parseOrder(body map[string]interface{}) *GatewayOrder {
	out := &GatewayOrder{}
	if v, ok := body["id"].(string); ok {
		out.ID = v
	}
	if v, ok := body["currency"].(string); ok {
		out.Currency = v
	}
	if v, ok := body["status"].(string); ok {
		out.Status = v
	}
	switch v := body["amount"].(type) {
	case float64:
		out.Amount = int64(v)
	case int64:
		out.Amount = v
	case int:
		out.Amount = int64(v)
	}
	return out
}
