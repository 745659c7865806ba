package paystack

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/matcha-bar/internal/domain/payment"
)

// Gateway opens hosted Paystack checkouts and routes their outcomes, reported
// by the webhook or the cancel redirect, to the waiting checkout.
type Gateway struct {
	client *Client
	hub    *payment.Hub
	lg     *zap.Logger
}

var (
	_ payment.Gateway  = (*Gateway)(nil)
	_ payment.Verifier = (*Gateway)(nil)
)

// NewGateway creates a Gateway.
func NewGateway(client *Client, hub *payment.Hub, lg *zap.Logger) *Gateway {
	return &Gateway{client: client, hub: hub, lg: lg}
}

// Ready fails when no secret key is configured.
func (g *Gateway) Ready(context.Context) error {
	if !g.client.Configured() {
		return errors.Wrap(payment.ErrGatewayUnavailable, "paystack secret key not configured")
	}
	return nil
}

// Open initializes a transaction and registers its reference so a later
// Resolve reaches the returned Flow.
func (g *Gateway) Open(ctx context.Context, req payment.Request) (*payment.Flow, error) {
	done := g.hub.Register(req.Reference)
	auth, err := g.client.Initialize(ctx, req)
	if err != nil {
		g.hub.Forget(req.Reference)
		return nil, fmt.Errorf("%w: %w", payment.ErrGatewayUnavailable, err)
	}
	if auth.Reference != "" && auth.Reference != req.Reference {
		g.lg.Warn("Paystack returned a different reference",
			zap.String("sent", req.Reference),
			zap.String("got", auth.Reference),
		)
	}
	return payment.NewFlow(req.Reference, auth.AuthorizationURL, auth.AccessCode, done), nil
}

// Verify asks Paystack for the authoritative transaction record.
func (g *Gateway) Verify(ctx context.Context, reference string) (*payment.Verification, error) {
	return g.client.Verify(ctx, reference)
}

// Abandon drops an open flow nobody waits on anymore.
func (g *Gateway) Abandon(reference string) {
	g.hub.Forget(reference)
}

// Succeed reports a charge for reference.
func (g *Gateway) Succeed(reference, status, transactionID string) error {
	return g.hub.Resolve(reference, payment.Succeeded(payment.Success{
		Reference:     reference,
		Status:        status,
		TransactionID: transactionID,
	}))
}

// Cancel reports that the customer closed the hosted page.
func (g *Gateway) Cancel(reference string) error {
	return g.hub.Resolve(reference, payment.Cancelled)
}
