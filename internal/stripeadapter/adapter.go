// Package stripeadapter wraps Stripe Connect transfers behind a small
// success/failure contract with a deterministic failure classification.
package stripeadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type TransferRequest struct {
	TransferID     uuid.UUID
	ContestID      uuid.UUID
	UserID         uuid.UUID
	AmountCents    int64
	Destination    string // connected account id, acct_...
	IdempotencyKey string
}

type TransferResult struct {
	Success        bool
	TransferID     string
	Classification Classification
	Reason         string
	HTTPStatus     int
}

type transferAPI interface {
	New(params *stripe.TransferParams) (*stripe.Transfer, error)
}

// Adapter creates transfers. It is safe for concurrent use.
type Adapter struct {
	api      transferAPI
	currency string
	limiter  *rate.Limiter
	log      *zap.Logger
}

// New builds an adapter backed by the Stripe API. Network retries inside the
// SDK reuse the same idempotency key.
func New(secretKey, currency string, ratePerSec float64, timeout time.Duration, log *zap.Logger) *Adapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	backends := stripe.NewBackends(&http.Client{Timeout: timeout})
	sc := client.New(secretKey, backends)
	return NewWithAPI(sc.Transfers, currency, newLimiter(ratePerSec), log)
}

func NewWithAPI(api transferAPI, currency string, limiter *rate.Limiter, log *zap.Logger) *Adapter {
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Adapter{api: api, currency: currency, limiter: limiter, log: log}
}

func newLimiter(ratePerSec float64) *rate.Limiter {
	if ratePerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// CreateTransfer sends one transfer. It never returns an error: every failure
// is reported through the result's Classification.
func (a *Adapter) CreateTransfer(ctx context.Context, req TransferRequest) TransferResult {
	if req.IdempotencyKey == "" {
		return TransferResult{Classification: Permanent, Reason: "missing idempotency key"}
	}
	if req.AmountCents <= 0 {
		return TransferResult{Classification: Permanent, Reason: "amount must be positive"}
	}
	if req.Destination == "" {
		return TransferResult{Classification: Permanent, Reason: "missing destination account"}
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return TransferResult{Classification: Transient, Reason: "rate limiter: " + err.Error()}
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(a.currency),
		Destination:   stripe.String(req.Destination),
		TransferGroup: stripe.String("contest_" + req.ContestID.String()),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payout_transfer_id", req.TransferID.String())
	params.AddMetadata("contest_id", req.ContestID.String())
	params.AddMetadata("user_id", req.UserID.String())

	start := time.Now()
	tr, err := a.api.New(params)
	if err != nil {
		class, status, reason := Classify(err)
		a.log.Warn("stripe transfer failed",
			zap.String("transfer_id", req.TransferID.String()),
			zap.String("classification", string(class)),
			zap.Int("http_status", status),
			zap.String("reason", reason),
			zap.Duration("latency", time.Since(start)),
		)
		return TransferResult{Classification: class, Reason: reason, HTTPStatus: status}
	}

	a.log.Info("stripe transfer created",
		zap.String("transfer_id", req.TransferID.String()),
		zap.String("stripe_transfer_id", tr.ID),
		zap.Int64("amount_cents", req.AmountCents),
		zap.Duration("latency", time.Since(start)),
	)
	return TransferResult{Success: true, TransferID: tr.ID}
}
