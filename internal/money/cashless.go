package money

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/juju/errors"
	"github.com/vendsim/vendsim/currency"
	"github.com/vendsim/vendsim/helpers"
	"github.com/vendsim/vendsim/log2"
)

// Transient, retryable: a failed charge mutates nothing anywhere.
var ErrCardPaymentFailed = errors.New("card-payment-failed")

// Gateway is the seam to the card payment processor. The real network is out
// of scope, tests inject deterministic outcomes.
type Gateway interface {
	Charge(ctx context.Context, amount currency.Amount) error
	// SessionID labels the next charge for display (payment link QR etc).
	SessionID() string
}

// SimGateway models processor latency and transient declines: every charge
// resolves after Delay with FailPercent chance of decline.
type SimGateway struct {
	Log         *log2.Log
	Delay       time.Duration
	FailPercent int
	Rnd         *rand.Rand

	seq uint32
}

func NewSimGateway(config Config, log *log2.Log) *SimGateway {
	delay := time.Duration(config.Cashless.DelayMs) * time.Millisecond
	if config.Cashless.DelayMs == 0 {
		delay = 1500 * time.Millisecond
	}
	return &SimGateway{
		Log:         log,
		Delay:       delay,
		FailPercent: config.Cashless.FailPercent,
		Rnd:         helpers.RandUnix(),
	}
}

func (gw *SimGateway) SessionID() string {
	gw.seq++
	return fmt.Sprintf("sim-%d-%d", time.Now().Unix(), gw.seq)
}

func (gw *SimGateway) Charge(ctx context.Context, amount currency.Amount) error {
	gw.Log.Debugf("cashless charge amount=%s delay=%v", amount.Format(), gw.Delay)
	timer := time.NewTimer(gw.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return errors.Annotatef(ErrCardPaymentFailed, "cancelled: %v", ctx.Err())
	case <-timer.C:
	}
	if gw.Rnd.Intn(100) < gw.FailPercent {
		return errors.Annotatef(ErrCardPaymentFailed, "amount=%s declined", amount.Format())
	}
	return nil
}

// GatewayStub resolves immediately with a scripted outcome.
type GatewayStub struct {
	Err error
}

func (gw GatewayStub) SessionID() string { return "stub" }
func (gw GatewayStub) Charge(ctx context.Context, amount currency.Amount) error {
	return gw.Err
}
