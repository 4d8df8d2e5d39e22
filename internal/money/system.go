// Package money owns the cash ledgers of the machine:
//   - reserve: change cashbox of the machine
//   - wallet: cash in the customer's pocket
//   - inserted: cash fed into the machine, not committed yet
//
// plus the customer's card account. Every transfer between ledgers goes
// through this package so counts and totals can never diverge.
package money

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/vendsim/vendsim/currency"
	"github.com/vendsim/vendsim/log2"
)

var (
	ErrNeedMoreMoney      = errors.New("add-money")
	ErrChangeInsufficient = errors.New("change-insufficient")
)

type MoneySystem struct { //nolint:maligned
	Log *log2.Log
	lk  sync.Mutex

	config   Config
	reserve  currency.NominalGroup
	wallet   currency.NominalGroup
	inserted currency.NominalGroup
	card     currency.Amount

	gateway Gateway
}

func (ms *MoneySystem) Init(config Config, log *log2.Log, gateway Gateway) error {
	if err := config.Parse(); err != nil {
		return errors.Annotate(err, "money init")
	}
	ms.lk.Lock()
	defer ms.lk.Unlock()

	ms.Log = log
	ms.config = config
	ms.gateway = gateway

	valid := config.ValidNominals()
	ms.reserve.SetValid(valid)
	ms.wallet.SetValid(valid)
	ms.inserted.SetValid(valid)
	for _, ci := range config.Reserve {
		if err := ms.reserve.Add(ci.Nominal, uint(ci.Count)); err != nil {
			return errors.Annotate(err, "money init reserve")
		}
	}
	for _, ci := range config.Wallet {
		if err := ms.wallet.Add(ci.Nominal, uint(ci.Count)); err != nil {
			return errors.Annotate(err, "money init wallet")
		}
	}
	ms.card = currency.Amount(config.CardBalance)

	ms.Log.Debugf("money init reserve=(%s) wallet=(%s) card=%s",
		ms.reserve.String(), ms.wallet.String(), ms.card.Format())
	return nil
}

// Snapshot accessors return copies, callers cannot corrupt the ledgers.

func (ms *MoneySystem) Reserve() *currency.NominalGroup {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.reserve.Copy()
}

func (ms *MoneySystem) Wallet() *currency.NominalGroup {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.wallet.Copy()
}

func (ms *MoneySystem) Inserted() *currency.NominalGroup {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.inserted.Copy()
}

func (ms *MoneySystem) InsertedTotal() currency.Amount {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.inserted.Total()
}

func (ms *MoneySystem) WalletTotal() currency.Amount {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.wallet.Total()
}

func (ms *MoneySystem) ReserveTotal() currency.Amount {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.reserve.Total()
}

func (ms *MoneySystem) CardBalance() currency.Amount {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.card
}

func (ms *MoneySystem) SetCardBalance(a currency.Amount) {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	ms.card = a
}

// AdjustReserve is the admin refill/withdraw surface. Negative delta clamps at
// zero, wrong admin input must not corrupt the cashbox.
func (ms *MoneySystem) AdjustReserve(n currency.Nominal, delta int) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	if delta >= 0 {
		return ms.reserve.Add(n, uint(delta))
	}
	return ms.reserve.ForceSub(n, uint(-delta))
}

func (ms *MoneySystem) AdjustWallet(n currency.Nominal, delta int) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	if delta >= 0 {
		return ms.wallet.Add(n, uint(delta))
	}
	return ms.wallet.ForceSub(n, uint(-delta))
}

// RefillReserve restores the cashbox to configured counts.
func (ms *MoneySystem) RefillReserve() {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	ms.reserve.SetValid(ms.config.ValidNominals())
	for _, ci := range ms.config.Reserve {
		_ = ms.reserve.Add(ci.Nominal, uint(ci.Count))
	}
	ms.Log.Infof("money reserve refilled (%s)", ms.reserve.String())
}

// InsertCash moves one bill or coin from the wallet into the machine.
// All or nothing: a nominal missing from the wallet is an error.
func (ms *MoneySystem) InsertCash(n currency.Nominal) error {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	if err := ms.wallet.MoveTo(&ms.inserted, n, 1); err != nil {
		return errors.Annotate(err, "money insert")
	}
	ms.Log.Debugf("money insert n=%d total=%s", n, ms.inserted.Total().Format())
	return nil
}

// InsertOptimal covers the remaining price from the wallet with the least
// change, then fewest notes. Returns the picked counts.
func (ms *MoneySystem) InsertOptimal(price currency.Amount) (*currency.NominalGroup, error) {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	target := currency.Amount(0)
	if have := ms.inserted.Total(); price > have {
		target = price - have
	}
	pick, err := currency.OptimalInsert(&ms.wallet, target)
	if err != nil {
		return nil, errors.Annotate(err, "money insert-optimal")
	}
	err = pick.Iter(func(n currency.Nominal, count uint) error {
		if count == 0 {
			return nil
		}
		return ms.wallet.MoveTo(&ms.inserted, n, count)
	})
	if err != nil {
		// solver picks only from wallet counts, transfer cannot run dry
		return nil, errors.Annotate(err, "money insert-optimal transfer")
	}
	ms.Log.Debugf("money insert-optimal pick=(%s) total=%s", pick.String(), ms.inserted.Total().Format())
	return pick, nil
}

// ReturnInserted gives all uncommitted cash back to the wallet.
// Returns what was given back.
func (ms *MoneySystem) ReturnInserted() *currency.NominalGroup {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.locked_returnInserted()
}

func (ms *MoneySystem) locked_returnInserted() *currency.NominalGroup {
	out := ms.inserted.Copy()
	ms.wallet.AddFrom(&ms.inserted)
	ms.inserted.Clear()
	if out.Total() > 0 {
		ms.Log.Debugf("money return inserted=(%s)", out.String())
	}
	return out
}

// SettleCash commits the inserted cash against price. On success the inserted
// ledger is merged into the reserve and the change amount owed is returned.
// When the reserve cannot make exact change, everything inserted goes back to
// the wallet and ErrChangeInsufficient is returned: hard abort, not a retry.
func (ms *MoneySystem) SettleCash(price currency.Amount) (currency.Amount, error) {
	ms.lk.Lock()
	defer ms.lk.Unlock()

	total := ms.inserted.Total()
	if total < price {
		return 0, errors.Annotatef(ErrNeedMoreMoney, "settle inserted=%s price=%s", total.Format(), price.Format())
	}
	change := total - price
	if change > 0 && !ms.reserve.CanProvide(change) {
		ms.locked_returnInserted()
		return 0, errors.Annotatef(ErrChangeInsufficient, "settle change=%s reserve=%s", change.Format(), ms.reserve.Total().Format())
	}
	ms.reserve.AddFrom(&ms.inserted)
	ms.inserted.Clear()
	ms.Log.Infof("money settle price=%s change=%s reserve=%s", price.Format(), change.Format(), ms.reserve.Total().Format())
	return change, nil
}

// DispenseChange pays amount out of the reserve into the wallet and returns
// the disbursed counts. Feasibility was checked at settlement, this is the
// defensive re-validation: failure dispenses nothing.
func (ms *MoneySystem) DispenseChange(amount currency.Amount) (*currency.NominalGroup, error) {
	ms.lk.Lock()
	defer ms.lk.Unlock()

	out := currency.NewNominalGroup(ms.config.ValidNominals())
	if amount == 0 {
		return out, nil
	}
	if err := ms.reserve.Withdraw(out, amount, ms.expendStrategy()); err != nil {
		return nil, errors.Annotatef(ErrChangeInsufficient, "dispense amount=%s: %v", amount.Format(), err)
	}
	ms.wallet.AddFrom(out)
	ms.Log.Infof("money dispense change=(%s) reserve=%s", out.String(), ms.reserve.Total().Format())
	return out, nil
}

// PayCard charges the card account through the gateway. The gateway call
// suspends without holding the money lock; a failed or cancelled charge
// mutates nothing.
func (ms *MoneySystem) PayCard(ctx context.Context, price currency.Amount) error {
	ms.lk.Lock()
	if ms.card < price {
		balance := ms.card
		ms.lk.Unlock()
		return errors.Annotatef(ErrNeedMoreMoney, "card balance=%s price=%s", balance.Format(), price.Format())
	}
	gateway := ms.gateway
	ms.lk.Unlock()

	if err := gateway.Charge(ctx, price); err != nil {
		return errors.Annotate(err, "money pay-card")
	}

	ms.lk.Lock()
	defer ms.lk.Unlock()
	if ms.card < price {
		// balance was admin-edited while the charge was in flight
		return errors.Annotatef(ErrNeedMoreMoney, "card balance=%s price=%s", ms.card.Format(), price.Format())
	}
	ms.card -= price
	ms.Log.Infof("money pay-card price=%s balance=%s", price.Format(), ms.card.Format())
	return nil
}

// RefundCard credits a completed charge back to the card account. Compensating
// action for a charge whose transaction cannot be fulfilled.
func (ms *MoneySystem) RefundCard(price currency.Amount) {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	ms.card += price
	ms.Log.Infof("money refund-card price=%s balance=%s", price.Format(), ms.card.Format())
}

// GatewaySessionID labels the next card charge for display (payment link QR).
func (ms *MoneySystem) GatewaySessionID() string {
	ms.lk.Lock()
	defer ms.lk.Unlock()
	return ms.gateway.SessionID()
}

func (ms *MoneySystem) expendStrategy() currency.ExpendStrategy {
	if ms.config.ChangeStrategy == "most-available" {
		return currency.NewExpendMostAvailable()
	}
	return currency.NewExpendLeastCount()
}
