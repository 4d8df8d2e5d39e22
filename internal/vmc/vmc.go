// Package vmc sequences one purchase: select product, select payment, insert
// payment, take product and change. Every transactional error is recovered
// into a consistent step here and surfaced as a result value, never as a
// partial mutation.
package vmc

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/vendsim/vendsim/currency"
	"github.com/vendsim/vendsim/internal/catalog"
	"github.com/vendsim/vendsim/internal/money"
	"github.com/vendsim/vendsim/internal/state"
)

var (
	ErrWrongStep     = errors.New("operation not valid in this step")
	ErrCardInFlight  = errors.New("card payment in flight")
	ErrAlreadyPaid   = errors.New("inserted amount already covers price")
	ErrAdminRequired = errors.New("administrator intervention required")
)

// Snapshot is what the UI layer renders after every operation.
type Snapshot struct {
	Step          Step
	Method        PaymentMethod
	Product       *catalog.Product
	InsertedTotal currency.Amount
	ChangeOwed    currency.Amount
	// ChangeDue previews the change breakdown at StepGetProduct.
	ChangeDue *currency.NominalGroup
	// Dispensed is the change actually paid out by AcknowledgeDispense.
	Dispensed *currency.NominalGroup
	Message   string
}

type VMC struct {
	g  *state.Global
	lk sync.Mutex

	step       Step
	method     PaymentMethod
	product    *catalog.Product
	changeOwed currency.Amount
	cardBusy   bool
}

func New(g *state.Global) *VMC {
	return &VMC{g: g, step: StepSelectProduct}
}

// SelectProduct moves SelectProduct -> SelectPayment. Unknown or sold out
// product keeps the step and surfaces the error.
func (v *VMC) SelectProduct(number int) (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.step != StepSelectProduct {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "SelectProduct step=%s", v.step.String())
	}
	p, err := v.g.Catalog.Get(number)
	if err != nil {
		return v.snapshot(fmt.Sprintf(v.front().MsgProductNotFound, number)), errors.Annotatef(err, "SelectProduct")
	}
	if p.Quantity == 0 {
		err = errors.Annotatef(catalog.ErrOutOfStock, "SelectProduct product=%d", number)
		return v.snapshot(fmt.Sprintf(v.front().MsgOutOfStock, number)), err
	}
	v.product = &p
	v.step = StepSelectPayment
	v.g.Log.Infof("vmc select product=%d %s price=%s", p.Number, p.Name, p.Price.Format())
	return v.snapshot(""), nil
}

// SelectPayment moves SelectPayment -> InsertPayment after checking the
// chosen method can possibly cover the price.
func (v *VMC) SelectPayment(method PaymentMethod) (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.step != StepSelectPayment || v.product == nil {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "SelectPayment step=%s", v.step.String())
	}

	price := v.product.Price
	var available currency.Amount
	switch method {
	case PaymentCash:
		available = v.g.Money.WalletTotal()
	case PaymentCard:
		available = v.g.Money.CardBalance()
	default:
		return v.snapshot(""), errors.NotValidf("SelectPayment method=%d", method)
	}
	if available < price {
		msg := fmt.Sprintf(v.front().MsgInsufficientFunds, method.String(), available.Format(), price.Format())
		err := errors.Annotatef(money.ErrNeedMoreMoney, "SelectPayment method=%s available=%s price=%s short=%s",
			method.String(), available.Format(), price.Format(), (price - available).Format())
		return v.snapshot(msg), err
	}
	v.method = method
	v.step = StepInsertPayment
	v.g.Log.Infof("vmc select payment=%s", method.String())
	return v.snapshot(""), nil
}

// InsertCash moves one bill or coin wallet -> inserted. Blocked once the
// inserted total covers the price.
func (v *VMC) InsertCash(n currency.Nominal) (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.step != StepInsertPayment || v.method != PaymentCash {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "InsertCash step=%s method=%s", v.step.String(), v.method.String())
	}
	if v.g.Money.InsertedTotal() >= v.product.Price {
		return v.snapshot(""), errors.Annotatef(ErrAlreadyPaid, "InsertCash n=%d", n)
	}
	if err := v.g.Money.InsertCash(n); err != nil {
		return v.snapshot(""), errors.Annotatef(err, "InsertCash")
	}
	return v.snapshot(""), nil
}

// InsertOptimalCash covers the remaining price from the wallet with the
// least change, then the fewest bills and coins.
func (v *VMC) InsertOptimalCash() (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.step != StepInsertPayment || v.method != PaymentCash {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "InsertOptimalCash step=%s method=%s", v.step.String(), v.method.String())
	}
	if v.g.Money.InsertedTotal() >= v.product.Price {
		return v.snapshot(""), errors.Annotatef(ErrAlreadyPaid, "InsertOptimalCash")
	}
	pick, err := v.g.Money.InsertOptimal(v.product.Price)
	if err != nil {
		return v.snapshot(""), errors.Annotatef(err, "InsertOptimalCash")
	}
	v.g.Log.Infof("vmc insert-optimal pick=(%s)", pick.String())
	return v.snapshot(""), nil
}

// PayCash settles the inserted cash. ChangeInsufficient refunds everything
// inserted and hard-resets to SelectProduct.
func (v *VMC) PayCash() (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.step != StepInsertPayment || v.method != PaymentCash {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "PayCash step=%s method=%s", v.step.String(), v.method.String())
	}

	price := v.product.Price
	number := v.product.Number

	// stock could only vanish through admin edits, re-check before taking money
	if p, err := v.g.Catalog.Get(number); err != nil || p.Quantity == 0 {
		v.g.Money.ReturnInserted()
		v.reset()
		if err == nil {
			err = errors.Annotatef(catalog.ErrOutOfStock, "PayCash product=%d", number)
		}
		return v.snapshot(fmt.Sprintf(v.front().MsgOutOfStock, number)), err
	}

	inserted := v.g.Money.InsertedTotal()
	change, err := v.g.Money.SettleCash(price)
	switch errors.Cause(err) {
	case nil:
	case money.ErrNeedMoreMoney:
		msg := fmt.Sprintf(v.front().MsgNeedMoreMoney, inserted.Format(), price.Format())
		return v.snapshot(msg), err
	case money.ErrChangeInsufficient:
		// money already refunded the inserted cash, abort the transaction
		v.reset()
		return v.snapshot(fmt.Sprintf(v.front().MsgChangeInsufficient, (inserted - price).Format())), err
	default:
		return v.snapshot(""), errors.Annotatef(err, "PayCash")
	}

	if err := v.g.Catalog.Vend(number); err != nil {
		// settle succeeded, this must not happen; leave for the administrator
		v.g.Error(err, "PayCash vend product=%d", number)
		return v.snapshot(""), errors.Annotatef(ErrAdminRequired, "PayCash vend: %v", err)
	}
	v.changeOwed = change
	v.step = StepGetProduct
	v.g.Log.Infof("vmc pay-cash price=%s change=%s", price.Format(), change.Format())
	return v.snapshot(v.front().MsgTakeProduct), nil
}

// PayCard charges the card through the gateway. The orchestrator suspends
// while the charge is in flight; conflicting operations are rejected. A
// failed or cancelled charge leaves every ledger and the step untouched.
func (v *VMC) PayCard(ctx context.Context) (Snapshot, error) {
	v.lk.Lock()
	if v.step != StepInsertPayment || v.method != PaymentCard {
		defer v.lk.Unlock()
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "PayCard step=%s method=%s", v.step.String(), v.method.String())
	}
	if v.cardBusy {
		defer v.lk.Unlock()
		return v.snapshot(""), errors.Annotatef(ErrCardInFlight, "PayCard")
	}
	price := v.product.Price
	number := v.product.Number
	v.cardBusy = true
	v.lk.Unlock()

	err := v.g.Money.PayCard(ctx, price)

	v.lk.Lock()
	defer v.lk.Unlock()
	v.cardBusy = false
	if err != nil {
		msg := v.front().MsgCardFailed
		if errors.Cause(err) == money.ErrNeedMoreMoney {
			msg = fmt.Sprintf(v.front().MsgInsufficientFunds, PaymentCard.String(), v.g.Money.CardBalance().Format(), price.Format())
		}
		return v.snapshot(msg), errors.Annotatef(err, "PayCard")
	}
	// conflicting operations are rejected while cardBusy, re-validate anyway:
	// vending against a transaction that changed under the charge corrupts it
	if v.step != StepInsertPayment || v.method != PaymentCard || v.product == nil || v.product.Number != number {
		v.g.Money.RefundCard(price)
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "PayCard transaction changed during charge, refunded %s", price.Format())
	}
	if err := v.g.Catalog.Vend(number); err != nil {
		v.g.Error(err, "PayCard vend product=%d", number)
		return v.snapshot(""), errors.Annotatef(ErrAdminRequired, "PayCard vend: %v", err)
	}
	v.changeOwed = 0
	v.step = StepGetProduct
	v.g.Log.Infof("vmc pay-card price=%s", price.Format())
	return v.snapshot(v.front().MsgTakeProduct), nil
}

// ReturnFunds gives all inserted cash back and resets to SelectProduct.
func (v *VMC) ReturnFunds() (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.cardBusy {
		return v.snapshot(""), errors.Annotatef(ErrCardInFlight, "ReturnFunds")
	}
	if v.step != StepInsertPayment {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "ReturnFunds step=%s", v.step.String())
	}
	out := v.g.Money.ReturnInserted()
	v.reset()
	v.g.Log.Infof("vmc return funds=(%s)", out.String())
	return v.snapshot(""), nil
}

// AcknowledgeDispense pays out owed change and completes the transaction.
// When the reserve cannot produce the owed amount here the machine refuses to
// dispense and waits for the administrator, no automatic retry.
func (v *VMC) AcknowledgeDispense() (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.step != StepGetProduct {
		return v.snapshot(""), errors.Annotatef(ErrWrongStep, "AcknowledgeDispense step=%s", v.step.String())
	}

	owed := v.changeOwed
	dispensed, err := v.g.Money.DispenseChange(owed)
	if err != nil {
		v.g.Error(err, "AcknowledgeDispense owed=%s", owed.Format())
		return v.snapshot(fmt.Sprintf(v.front().MsgChangeBroken, owed.Format())), errors.Annotatef(ErrAdminRequired, "dispense: %v", err)
	}
	v.reset()
	snap := v.snapshot("")
	snap.Dispensed = dispensed
	if owed > 0 {
		snap.Message = fmt.Sprintf(v.front().MsgTakeChange, owed.Format())
	}
	v.g.Log.Infof("vmc dispense owed=%s out=(%s)", owed.Format(), dispensed.String())
	return snap, nil
}

// Cancel aborts from any step, refunding whatever was inserted. Rejected
// while a card charge is in flight.
func (v *VMC) Cancel() (Snapshot, error) {
	v.lk.Lock()
	defer v.lk.Unlock()
	if v.cardBusy {
		return v.snapshot(""), errors.Annotatef(ErrCardInFlight, "Cancel")
	}
	out := v.g.Money.ReturnInserted()
	v.reset()
	if out.Total() > 0 {
		v.g.Log.Infof("vmc cancel refund=(%s)", out.String())
	}
	return v.snapshot(""), nil
}

// State returns the current snapshot without mutating anything.
func (v *VMC) State() Snapshot {
	v.lk.Lock()
	defer v.lk.Unlock()
	return v.snapshot("")
}

func (v *VMC) reset() {
	v.step = StepSelectProduct
	v.method = PaymentNone
	v.product = nil
	v.changeOwed = 0
}

func (v *VMC) snapshot(message string) Snapshot {
	snap := Snapshot{
		Step:          v.step,
		Method:        v.method,
		InsertedTotal: v.g.Money.InsertedTotal(),
		ChangeOwed:    v.changeOwed,
		Message:       message,
	}
	if v.product != nil {
		p := *v.product
		snap.Product = &p
	}
	if v.step == StepGetProduct && v.changeOwed > 0 {
		if due, err := v.g.Money.Reserve().MakeExact(v.changeOwed); err == nil {
			snap.ChangeDue = due
		}
	}
	return snap
}

func (v *VMC) front() *state.FrontMessages {
	return &v.g.Config.UI.Front
}
