package vmc

// Step is the purchase state machine phase. Linear flow with a reset edge
// from every step back to StepSelectProduct.
type Step uint32

const (
	StepSelectProduct Step = iota
	StepSelectPayment
	StepInsertPayment
	StepGetProduct
)

func (s Step) String() string {
	switch s {
	case StepSelectProduct:
		return "SelectProduct"
	case StepSelectPayment:
		return "SelectPayment"
	case StepInsertPayment:
		return "InsertPayment"
	case StepGetProduct:
		return "GetProduct"
	}
	return "unknown"
}

type PaymentMethod uint8

const (
	PaymentNone PaymentMethod = iota
	PaymentCash
	PaymentCard
)

func (pm PaymentMethod) String() string {
	switch pm {
	case PaymentNone:
		return "none"
	case PaymentCash:
		return "cash"
	case PaymentCard:
		return "card"
	}
	return "unknown"
}
