package currency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/juju/errors"
)

// Amount is integer counting lowest currency unit, e.g. 1200 won = 1200
type Amount uint32

func (a Amount) Format() string { return fmt.Sprint(uint32(a)) }

// Nominal is value of one coin or bill
type Nominal Amount

var (
	ErrNominalInvalid = errors.New("nominal is not valid for this group")
	ErrNominalCount   = errors.New("not enough nominals for this amount")
)

// NominalGroup operates money comprised of multiple nominals, like coins or bills.
// bill1000 : 3
// coin500  : 1
// coin100  : 4
// total    : 3900
// Total is always derived from per-nominal counts, never stored.
type NominalGroup struct {
	values map[Nominal]uint
}

func NewNominalGroup(valid []Nominal) *NominalGroup {
	ng := &NominalGroup{}
	ng.SetValid(valid)
	return ng
}

func (ng *NominalGroup) SetValid(valid []Nominal) {
	ng.values = make(map[Nominal]uint, len(valid))
	for _, n := range valid {
		if n != 0 {
			ng.values[n] = 0
		}
	}
}

func (ng *NominalGroup) Copy() *NominalGroup {
	ng2 := &NominalGroup{
		values: make(map[Nominal]uint, len(ng.values)),
	}
	for k, v := range ng.values {
		ng2.values[k] = v
	}
	return ng2
}

func (ng *NominalGroup) Add(n Nominal, count uint) error {
	if _, ok := ng.values[n]; !ok {
		return errors.Annotatef(ErrNominalInvalid, "Add(n=%s c=%d)", Amount(n).Format(), count)
	}
	ng.values[n] += count
	return nil
}

func (ng *NominalGroup) AddFrom(source *NominalGroup) {
	if ng.values == nil {
		ng.values = make(map[Nominal]uint, len(source.values))
	}
	for k, v := range source.values {
		ng.values[k] += v
	}
}

// TrySub fails without touching the group when stored count is lower than requested.
// Transactional callers (settlement, dispense) must use this one.
func (ng *NominalGroup) TrySub(n Nominal, count uint) error {
	stored, ok := ng.values[n]
	if !ok {
		return errors.Annotatef(ErrNominalInvalid, "TrySub(n=%s c=%d)", Amount(n).Format(), count)
	}
	if stored < count {
		return errors.Annotatef(ErrNominalCount, "TrySub(n=%s c=%d) stored=%d", Amount(n).Format(), count, stored)
	}
	ng.values[n] = stored - count
	return nil
}

// ForceSub clamps at zero. Only for non-transactional adjustment.
func (ng *NominalGroup) ForceSub(n Nominal, count uint) error {
	stored, ok := ng.values[n]
	if !ok {
		return errors.Annotatef(ErrNominalInvalid, "ForceSub(n=%s c=%d)", Amount(n).Format(), count)
	}
	if stored < count {
		count = stored
	}
	ng.values[n] = stored - count
	return nil
}

// MoveTo transfers count units of nominal n into another group, all or nothing.
func (ng *NominalGroup) MoveTo(to *NominalGroup, n Nominal, count uint) error {
	if err := ng.TrySub(n, count); err != nil {
		return err
	}
	if err := to.Add(n, count); err != nil {
		ng.values[n] += count
		return err
	}
	return nil
}

func (ng *NominalGroup) Clear() {
	for n := range ng.values {
		ng.values[n] = 0
	}
}

func (ng *NominalGroup) Get(n Nominal) (uint, error) {
	stored, ok := ng.values[n]
	if !ok {
		return 0, ErrNominalInvalid
	}
	return stored, nil
}

func (ng *NominalGroup) Iter(f func(nominal Nominal, count uint) error) error {
	for _, n := range ng.Nominals() {
		if err := f(n, ng.values[n]); err != nil {
			return err
		}
	}
	return nil
}

// Nominals returns the valid set in descending face value order.
func (ng *NominalGroup) Nominals() []Nominal {
	return ng.order(ngOrderSortElemNominal)
}

// Count returns number of individual coins and bills in the group.
func (ng *NominalGroup) Count() uint {
	sum := uint(0)
	for _, count := range ng.values {
		sum += count
	}
	return sum
}

func (ng *NominalGroup) Total() Amount {
	sum := Amount(0)
	for nominal, count := range ng.values {
		sum += Amount(nominal) * Amount(count)
	}
	return sum
}

// Withdraw moves amount out of the group one nominal at a time, as picked by
// strategy. Feasibility is checked on a copy first so failure leaves the group
// intact.
func (ng *NominalGroup) Withdraw(to *NominalGroup, a Amount, strategy ExpendStrategy) error {
	if err := ng.Copy().expendLoop(nil, a, strategy); err != nil {
		return err
	}
	return ng.expendLoop(to, a, strategy)
}

// MakeExact decomposes amount into counts available in the group, largest
// nominal first. The group itself is not modified. Greedy is exact only for
// canonical nominal sets; infeasible answer is a policy, not corruption.
func (ng *NominalGroup) MakeExact(a Amount) (*NominalGroup, error) {
	out := &NominalGroup{values: make(map[Nominal]uint, len(ng.values))}
	if a == 0 {
		return out, nil
	}
	if err := ng.Copy().expendLoop(out, a, NewExpendLeastCount()); err != nil {
		return nil, errors.Annotatef(err, "MakeExact(%s)", a.Format())
	}
	return out, nil
}

// CanProvide answers whether amount can be paid out exactly, without modifying
// the group.
func (ng *NominalGroup) CanProvide(a Amount) bool {
	if a == 0 {
		return true
	}
	if a > ng.Total() {
		return false
	}
	_, err := ng.MakeExact(a)
	return err == nil
}

func (ng *NominalGroup) String() string {
	parts := make([]string, 0, len(ng.values)+1)
	sum := Amount(0)
	for nominal, count := range ng.values {
		if count > 0 {
			parts = append(parts, fmt.Sprintf("%s:%d", Amount(nominal).Format(), count))
			sum += Amount(nominal) * Amount(count)
		}
	}
	sort.Strings(parts)
	parts = append(parts, fmt.Sprintf("total:%s", sum.Format()))
	return strings.Join(parts, ",")
}

func (ng *NominalGroup) expendLoop(to *NominalGroup, amount Amount, strategy ExpendStrategy) error {
	strategy.Reset(ng)
	for amount > 0 {
		nominal, err := strategy.ExpendOne(ng, amount)
		if err != nil {
			return err
		}
		if nominal == 0 {
			panic("ExpendStrategy returned Nominal 0 without error")
		}
		amount -= Amount(nominal)
		if to != nil {
			to.values[nominal] += 1
		}
	}
	return nil
}

// common code from strategies
func expendOneOrdered(from *NominalGroup, order []Nominal, max Amount) (Nominal, error) {
	if len(order) < len(from.values) {
		panic("expendOneOrdered order must include all nominals")
	}
	if max == 0 {
		return 0, nil
	}
	for _, n := range order {
		if Amount(n) <= max && from.values[n] > 0 {
			from.values[n] -= 1
			return n, nil
		}
	}
	return 0, ErrNominalCount
}

type ngOrderSortElemFunc func(Nominal, uint) Nominal

func (ng *NominalGroup) order(sortElemFunc ngOrderSortElemFunc) []Nominal {
	order := make([]Nominal, 0, len(ng.values))
	for n := range ng.values {
		order = append(order, n)
	}
	sort.Slice(order, func(i, j int) bool {
		ni, nj := order[i], order[j]
		return sortElemFunc(ni, ng.values[ni]) > sortElemFunc(nj, ng.values[nj])
	})
	return order
}
func ngOrderSortElemNominal(n Nominal, c uint) Nominal { return n }
func ngOrderSortElemCount(n Nominal, c uint) Nominal   { return Nominal(c) }

// NominalGroup.Withdraw = strategy.Reset + loop strategy.ExpendOne
type ExpendStrategy interface {
	Reset(from *NominalGroup)
	ExpendOne(from *NominalGroup, max Amount) (Nominal, error)
}

type ExpendGenericOrder struct {
	order        []Nominal
	SortElemFunc ngOrderSortElemFunc
}

func (eg *ExpendGenericOrder) Reset(from *NominalGroup) {
	eg.order = from.order(eg.SortElemFunc)
}
func (eg *ExpendGenericOrder) ExpendOne(from *NominalGroup, max Amount) (Nominal, error) {
	return expendOneOrdered(from, eg.order, max)
}

// NewExpendLeastCount spends highest nominals first.
func NewExpendLeastCount() ExpendStrategy {
	return &ExpendGenericOrder{SortElemFunc: ngOrderSortElemNominal}
}

// NewExpendMostAvailable spends most stocked nominals first, keeps the cashbox balanced.
func NewExpendMostAvailable() ExpendStrategy {
	return &ExpendGenericOrder{SortElemFunc: ngOrderSortElemCount}
}
