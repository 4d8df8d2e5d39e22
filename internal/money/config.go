package money

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"
	"github.com/vendsim/vendsim/currency"
)

type Config struct { //nolint:maligned
	// Valid nominal set, e.g. [10000, 5000, 1000, 500, 100].
	Nominals []int `hcl:"nominals"`

	Reserve []CashItem `hcl:"reserve"`
	Wallet  []CashItem `hcl:"wallet"`

	CardBalance int `hcl:"card_balance"`

	// least-count|most-available, change disbursement order
	ChangeStrategy string `hcl:"change_strategy"`

	Cashless struct {
		DelayMs     int `hcl:"delay_ms"`
		FailPercent int `hcl:"fail_percent"`
	} `hcl:"cashless"`
}

type CashItem struct {
	XXX_Nominal string `hcl:"nominal,key"` // use parsed `Nominal`, this is for decoding config only
	Count       int    `hcl:"count"`

	Nominal currency.Nominal `hcl:"-"`
}

func (ci *CashItem) String() string {
	return fmt.Sprintf("cash.%d x%d", ci.Nominal, ci.Count)
}

func (c *Config) Parse() error {
	if len(c.Nominals) == 0 {
		c.Nominals = []int{10000, 5000, 1000, 500, 100}
	}
	for _, n := range c.Nominals {
		if n <= 0 {
			return errors.NotValidf("config: money.nominals value=%d", n)
		}
	}
	if c.ChangeStrategy == "" {
		c.ChangeStrategy = "least-count"
	}
	switch c.ChangeStrategy {
	case "least-count", "most-available":
	default:
		return errors.NotValidf("config: money.change_strategy=%s", c.ChangeStrategy)
	}
	if c.CardBalance < 0 {
		return errors.NotValidf("config: money.card_balance=%d", c.CardBalance)
	}
	if p := c.Cashless.FailPercent; p < 0 || p > 100 {
		return errors.NotValidf("config: money.cashless.fail_percent=%d", p)
	}
	if c.Cashless.DelayMs < 0 {
		return errors.NotValidf("config: money.cashless.delay_ms=%d", c.Cashless.DelayMs)
	}
	for _, items := range [][]CashItem{c.Reserve, c.Wallet} {
		for i := range items {
			ci := &items[i]
			x, err := strconv.ParseUint(ci.XXX_Nominal, 10, 32)
			if err != nil {
				return errors.Annotatef(err, "config: money cash nominal=%s", ci.XXX_Nominal)
			}
			if ci.Count < 0 {
				return errors.NotValidf("config: money cash nominal=%s count=%d", ci.XXX_Nominal, ci.Count)
			}
			ci.Nominal = currency.Nominal(x)
			if !c.validNominal(ci.Nominal) {
				return errors.NotValidf("config: money cash nominal=%s not in nominal set", ci.XXX_Nominal)
			}
		}
	}
	return nil
}

func (c *Config) validNominal(n currency.Nominal) bool {
	for _, x := range c.Nominals {
		if currency.Nominal(x) == n {
			return true
		}
	}
	return false
}

func (c *Config) ValidNominals() []currency.Nominal {
	ns := make([]currency.Nominal, 0, len(c.Nominals))
	for _, x := range c.Nominals {
		ns = append(ns, currency.Nominal(x))
	}
	return ns
}
