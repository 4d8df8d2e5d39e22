// Command vendsim is an interactive vending machine simulator. One purchase
// at a time: select a product, pick cash or card, feed money, take the
// product and change.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/vendsim/vendsim/currency"
	"github.com/vendsim/vendsim/helpers/cli"
	"github.com/vendsim/vendsim/internal/state"
	"github.com/vendsim/vendsim/internal/vmc"
	"github.com/vendsim/vendsim/log2"
)

const usage = `commands:
- products           list products
- wallet             show your cash and card balance
- reserve            show machine change cashbox (admin)
- status             show current transaction
- select N           choose product number N
- method cash|card   choose payment method
- insert N           feed one bill/coin of nominal N
- insert auto        feed the cheapest combination covering the price
- pay                settle cash or charge the card
- return             take inserted money back
- take               take product and change
- cancel             abort transaction
- refill             restore stock and change cashbox (admin)
- reset              cancel transaction and restore the machine (admin)
- stock N Q          set stock of product N to Q (admin)
- cashbox N D        adjust cashbox count of nominal N by D (admin)
- pocket N D         adjust your wallet count of nominal N by D (admin)
- card-balance A     set card balance to A (admin)
- exit
`

var log = log2.NewStderr(log2.LDebug)

func main() {
	cmdline := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flagConfig := cmdline.String("config", "vendsim.hcl", "")
	cmdline.Parse(os.Args[1:]) //nolint:errcheck

	log.SetFlags(log2.LInteractiveFlags)

	ctx, g := state.NewContext(log)
	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	g.MustInit(ctx, config, nil)
	v := vmc.New(g)

	log.Infof("vendsim ready, type help")
	cli.MainLoop(newExecutor(ctx, g, v), newCompleter(g), g.Stop)
}

var suggests = []prompt.Suggest{
	{Text: "products", Description: "list products"},
	{Text: "wallet", Description: "your cash and card balance"},
	{Text: "reserve", Description: "machine change cashbox"},
	{Text: "status", Description: "current transaction"},
	{Text: "select", Description: "select N: choose product"},
	{Text: "method", Description: "method cash|card"},
	{Text: "insert", Description: "insert N | insert auto"},
	{Text: "pay", Description: "settle cash or charge card"},
	{Text: "return", Description: "take inserted money back"},
	{Text: "take", Description: "take product and change"},
	{Text: "cancel", Description: "abort transaction"},
	{Text: "refill", Description: "admin: restore stock and cashbox"},
	{Text: "reset", Description: "admin: cancel and restore machine"},
	{Text: "stock", Description: "admin: stock N Q"},
	{Text: "cashbox", Description: "admin: cashbox N D"},
	{Text: "pocket", Description: "admin: pocket N D"},
	{Text: "card-balance", Description: "admin: card-balance A"},
	{Text: "help"},
	{Text: "exit"},
}

func newCompleter(g *state.Global) func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context, g *state.Global, v *vmc.VMC) func(string) {
	return func(line string) {
		words := strings.Fields(line)
		if len(words) == 0 {
			return
		}
		snap, err := execute(ctx, g, v, words)
		if err != nil {
			log.Errorf(errors.ErrorStack(err))
		}
		if snap != nil {
			printSnapshot(*snap)
		}
	}
}

func execute(ctx context.Context, g *state.Global, v *vmc.VMC, words []string) (*vmc.Snapshot, error) {
	switch words[0] {
	case "help":
		fmt.Print(usage)
		return nil, nil

	case "exit", "quit":
		g.Stop()
		os.Exit(0)

	case "products":
		for _, p := range g.Catalog.List() {
			fmt.Printf("  %d %-12s price=%s stock=%d\n", p.Number, p.Name, p.Price.Format(), p.Quantity)
		}
		return nil, nil

	case "wallet":
		fmt.Printf("  cash (%s)\n  card %s\n", g.Money.Wallet().String(), g.Money.CardBalance().Format())
		return nil, nil

	case "reserve":
		fmt.Printf("  cashbox (%s)\n", g.Money.Reserve().String())
		return nil, nil

	case "status":
		fmt.Printf("  products=%d change=%s\n", g.Catalog.TotalQuantity(), g.Money.ReserveTotal().Format())
		snap := v.State()
		return &snap, nil

	case "select":
		number, err := argInt(words, 1, "select N")
		if err != nil {
			return nil, err
		}
		snap, err := v.SelectProduct(number)
		return &snap, err

	case "method":
		if len(words) < 2 {
			return nil, errors.NotValidf("syntax: method cash|card")
		}
		var m vmc.PaymentMethod
		switch words[1] {
		case "cash":
			m = vmc.PaymentCash
		case "card":
			m = vmc.PaymentCard
		default:
			return nil, errors.NotValidf("method=%s", words[1])
		}
		snap, err := v.SelectPayment(m)
		return &snap, err

	case "insert":
		if len(words) >= 2 && words[1] == "auto" {
			snap, err := v.InsertOptimalCash()
			return &snap, err
		}
		n, err := argInt(words, 1, "insert N|auto")
		if err != nil {
			return nil, err
		}
		snap, err := v.InsertCash(currency.Nominal(n))
		return &snap, err

	case "pay":
		if v.State().Method == vmc.PaymentCard {
			return payCard(ctx, g, v)
		}
		snap, err := v.PayCash()
		return &snap, err

	case "return":
		snap, err := v.ReturnFunds()
		return &snap, err

	case "take":
		snap, err := v.AcknowledgeDispense()
		return &snap, err

	case "cancel":
		snap, err := v.Cancel()
		return &snap, err

	case "refill":
		g.Catalog.Refill()
		g.Money.RefillReserve()
		return nil, nil

	case "reset":
		snap, err := v.Cancel()
		if err != nil {
			return &snap, err
		}
		g.Catalog.Refill()
		g.Money.RefillReserve()
		return &snap, nil

	case "stock":
		number, err := argInt(words, 1, "stock N Q")
		if err != nil {
			return nil, err
		}
		q, err := argInt(words, 2, "stock N Q")
		if err != nil || q < 0 {
			return nil, errors.NotValidf("syntax: stock N Q")
		}
		return nil, g.Catalog.SetQuantity(number, uint(q))

	case "cashbox":
		n, err := argInt(words, 1, "cashbox N D")
		if err != nil {
			return nil, err
		}
		delta, err := argInt(words, 2, "cashbox N D")
		if err != nil {
			return nil, err
		}
		return nil, g.Money.AdjustReserve(currency.Nominal(n), delta)

	case "pocket":
		n, err := argInt(words, 1, "pocket N D")
		if err != nil {
			return nil, err
		}
		delta, err := argInt(words, 2, "pocket N D")
		if err != nil {
			return nil, err
		}
		return nil, g.Money.AdjustWallet(currency.Nominal(n), delta)

	case "card-balance":
		a, err := argInt(words, 1, "card-balance A")
		if err != nil || a < 0 {
			return nil, errors.NotValidf("syntax: card-balance A")
		}
		g.Money.SetCardBalance(currency.Amount(a))
		return nil, nil
	}
	return nil, errors.Errorf("invalid command: '%s', try help", words[0])
}

func payCard(ctx context.Context, g *state.Global, v *vmc.VMC) (*vmc.Snapshot, error) {
	snap := v.State()
	if snap.Product != nil {
		session := g.Money.GatewaySessionID()
		link := fmt.Sprintf("vendsim://pay/%s?amount=%d", session, uint32(snap.Product.Price))
		if qr, err := qrcode.New(link, qrcode.High); err == nil {
			fmt.Print(qr.ToString(false))
		}
		fmt.Printf("  charging %s, session %s ...\n", snap.Product.Price.Format(), session)
	}
	// process stop aborts an in-flight charge
	chargeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.Alive.StopChan():
			cancel()
		case <-chargeCtx.Done():
		}
	}()
	snap, err := v.PayCard(chargeCtx)
	return &snap, err
}

func printSnapshot(snap vmc.Snapshot) {
	fmt.Printf("  step=%s method=%s", snap.Step.String(), snap.Method.String())
	if snap.Product != nil {
		fmt.Printf(" product=%d(%s %s)", snap.Product.Number, snap.Product.Name, snap.Product.Price.Format())
	}
	if snap.InsertedTotal > 0 {
		fmt.Printf(" inserted=%s", snap.InsertedTotal.Format())
	}
	if snap.ChangeOwed > 0 {
		fmt.Printf(" change=%s", snap.ChangeOwed.Format())
		if snap.ChangeDue != nil {
			fmt.Printf(" (%s)", snap.ChangeDue.String())
		}
	}
	if snap.Dispensed != nil && snap.Dispensed.Total() > 0 {
		fmt.Printf(" dispensed=(%s)", snap.Dispensed.String())
	}
	fmt.Print("\n")
	if snap.Message != "" {
		fmt.Printf("  [%s]\n", snap.Message)
	}
}

func argInt(words []string, i int, syntax string) (int, error) {
	if len(words) <= i {
		return 0, errors.NotValidf("syntax: %s", syntax)
	}
	x, err := strconv.Atoi(words[i])
	if err != nil {
		return 0, errors.Annotatef(err, "syntax: %s", syntax)
	}
	return x, nil
}
