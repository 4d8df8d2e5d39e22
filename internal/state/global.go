// Package state wires configuration and subsystems into one Global owned by
// the process, passed around through context. No hidden package-level
// singletons: everything the orchestrator and UI touch hangs off Global.
package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/vendsim/vendsim/helpers"
	"github.com/vendsim/vendsim/internal/catalog"
	"github.com/vendsim/vendsim/internal/money"
	"github.com/vendsim/vendsim/log2"
)

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Config       *Config
	Catalog      *catalog.Catalog
	Money        *money.MoneySystem
	Log          *log2.Log

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive:   alive.NewAlive(),
		Catalog: new(catalog.Catalog),
		Money:   new(money.MoneySystem),
		Log:     log,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config, gateway money.Gateway) error {
	g.Config = cfg

	errs := make([]error, 0)
	if err := g.Catalog.Init(cfg.Catalog, g.Log); err != nil {
		errs = append(errs, err)
	}
	if gateway == nil {
		gateway = money.NewSimGateway(cfg.Money, g.Log)
	}
	if err := g.Money.Init(cfg.Money, g.Log, gateway); err != nil {
		errs = append(errs, err)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return err
	}
	g.Log.Debugf("state init products=%d reserve=%s", len(cfg.Catalog.Products), g.Money.ReserveTotal().Format())
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config, gateway money.Gateway) {
	if err := g.Init(ctx, cfg, gateway); err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Errorf(errors.ErrorStack(err))
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}
