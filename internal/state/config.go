package state

import (
	"path/filepath"
	"sync"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/vendsim/vendsim/helpers"
	"github.com/vendsim/vendsim/internal/catalog"
	"github.com/vendsim/vendsim/internal/money"
	"github.com/vendsim/vendsim/log2"
)

type Config struct { //nolint:maligned
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Catalog catalog.Config `hcl:"catalog"`
	Money   money.Config   `hcl:"money"`

	UI struct {
		Front FrontMessages `hcl:"front"`
	} `hcl:"ui"`

	_copy_guard sync.Mutex //nolint:unused
}

// FrontMessages are the user-visible message templates, amounts and product
// numbers are interpolated by the orchestrator.
type FrontMessages struct {
	MsgProductNotFound    string `hcl:"msg_product_not_found"`
	MsgOutOfStock         string `hcl:"msg_out_of_stock"`
	MsgInsufficientFunds  string `hcl:"msg_insufficient_funds"`
	MsgNeedMoreMoney      string `hcl:"msg_need_more_money"`
	MsgChangeInsufficient string `hcl:"msg_change_insufficient"`
	MsgChangeBroken       string `hcl:"msg_change_broken"`
	MsgCardFailed         string `hcl:"msg_card_failed"`
	MsgTakeProduct        string `hcl:"msg_take_product"`
	MsgTakeChange         string `hcl:"msg_take_change"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// defaults fills user-visible message templates not present in config.
func (c *Config) defaults() {
	f := &c.UI.Front
	set := func(dst *string, value string) {
		if *dst == "" {
			*dst = value
		}
	}
	set(&f.MsgProductNotFound, "product %d does not exist")
	set(&f.MsgOutOfStock, "product %d is sold out")
	set(&f.MsgInsufficientFunds, "%s available %s is less than price %s")
	set(&f.MsgNeedMoreMoney, "inserted %s of price %s, add more money")
	set(&f.MsgChangeInsufficient, "cannot make change of %s, inserted money returned")
	set(&f.MsgChangeBroken, "change of %s unavailable, call the administrator")
	set(&f.MsgCardFailed, "card payment failed, you may retry")
	set(&f.MsgTakeProduct, "take your product")
	set(&f.MsgTakeChange, "take your change %s")
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		if err := osfs.SetBase(dir); err != nil {
			return nil, err
		}
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	c.defaults()
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
