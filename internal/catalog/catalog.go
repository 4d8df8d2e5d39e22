// Package catalog tracks the product shelf: immutable number/name/price plus
// a mutable stock count per product.
package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/juju/errors"
	"github.com/vendsim/vendsim/currency"
	"github.com/vendsim/vendsim/log2"
)

var ErrOutOfStock = errors.New("out-of-stock")

type Config struct {
	Products []*ProductItem `hcl:"product"`
}

type ProductItem struct {
	XXX_Number string `hcl:"number,key"` // use parsed `Number`, this is for decoding config only
	Name       string `hcl:"name"`
	XXX_Price  int    `hcl:"price"` // use `Price`
	Stock      int    `hcl:"stock"`

	Number int             `hcl:"-"`
	Price  currency.Amount `hcl:"-"`
}

func (pi *ProductItem) String() string {
	return fmt.Sprintf("product.%d %s price=%d stock=%d", pi.Number, pi.Name, pi.XXX_Price, pi.Stock)
}

// Product is a snapshot for rendering, safe to hold across mutations.
type Product struct {
	Number   int
	Name     string
	Price    currency.Amount
	Quantity uint
}

type Catalog struct {
	log      *log2.Log
	lk       sync.Mutex
	byNumber map[int]*entry
	config   Config
}

type entry struct {
	number   int
	name     string
	price    currency.Amount
	quantity uint
}

func (c *Catalog) Init(config Config, log *log2.Log) error {
	c.lk.Lock()
	defer c.lk.Unlock()

	c.log = log
	c.config = config
	c.byNumber = make(map[int]*entry, len(config.Products))
	for _, pi := range config.Products {
		number, err := strconv.Atoi(pi.XXX_Number)
		if err != nil {
			return errors.Annotatef(err, "config: catalog product number=%s", pi.XXX_Number)
		}
		if pi.XXX_Price <= 0 {
			return errors.NotValidf("config: catalog product number=%s price=%d", pi.XXX_Number, pi.XXX_Price)
		}
		if pi.Stock < 0 {
			return errors.NotValidf("config: catalog product number=%s stock=%d", pi.XXX_Number, pi.Stock)
		}
		if _, ok := c.byNumber[number]; ok {
			return errors.NotValidf("config: catalog duplicate product number=%s", pi.XXX_Number)
		}
		pi.Number = number
		pi.Price = currency.Amount(pi.XXX_Price)
		c.byNumber[number] = &entry{
			number:   number,
			name:     pi.Name,
			price:    pi.Price,
			quantity: uint(pi.Stock),
		}
	}
	return nil
}

func (c *Catalog) Get(number int) (Product, error) {
	c.lk.Lock()
	defer c.lk.Unlock()
	e, ok := c.byNumber[number]
	if !ok {
		return Product{}, errors.NotFoundf("product %d", number)
	}
	return e.snapshot(), nil
}

func (c *Catalog) List() []Product {
	c.lk.Lock()
	defer c.lk.Unlock()
	ps := make([]Product, 0, len(c.byNumber))
	for _, e := range c.byNumber {
		ps = append(ps, e.snapshot())
	}
	sort.Slice(ps, func(i, j int) bool { return ps[i].Number < ps[j].Number })
	return ps
}

func (c *Catalog) SetQuantity(number int, quantity uint) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	e, ok := c.byNumber[number]
	if !ok {
		return errors.NotFoundf("product %d", number)
	}
	e.quantity = quantity
	c.log.Infof("catalog set product=%d quantity=%d", number, quantity)
	return nil
}

// Vend decrements stock of one product by one.
func (c *Catalog) Vend(number int) error {
	c.lk.Lock()
	defer c.lk.Unlock()
	e, ok := c.byNumber[number]
	if !ok {
		return errors.NotFoundf("product %d", number)
	}
	if e.quantity == 0 {
		return errors.Annotatef(ErrOutOfStock, "product %d", number)
	}
	e.quantity--
	c.log.Debugf("catalog vend product=%d quantity=%d", number, e.quantity)
	return nil
}

// Refill restores every product to its configured stock.
func (c *Catalog) Refill() {
	c.lk.Lock()
	defer c.lk.Unlock()
	for _, pi := range c.config.Products {
		if e, ok := c.byNumber[pi.Number]; ok {
			e.quantity = uint(pi.Stock)
		}
	}
	c.log.Infof("catalog refilled")
}

// TotalQuantity is the machine status indicator: how many products remain.
func (c *Catalog) TotalQuantity() uint {
	c.lk.Lock()
	defer c.lk.Unlock()
	sum := uint(0)
	for _, e := range c.byNumber {
		sum += e.quantity
	}
	return sum
}

func (e *entry) snapshot() Product {
	return Product{Number: e.number, Name: e.name, Price: e.price, Quantity: e.quantity}
}
