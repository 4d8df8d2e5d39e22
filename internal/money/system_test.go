package money

import (
	"context"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vendsim/vendsim/currency"
	"github.com/vendsim/vendsim/log2"
)

func testConfig() Config {
	return Config{
		Nominals: []int{10000, 5000, 1000, 500, 100},
		Reserve: []CashItem{
			{XXX_Nominal: "1000", Count: 20},
			{XXX_Nominal: "500", Count: 30},
			{XXX_Nominal: "100", Count: 50},
		},
		Wallet: []CashItem{
			{XXX_Nominal: "10000", Count: 1},
			{XXX_Nominal: "1000", Count: 3},
			{XXX_Nominal: "500", Count: 2},
		},
		CardBalance: 30000,
	}
}

func testSystem(t testing.TB, config Config, gateway Gateway) *MoneySystem {
	if gateway == nil {
		gateway = GatewayStub{}
	}
	ms := new(MoneySystem)
	require.NoError(t, ms.Init(config, log2.NewTest(t, log2.LDebug), gateway))
	return ms
}

func TestInsertReturn(t *testing.T) {
	t.Parallel()

	ms := testSystem(t, testConfig(), nil)
	walletBefore := ms.WalletTotal()

	require.NoError(t, ms.InsertCash(1000))
	require.NoError(t, ms.InsertCash(500))
	assert.Equal(t, currency.Amount(1500), ms.InsertedTotal())
	assert.Equal(t, walletBefore-1500, ms.WalletTotal())

	out := ms.ReturnInserted()
	assert.Equal(t, currency.Amount(1500), out.Total())
	assert.Equal(t, currency.Amount(0), ms.InsertedTotal())
	assert.Equal(t, walletBefore, ms.WalletTotal())
}

func TestInsertMissingNominal(t *testing.T) {
	t.Parallel()

	ms := testSystem(t, testConfig(), nil)
	walletBefore := ms.WalletTotal()

	err := ms.InsertCash(100)
	assert.Equal(t, currency.ErrNominalCount, errors.Cause(err))
	assert.Equal(t, walletBefore, ms.WalletTotal())
	assert.Equal(t, currency.Amount(0), ms.InsertedTotal())
}

func TestSettleCash(t *testing.T) {
	t.Parallel()

	ms := testSystem(t, testConfig(), nil)
	reserveBefore := ms.ReserveTotal()

	require.NoError(t, ms.InsertCash(1000))
	change, err := ms.SettleCash(700)
	require.NoError(t, err)
	assert.Equal(t, currency.Amount(300), change)
	assert.Equal(t, currency.Amount(0), ms.InsertedTotal())
	assert.Equal(t, reserveBefore+1000, ms.ReserveTotal())

	walletBefore := ms.WalletTotal()
	out, err := ms.DispenseChange(change)
	require.NoError(t, err)
	assert.Equal(t, currency.Amount(300), out.Total())
	assert.Equal(t, walletBefore+300, ms.WalletTotal())
	assert.Equal(t, reserveBefore+1000-300, ms.ReserveTotal())
}

func TestSettleNeedMoreMoney(t *testing.T) {
	t.Parallel()

	ms := testSystem(t, testConfig(), nil)
	require.NoError(t, ms.InsertCash(500))
	_, err := ms.SettleCash(700)
	assert.Equal(t, ErrNeedMoreMoney, errors.Cause(err))
	assert.Equal(t, currency.Amount(500), ms.InsertedTotal(), "failed settle keeps inserted cash")
}

func TestSettleChangeInsufficient(t *testing.T) {
	t.Parallel()

	config := testConfig()
	// reserve cannot decompose 300
	config.Reserve = []CashItem{{XXX_Nominal: "5000", Count: 2}}
	ms := testSystem(t, config, nil)
	walletBefore := ms.WalletTotal()
	reserveBefore := ms.ReserveTotal()

	require.NoError(t, ms.InsertCash(1000))
	_, err := ms.SettleCash(700)
	assert.Equal(t, ErrChangeInsufficient, errors.Cause(err))
	// hard abort: full refund, reserve untouched
	assert.Equal(t, walletBefore, ms.WalletTotal())
	assert.Equal(t, reserveBefore, ms.ReserveTotal())
	assert.Equal(t, currency.Amount(0), ms.InsertedTotal())
}

func TestDispenseInsufficient(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.Reserve = nil
	ms := testSystem(t, config, nil)
	walletBefore := ms.WalletTotal()

	_, err := ms.DispenseChange(300)
	assert.Equal(t, ErrChangeInsufficient, errors.Cause(err))
	assert.Equal(t, walletBefore, ms.WalletTotal(), "failed dispense pays nothing")
}

func TestInsertOptimal(t *testing.T) {
	t.Parallel()

	config := testConfig()
	config.Wallet = []CashItem{
		{XXX_Nominal: "1000", Count: 1},
		{XXX_Nominal: "500", Count: 3},
	}
	ms := testSystem(t, config, nil)

	pick, err := ms.InsertOptimal(1200)
	require.NoError(t, err)
	assert.Equal(t, currency.Amount(1500), pick.Total())
	assert.Equal(t, uint(2), pick.Count())
	assert.Equal(t, currency.Amount(1500), ms.InsertedTotal())
	assert.Equal(t, currency.Amount(1000), ms.WalletTotal())

	// second call tops up nothing, price already covered
	pick2, err := ms.InsertOptimal(1200)
	require.NoError(t, err)
	assert.Equal(t, currency.Amount(0), pick2.Total())
	assert.Equal(t, currency.Amount(1500), ms.InsertedTotal())
}

func TestPayCard(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		ms := testSystem(t, testConfig(), GatewayStub{})
		require.NoError(t, ms.PayCard(context.Background(), 1100))
		assert.Equal(t, currency.Amount(30000-1100), ms.CardBalance())
	})

	t.Run("declined", func(t *testing.T) {
		ms := testSystem(t, testConfig(), GatewayStub{Err: ErrCardPaymentFailed})
		err := ms.PayCard(context.Background(), 1100)
		assert.Equal(t, ErrCardPaymentFailed, errors.Cause(err))
		assert.Equal(t, currency.Amount(30000), ms.CardBalance(), "failed charge mutates nothing")
	})

	t.Run("balance-short", func(t *testing.T) {
		ms := testSystem(t, testConfig(), GatewayStub{})
		err := ms.PayCard(context.Background(), 50000)
		assert.Equal(t, ErrNeedMoreMoney, errors.Cause(err))
		assert.Equal(t, currency.Amount(30000), ms.CardBalance())
	})

	t.Run("cancelled", func(t *testing.T) {
		ms := testSystem(t, testConfig(), NewSimGateway(testConfig(), log2.NewTest(t, log2.LDebug)))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := ms.PayCard(ctx, 1100)
		assert.Equal(t, ErrCardPaymentFailed, errors.Cause(err))
		assert.Equal(t, currency.Amount(30000), ms.CardBalance())
	})
}

func TestAdjustClamp(t *testing.T) {
	t.Parallel()

	ms := testSystem(t, testConfig(), nil)
	require.NoError(t, ms.AdjustReserve(1000, -100))
	c, err := ms.Reserve().Get(1000)
	require.NoError(t, err)
	assert.Equal(t, uint(0), c, "admin adjust clamps at zero")

	require.NoError(t, ms.AdjustWallet(100, 7))
	c, err = ms.Wallet().Get(100)
	require.NoError(t, err)
	assert.Equal(t, uint(7), c)

	err = ms.AdjustReserve(123, 1)
	assert.Equal(t, currency.ErrNominalInvalid, errors.Cause(err))
}

func TestRefillReserve(t *testing.T) {
	t.Parallel()

	ms := testSystem(t, testConfig(), nil)
	before := ms.ReserveTotal()
	require.NoError(t, ms.AdjustReserve(100, -50))
	assert.NotEqual(t, before, ms.ReserveTotal())
	ms.RefillReserve()
	assert.Equal(t, before, ms.ReserveTotal())
}
