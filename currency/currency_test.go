package currency

import (
	"testing"
	"testing/quick"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestNominalGroup(t *testing.T) *NominalGroup {
	ng := NewNominalGroup([]Nominal{10, 5, 2, 1})
	if err := ng.Add(101, 1); errors.Cause(err) != ErrNominalInvalid {
		t.Fatalf("expected invalid nominal, got %v", err)
	}
	require.NoError(t, ng.Add(10, 2))
	require.NoError(t, ng.Add(5, 8))
	require.NoError(t, ng.Add(2, 1))
	require.NoError(t, ng.Add(1, 3))
	return ng
}

func testCheckWithdraw(t *testing.T, strategy ExpendStrategy) {
	ng := createTestNominalGroup(t)

	total1 := ng.Total()
	require.NoError(t, ng.Copy().Withdraw(nil, 17, strategy))
	total2 := ng.Total()
	require.NoError(t, ng.Withdraw(nil, 17, strategy))
	total3 := ng.Total()
	if err := ng.Copy().Withdraw(nil, 100, strategy); err == nil {
		t.Fatal("expected withdraw error")
	}
	total4 := ng.Total()
	if err := ng.Withdraw(nil, 100, strategy); err == nil {
		t.Fatal("expected withdraw error")
	}
	total5 := ng.Total()
	const exptotal1 = 65
	const exptotal2 = 48
	if total1 != exptotal1 || total2 != exptotal1 {
		t.Fatalf("expected total1 %d == total2 %d == %d", total1, total2, exptotal1)
	}
	if total3 != exptotal2 || total4 != exptotal2 {
		t.Fatalf("expected total3 %d == total4 %d == %d", total3, total4, exptotal2)
	}
	// failed withdraw must leave the group intact
	if total5 != exptotal2 {
		t.Fatalf("expected total5 %d == %d", total5, exptotal2)
	}
}

func TestNominalGroupWithdraw(t *testing.T) {
	t.Parallel()
	t.Run("ExpendLeastCount", func(t *testing.T) { testCheckWithdraw(t, NewExpendLeastCount()) })
	t.Run("ExpendMostAvailable", func(t *testing.T) { testCheckWithdraw(t, NewExpendMostAvailable()) })
}

func TestTrySub(t *testing.T) {
	t.Parallel()

	ng := createTestNominalGroup(t)
	require.NoError(t, ng.TrySub(5, 3))
	c, err := ng.Get(5)
	require.NoError(t, err)
	assert.Equal(t, uint(5), c)

	err = ng.TrySub(5, 6)
	assert.Equal(t, ErrNominalCount, errors.Cause(err))
	c, err = ng.Get(5)
	require.NoError(t, err)
	assert.Equal(t, uint(5), c, "failed TrySub must not modify count")

	err = ng.TrySub(7, 1)
	assert.Equal(t, ErrNominalInvalid, errors.Cause(err))
}

func TestForceSub(t *testing.T) {
	t.Parallel()

	ng := createTestNominalGroup(t)
	require.NoError(t, ng.ForceSub(1, 100))
	c, err := ng.Get(1)
	require.NoError(t, err)
	assert.Equal(t, uint(0), c, "ForceSub clamps at zero")

	err = ng.ForceSub(7, 1)
	assert.Equal(t, ErrNominalInvalid, errors.Cause(err))
}

func TestMoveTo(t *testing.T) {
	t.Parallel()

	from := createTestNominalGroup(t)
	to := NewNominalGroup([]Nominal{10, 5, 2, 1})
	sumBefore := from.Total() + to.Total()

	require.NoError(t, from.MoveTo(to, 10, 1))
	assert.Equal(t, Amount(55), from.Total())
	assert.Equal(t, Amount(10), to.Total())
	assert.Equal(t, sumBefore, from.Total()+to.Total())

	err := from.MoveTo(to, 10, 5)
	assert.Equal(t, ErrNominalCount, errors.Cause(err))
	assert.Equal(t, sumBefore, from.Total()+to.Total(), "failed move transfers nothing")
}

func TestMakeExact(t *testing.T) {
	t.Parallel()

	t.Run("feasible", func(t *testing.T) {
		ng := NewNominalGroup([]Nominal{10000, 5000, 1000, 500, 100})
		require.NoError(t, ng.Add(1000, 20))
		require.NoError(t, ng.Add(500, 30))
		require.NoError(t, ng.Add(100, 50))
		out, err := ng.MakeExact(1700)
		require.NoError(t, err)
		assert.Equal(t, Amount(1700), out.Total())
		assert.Equal(t, "1000:1,100:2,500:1,total:1700", out.String())
		// source untouched
		assert.Equal(t, Amount(40000), ng.Total())
		// every used count is covered by the source
		require.NoError(t, out.Iter(func(n Nominal, count uint) error {
			avail, err := ng.Get(n)
			require.NoError(t, err)
			assert.LessOrEqual(t, count, avail)
			return nil
		}))
	})

	t.Run("zero", func(t *testing.T) {
		ng := NewNominalGroup([]Nominal{500, 100})
		out, err := ng.MakeExact(0)
		require.NoError(t, err)
		assert.Equal(t, Amount(0), out.Total())
	})

	t.Run("infeasible", func(t *testing.T) {
		// 500 unusable for 400, then 100x1=100 falls short
		ng := NewNominalGroup([]Nominal{500, 100})
		require.NoError(t, ng.Add(500, 1))
		require.NoError(t, ng.Add(100, 1))
		_, err := ng.MakeExact(400)
		assert.Equal(t, ErrNominalCount, errors.Cause(err))
		assert.Equal(t, Amount(600), ng.Total())
	})
}

func TestCanProvide(t *testing.T) {
	t.Parallel()

	ng := NewNominalGroup([]Nominal{500, 100})
	require.NoError(t, ng.Add(500, 1))
	require.NoError(t, ng.Add(100, 3))
	assert.True(t, ng.CanProvide(0))
	assert.True(t, ng.CanProvide(700))
	assert.True(t, ng.CanProvide(800))
	assert.False(t, ng.CanProvide(900), "amount over total")
	assert.False(t, ng.CanProvide(450), "no exact decomposition")
}

// Total must equal the sum of per-nominal subtotals after any operation sequence.
func TestTotalInvariant(t *testing.T) {
	t.Parallel()

	valid := []Nominal{10000, 5000, 1000, 500, 100}
	f := func(ops []uint16) bool {
		ng := NewNominalGroup(valid)
		shadow := make(map[Nominal]uint, len(valid))
		for _, op := range ops {
			n := valid[int(op)%len(valid)]
			count := uint(op>>4) % 7
			switch (op >> 12) % 3 {
			case 0:
				if ng.Add(n, count) == nil {
					shadow[n] += count
				}
			case 1:
				if ng.TrySub(n, count) == nil {
					shadow[n] -= count
				}
			case 2:
				if ng.ForceSub(n, count) == nil {
					if shadow[n] < count {
						count = shadow[n]
					}
					shadow[n] -= count
				}
			}
		}
		expect := Amount(0)
		for n, c := range shadow {
			expect += Amount(n) * Amount(c)
		}
		return assert.Equal(t, expect, ng.Total())
	}
	assert.NoError(t, quick.Check(f, &quick.Config{MaxCount: 1000}))
}
