package loyalty

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdvlite/go-pos-sync.git/internal/pos"
)

type fakeStore struct {
	balances map[string]int64
}

func (f *fakeStore) GetCustomer(_ context.Context, id string) (pos.Customer, error) {
	b, ok := f.balances[id]
	if !ok {
		return pos.Customer{}, errors.New("customer not found")
	}
	return pos.Customer{ID: id, Points: b}, nil
}

func (f *fakeStore) UpdateCustomerPoints(_ context.Context, id string, points int64) error {
	f.balances[id] = points
	return nil
}

func TestEarn(t *testing.T) {
	fs := &fakeStore{balances: map[string]int64{"c1": 100}}
	l := NewLedger(fs)

	balance, err := l.Earn(context.Background(), "c1", 800)
	require.NoError(t, err)
	assert.Equal(t, int64(900), balance)
	assert.Equal(t, int64(900), fs.balances["c1"])
}

func TestEarnRejectsNonPositive(t *testing.T) {
	l := NewLedger(&fakeStore{balances: map[string]int64{"c1": 100}})
	_, err := l.Earn(context.Background(), "c1", 0)
	assert.Error(t, err)
	_, err = l.Earn(context.Background(), "c1", -5)
	assert.Error(t, err)
}

func TestRedeem(t *testing.T) {
	fs := &fakeStore{balances: map[string]int64{"c1": 900}}
	l := NewLedger(fs)

	balance, err := l.Redeem(context.Background(), "c1", 900)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)
}

func TestRedeemInsufficientWritesNothing(t *testing.T) {
	fs := &fakeStore{balances: map[string]int64{"c1": 500}}
	l := NewLedger(fs)

	balance, err := l.Redeem(context.Background(), "c1", 501)
	assert.ErrorIs(t, err, ErrInsufficientPoints)
	assert.Equal(t, int64(500), balance)
	assert.Equal(t, int64(500), fs.balances["c1"])
}

func TestEarnRedeemRoundTrip(t *testing.T) {
	fs := &fakeStore{balances: map[string]int64{"c1": 0}}
	l := NewLedger(fs)

	_, err := l.Earn(context.Background(), "c1", 800)
	require.NoError(t, err)
	balance, err := l.Redeem(context.Background(), "c1", 300)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestPointsForTotal(t *testing.T) {
	cases := []struct {
		total string
		want  int64
	}{
		{"8.00", 800},
		{"8.505", 850}, // floored
		{"0.00", 0},
		{"0.009", 0},
		{"123.45", 12345},
	}
	for _, tc := range cases {
		got := PointsForTotal(decimal.RequireFromString(tc.total))
		assert.Equal(t, tc.want, got, "total %s", tc.total)
	}
}
