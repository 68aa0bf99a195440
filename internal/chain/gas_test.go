package chain

import (
	"context"
	"math/big"
	"testing"
	"time"
)

type fakeSuggester struct {
	price *big.Int
	calls int
}

func (f *fakeSuggester) SuggestGasPrice(context.Context) (*big.Int, error) {
	f.calls++
	return new(big.Int).Set(f.price), nil
}

func TestGasOracleTiers(t *testing.T) {
	suggester := &fakeSuggester{price: big.NewInt(1000)}
	oracle := NewGasOracle(suggester, time.Minute)

	quote, err := oracle.Quote(context.Background())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	cases := []struct {
		name string
		got  *big.Int
		want int64
	}{
		{"slow", quote.Slow, 800},
		{"current", quote.Current, 1000},
		{"fast", quote.Fast, 1200},
		{"rapid", quote.Rapid, 1500},
	}
	for _, tc := range cases {
		if tc.got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("%s tier: expected %d, got %s", tc.name, tc.want, tc.got)
		}
	}
}

func TestGasOracleCaches(t *testing.T) {
	suggester := &fakeSuggester{price: big.NewInt(1000)}
	oracle := NewGasOracle(suggester, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	oracle.clock = func() time.Time { return now }

	ctx := context.Background()
	if _, err := oracle.Quote(ctx); err != nil {
		t.Fatalf("first quote: %v", err)
	}
	suggester.price = big.NewInt(9999)
	quote, err := oracle.Quote(ctx)
	if err != nil {
		t.Fatalf("cached quote: %v", err)
	}
	if quote.Current.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected cached price, got %s", quote.Current)
	}
	if suggester.calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", suggester.calls)
	}

	now = now.Add(2 * time.Minute)
	quote, err = oracle.Quote(ctx)
	if err != nil {
		t.Fatalf("refreshed quote: %v", err)
	}
	if quote.Current.Cmp(big.NewInt(9999)) != 0 {
		t.Fatalf("expected refreshed price, got %s", quote.Current)
	}
}
