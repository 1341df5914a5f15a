package registry

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/token"
)

const tokenAddr = "0xAAaAaaAAaaaAAAAAAaAAaAaaaaaaaaaAAaAAAAaA"

func newToken(name string) *token.Token {
	tok := token.New(common.HexToAddress(tokenAddr), common.HexToAddress("0xbeef"), token.VenueUniswapV2, time.Unix(1, 0))
	tok.Name = name
	return tok
}

func TestInsertOrGet_DoesNotClobber(t *testing.T) {
	r := New(zap.NewNop())

	first := r.InsertOrGet(newToken("first"))
	second := r.InsertOrGet(newToken("second"))

	if first.Name != "first" || second.Name != "first" {
		t.Fatalf("expected original payload both times, got %q and %q", first.Name, second.Name)
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 token, got %d", r.Count())
	}
}

func TestGet_LowercasesKey(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))

	got, ok := r.Get("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if !ok {
		t.Fatal("expected lowercase lookup to find token")
	}
	if got.Address != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("stored address not canonical: %s", got.Address)
	}
	if _, ok := r.Get(tokenAddr); !ok {
		t.Fatal("expected mixed case lookup to find token")
	}
}

func TestGet_ReturnsSnapshot(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))

	snap, _ := r.Get(tokenAddr)
	snap.AmountBought.SetInt64(1000)
	snap.Name = "changed"

	again, _ := r.Get(tokenAddr)
	if again.AmountBought.Sign() != 0 || again.Name != "x" {
		t.Fatal("mutating a snapshot leaked into the registry")
	}
}

func TestMutate_MissingIsNoop(t *testing.T) {
	r := New(zap.NewNop())
	called := false
	if r.Mutate("0x01", func(*token.Token) { called = true }) {
		t.Fatal("expected Mutate to report a miss")
	}
	if called {
		t.Fatal("closure must not run for a missing token")
	}
}

func TestMutate_CannotChangeState(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))

	ok := r.Mutate(tokenAddr, func(tok *token.Token) {
		tok.State = token.Sold
		tok.AmountBought = big.NewInt(5)
	})
	if !ok {
		t.Fatal("expected Mutate to succeed")
	}

	got, _ := r.Get(tokenAddr)
	if got.State != token.Detected {
		t.Fatalf("state changed through Mutate: %s", got.State)
	}
	if got.AmountBought.Int64() != 5 {
		t.Fatalf("expected other fields to be updated, got %s", got.AmountBought)
	}
}

func TestTransition_EnforcesGraph(t *testing.T) {
	var observed []token.State
	r := New(zap.NewNop(), WithTransitionHook(func(_ token.Token, _, to token.State) {
		observed = append(observed, to)
	}))
	r.InsertOrGet(newToken("x"))

	if err := r.Transition(tokenAddr, token.Sold); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if err := r.Transition(tokenAddr, token.CheckingHoneypot); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Transition(tokenAddr, token.Removed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Transition(tokenAddr, token.Detected); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected terminal state to reject transitions, got %v", err)
	}
	if err := r.Transition("0x0000000000000000000000000000000000000009", token.Removed); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if len(observed) != 2 || observed[0] != token.CheckingHoneypot || observed[1] != token.Removed {
		t.Fatalf("unexpected hook observations: %v", observed)
	}
}

func TestRemove(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))

	prior, ok := r.Remove(tokenAddr)
	if !ok || prior.Name != "x" {
		t.Fatalf("expected removed token, got %+v %v", prior, ok)
	}
	if _, ok := r.Remove(tokenAddr); ok {
		t.Fatal("second remove must report absence")
	}
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
}

func TestByState(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))
	other := token.New(common.HexToAddress("0x02"), common.HexToAddress("0x03"), token.VenueUniswapV2, time.Unix(2, 0))
	r.InsertOrGet(other)
	if err := r.Transition(other.Address, token.CheckingHoneypot); err != nil {
		t.Fatal(err)
	}

	if got := r.ByState(token.Detected); len(got) != 1 || got[0].Name != "x" {
		t.Fatalf("unexpected detected set: %+v", got)
	}
	if got := r.ByState(token.Detected, token.CheckingHoneypot); len(got) != 2 {
		t.Fatalf("expected 2 tokens, got %d", len(got))
	}
	counts := r.CountByState()
	if counts[token.Detected] != 1 || counts[token.CheckingHoneypot] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
}

func TestTryAcquire(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))

	if !r.TryAcquire(tokenAddr) {
		t.Fatal("expected first acquire to succeed")
	}
	if r.TryAcquire(tokenAddr) {
		t.Fatal("expected second acquire to fail while busy")
	}
	r.Release(tokenAddr)
	if !r.TryAcquire(tokenAddr) {
		t.Fatal("expected acquire after release to succeed")
	}
	if r.TryAcquire("0x09") {
		t.Fatal("acquire on untracked token must fail")
	}
}

func TestClaimBucket_OnlyOnce(t *testing.T) {
	r := New(zap.NewNop())
	tok := newToken("x")
	tok.TimeBuckets = []token.Bucket{{After: time.Minute, Percent: 50}, {After: 2 * time.Minute, Percent: 50}}
	r.InsertOrGet(tok)

	if !r.ClaimBucket(tokenAddr, token.TimeBucket, 0) {
		t.Fatal("expected first claim to succeed")
	}
	if r.ClaimBucket(tokenAddr, token.TimeBucket, 0) {
		t.Fatal("expected second claim of the same bucket to fail")
	}
	if r.ClaimBucket(tokenAddr, token.TimeBucket, 5) {
		t.Fatal("out of range bucket must not be claimable")
	}
	if r.ClaimBucket(tokenAddr, token.VolumeBucket, 0) {
		t.Fatal("token has no volume buckets")
	}

	got, _ := r.Get(tokenAddr)
	if !got.TimeBuckets[0].Filled || got.TimeBuckets[1].Filled {
		t.Fatalf("unexpected bucket flags: %+v", got.TimeBuckets)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New(zap.NewNop())
	r.InsertOrGet(newToken("x"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Mutate(tokenAddr, func(tok *token.Token) { tok.HoneypotChecks.Inc() })
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Get(tokenAddr)
			_ = r.All()
		}()
	}
	wg.Wait()

	got, _ := r.Get(tokenAddr)
	if got.HoneypotChecks != 50 {
		t.Fatalf("expected 50 increments, got %d", got.HoneypotChecks)
	}
}
