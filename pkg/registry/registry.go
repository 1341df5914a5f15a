// Package registry is the concurrent keyed store of in-flight tokens.
//
// A single mutex guards the whole collection. Every accessor takes the lock,
// does O(1) in-memory work and releases it; callers that need chain or API
// data fetch it first and only then call Mutate or Transition. Reads return
// snapshot copies, so nothing outside the registry ever holds a pointer into
// the map.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/apmfree78/snipper-sub000/pkg/token"
)

var (
	// ErrNotFound is returned when an address is not tracked.
	ErrNotFound = errors.New("token not found in registry")
	// ErrIllegalTransition is returned for an edge outside the lifecycle graph.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// TransitionHook observes every accepted state change. It runs after the lock is released.
type TransitionHook func(t token.Token, from, to token.State)

// Option configures a Registry.
type Option func(*Registry)

// WithTransitionHook registers an observer for accepted state changes.
func WithTransitionHook(h TransitionHook) Option {
	return func(r *Registry) {
		r.hooks = append(r.hooks, h)
	}
}

type entry struct {
	token *token.Token
	busy  bool
}

// Registry is the single source of truth for all tracked tokens.
type Registry struct {
	mu     sync.Mutex
	tokens map[string]*entry
	hooks  []TransitionHook
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		tokens: make(map[string]*entry),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InsertOrGet stores t unless its address is already tracked and returns the
// record now held by the registry. An existing record is never overwritten.
func (r *Registry) InsertOrGet(t *token.Token) token.Token {
	key := token.NormalizeAddress(t.Address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.tokens[key]; ok {
		return e.token.Clone()
	}
	stored := t.Clone()
	stored.Address = key
	r.tokens[key] = &entry{token: &stored}
	return stored.Clone()
}

// Get returns a snapshot copy of the token at address.
func (r *Registry) Get(address string) (token.Token, bool) {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tokens[key]
	if !ok {
		return token.Token{}, false
	}
	return e.token.Clone(), true
}

// Mutate applies fn to the stored token atomically. A missing address is
// logged and ignored. fn must not retain the pointer and cannot change the
// address or state; state changes go through Transition.
func (r *Registry) Mutate(address string, fn func(*token.Token)) bool {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	e, ok := r.tokens[key]
	if !ok {
		r.mu.Unlock()
		r.logger.Error("mutate on untracked token", zap.String("address", key))
		return false
	}
	state := e.token.State
	fn(e.token)
	tampered := e.token.State != state || e.token.Address != key
	e.token.State = state
	e.token.Address = key
	r.mu.Unlock()

	if tampered {
		r.logger.Error("mutate attempted to change identity or state; change discarded",
			zap.String("address", key))
	}
	return true
}

// Transition moves the token at address to state to, enforcing the lifecycle graph.
func (r *Registry) Transition(address string, to token.State) error {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	e, ok := r.tokens[key]
	if !ok {
		r.mu.Unlock()
		r.logger.Error("transition on untracked token",
			zap.String("address", key),
			zap.Stringer("to", to))
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	from := e.token.State
	if !token.CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s for %s", ErrIllegalTransition, from, to, key)
	}
	e.token.State = to
	snapshot := e.token.Clone()
	r.mu.Unlock()

	for _, h := range r.hooks {
		h(snapshot, from, to)
	}
	return nil
}

// Remove deletes and returns the token at address.
func (r *Registry) Remove(address string) (token.Token, bool) {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	e, ok := r.tokens[key]
	if ok {
		delete(r.tokens, key)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("remove on untracked token", zap.String("address", key))
		return token.Token{}, false
	}
	return e.token.Clone(), true
}

// All returns snapshots of every tracked token ordered by detection time.
func (r *Registry) All() []token.Token {
	r.mu.Lock()
	out := make([]token.Token, 0, len(r.tokens))
	for _, e := range r.tokens {
		out = append(out, e.token.Clone())
	}
	r.mu.Unlock()

	sortByDetection(out)
	return out
}

// Count returns the number of tracked tokens.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// ByState returns snapshots of the tokens currently in any of states.
func (r *Registry) ByState(states ...token.State) []token.Token {
	want := make(map[token.State]struct{}, len(states))
	for _, s := range states {
		want[s] = struct{}{}
	}

	r.mu.Lock()
	var out []token.Token
	for _, e := range r.tokens {
		if _, ok := want[e.token.State]; ok {
			out = append(out, e.token.Clone())
		}
	}
	r.mu.Unlock()

	sortByDetection(out)
	return out
}

// CountByState returns the number of tracked tokens per state.
func (r *Registry) CountByState() map[token.State]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[token.State]int)
	for _, e := range r.tokens {
		out[e.token.State]++
	}
	return out
}

// TryAcquire marks the token as having an action in flight. It returns false
// when the token is untracked or already busy.
func (r *Registry) TryAcquire(address string) bool {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tokens[key]
	if !ok || e.busy {
		return false
	}
	e.busy = true
	return true
}

// Release clears the in-flight mark set by TryAcquire.
func (r *Registry) Release(address string) {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.tokens[key]; ok {
		e.busy = false
	}
}

// ClaimBucket marks bucket idx of kind as filled and reports whether this
// call was the one that filled it. A bucket can be claimed at most once.
func (r *Registry) ClaimBucket(address string, kind token.BucketKind, idx int) bool {
	key := token.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tokens[key]
	if !ok {
		return false
	}
	buckets := e.token.Buckets(kind)
	if idx < 0 || idx >= len(buckets) || buckets[idx].Filled {
		return false
	}
	buckets[idx].Filled = true
	return true
}

func sortByDetection(ts []token.Token) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].DetectedAt.Equal(ts[j].DetectedAt) {
			return ts[i].Address < ts[j].Address
		}
		return ts[i].DetectedAt.Before(ts[j].DetectedAt)
	})
}
