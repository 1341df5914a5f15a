package token

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State is the lifecycle position of a token.
type State int

const (
	Detected State = iota
	CheckingHoneypot
	CheckingLock
	Validating
	Validated
	Buying
	Bought
	Selling
	Sold
	Removed
)

var stateNames = map[State]string{
	Detected:         "detected",
	CheckingHoneypot: "checking_honeypot",
	CheckingLock:     "checking_lock",
	Validating:       "validating",
	Validated:        "validated",
	Buying:           "buying",
	Bought:           "bought",
	Selling:          "selling",
	Sold:             "sold",
	Removed:          "removed",
}

// forward lists the single legal successor of each non-terminal state,
// apart from Removed which every non-terminal state may reach.
var forward = map[State]State{
	Detected:         CheckingHoneypot,
	CheckingHoneypot: CheckingLock,
	CheckingLock:     Validating,
	Validating:       Validated,
	Validated:        Buying,
	Buying:           Bought,
	Bought:           Selling,
	Selling:          Sold,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Sold || s == Removed
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == Removed {
		return true
	}
	next, ok := forward[from]
	return ok && next == to
}

// ParseState parses the name produced by State.String.
func ParseState(s string) (State, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, name := range stateNames {
		if name == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown token state %q", s)
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, err := ParseState(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}
