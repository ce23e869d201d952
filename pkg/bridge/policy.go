package bridge

import "github.com/hilworks/arduino_bridge/pkg/wire"

// MatchPolicy decides which pending command an inbound response resolves.
// The wire protocol carries no correlation id, so any policy is a heuristic;
// it is pluggable so that a protocol revision with explicit ids could swap
// in an exact matcher and remove this ambiguity entirely.
type MatchPolicy interface {
	// Match returns the index into pending (oldest first) of the command
	// resolved by resp, or -1 to treat resp as unsolicited telemetry.
	Match(pending []*PendingCommand, resp *wire.Response) int
}

// RecencyPolicy is the default heuristic:
//
//  1. same expected category and same pin, most recently issued;
//  2. same expected category, most recently issued (LIFO; with several
//     same-category commands in flight for pin-less responses this can
//     misattribute, a known limit of the unlabeled protocol);
//  3. otherwise the oldest pending command of any category, treating the
//     response as aligned with the longest-waiting caller;
//  4. no pending commands at all: unsolicited telemetry.
type RecencyPolicy struct{}

func (RecencyPolicy) Match(pending []*PendingCommand, resp *wire.Response) int {
	if resp.Pin != "" {
		for i := len(pending) - 1; i >= 0; i-- {
			if pending[i].Category == resp.Category && pending[i].Pin == resp.Pin {
				return i
			}
		}
	}
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i].Category == resp.Category {
			return i
		}
	}
	if len(pending) > 0 {
		return 0
	}
	return -1
}
