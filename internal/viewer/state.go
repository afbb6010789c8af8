// Package viewer implements the subscriber side of the queue: waiting-room
// displays and individual ticket holders. A Session watches the queue channel,
// renders through a Renderer and announces calls through a Sequencer.
package viewer

import (
	"errors"
	"fmt"
	"sort"
)

type Phase int

const (
	PhaseUnselected Phase = iota
	PhaseSelected
	PhaseSubscribed
)

func (p Phase) String() string {
	switch p {
	case PhaseUnselected:
		return "unselected"
	case PhaseSelected:
		return "selected"
	case PhaseSubscribed:
		return "subscribed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

var ErrInvalidTransition = errors.New("invalid viewer transition")

// State is a snapshot of the session's phase with the clinics it watches and
// the tickets held for them (clinic number to ticket number).
type State struct {
	Phase   Phase
	Clinics []int
	Tickets map[int]int
}

func transitionError(from Phase, action string) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, from)
}

// normalizeClinics drops duplicates and non-positive numbers and sorts the rest.
func normalizeClinics(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, n := range in {
		if n <= 0 {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
