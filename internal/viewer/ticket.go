package viewer

import "time"

// MinutesPerClient is the flat per-client estimate shown to ticket holders.
const MinutesPerClient = 3

// Ticket is what a ticket holder sees for their number against a clinic's
// current counter.
type Ticket struct {
	YourNumber    int           `json:"yourNumber"`
	Current       int           `json:"current"`
	WaitingCount  int           `json:"waitingCount"`
	Progress      int           `json:"progress"`
	EstimatedWait time.Duration `json:"-"`
	// EstimatedMinutes is EstimatedWait on the wire.
	EstimatedMinutes int  `json:"estimatedMinutes"`
	YourTurn         bool `json:"yourTurn"`
	Passed           bool `json:"passed"`
}

func NewTicket(yourNumber, current int) Ticket {
	waiting := yourNumber - current - 1
	if waiting < 0 {
		waiting = 0
	}
	progress := 0
	if yourNumber > 0 {
		progress = current * 100 / yourNumber
		if progress > 100 {
			progress = 100
		}
		if progress < 0 {
			progress = 0
		}
	}
	return Ticket{
		YourNumber:       yourNumber,
		Current:          current,
		WaitingCount:     waiting,
		Progress:         progress,
		EstimatedWait:    time.Duration(waiting*MinutesPerClient) * time.Minute,
		EstimatedMinutes: waiting * MinutesPerClient,
		YourTurn:         yourNumber > 0 && current == yourNumber,
		Passed:           yourNumber > 0 && current > yourNumber,
	}
}

// turnTracker fires once per transition of current into equality with the
// ticket number. Jumping over the number never fires.
type turnTracker struct {
	ticket  int
	matched bool
}

func (t *turnTracker) observe(current int) bool {
	if t.ticket <= 0 {
		return false
	}
	equal := current == t.ticket
	fire := equal && !t.matched
	t.matched = equal
	return fire
}
