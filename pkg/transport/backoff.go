package transport

import "time"

// Backoff produces a non-decreasing sequence of retry delays capped at Max.
// Not safe for concurrent use; the Session owns it.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	current time.Duration
}

// Next returns the delay to wait before the upcoming attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.Initial
	}
	d := b.current
	if d > b.Max {
		d = b.Max
		b.current = b.Max
		return d
	}
	next := time.Duration(float64(b.current) * b.Multiplier)
	if next > b.Max {
		next = b.Max
	}
	b.current = next
	return d
}

// Reset restarts the sequence after a successful connection.
func (b *Backoff) Reset() {
	b.current = 0
}
