package pos

import (
	"strconv"
	"time"
)

// StartOfDay returns midnight of now in its own location. Order numbers
// reset at local midnight.
func StartOfDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// NextNumber computes the next human-facing sequence number for today from
// a known order set: max over today's numbers, plus one. Non-numeric order
// numbers count as 0. Used against the local cache when the remote store is
// unreachable; the remote path runs the same computation in SQL.
func NextNumber(orders []Order, now time.Time) string {
	dayStart := StartOfDay(now)
	max := 0
	for _, o := range orders {
		if o.CreatedAt.Before(dayStart) {
			continue
		}
		n, err := strconv.Atoi(o.OrderNumber)
		if err != nil {
			n = 0
		}
		if n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}
