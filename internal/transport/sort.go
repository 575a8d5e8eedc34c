package transport

import "sort"

// sortEnvelopes orders envelopes chronologically by timestamp. The sort is
// stable so same-timestamp envelopes keep their append order.
func sortEnvelopes(envelopes []Envelope) {
	sort.SliceStable(envelopes, func(i, j int) bool {
		return envelopes[i].Timestamp.Before(envelopes[j].Timestamp)
	})
}
