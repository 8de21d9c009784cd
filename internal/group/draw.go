package group

import "math/rand"

// SampleWinners draws min(n, len(candidates)) distinct candidates uniformly.
// Order of the result is the shuffle order, not the input order.
func SampleWinners(candidates []string, n int) []string {
	if n > len(candidates) {
		n = len(candidates)
	}
	if n <= 0 {
		return nil
	}
	shuffled := make([]string, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}
