package job

// NoData is reported for a failed File or Slot that logged no error.
const NoData = "No data"

// MostFrequent returns the message seen most often. Ties go to the message
// seen first.
func MostFrequent(msgs []string) string {
	if len(msgs) == 0 {
		return NoData
	}

	counts := make(map[string]int, len(msgs))
	order := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if counts[m] == 0 {
			order = append(order, m)
		}
		counts[m]++
	}

	best := order[0]
	for _, m := range order[1:] {
		if counts[m] > counts[best] {
			best = m
		}
	}
	return best
}
