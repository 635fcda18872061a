package intake

import (
	"fmt"
	"strconv"
	"strings"
)

// NextSmartID allocates the next catalog ID for a (category, type) pair,
// in the form {category}_{type}_{NN}. It scans the existing IDs for the
// prefix, parses the trailing numeric suffix of each (malformed legacy
// IDs are skipped, never fatal), and returns max+1 zero-padded to at
// least two digits.
func NextSmartID(category, typ string, existing []string) string {
	prefix := category + "_" + typ + "_"

	maxSeq := 0
	for _, id := range existing {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		parts := strings.Split(id, "_")
		if len(parts) < 3 {
			continue
		}
		seq, err := strconv.Atoi(parts[len(parts)-1])
		if err != nil {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}

	return fmt.Sprintf("%s%02d", prefix, maxSeq+1)
}
