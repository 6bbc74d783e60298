package common

import (
	"fmt"
	"math/rand"
	"time"
)

// GenerateReferenceNo builds a ledger reference like EOD20250115-X7K2M9Q.
// The prefix groups EOD-generated entries (adjustments, cash-outs) in the
// transaction listing.
func GenerateReferenceNo(prefix string, at time.Time) string {
	const characters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	suffix := make([]byte, 7)
	for i := range suffix {
		suffix[i] = characters[r.Intn(len(characters))]
	}
	return fmt.Sprintf("%s%s-%s", prefix, at.Format("20060102"), string(suffix))
}
