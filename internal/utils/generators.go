package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateBookingRef produces the human-facing booking reference printed on
// invoices and tracking proofs, e.g. ADP-1724630400-042137.
func GenerateBookingRef() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("ADP-%d-%06d", timestamp, randomNum.Int64())
}
