package crypto

import (
	"crypto/hmac"
	"strconv"
)

// StealthAmountDecimals is the fixed decimal grid amounts are normalized
// to before hashing. Creation and verification may see the same amount
// through different float round-trips; normalizing to 6 places makes the
// commitment insensitive to that.
const StealthAmountDecimals = 6

// NormalizeAmount renders amount on the fixed decimal grid. Excess
// precision is truncated, not rounded, so a value keeps the same
// normalized form regardless of how many extra digits a caller carries.
func NormalizeAmount(amount float64) string {
	// Format with three guard digits, then cut back to the grid.
	s := strconv.FormatFloat(amount, 'f', StealthAmountDecimals+3, 64)
	return s[:len(s)-3]
}

// StealthCommit computes the payment-specific commitment
//
//	SHA256(normalize(amount) || secret || salt)
//
// Opening requires all three of (amount, secret, salt).
func StealthCommit(amount float64, secret, salt []byte) []byte {
	return Hash256([]byte(NormalizeAmount(amount)), secret, salt)
}

// StealthOpen verifies a stealth commitment in constant time.
func StealthOpen(commitment []byte, amount float64, secret, salt []byte) bool {
	return hmac.Equal(commitment, StealthCommit(amount, secret, salt))
}
