// Package referral implements referral-code generation and normalization.
//
// A referral code is a 6-character token drawn uniformly from [A-Z0-9],
// giving a 36^6 (~2.2 billion) code space. Uniqueness is not guaranteed by
// generation — the store's UNIQUE index is the arbiter, and the ledger
// regenerates on collision (see service.ReferralLedger).
package referral

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// CodeLength is the fixed length of every referral code.
const CodeLength = 6

// alphabet is the full code character set. Ambiguous characters are NOT
// excluded: the original program shipped codes like "O0I1AB" and existing
// codes must keep resolving.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewCode generates a random 6-character referral code.
//
// We use crypto/rand rather than math/rand: codes are guessable-by-design
// short tokens, but there is no reason to make the stream predictable, and
// the call is nowhere near hot enough for the cost to matter.
func NewCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken;
			// at that point nothing in the process can be trusted.
			panic("referral: reading random source: " + err.Error())
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String()
}

// Normalize prepares a user-supplied code for lookup: trimmed and
// upper-cased. Codes are matched case-insensitively and stored uppercase.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidFormat reports whether a normalized code has the right shape:
// exactly 6 characters, all from [A-Z0-9]. A well-formed code can still be
// unknown — format and existence are separate checks.
func ValidFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
