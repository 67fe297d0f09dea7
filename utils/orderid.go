package utils

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// OrderIDFromRef derives the ledger order id from a caller-supplied
// payment reference: 0x-prefixed hex of the Keccak-256 digest. The same
// reference always maps to the same order id, which is what lets the
// ledger reject duplicate creations.
func OrderIDFromRef(paymentRef string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(paymentRef))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
