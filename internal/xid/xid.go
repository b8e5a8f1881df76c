package xid

import (
	"math/rand/v2"

	"github.com/google/uuid"
)

// New returns a random UUID string used as the key of sessions, transactions
// and orders.
func New() string {
	return uuid.NewString()
}

// OrderNumber returns the short human-facing number printed on an order.
// Numbers are drawn from 1..1000 and can repeat; the order ID stays the key.
func OrderNumber() int {
	return rand.IntN(1000) + 1
}
