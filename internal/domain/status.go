package domain

import "errors"

type TransactionStatus string

const (
	TxStatusDraft    TransactionStatus = "draft"
	TxStatusCreated  TransactionStatus = "created"
	TxStatusPending  TransactionStatus = "pending"
	TxStatusApproved TransactionStatus = "approved"
	TxStatusRejected TransactionStatus = "rejected"
)

// IsTerminal reports whether the status is settled by the payment processor.
// Administrators can neither set nor leave a terminal status; only a webhook
// may move a rejected transaction to approved.
func (s TransactionStatus) IsTerminal() bool {
	return s == TxStatusApproved || s == TxStatusRejected
}

func (s TransactionStatus) String() string {
	return string(s)
}

var validTransactionStatuses = map[TransactionStatus]struct{}{
	TxStatusDraft:    {},
	TxStatusCreated:  {},
	TxStatusPending:  {},
	TxStatusApproved: {},
	TxStatusRejected: {},
}

func ToTransactionStatus(s string) (TransactionStatus, error) {
	status := TransactionStatus(s)
	if _, ok := validTransactionStatuses[status]; ok {
		return status, nil
	}
	return "", errors.New("invalid transaction status")
}

type OrderStatus string

// remember to add new statuses to the validOrderStatuses map
const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusDone      OrderStatus = "done"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusNew:       {},
	OrderStatusPending:   {},
	OrderStatusCancelled: {},
	OrderStatusDone:      {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}
	return "", errors.New("invalid order status")
}

// InProgress reports whether the order still needs fulfillment work.
func (s OrderStatus) InProgress() bool {
	return s == OrderStatusNew || s == OrderStatusPending
}
