package domain

import "time"

type CartLine struct {
	ItemID   string `json:"_id"`
	Quantity int    `json:"quantity"`
}

type Fees struct {
	Shipping int64 `json:"shipping"`
}

type ShippingMethod struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ShippingSelection is what the session remembers after a zip code was
// matched against a shipping area.
type ShippingSelection struct {
	Zip    int            `json:"zip"`
	Area   string         `json:"area"`
	Method ShippingMethod `json:"method"`
}

type SessionState struct {
	Cart         []CartLine         `json:"cart"`
	Fees         Fees               `json:"fees"`
	Address      *ShippingSelection `json:"address,omitempty"`
	BankTransfer bool               `json:"bankTransfer"`
}

// CatalogItem is the live view of an item as returned by the catalog.
type CatalogItem struct {
	ID       string `json:"_id"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
	Name     string `json:"name"`
	Image    string `json:"image"`
}

type PricedItem struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
	Currency string `json:"currency"`
	Price    int64  `json:"price"`
}

type PriceBreakdown struct {
	Subtotal int64  `json:"subtotal"`
	Shipping int64  `json:"shipping"`
	Discount int64  `json:"discount"`
	Taxes    int64  `json:"taxes"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type CartView struct {
	Token     string             `json:"token"`
	Breakdown PriceBreakdown     `json:"breakdown"`
	Address   *ShippingSelection `json:"address,omitempty"`
	Items     []PricedItem       `json:"cart"`
}

type Address struct {
	Street    string `json:"street"`
	Number    string `json:"number"`
	Apartment string `json:"apartment"`
	Zip       string `json:"zip"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country,omitempty"`
}

type Payer struct {
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	Identification string  `json:"identification"`
	Address        Address `json:"address"`
}

type ShipmentInfo struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Pickup  bool    `json:"pickup"`
	Address Address `json:"address"`
}

type BuyerInfo struct {
	Email         string       `json:"email"`
	PaymentMethod string       `json:"paymentMethod"`
	Payer         Payer        `json:"payer"`
	Shipment      ShipmentInfo `json:"shipment"`
	Comment       string       `json:"comment"`
}

type Transaction struct {
	ID            string            `json:"_id"`
	ExternalID    string            `json:"id,omitempty"`
	Status        TransactionStatus `json:"status"`
	Detail        string            `json:"detail"`
	Date          time.Time         `json:"date"`
	Email         string            `json:"email"`
	Payer         Payer             `json:"payer"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency_id"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	PaymentType   string            `json:"paymentType,omitempty"`
}

// TransactionUpdate carries the fields the webhook reconciler copies from the
// processor's payment onto a transaction.
type TransactionUpdate struct {
	Status        TransactionStatus
	Detail        string
	Amount        int64
	Currency      string
	PaymentMethod string
	PaymentType   string
}

type OrderItem struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Image    string `json:"image"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

type Customer struct {
	Email          string  `json:"email"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	Identification string  `json:"identification"`
	Address        Address `json:"address"`
}

type Shipment struct {
	Cost    int64   `json:"cost"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Pickup  bool    `json:"pickup,omitempty"`
	Address Address `json:"address"`
}

type Order struct {
	ID            string       `json:"_id"`
	Number        int          `json:"id"`
	Items         []OrderItem  `json:"items"`
	Customer      Customer     `json:"customer"`
	Shipment      Shipment     `json:"shipment"`
	Date          time.Time    `json:"date"`
	TransactionID string       `json:"transaction"`
	Total         int64        `json:"total"`
	Status        OrderStatus  `json:"status"`
	Comment       string       `json:"comment"`
	Transaction   *Transaction `json:"transactionDetail,omitempty"`
}

// OrderPatch lists the order fields an administrator may edit. Nil fields
// are left as stored.
type OrderPatch struct {
	Status   *OrderStatus `json:"status,omitempty"`
	Comment  *string      `json:"comment,omitempty"`
	Customer *Customer    `json:"customer,omitempty"`
	Shipment *Shipment    `json:"shipment,omitempty"`
}

func (p OrderPatch) IsEmpty() bool {
	return p.Status == nil && p.Comment == nil && p.Customer == nil && p.Shipment == nil
}

// Apply copies the set fields onto order.
func (p OrderPatch) Apply(order *Order) {
	if p.Status != nil {
		order.Status = *p.Status
	}
	if p.Comment != nil {
		order.Comment = *p.Comment
	}
	if p.Customer != nil {
		order.Customer = *p.Customer
	}
	if p.Shipment != nil {
		order.Shipment = *p.Shipment
	}
}

type SaleStats struct {
	Period string `json:"_id"`
	Count  int    `json:"count"`
	Total  int64  `json:"total"`
}

type StatusStats struct {
	Status OrderStatus `json:"status"`
	Count  int         `json:"count"`
}

type OrderStats struct {
	Count      int           `json:"count"`
	Done       int           `json:"done"`
	InProgress int           `json:"inProgress"`
	ByStatus   []StatusStats `json:"byStatus"`
}

type ProfitStats struct {
	Previous int64 `json:"previous"`
	Current  int64 `json:"current"`
}

// Notification is the inbound payment webhook payload.
type Notification struct {
	Topic string
	ID    string
}

// DailySales is one UTC day of non-cancelled order totals.
type DailySales struct {
	Day   time.Time
	Count int
	Total int64
}
