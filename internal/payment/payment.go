package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("payment resource not found")

// Processor is the subset of the payment provider API the checkout needs.
type Processor interface {
	CreatePreference(ctx context.Context, pref Preference) (Preference, error)
	FindPreferenceByID(ctx context.Context, id string) (Preference, error)
	FindPaymentByID(ctx context.Context, id string) (Payment, error)
}

const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

type Item struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	UnitPrice  Amount `json:"unit_price"`
	CurrencyID string `json:"currency_id"`
	Quantity   int    `json:"quantity"`
	PictureURL string `json:"picture_url,omitempty"`
}

type Identification struct {
	Type   string `json:"type,omitempty"`
	Number string `json:"number"`
}

type Phone struct {
	AreaCode string `json:"area_code,omitempty"`
	Number   string `json:"number,omitempty"`
}

type Payer struct {
	Email          string         `json:"email"`
	Name           string         `json:"name,omitempty"`
	Phone          *Phone         `json:"phone,omitempty"`
	Identification Identification `json:"identification"`
}

// Amount is a price in the store's integer unit. The provider may answer
// with decimals; they are rounded half away from zero.
type Amount int64

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(int64(a), 10)), nil
}

func (a *Amount) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*a = 0
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return fmt.Errorf("amount %s: %w", raw, err)
	}
	*a = Amount(d.Round(0).IntPart())
	return nil
}

// StreetNumber is sent as a JSON number when numeric; the provider echoes it
// back either as a number or a string.
type StreetNumber string

func (n StreetNumber) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	if v, err := strconv.Atoi(string(n)); err == nil {
		return []byte(strconv.Itoa(v)), nil
	}
	return json.Marshal(string(n))
}

func (n *StreetNumber) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*n = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*n = StreetNumber(s)
		return nil
	}
	*n = StreetNumber(raw)
	return nil
}

type ReceiverAddress struct {
	ZipCode      string       `json:"zip_code"`
	StreetName   string       `json:"street_name"`
	StreetNumber StreetNumber `json:"street_number"`
	Apartment    string       `json:"apartment,omitempty"`
	CityName     string       `json:"city_name,omitempty"`
	StateName    string       `json:"state_name,omitempty"`
}

type Shipments struct {
	Mode            string          `json:"mode,omitempty"`
	Cost            Amount          `json:"cost"`
	ReceiverAddress ReceiverAddress `json:"receiver_address"`
}

type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// AdditionalInfo travels JSON-encoded in the preference's additional_info
// string and comes back untouched with the preference.
type AdditionalInfo struct {
	ReceiverName  string `json:"receiver_name,omitempty"`
	ReceiverPhone string `json:"receiver_phone,omitempty"`
	Comment       string `json:"comment,omitempty"`
}

func (a AdditionalInfo) Encode() string {
	raw, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return string(raw)
}

// DecodeAdditionalInfo is lenient: garbage yields an empty value.
func DecodeAdditionalInfo(raw string) AdditionalInfo {
	var info AdditionalInfo
	if strings.TrimSpace(raw) == "" {
		return info
	}
	_ = json.Unmarshal([]byte(raw), &info)
	return info
}

type Preference struct {
	ID                string     `json:"id,omitempty"`
	InitPoint         string     `json:"init_point,omitempty"`
	SandboxInitPoint  string     `json:"sandbox_init_point,omitempty"`
	Items             []Item     `json:"items"`
	Payer             Payer      `json:"payer"`
	Shipments         *Shipments `json:"shipments,omitempty"`
	AdditionalInfo    string     `json:"additional_info,omitempty"`
	ExternalReference string     `json:"external_reference"`
	NotificationURL   string     `json:"notification_url,omitempty"`
	AutoReturn        string     `json:"auto_return,omitempty"`
	BackURLs          BackURLs   `json:"back_urls"`
}

// CheckoutURL is the provider-hosted page the buyer is redirected to.
func (p Preference) CheckoutURL() string {
	if p.InitPoint != "" {
		return p.InitPoint
	}
	return p.SandboxInitPoint
}

type TransactionDetails struct {
	TotalPaidAmount decimal.Decimal `json:"total_paid_amount"`
}

type Payment struct {
	ID                 int64              `json:"id"`
	Status             string             `json:"status"`
	StatusDetail       string             `json:"status_detail"`
	TransactionDetails TransactionDetails `json:"transaction_details"`
	CurrencyID         string             `json:"currency_id"`
	ExternalReference  string             `json:"external_reference"`
	PaymentMethodID    string             `json:"payment_method_id"`
	PaymentTypeID      string             `json:"payment_type_id"`
}

// PaidAmount rounds the provider's decimal amount to the store's integer unit.
func (p Payment) PaidAmount() int64 {
	return p.TransactionDetails.TotalPaidAmount.Round(0).IntPart()
}
