package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Number is a float that also accepts string-encoded values such as "12.50"
// or "1,200.00", which AI replies produce regularly. Unparseable input decodes
// to zero instead of failing the whole record.
type Number float64

// UnmarshalJSON implements json.Unmarshaler
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*n = 0
			return nil
		}
		s = strings.TrimSpace(s)
		s = strings.NewReplacer(",", "", "$", "", "€", "", "£", "").Replace(s)
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = Number(f)
		return nil
	}

	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = Number(f)
	return nil
}

// LineItem is one ordered or quoted position
type LineItem struct {
	Description   string `json:"description,omitempty"`
	Quantity      Number `json:"quantity,omitempty"`
	UnitPrice     Number `json:"unitPrice,omitempty"`
	TotalPrice    Number `json:"totalPrice,omitempty"`
	Specification string `json:"specification,omitempty"`
}

// ParsedData is the AI-extracted order or estimate record. Every field is
// optional so partial replies still yield a usable record.
type ParsedData struct {
	CustomerName    string     `json:"customerName,omitempty"`
	CustomerEmail   string     `json:"customerEmail,omitempty"`
	CustomerPhone   string     `json:"customerPhone,omitempty"`
	CustomerCompany string     `json:"customerCompany,omitempty"`
	CustomerAddress string     `json:"customerAddress,omitempty"`
	OrderNumber     string     `json:"orderNumber,omitempty"`
	EstimateNumber  string     `json:"estimateNumber,omitempty"`
	Items           []LineItem `json:"items"`
	TotalAmount     Number     `json:"totalAmount,omitempty"`
	Currency        string     `json:"currency,omitempty"`

	// order
	DueDate         string `json:"dueDate,omitempty"`
	RushOrder       bool   `json:"rushOrder,omitempty"`
	DeliveryAddress string `json:"deliveryAddress,omitempty"`

	// estimate
	ProjectDescription string `json:"projectDescription,omitempty"`
	ValidUntil         string `json:"validUntil,omitempty"`
	Notes              string `json:"notes,omitempty"`
}

// ReferenceNumber returns the order or estimate number, whichever is set
func (d *ParsedData) ReferenceNumber() string {
	if d == nil {
		return ""
	}
	if d.OrderNumber != "" {
		return d.OrderNumber
	}
	return d.EstimateNumber
}
