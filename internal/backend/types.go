package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
	"github.com/noah-isme/toko-storefront/internal/voucher"
)

// CartItem is a single cart line as the backend reports it.
type CartItem struct {
	ProductID string        `json:"productId"`
	Title     string        `json:"title,omitempty"`
	Qty       int           `json:"qty"`
	UnitPrice pricing.Money `json:"unitPrice"`
}

// Cart is a snapshot of the shopper's cart.
type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
}

// Subtotal sums unit price times quantity over the cart lines.
func (c Cart) Subtotal() pricing.Money {
	items := make([]pricing.Item, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, pricing.Item{Qty: it.Qty, UnitPrice: it.UnitPrice})
	}
	return pricing.Subtotal(items)
}

// ShippingOption identifies the courier service chosen at checkout.
type ShippingOption struct {
	Courier string `json:"courier" validate:"required"`
	Service string `json:"service" validate:"required"`
}

// OrderRequest is what the storefront forwards when the shopper places an
// order. Amounts are deliberately absent.
type OrderRequest struct {
	CartID       string
	AddressID    string
	Shipping     ShippingOption
	VoucherCodes []string
	Notes        string
}

type voucherRef struct {
	Code string `json:"code"`
}

type orderWire struct {
	CartID    string         `json:"cartId"`
	AddressID string         `json:"addressId"`
	Shipping  ShippingOption `json:"shipping"`
	Vouchers  []voucherRef   `json:"vouchers"`
	Notes     string         `json:"notes,omitempty"`
}

func (r OrderRequest) wire() orderWire {
	refs := make([]voucherRef, 0, len(r.VoucherCodes))
	for _, code := range r.VoucherCodes {
		if code = voucher.CanonicalCode(code); code != "" {
			refs = append(refs, voucherRef{Code: code})
		}
	}
	return orderWire{
		CartID:    r.CartID,
		AddressID: r.AddressID,
		Shipping:  r.Shipping,
		Vouchers:  refs,
		Notes:     strings.TrimSpace(r.Notes),
	}
}

// OrderResult is the backend's answer to an order submission. Raw holds the
// full payload so the UI can render whatever the backend returned.
type OrderResult struct {
	ID     string          `json:"id"`
	Status string          `json:"status,omitempty"`
	Total  *pricing.Money  `json:"total,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

type cartLineWire struct {
	ProductID  string              `json:"productId"`
	ProductAlt string              `json:"product_id"`
	Title      string              `json:"title"`
	Name       string              `json:"name"`
	Qty        decimal.NullDecimal `json:"qty"`
	Quantity   decimal.NullDecimal `json:"quantity"`
	UnitPrice  decimal.NullDecimal `json:"unitPrice"`
	Price      decimal.NullDecimal `json:"price"`
}

type cartWire struct {
	ID    string         `json:"id"`
	Items []cartLineWire `json:"items"`
}

func decodeCart(body []byte) (Cart, error) {
	var w cartWire
	if err := json.Unmarshal(unwrapData(body), &w); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	cart := Cart{ID: w.ID, Items: make([]CartItem, 0, len(w.Items))}
	for _, line := range w.Items {
		cart.Items = append(cart.Items, CartItem{
			ProductID: firstNonEmpty(line.ProductID, line.ProductAlt),
			Title:     firstNonEmpty(line.Title, line.Name),
			Qty:       int(firstDecimal(line.Qty, line.Quantity).IntPart()),
			UnitPrice: firstDecimal(line.UnitPrice, line.Price).Floor().IntPart(),
		})
	}
	return cart, nil
}

func decodeOrder(body []byte) (OrderResult, error) {
	inner := unwrapData(body)
	var w struct {
		ID      string              `json:"id"`
		OrderID string              `json:"orderId"`
		Status  string              `json:"status"`
		Total   decimal.NullDecimal `json:"total"`
	}
	if err := json.Unmarshal(inner, &w); err != nil {
		return OrderResult{}, fmt.Errorf("decode order: %w", err)
	}
	res := OrderResult{
		ID:     firstNonEmpty(w.ID, w.OrderID),
		Status: w.Status,
		Raw:    json.RawMessage(bytes.Clone(inner)),
	}
	if w.Total.Valid {
		total := w.Total.Decimal.Floor().IntPart()
		res.Total = &total
	}
	return res, nil
}

// unwrapData returns the value under a top-level "data" key when present.
func unwrapData(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return trimmed
	}
	if data, ok := envelope["data"]; ok && len(bytes.TrimSpace(data)) > 0 && string(bytes.TrimSpace(data)) != "null" {
		return bytes.TrimSpace(data)
	}
	return trimmed
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func firstDecimal(values ...decimal.NullDecimal) decimal.Decimal {
	for _, v := range values {
		if v.Valid {
			return v.Decimal
		}
	}
	return decimal.Zero
}
