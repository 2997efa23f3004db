package reference

import (
	"fmt"

	"github.com/tracklane/trackd/internal/domain"
	"github.com/tracklane/trackd/internal/domain/kit"
)

// Type names used as facade dispatch keys. Unknown names yield
// domain.ErrReferenceTypeNotFound instead of a nil dereference.
const (
	TypeProduct       = "product"
	TypePaymentType   = "payment_type"
	TypeWarehouse     = "warehouse"
	TypeClient        = "client"
	TypeClientAddress = "client_address"
)

// Product is a sellable item referenced by task line items.
type Product struct {
	Entry
	Name       string  `json:"name"`
	VendorCode string  `json:"vendor_code,omitempty"`
	Cost       float64 `json:"cost"`
}

// Validate checks required fields before any I/O.
func (p Product) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: product name is required", domain.ErrValidation)
	}
	return nil
}

// ProductUpdate is a partial product edit.
type ProductUpdate struct {
	Name       kit.Opt[string]  `json:"name,omitzero"`
	VendorCode kit.Opt[string]  `json:"vendor_code,omitzero"`
	Cost       kit.Opt[float64] `json:"cost,omitzero"`
}

// PaymentType is a named payment method.
type PaymentType struct {
	Entry
	Name string `json:"name"`
}

func (p PaymentType) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: payment type name is required", domain.ErrValidation)
	}
	return nil
}

// PaymentTypeUpdate is a partial payment type edit.
type PaymentTypeUpdate struct {
	Name kit.Opt[string] `json:"name,omitzero"`
}

// Warehouse is a pickup location.
type Warehouse struct {
	Entry
	Name       string `json:"name"`
	RawAddress string `json:"raw_address,omitempty"`
}

func (w Warehouse) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("%w: warehouse name is required", domain.ErrValidation)
	}
	return nil
}

// WarehouseUpdate is a partial warehouse edit.
type WarehouseUpdate struct {
	Name       kit.Opt[string] `json:"name,omitzero"`
	RawAddress kit.Opt[string] `json:"raw_address,omitzero"`
}

// Client is a delivery recipient. Clients own a collection of
// addresses written through the package protocol.
type Client struct {
	Entry
	Surname     string `json:"surname"`
	Name        string `json:"name"`
	Patronymic  string `json:"patronymic,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func (c Client) Validate() error {
	if c.Surname == "" && c.Name == "" {
		return fmt.Errorf("%w: client surname or name is required", domain.ErrValidation)
	}
	return nil
}

// ClientUpdate is a partial client edit.
type ClientUpdate struct {
	Surname     kit.Opt[string] `json:"surname,omitzero"`
	Name        kit.Opt[string] `json:"name,omitzero"`
	Patronymic  kit.Opt[string] `json:"patronymic,omitzero"`
	PhoneNumber kit.Opt[string] `json:"phone_number,omitzero"`
}

// ClientAddress is one address owned by a client.
type ClientAddress struct {
	CollectionItem
	RawAddress string `json:"raw_address"`
}

func (a ClientAddress) Validate() error {
	if a.RawAddress == "" {
		return fmt.Errorf("%w: raw address is required", domain.ErrValidation)
	}
	return nil
}

// ClientAddressUpdate is a partial client address edit.
type ClientAddressUpdate struct {
	RawAddress kit.Opt[string] `json:"raw_address,omitzero"`
}
