package service

import (
	"github.com/google/uuid"

	"github.com/tracklane/trackd/internal/domain/reference"
	"github.com/tracklane/trackd/internal/port/database"
)

// Per-type constructors binding the generic services to concrete
// entities. The id mutators exist because generic code cannot assign
// fields of a type parameter directly.

// NewProductService builds the product reference service.
func NewProductService(store database.EntryStore[reference.Product, reference.ProductUpdate]) *EntryService[reference.Product, reference.ProductUpdate] {
	return NewEntryService(reference.TypeProduct, store,
		func(p reference.Product, id uuid.UUID) reference.Product { p.ID = id; return p })
}

// NewPaymentTypeService builds the payment type reference service.
func NewPaymentTypeService(store database.EntryStore[reference.PaymentType, reference.PaymentTypeUpdate]) *EntryService[reference.PaymentType, reference.PaymentTypeUpdate] {
	return NewEntryService(reference.TypePaymentType, store,
		func(p reference.PaymentType, id uuid.UUID) reference.PaymentType { p.ID = id; return p })
}

// NewWarehouseService builds the warehouse reference service.
func NewWarehouseService(store database.EntryStore[reference.Warehouse, reference.WarehouseUpdate]) *EntryService[reference.Warehouse, reference.WarehouseUpdate] {
	return NewEntryService(reference.TypeWarehouse, store,
		func(w reference.Warehouse, id uuid.UUID) reference.Warehouse { w.ID = id; return w })
}

// NewClientAddressService builds the client address collection service.
func NewClientAddressService(store database.CollectionStore[reference.ClientAddress, reference.ClientAddressUpdate]) *CollectionEntryService[reference.ClientAddress, reference.ClientAddressUpdate] {
	return NewCollectionService(reference.TypeClientAddress, reference.TypeClient, store,
		func(a reference.ClientAddress, id uuid.UUID) reference.ClientAddress { a.ID = id; return a })
}

// NewClientService builds the client reference service with its address
// collection attached, so every client pack carries its addresses.
func NewClientService(store database.EntryStore[reference.Client, reference.ClientUpdate], addresses CollectionService) *EntryService[reference.Client, reference.ClientUpdate] {
	return NewEntryService(reference.TypeClient, store,
		func(c reference.Client, id uuid.UUID) reference.Client { c.ID = id; return c },
		addresses)
}
