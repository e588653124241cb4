package models

// TenantModels lists every table that lives in a tenant schema, in
// dependency order.
func TenantModels() []any {
	return []any{
		&Issuer{},
		&PriceList{}, &PriceListEntry{},
		&Client{},
		&BillableElement{},
		&TestRecord{}, &TestRecordElement{},
		&Invoice{}, &InvoiceLine{}, &InvoiceStatusChange{}, &Payment{},
		&Counter{}, &Transmission{},
		&IdempotencyKey{},
	}
}
