package erp

// DTOs mirror the wire shape of the ERP export endpoints. Field names
// follow the ERP's own JSON contract; natural keys are the cross-system
// match fields (currentCode, sku, teklifNo, faturaNo).

type CustomerDTO struct {
	CurrentCode string  `json:"currentCode"`
	Title       string  `json:"title"`
	TaxNumber   string  `json:"taxNumber"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	City        string  `json:"city"`
	Balance     float64 `json:"balance"`
}

type StockItemDTO struct {
	SKU     string  `json:"sku"`
	Name    string  `json:"name"`
	Unit    string  `json:"unit"`
	Price   float64 `json:"price"`
	VATRate int     `json:"vatRate"`
}

type WarehouseDTO struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type StockLevelDTO struct {
	WarehouseCode string  `json:"warehouseCode"`
	SKU           string  `json:"sku"`
	Quantity      float64 `json:"quantity"`
}

type OfferDTO struct {
	OfferNo      string  `json:"teklifNo"`
	CustomerCode string  `json:"currentCode"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency"`
	Status       string  `json:"status"`
}

type InvoiceDTO struct {
	InvoiceNo    string  `json:"faturaNo"`
	CustomerCode string  `json:"currentCode"`
	Total        float64 `json:"total"`
	Currency     string  `json:"currency"`
	IssuedAt     string  `json:"issuedAt"` // yyyy-MM-dd
}
