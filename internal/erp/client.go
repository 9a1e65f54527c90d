package erp

import "context"

// Client exposes one fetch call per synchronized entity type. Every
// call may return an empty slice; only transport failures are errors.
type Client struct {
	Transport *Transport
}

// NewClient initializes the ERP API client.
func NewClient(baseURL string, token string) *Client {
	return &Client{Transport: NewTransport(baseURL, token)}
}

func (c *Client) FetchCustomers(ctx context.Context) ([]CustomerDTO, error) {
	var out []CustomerDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/customers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchStockItems(ctx context.Context) ([]StockItemDTO, error) {
	var out []StockItemDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/stock-items", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchWarehouses(ctx context.Context) ([]WarehouseDTO, error) {
	var out []WarehouseDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/warehouses", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchStockLevels(ctx context.Context) ([]StockLevelDTO, error) {
	var out []StockLevelDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/stock-levels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchOffers(ctx context.Context) ([]OfferDTO, error) {
	var out []OfferDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/offers", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchIncomingInvoices(ctx context.Context) ([]InvoiceDTO, error) {
	var out []InvoiceDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/invoices", map[string]string{"direction": "incoming"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchOutgoingInvoices(ctx context.Context) ([]InvoiceDTO, error) {
	var out []InvoiceDTO
	if err := c.Transport.GetJSON(ctx, "/api/v1/invoices", map[string]string{"direction": "outgoing"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
