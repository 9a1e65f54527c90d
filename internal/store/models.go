package store

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one externally synchronized entity type.
type Kind string

const (
	KindCustomers        Kind = "customers"
	KindStockItems       Kind = "stock_items"
	KindWarehouses       Kind = "warehouses"
	KindStockLevels      Kind = "stock_levels"
	KindOffers           Kind = "offers"
	KindIncomingInvoices Kind = "incoming_invoices"
	KindOutgoingInvoices Kind = "outgoing_invoices"
)

// Kinds lists every synchronized entity type in dependency order:
// referenced types come before the types that reference them.
func Kinds() []Kind {
	return []Kind{
		KindCustomers,
		KindWarehouses,
		KindStockItems,
		KindStockLevels,
		KindOffers,
		KindIncomingInvoices,
		KindOutgoingInvoices,
	}
}

// ErrUnknownKind indicates a kind label that does not map to a synchronized entity type.
var ErrUnknownKind = errors.New("store: unknown entity kind")

// ParseKind validates a raw kind label.
func ParseKind(raw string) (Kind, error) {
	candidate := Kind(strings.TrimSpace(strings.ToLower(raw)))
	for _, kind := range Kinds() {
		if candidate == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

const (
	InvoiceDirectionIncoming = "incoming"
	InvoiceDirectionOutgoing = "outgoing"
)

// Customer is a CRM account. CurrentCode is the ERP natural key; it is
// empty on locally created customers that have not been matched to an
// ERP account yet. Notes is local-only and never overwritten by sync.
type Customer struct {
	RecordID         string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	CurrentCode      string  `gorm:"column:current_code;size:64;index"`
	Title            string  `gorm:"column:title;size:320;not null"`
	TaxNumber        string  `gorm:"column:tax_number;size:32;index"`
	Email            string  `gorm:"column:email;size:320"`
	Phone            string  `gorm:"column:phone;size:32"`
	City             string  `gorm:"column:city;size:64"`
	Status           string  `gorm:"column:status;size:16;not null;default:'active'"`
	Balance          float64 `gorm:"column:balance;not null;default:0"`
	Notes            string  `gorm:"column:notes;type:text"`
	Synced           bool    `gorm:"column:synced;not null;default:false"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

func (Customer) TableName() string {
	return "customers"
}

// StockItem is a sellable product keyed by SKU.
type StockItem struct {
	RecordID         string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	SKU              string  `gorm:"column:sku;size:64;index"`
	Name             string  `gorm:"column:name;size:320;not null"`
	Unit             string  `gorm:"column:unit;size:16"`
	Price            float64 `gorm:"column:price;not null;default:0"`
	VATRate          int     `gorm:"column:vat_rate;not null;default:0"`
	Synced           bool    `gorm:"column:synced;not null;default:false"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

func (StockItem) TableName() string {
	return "stock_items"
}

type Warehouse struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	Code             string `gorm:"column:code;size:64;index"`
	Name             string `gorm:"column:name;size:320;not null"`
	Synced           bool   `gorm:"column:synced;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

func (Warehouse) TableName() string {
	return "warehouses"
}

// StockLevel holds the on-hand quantity of one stock item in one
// warehouse. Its natural key is the (warehouse, stock item) pair, both
// resolved to local record ids before persisting.
type StockLevel struct {
	RecordID         string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	WarehouseID      string  `gorm:"column:warehouse_id;size:190;not null;index:idx_stock_levels_wh_item,priority:1"`
	StockItemID      string  `gorm:"column:stock_item_id;size:190;not null;index:idx_stock_levels_wh_item,priority:2"`
	Quantity         float64 `gorm:"column:quantity;not null;default:0"`
	Synced           bool    `gorm:"column:synced;not null;default:false"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

func (StockLevel) TableName() string {
	return "stock_levels"
}

// Offer is a quote issued to a customer, keyed externally by offer number.
type Offer struct {
	RecordID         string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	OfferNo          string  `gorm:"column:offer_no;size:64;index"`
	CustomerID       string  `gorm:"column:customer_id;size:190;not null;index"`
	Total            float64 `gorm:"column:total;not null;default:0"`
	Currency         string  `gorm:"column:currency;size:8;not null;default:'TRY'"`
	Status           string  `gorm:"column:status;size:16;not null;default:'open'"`
	Synced           bool    `gorm:"column:synced;not null;default:false"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null;index"`
}

func (Offer) TableName() string {
	return "offers"
}

// Invoice covers both incoming and outgoing documents; Direction tells
// them apart and the (direction, invoice number) pair is the natural key.
type Invoice struct {
	RecordID         string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	InvoiceNo        string  `gorm:"column:invoice_no;size:64;index:idx_invoices_dir_no,priority:2"`
	Direction        string  `gorm:"column:direction;size:16;not null;index:idx_invoices_dir_no,priority:1"`
	CustomerID       string  `gorm:"column:customer_id;size:190;not null;index"`
	Total            float64 `gorm:"column:total;not null;default:0"`
	Currency         string  `gorm:"column:currency;size:8;not null;default:'TRY'"`
	IssuedAtSeconds  int64   `gorm:"column:issued_at_s;not null;default:0"`
	Synced           bool    `gorm:"column:synced;not null;default:false"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

func (Invoice) TableName() string {
	return "invoices"
}

type Appointment struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	CustomerID       string `gorm:"column:customer_id;size:190;not null;index"`
	Title            string `gorm:"column:title;size:320;not null"`
	StartsAtSeconds  int64  `gorm:"column:starts_at_s;not null"`
	EndsAtSeconds    int64  `gorm:"column:ends_at_s;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// Interview records a customer conversation captured through the
// interview form.
type Interview struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	CustomerID       string `gorm:"column:customer_id;size:190;not null;index"`
	Subject          string `gorm:"column:subject;size:320;not null"`
	Summary          string `gorm:"column:summary;type:text"`
	HeldAtSeconds    int64  `gorm:"column:held_at_s;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index"`
}

func (Interview) TableName() string {
	return "interviews"
}

const (
	EmailDraftOriginUser  = "user"
	EmailDraftOriginAgent = "agent"
)

// EmailDraft is an outgoing email prepared for a customer. Agent-drafted
// follow-ups carry the offer they were generated for; that link is what
// keeps repeated scans from drafting the same offer twice.
type EmailDraft struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	CustomerID       string `gorm:"column:customer_id;size:190;not null;index"`
	OfferID          string `gorm:"column:offer_id;size:190;index"`
	Subject          string `gorm:"column:subject;size:320;not null"`
	Body             string `gorm:"column:body;type:text;not null"`
	Origin           string `gorm:"column:origin;size:16;not null;default:'user'"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

func (EmailDraft) TableName() string {
	return "email_drafts"
}

type Employee struct {
	RecordID         string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	Code             string  `gorm:"column:code;size:64;index"`
	FullName         string  `gorm:"column:full_name;size:320;not null"`
	Email            string  `gorm:"column:email;size:320"`
	BaseSalary       float64 `gorm:"column:base_salary;not null;default:0"`
	Active           bool    `gorm:"column:active;not null;default:true"`
	HiredAtSeconds   int64   `gorm:"column:hired_at_s;not null;default:0"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null"`
}

func (Employee) TableName() string {
	return "employees"
}

const (
	LeaveStatusPending  = "pending"
	LeaveStatusApproved = "approved"
	LeaveStatusRejected = "rejected"
)

// LeaveRequest spans whole calendar days, inclusive on both ends.
// Dates are stored as 2006-01-02 strings in the workplace timezone.
type LeaveRequest struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	EmployeeID       string `gorm:"column:employee_id;size:190;not null;index"`
	StartDate        string `gorm:"column:start_date;size:10;not null"`
	EndDate          string `gorm:"column:end_date;size:10;not null"`
	Status           string `gorm:"column:status;size:16;not null;default:'pending'"`
	Reason           string `gorm:"column:reason;size:320"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

func (LeaveRequest) TableName() string {
	return "leave_requests"
}

// LocationPing is one device location sample for an employee.
type LocationPing struct {
	RecordID          string  `gorm:"column:record_id;primaryKey;size:190;not null"`
	EmployeeID        string  `gorm:"column:employee_id;size:190;not null;index:idx_pings_employee_time,priority:1"`
	Latitude          float64 `gorm:"column:latitude;not null"`
	Longitude         float64 `gorm:"column:longitude;not null"`
	RecordedAtSeconds int64   `gorm:"column:recorded_at_s;not null;index:idx_pings_employee_time,priority:2"`
}

func (LocationPing) TableName() string {
	return "location_pings"
}

// Notification is immutable once emitted except for the read flag.
type Notification struct {
	RecordID         string `gorm:"column:record_id;primaryKey;size:190;not null"`
	MessageKey       string `gorm:"column:message_key;size:128;not null"`
	ParamsJSON       string `gorm:"column:params_json;type:text;not null;default:''"`
	Type             string `gorm:"column:type;size:32;not null"`
	LinkPage         string `gorm:"column:link_page;size:64"`
	LinkRecordID     string `gorm:"column:link_record_id;size:190"`
	IsRead           bool   `gorm:"column:is_read;not null;default:false;index"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

// AuditEntry is an append-only record of one sync invocation.
type AuditEntry struct {
	EntryID          string `gorm:"column:entry_id;primaryKey;size:190;not null"`
	Kind             string `gorm:"column:kind;size:32;not null;index"`
	Fetched          int    `gorm:"column:fetched;not null"`
	Added            int    `gorm:"column:added;not null"`
	Updated          int    `gorm:"column:updated;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index"`
}

func (AuditEntry) TableName() string {
	return "audit_entries"
}
