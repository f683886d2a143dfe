package domain

import "time"

type Product struct {
	ID                string  `json:"id"`
	SKU               string  `json:"sku"`
	Barcode           string  `json:"barcode,omitempty"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	SellingPriceCents int64   `json:"selling_price_cents"`
	TaxRatePercent    float64 `json:"tax_rate_percent"`
	Active            bool    `json:"active"`
}

type ProductCreateRequest struct {
	SKU               string  `json:"sku"`
	Barcode           string  `json:"barcode"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	SellingPriceCents int64   `json:"selling_price_cents"`
	TaxRatePercent    float64 `json:"tax_rate_percent"`
	StoreID           string  `json:"store_id,omitempty"`
	InitialStock      int     `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Barcode           *string  `json:"barcode,omitempty"`
	Name              *string  `json:"name,omitempty"`
	Category          *string  `json:"category,omitempty"`
	SellingPriceCents *int64   `json:"selling_price_cents,omitempty"`
	TaxRatePercent    *float64 `json:"tax_rate_percent,omitempty"`
	Active            *bool    `json:"active,omitempty"`
}

type Store struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Active  bool   `json:"active"`
}

type StoreCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type StockLevel struct {
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type StockAdjustRequest struct {
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
}

type StockSetRequest struct {
	StoreID    string `json:"store_id"`
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	Notes      string `json:"notes"`
	ManagerPIN string `json:"manager_pin,omitempty"`
}

type StockTransferItem struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type StockTransferRequest struct {
	FromStoreID string              `json:"from_store_id"`
	ToStoreID   string              `json:"to_store_id"`
	Notes       string              `json:"notes"`
	ManagerPIN  string              `json:"manager_pin,omitempty"`
	Items       []StockTransferItem `json:"items"`
}

type StockTransfer struct {
	ID            string              `json:"id"`
	FromStoreID   string              `json:"from_store_id"`
	ToStoreID     string              `json:"to_store_id"`
	TransferredBy string              `json:"transferred_by"`
	Notes         string              `json:"notes,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	Items         []StockTransferItem `json:"items"`
}

// SaleLine is one cart line as submitted by the terminal. UnitPriceCents
// is an optional override; when nil the server-side selling price applies.
type SaleLine struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents *int64 `json:"unit_price_cents,omitempty"`
}

type SaleRequest struct {
	StoreID             string     `json:"store_id"`
	CustomerID          string     `json:"customer_id,omitempty"`
	PaymentMethod       string     `json:"payment_method"`
	DiscountCents       int64      `json:"discount_cents"`
	AmountTenderedCents int64      `json:"amount_tendered_cents"`
	Items               []SaleLine `json:"items"`
}

type SaleItem struct {
	ID              string  `json:"id"`
	SaleID          string  `json:"sale_id"`
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	Qty             int     `json:"qty"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	TaxRatePercent  float64 `json:"tax_rate_percent"`
	TaxCents        int64   `json:"tax_cents"`
	TotalPriceCents int64   `json:"total_price_cents"`
}

type Sale struct {
	ID                  string     `json:"id"`
	ReceiptNumber       string     `json:"receipt_number"`
	StoreID             string     `json:"store_id"`
	SessionID           string     `json:"session_id,omitempty"`
	CashierUsername     string     `json:"cashier_username"`
	CustomerID          string     `json:"customer_id,omitempty"`
	PaymentMethod       string     `json:"payment_method"`
	SubtotalCents       int64      `json:"subtotal_cents"`
	TaxCents            int64      `json:"tax_cents"`
	DiscountCents       int64      `json:"discount_cents"`
	TotalCents          int64      `json:"total_cents"`
	AmountTenderedCents int64      `json:"amount_tendered_cents"`
	ChangeCents         int64      `json:"change_cents"`
	CreatedAt           time.Time  `json:"created_at"`
	Items               []SaleItem `json:"items"`
}

type SaleResponse struct {
	Sale Sale `json:"sale"`
}

type ReceiptLookupItem struct {
	SaleItemID      string `json:"sale_item_id"`
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name"`
	Qty             int    `json:"qty"`
	ReturnedQty     int    `json:"returned_qty"`
	AvailableQty    int    `json:"available_qty"`
	UnitPriceCents  int64  `json:"unit_price_cents"`
	TotalPriceCents int64  `json:"total_price_cents"`
}

type ReceiptLookup struct {
	Sale          Sale                `json:"sale"`
	Items         []ReceiptLookupItem `json:"items"`
	DaysSinceSale int                 `json:"days_since_sale"`
}

type ReturnLine struct {
	SaleItemID string `json:"sale_item_id"`
	Qty        int    `json:"qty"`
}

type ReturnRequest struct {
	OriginalSaleID string       `json:"original_sale_id"`
	Reason         string       `json:"reason"`
	Notes          string       `json:"notes,omitempty"`
	RefundMethod   string       `json:"refund_method,omitempty"`
	Items          []ReturnLine `json:"items"`
}

type SaleReturnItem struct {
	ID                 string `json:"id"`
	ReturnID           string `json:"return_id"`
	OriginalSaleItemID string `json:"original_sale_item_id"`
	ProductID          string `json:"product_id"`
	Qty                int    `json:"qty"`
	UnitPriceCents     int64  `json:"unit_price_cents"`
	RefundCents        int64  `json:"refund_cents"`
}

type SaleReturn struct {
	ID              string           `json:"id"`
	ReturnNumber    string           `json:"return_number"`
	OriginalSaleID  string           `json:"original_sale_id"`
	StoreID         string           `json:"store_id"`
	CashierUsername string           `json:"cashier_username"`
	Reason          string           `json:"reason"`
	Notes           string           `json:"notes,omitempty"`
	Status          string           `json:"status"`
	RefundCents     int64            `json:"refund_cents"`
	CreatedAt       time.Time        `json:"created_at"`
	ProcessedAt     *time.Time       `json:"processed_at,omitempty"`
	Items           []SaleReturnItem `json:"items"`
}

type RejectReturnRequest struct {
	ManagerPIN string `json:"manager_pin,omitempty"`
}

type ReturnResponse struct {
	Return SaleReturn `json:"return"`
}

type ReturnListResponse struct {
	Returns []SaleReturn `json:"returns"`
}

type RegisterSession struct {
	ID                  string     `json:"id"`
	StoreID             string     `json:"store_id"`
	CashierUsername     string     `json:"cashier_username"`
	OpeningBalanceCents int64      `json:"opening_balance_cents"`
	ClosingBalanceCents *int64     `json:"closing_balance_cents,omitempty"`
	TotalSalesCents     int64      `json:"total_sales_cents"`
	CashInCents         int64      `json:"cash_in_cents"`
	CashOutCents        int64      `json:"cash_out_cents"`
	Status              string     `json:"status"`
	OpenedAt            time.Time  `json:"opened_at"`
	ClosedAt            *time.Time `json:"closed_at,omitempty"`
}

type RegisterOpenRequest struct {
	StoreID             string `json:"store_id"`
	OpeningBalanceCents int64  `json:"opening_balance_cents"`
}

type RegisterCloseRequest struct {
	SessionID string `json:"session_id"`
	Notes     string `json:"notes"`
}

type CashMovementRequest struct {
	SessionID   string `json:"session_id"`
	Direction   string `json:"direction"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

type RegisterResponse struct {
	Session RegisterSession `json:"session"`
}

type HoldSaleRequest struct {
	StoreID       string     `json:"store_id"`
	CustomerID    string     `json:"customer_id,omitempty"`
	Note          string     `json:"note"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	DiscountCents int64      `json:"discount_cents"`
	Items         []SaleLine `json:"items"`
}

type HeldSale struct {
	ID              string     `json:"id"`
	HoldNumber      string     `json:"hold_number"`
	StoreID         string     `json:"store_id"`
	CashierUsername string     `json:"cashier_username"`
	CustomerID      string     `json:"customer_id,omitempty"`
	Note            string     `json:"note,omitempty"`
	PaymentMethod   string     `json:"payment_method,omitempty"`
	DiscountCents   int64      `json:"discount_cents"`
	Items           []SaleLine `json:"items"`
	HeldAt          time.Time  `json:"held_at"`
}

type HeldSaleResponse struct {
	HeldSale HeldSale `json:"held_sale"`
}

type HeldSaleListResponse struct {
	Items []HeldSale `json:"items"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	PaymentMethodCash          = "cash"
	PaymentMethodCard          = "card"
	PaymentMethodDigitalWallet = "digital_wallet"
	PaymentMethodStoreCredit   = "store_credit"
)

const (
	ReturnStatusPending   = "pending"
	ReturnStatusProcessed = "processed"
	ReturnStatusRejected  = "rejected"
)

const (
	SessionStatusOpen   = "open"
	SessionStatusClosed = "closed"
)

const (
	CashDirectionIn  = "in"
	CashDirectionOut = "out"
)
