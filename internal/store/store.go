package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrEmptyCart           = errors.New("empty cart")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrProductNotFound     = errors.New("product not found")
	ErrInactiveProduct     = errors.New("product is inactive")
	ErrNoOpenRegister      = errors.New("no open cash register session")
	ErrRegisterAlreadyOpen = errors.New("cash register session already open")
	ErrRegisterNotOpen     = errors.New("cash register session is not open")
	ErrInvalidSaleItem     = errors.New("invalid sale item")
	ErrOverReturn          = errors.New("return exceeds purchased quantity")
	ErrNoValidItems        = errors.New("no valid items")
	ErrReturnWindowExpired = errors.New("sale is outside the return window")
	ErrDuplicateReceipt    = errors.New("duplicate receipt number")
)

// InsufficientStockError reports a failed guarded stock decrement. It
// matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	StoreID   string
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s in store %s: requested %d, available %d",
		e.ProductID, e.StoreID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// OverReturnError reports a return line whose quantity, together with
// prior non-rejected returns, exceeds the quantity originally purchased.
// It matches ErrOverReturn under errors.Is.
type OverReturnError struct {
	SaleItemID      string
	ProductID       string
	Requested       int
	Purchased       int
	AlreadyReturned int
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("cannot return %d of sale item %s: purchased %d, already returned %d",
		e.Requested, e.SaleItemID, e.Purchased, e.AlreadyReturned)
}

func (e *OverReturnError) Is(target error) bool {
	return target == ErrOverReturn
}

// ProductNotFoundError matches ErrProductNotFound under errors.Is.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

// InactiveProductError matches ErrInactiveProduct under errors.Is.
type InactiveProductError struct {
	ProductID string
	Name      string
}

func (e *InactiveProductError) Error() string {
	return fmt.Sprintf("product %s (%s) is inactive", e.ProductID, e.Name)
}

func (e *InactiveProductError) Is(target error) bool {
	return target == ErrInactiveProduct
}

// InvalidSaleItemError matches ErrInvalidSaleItem under errors.Is.
type InvalidSaleItemError struct {
	SaleItemID string
}

func (e *InvalidSaleItemError) Error() string {
	return fmt.Sprintf("sale item %s does not belong to the sale", e.SaleItemID)
}

func (e *InvalidSaleItemError) Is(target error) bool {
	return target == ErrInvalidSaleItem
}

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByID(ctx context.Context, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)

	CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error)
	GetStoreByID(ctx context.Context, storeID string) (*domain.Store, error)
	ListStores(ctx context.Context) ([]domain.Store, error)

	GetStockMap(ctx context.Context, storeID string, productIDs []string) (map[string]int, error)
	ListStockLevels(ctx context.Context, storeID string) ([]domain.StockLevel, error)
	AdjustStock(ctx context.Context, storeID string, productID string, delta int) (int, error)
	SetStock(ctx context.Context, storeID string, productID string, qty int) error
	TransferStock(ctx context.Context, transfer domain.StockTransfer) (*domain.StockTransfer, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	GetSaleByReceiptNumber(ctx context.Context, receiptNumber string) (*domain.Sale, error)

	CreateSaleReturn(ctx context.Context, ret domain.SaleReturn) (*domain.SaleReturn, error)
	GetReturnByID(ctx context.Context, returnID string) (*domain.SaleReturn, error)
	GetReturnedQtyBySaleItem(ctx context.Context, saleID string) (map[string]int, error)
	ListReturns(ctx context.Context, storeID string, limit int) ([]domain.SaleReturn, error)
	RejectReturn(ctx context.Context, returnID string, at time.Time) (*domain.SaleReturn, error)

	OpenRegister(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error)
	CloseRegister(ctx context.Context, sessionID string, closedAt time.Time) (*domain.RegisterSession, error)
	GetOpenRegister(ctx context.Context, storeID string, cashierUsername string) (*domain.RegisterSession, error)
	RecordCashMovement(ctx context.Context, sessionID string, inCents int64, outCents int64) (*domain.RegisterSession, error)

	CreateHeldSale(ctx context.Context, held domain.HeldSale) (*domain.HeldSale, error)
	ListHeldSales(ctx context.Context, storeID string, limit int) ([]domain.HeldSale, error)
	PopHeldSale(ctx context.Context, holdID string) (*domain.HeldSale, error)
	DeleteHeldSale(ctx context.Context, holdID string) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
