package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/logging"
	"retailpos/backend/internal/metrics"
	"retailpos/backend/internal/store"
)

// ErrForbidden marks operations the authenticated actor's role does not
// allow. Handlers map it to 403.
var ErrForbidden = errors.New("insufficient privileges")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo             store.Repository
	receipts         cache.ReceiptCache
	defaultStoreID   string
	returnWindowDays int
	receiptTTL       time.Duration
}

func New(repo store.Repository, receipts cache.ReceiptCache, defaultStoreID string, returnWindowDays int, receiptTTLSeconds int) *Service {
	if defaultStoreID == "" {
		defaultStoreID = "main-store"
	}
	if receipts == nil {
		receipts = cache.NoopReceiptCache{}
	}
	if receiptTTLSeconds < 1 {
		receiptTTLSeconds = 300
	}

	return &Service{
		repo:             repo,
		receipts:         receipts,
		defaultStoreID:   defaultStoreID,
		returnWindowDays: returnWindowDays,
		receiptTTL:       time.Duration(receiptTTLSeconds) * time.Second,
	}
}

func (s *Service) DefaultStoreID() string {
	return s.defaultStoreID
}

func (s *Service) ReturnWindowDays() int {
	return s.returnWindowDays
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if len(roles) == 0 {
		return actor, nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: %s role required", ErrForbidden, strings.Join(roles, " or "))
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	_, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.Product{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, store.ErrInvalidInput
	}
	if req.SellingPriceCents < 1 || req.TaxRatePercent < 0 || req.TaxRatePercent > 100 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		SKU:               req.SKU,
		Barcode:           strings.TrimSpace(req.Barcode),
		Name:              req.Name,
		Category:          req.Category,
		SellingPriceCents: req.SellingPriceCents,
		TaxRatePercent:    req.TaxRatePercent,
		Active:            true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		if _, err := s.repo.AdjustStock(ctx, req.StoreID, created.ID, req.InitialStock); err != nil {
			return domain.Product{}, err
		}
	}

	s.logAudit(ctx, req.StoreID, "product_create", "product", created.ID,
		fmt.Sprintf("sku=%s,price_cents=%d,initial_stock=%d", created.SKU, created.SellingPriceCents, req.InitialStock))

	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	_, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Barcode != nil {
		updated.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Category = category
	}
	if req.SellingPriceCents != nil {
		if *req.SellingPriceCents < 1 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.SellingPriceCents = *req.SellingPriceCents
	}
	if req.TaxRatePercent != nil {
		if *req.TaxRatePercent < 0 || *req.TaxRatePercent > 100 {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.TaxRatePercent = *req.TaxRatePercent
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, s.defaultStoreID, "product_update", "product", saved.ID,
		fmt.Sprintf("price_cents=%d,active=%t", saved.SellingPriceCents, saved.Active))

	return *saved, nil
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.Store, error) {
	_, err := requireRole(ctx, "admin")
	if err != nil {
		return domain.Store{}, err
	}

	created, err := s.repo.CreateStore(ctx, domain.Store{
		Name:    strings.TrimSpace(req.Name),
		Address: strings.TrimSpace(req.Address),
		Active:  true,
	})
	if err != nil {
		return domain.Store{}, err
	}

	s.logAudit(ctx, created.ID, "store_create", "store", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.Store, error) {
	return s.repo.ListStores(ctx)
}

func (s *Service) StockLevels(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	if storeID == "" {
		storeID = s.defaultStoreID
	}
	if _, err := s.repo.GetStoreByID(ctx, storeID); err != nil {
		return nil, err
	}
	return s.repo.ListStockLevels(ctx, storeID)
}

func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockLevel, error) {
	actor, err := requireRole(ctx, "manager", "admin")
	if err != nil {
		return domain.StockLevel{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.ProductID == "" || req.Delta == 0 {
		return domain.StockLevel{}, store.ErrInvalidInput
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.StockLevel{}, store.ErrInvalidInput
	}

	qty, err := s.repo.AdjustStock(ctx, req.StoreID, req.ProductID, req.Delta)
	if err != nil {
		return domain.StockLevel{}, err
	}

	s.logAudit(ctx, req.StoreID, "stock_adjust", "product", req.ProductID,
		fmt.Sprintf("delta=%d,qty=%d,reason=%s,by=%s", req.Delta, qty, req.Reason, actor.Username))

	return domain.StockLevel{StoreID: req.StoreID, ProductID: req.ProductID, Quantity: qty}, nil
}

func (s *Service) SetStock(ctx context.Context, req domain.StockSetRequest) (domain.StockLevel, error) {
	_, err := requireRole(ctx, "manager", "admin")
	if err != nil {
		return domain.StockLevel{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.ProductID == "" || req.Quantity < 0 {
		return domain.StockLevel{}, store.ErrInvalidInput
	}

	if err := s.repo.SetStock(ctx, req.StoreID, req.ProductID, req.Quantity); err != nil {
		return domain.StockLevel{}, err
	}

	s.logAudit(ctx, req.StoreID, "stock_set", "product", req.ProductID,
		fmt.Sprintf("qty=%d,notes=%s", req.Quantity, req.Notes))

	return domain.StockLevel{StoreID: req.StoreID, ProductID: req.ProductID, Quantity: req.Quantity}, nil
}

func (s *Service) TransferStock(ctx context.Context, req domain.StockTransferRequest) (domain.StockTransfer, error) {
	actor, err := requireRole(ctx, "manager", "admin")
	if err != nil {
		return domain.StockTransfer{}, err
	}

	if req.FromStoreID == "" || req.ToStoreID == "" || req.FromStoreID == req.ToStoreID || len(req.Items) == 0 {
		return domain.StockTransfer{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetStoreByID(ctx, req.FromStoreID); err != nil {
		return domain.StockTransfer{}, err
	}
	if _, err := s.repo.GetStoreByID(ctx, req.ToStoreID); err != nil {
		return domain.StockTransfer{}, err
	}

	transfer, err := s.repo.TransferStock(ctx, domain.StockTransfer{
		FromStoreID:   req.FromStoreID,
		ToStoreID:     req.ToStoreID,
		TransferredBy: actor.Username,
		Notes:         strings.TrimSpace(req.Notes),
		Items:         req.Items,
	})
	if err != nil {
		return domain.StockTransfer{}, err
	}

	s.logAudit(ctx, req.FromStoreID, "stock_transfer", "transfer", transfer.ID,
		fmt.Sprintf("to=%s,lines=%d", req.ToStoreID, len(req.Items)))

	return *transfer, nil
}

// ProcessSale rings up a cart. Pricing is resolved here; the repository
// enforces the atomic invariants (open register, guarded stock, receipt
// uniqueness) inside one transaction.
func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if len(req.Items) == 0 {
		metrics.SalesFailedTotal.WithLabelValues("empty_cart").Inc()
		return domain.SaleResponse{}, store.ErrEmptyCart
	}
	if !validPaymentMethod(req.PaymentMethod) {
		metrics.SalesFailedTotal.WithLabelValues("invalid_input").Inc()
		return domain.SaleResponse{}, store.ErrInvalidInput
	}
	if req.DiscountCents < 0 {
		metrics.SalesFailedTotal.WithLabelValues("invalid_input").Inc()
		return domain.SaleResponse{}, store.ErrInvalidInput
	}

	productIDs := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID == "" || line.Qty < 1 {
			metrics.SalesFailedTotal.WithLabelValues("invalid_input").Inc()
			return domain.SaleResponse{}, store.ErrInvalidInput
		}
		productIDs = append(productIDs, line.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return domain.SaleResponse{}, err
	}

	canOverride := actor.Role == "manager" || actor.Role == "admin"
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, line := range req.Items {
		product, exists := products[line.ProductID]
		if !exists {
			metrics.SalesFailedTotal.WithLabelValues("product_not_found").Inc()
			return domain.SaleResponse{}, &store.ProductNotFoundError{ProductID: line.ProductID}
		}
		unitPrice := product.SellingPriceCents
		if line.UnitPriceCents != nil {
			if !canOverride {
				metrics.SalesFailedTotal.WithLabelValues("forbidden").Inc()
				return domain.SaleResponse{}, fmt.Errorf("%w: price override requires manager or admin role", ErrForbidden)
			}
			if *line.UnitPriceCents < 0 {
				metrics.SalesFailedTotal.WithLabelValues("invalid_input").Inc()
				return domain.SaleResponse{}, store.ErrInvalidInput
			}
			unitPrice = *line.UnitPriceCents
		}
		items = append(items, domain.SaleItem{
			ProductID:      line.ProductID,
			Qty:            line.Qty,
			UnitPriceCents: unitPrice,
		})
	}

	sale, err := s.repo.CreateSale(ctx, domain.Sale{
		StoreID:             req.StoreID,
		CashierUsername:     actor.Username,
		CustomerID:          strings.TrimSpace(req.CustomerID),
		PaymentMethod:       req.PaymentMethod,
		DiscountCents:       req.DiscountCents,
		AmountTenderedCents: req.AmountTenderedCents,
		Items:               items,
	})
	if err != nil {
		metrics.SalesFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return domain.SaleResponse{}, err
	}

	metrics.SalesProcessedTotal.Inc()
	s.logAudit(ctx, sale.StoreID, "sale_create", "sale", sale.ID,
		fmt.Sprintf("receipt=%s,total_cents=%d,payment=%s", sale.ReceiptNumber, sale.TotalCents, sale.PaymentMethod))

	return domain.SaleResponse{Sale: *sale}, nil
}

// LookupReceipt resolves a receipt for the returns flow. The cached copy
// carries returnable quantities, so it is invalidated whenever a return
// against the sale is created or rejected; DaysSinceSale is always
// recomputed from the sale timestamp.
func (s *Service) LookupReceipt(ctx context.Context, receiptNumber string) (domain.ReceiptLookup, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	if receiptNumber == "" {
		return domain.ReceiptLookup{}, store.ErrInvalidInput
	}

	if cached, hit, err := s.receipts.Get(ctx, receiptNumber); err != nil {
		logging.L().Warn("receipt cache read failed", zap.String("receipt", receiptNumber), zap.Error(err))
	} else if hit {
		cached.DaysSinceSale = daysSince(cached.Sale.CreatedAt)
		return *cached, nil
	}

	sale, err := s.repo.GetSaleByReceiptNumber(ctx, receiptNumber)
	if err != nil {
		return domain.ReceiptLookup{}, err
	}
	returned, err := s.repo.GetReturnedQtyBySaleItem(ctx, sale.ID)
	if err != nil {
		return domain.ReceiptLookup{}, err
	}

	lookup := domain.ReceiptLookup{
		Sale:          *sale,
		Items:         make([]domain.ReceiptLookupItem, 0, len(sale.Items)),
		DaysSinceSale: daysSince(sale.CreatedAt),
	}
	for _, item := range sale.Items {
		lookup.Items = append(lookup.Items, domain.ReceiptLookupItem{
			SaleItemID:      item.ID,
			ProductID:       item.ProductID,
			ProductName:     item.ProductName,
			Qty:             item.Qty,
			ReturnedQty:     returned[item.ID],
			AvailableQty:    item.Qty - returned[item.ID],
			UnitPriceCents:  item.UnitPriceCents,
			TotalPriceCents: item.TotalPriceCents,
		})
	}

	if err := s.receipts.Set(ctx, receiptNumber, &lookup, s.receiptTTL); err != nil {
		logging.L().Warn("receipt cache write failed", zap.String("receipt", receiptNumber), zap.Error(err))
	}

	return lookup, nil
}

// ProcessReturn accepts a return against an earlier sale. Lines with a
// non-positive quantity are skipped rather than rejected; the repository
// enforces the per-line over-return guard atomically.
func (s *Service) ProcessReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	if strings.TrimSpace(req.OriginalSaleID) == "" || strings.TrimSpace(req.Reason) == "" {
		metrics.ReturnsFailedTotal.WithLabelValues("invalid_input").Inc()
		return domain.ReturnResponse{}, store.ErrInvalidInput
	}

	sale, err := s.repo.GetSaleByID(ctx, req.OriginalSaleID)
	if err != nil {
		metrics.ReturnsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return domain.ReturnResponse{}, err
	}

	if s.returnWindowDays > 0 && daysSince(sale.CreatedAt) > s.returnWindowDays {
		metrics.ReturnsFailedTotal.WithLabelValues("window_expired").Inc()
		return domain.ReturnResponse{}, store.ErrReturnWindowExpired
	}

	items := make([]domain.SaleReturnItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.Qty <= 0 {
			continue
		}
		items = append(items, domain.SaleReturnItem{
			OriginalSaleItemID: line.SaleItemID,
			Qty:                line.Qty,
		})
	}
	if len(items) == 0 {
		metrics.ReturnsFailedTotal.WithLabelValues("no_valid_items").Inc()
		return domain.ReturnResponse{}, store.ErrNoValidItems
	}

	ret, err := s.repo.CreateSaleReturn(ctx, domain.SaleReturn{
		OriginalSaleID:  sale.ID,
		CashierUsername: actor.Username,
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           strings.TrimSpace(req.Notes),
		Status:          domain.ReturnStatusProcessed,
		Items:           items,
	})
	if err != nil {
		metrics.ReturnsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return domain.ReturnResponse{}, err
	}

	// Refunds go back to the original tender; the request's refund method
	// is advisory and lands in the audit trail only.
	refundMethod := strings.TrimSpace(req.RefundMethod)
	if refundMethod == "" {
		refundMethod = sale.PaymentMethod
	}

	s.invalidateReceipt(ctx, sale.ReceiptNumber)
	metrics.ReturnsProcessedTotal.Inc()
	s.logAudit(ctx, ret.StoreID, "return_create", "return", ret.ID,
		fmt.Sprintf("sale=%s,refund_cents=%d,lines=%d,refund_method=%s", sale.ID, ret.RefundCents, len(ret.Items), refundMethod))

	return domain.ReturnResponse{Return: *ret}, nil
}

// RejectReturn moves a pending return to rejected. Rejected returns have
// no inventory or cash effect and stop counting against the returnable
// quantity, so the receipt cache entry is dropped.
func (s *Service) RejectReturn(ctx context.Context, returnID string) (domain.ReturnResponse, error) {
	_, err := requireRole(ctx, "manager", "admin")
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	ret, err := s.repo.RejectReturn(ctx, returnID, time.Now().UTC())
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	if sale, err := s.repo.GetSaleByID(ctx, ret.OriginalSaleID); err == nil {
		s.invalidateReceipt(ctx, sale.ReceiptNumber)
	}
	s.logAudit(ctx, ret.StoreID, "return_reject", "return", ret.ID, "sale="+ret.OriginalSaleID)

	return domain.ReturnResponse{Return: *ret}, nil
}

func (s *Service) ListReturns(ctx context.Context, storeID string, limit int) (domain.ReturnListResponse, error) {
	returns, err := s.repo.ListReturns(ctx, storeID, limit)
	if err != nil {
		return domain.ReturnListResponse{}, err
	}
	return domain.ReturnListResponse{Returns: returns}, nil
}

func (s *Service) OpenRegister(ctx context.Context, req domain.RegisterOpenRequest) (domain.RegisterResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if req.OpeningBalanceCents < 0 {
		return domain.RegisterResponse{}, store.ErrInvalidInput
	}
	if _, err := s.repo.GetStoreByID(ctx, req.StoreID); err != nil {
		return domain.RegisterResponse{}, err
	}

	session, err := s.repo.OpenRegister(ctx, domain.RegisterSession{
		StoreID:             req.StoreID,
		CashierUsername:     actor.Username,
		OpeningBalanceCents: req.OpeningBalanceCents,
	})
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	metrics.RegistersOpenedTotal.Inc()
	s.logAudit(ctx, req.StoreID, "register_open", "register_session", session.ID,
		fmt.Sprintf("opening_cents=%d", session.OpeningBalanceCents))

	return domain.RegisterResponse{Session: *session}, nil
}

func (s *Service) CloseRegister(ctx context.Context, req domain.RegisterCloseRequest) (domain.RegisterResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		open, err := s.repo.GetOpenRegister(ctx, s.defaultStoreID, actor.Username)
		if err != nil {
			return domain.RegisterResponse{}, err
		}
		sessionID = open.ID
	}

	session, err := s.repo.CloseRegister(ctx, sessionID, time.Now().UTC())
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	metrics.RegistersClosedTotal.Inc()
	closing := int64(0)
	if session.ClosingBalanceCents != nil {
		closing = *session.ClosingBalanceCents
	}
	s.logAudit(ctx, session.StoreID, "register_close", "register_session", session.ID,
		fmt.Sprintf("closing_cents=%d,notes=%s", closing, req.Notes))

	return domain.RegisterResponse{Session: *session}, nil
}

func (s *Service) CurrentRegister(ctx context.Context, storeID string) (domain.RegisterResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	if storeID == "" {
		storeID = s.defaultStoreID
	}
	session, err := s.repo.GetOpenRegister(ctx, storeID, actor.Username)
	if err != nil {
		return domain.RegisterResponse{}, err
	}
	return domain.RegisterResponse{Session: *session}, nil
}

func (s *Service) RecordCashMovement(ctx context.Context, req domain.CashMovementRequest) (domain.RegisterResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	if req.AmountCents < 1 || strings.TrimSpace(req.Reason) == "" {
		return domain.RegisterResponse{}, store.ErrInvalidInput
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		open, err := s.repo.GetOpenRegister(ctx, s.defaultStoreID, actor.Username)
		if err != nil {
			return domain.RegisterResponse{}, err
		}
		sessionID = open.ID
	}

	var inCents, outCents int64
	switch req.Direction {
	case domain.CashDirectionIn:
		inCents = req.AmountCents
	case domain.CashDirectionOut:
		outCents = req.AmountCents
	default:
		return domain.RegisterResponse{}, store.ErrInvalidInput
	}

	session, err := s.repo.RecordCashMovement(ctx, sessionID, inCents, outCents)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	s.logAudit(ctx, session.StoreID, "cash_movement", "register_session", session.ID,
		fmt.Sprintf("direction=%s,amount_cents=%d,reason=%s", req.Direction, req.AmountCents, req.Reason))

	return domain.RegisterResponse{Session: *session}, nil
}

// HoldSale parks a cart without touching stock or the register. The held
// lines keep any price override, so resuming re-runs the same role check
// through ProcessSale.
func (s *Service) HoldSale(ctx context.Context, req domain.HoldSaleRequest) (domain.HeldSaleResponse, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.HeldSaleResponse{}, err
	}

	if req.StoreID == "" {
		req.StoreID = s.defaultStoreID
	}
	if len(req.Items) == 0 || req.DiscountCents < 0 {
		return domain.HeldSaleResponse{}, store.ErrInvalidInput
	}
	for _, line := range req.Items {
		if line.ProductID == "" || line.Qty < 1 {
			return domain.HeldSaleResponse{}, store.ErrInvalidInput
		}
	}

	held, err := s.repo.CreateHeldSale(ctx, domain.HeldSale{
		StoreID:         req.StoreID,
		CashierUsername: actor.Username,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		Note:            strings.TrimSpace(req.Note),
		PaymentMethod:   req.PaymentMethod,
		DiscountCents:   req.DiscountCents,
		Items:           req.Items,
	})
	if err != nil {
		return domain.HeldSaleResponse{}, err
	}

	metrics.HeldSalesTotal.Inc()
	s.logAudit(ctx, held.StoreID, "sale_hold", "held_sale", held.ID,
		fmt.Sprintf("hold=%s,lines=%d", held.HoldNumber, len(held.Items)))

	return domain.HeldSaleResponse{HeldSale: *held}, nil
}

func (s *Service) ListHeldSales(ctx context.Context, storeID string, limit int) (domain.HeldSaleListResponse, error) {
	held, err := s.repo.ListHeldSales(ctx, storeID, limit)
	if err != nil {
		return domain.HeldSaleListResponse{}, err
	}
	return domain.HeldSaleListResponse{Items: held}, nil
}

// ResumeHeldSale removes the hold and hands the cart back to the
// terminal. A second resume of the same hold fails with not found.
func (s *Service) ResumeHeldSale(ctx context.Context, holdID string) (domain.HeldSaleResponse, error) {
	_, err := requireRole(ctx)
	if err != nil {
		return domain.HeldSaleResponse{}, err
	}

	held, err := s.repo.PopHeldSale(ctx, holdID)
	if err != nil {
		return domain.HeldSaleResponse{}, err
	}

	s.logAudit(ctx, held.StoreID, "sale_resume", "held_sale", held.ID, "hold="+held.HoldNumber)
	return domain.HeldSaleResponse{HeldSale: *held}, nil
}

func (s *Service) DiscardHeldSale(ctx context.Context, holdID string) error {
	_, err := requireRole(ctx)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteHeldSale(ctx, holdID); err != nil {
		return err
	}
	s.logAudit(ctx, s.defaultStoreID, "sale_discard", "held_sale", holdID, "")
	return nil
}

func (s *Service) AuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	_, err := requireRole(ctx, "manager", "admin")
	if err != nil {
		return nil, err
	}

	if to.IsZero() {
		to = time.Now().UTC().Add(time.Minute)
	}
	if from.IsZero() {
		from = to.Add(-7 * 24 * time.Hour)
	}
	return s.repo.ListAuditLogs(ctx, storeID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, storeID string, action string, entityType string, entityID string, detail string) {
	actor, _ := ActorFromContext(ctx)
	err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		StoreID:       storeID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
	})
	if err != nil {
		logging.L().Warn("audit log write failed", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) invalidateReceipt(ctx context.Context, receiptNumber string) {
	if receiptNumber == "" {
		return
	}
	if err := s.receipts.Delete(ctx, receiptNumber); err != nil {
		logging.L().Warn("receipt cache invalidation failed", zap.String("receipt", receiptNumber), zap.Error(err))
	}
}

func daysSince(at time.Time) int {
	if at.IsZero() {
		return 0
	}
	return int(time.Since(at).Hours() / 24)
}

func validPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentMethodCash, domain.PaymentMethodCard, domain.PaymentMethodDigitalWallet, domain.PaymentMethodStoreCredit:
		return true
	}
	return false
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNoOpenRegister):
		return "no_open_register"
	case errors.Is(err, store.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, store.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, store.ErrInactiveProduct):
		return "inactive_product"
	case errors.Is(err, store.ErrOverReturn):
		return "over_return"
	case errors.Is(err, store.ErrInvalidSaleItem):
		return "invalid_sale_item"
	case errors.Is(err, store.ErrDuplicateReceipt):
		return "duplicate_receipt"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	default:
		return "other"
	}
}
