package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type Store struct {
	mu               sync.RWMutex
	products         map[string]domain.Product
	productIDBySKU   map[string]string
	stores           map[string]domain.Store
	stock            map[string]map[string]int
	salesByID        map[string]*domain.Sale
	saleIDByReceipt  map[string]string
	returnsByID      map[string]*domain.SaleReturn
	sessionsByID     map[string]domain.RegisterSession
	openSessionByKey map[string]string
	transfersByID    map[string]domain.StockTransfer
	heldSalesByID    map[string]domain.HeldSale
	auditLogs        []domain.AuditLog
	usersByUsername  map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"manager", managerPwd, "manager"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	stores := []domain.Store{
		{ID: "main-store", Name: "Main Store", Address: "1 Market Street", Active: true},
		{ID: "north-branch", Name: "North Branch", Address: "42 Harbor Road", Active: true},
	}

	products := []domain.Product{
		{ID: "prd-cola-01", SKU: "SKU-COLA-01", Barcode: "8991001", Name: "Cola 330ml", Category: "beverage", SellingPriceCents: 1200, TaxRatePercent: 10, Active: true},
		{ID: "prd-water-01", SKU: "SKU-WATER-01", Barcode: "8991002", Name: "Mineral Water 600ml", Category: "beverage", SellingPriceCents: 500, TaxRatePercent: 0, Active: true},
		{ID: "prd-bread-01", SKU: "SKU-BREAD-01", Barcode: "8991003", Name: "Sandwich Loaf", Category: "bakery", SellingPriceCents: 1780, TaxRatePercent: 0, Active: true},
		{ID: "prd-milk-01", SKU: "SKU-MILK-01", Barcode: "8991004", Name: "UHT Milk 1L", Category: "dairy", SellingPriceCents: 1890, TaxRatePercent: 5, Active: true},
		{ID: "prd-chips-01", SKU: "SKU-CHIPS-01", Barcode: "8991005", Name: "Potato Chips", Category: "snack", SellingPriceCents: 1280, TaxRatePercent: 10, Active: true},
		{ID: "prd-choc-01", SKU: "SKU-CHOC-01", Barcode: "8991006", Name: "Chocolate Bar", Category: "snack", SellingPriceCents: 860, TaxRatePercent: 10, Active: true},
		{ID: "prd-soap-01", SKU: "SKU-SOAP-01", Barcode: "8991007", Name: "Bath Soap", Category: "household", SellingPriceCents: 740, TaxRatePercent: 10, Active: true},
		{ID: "prd-coffee-01", SKU: "SKU-COFFEE-01", Barcode: "8991008", Name: "Ground Coffee 250g", Category: "beverage", SellingPriceCents: 4500, TaxRatePercent: 5, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	productIDBySKU := make(map[string]string, len(products))
	stock := make(map[string]map[string]int)
	storeMap := make(map[string]domain.Store, len(stores))
	for _, st := range stores {
		storeMap[st.ID] = st
		stock[st.ID] = make(map[string]int)
	}
	for _, p := range products {
		productMap[p.ID] = p
		productIDBySKU[p.SKU] = p.ID
		stock["main-store"][p.ID] = 120
		stock["north-branch"][p.ID] = 40
	}

	return &Store{
		products:         productMap,
		productIDBySKU:   productIDBySKU,
		stores:           storeMap,
		stock:            stock,
		salesByID:        make(map[string]*domain.Sale),
		saleIDByReceipt:  make(map[string]string),
		returnsByID:      make(map[string]*domain.SaleReturn),
		sessionsByID:     make(map[string]domain.RegisterSession),
		openSessionByKey: make(map[string]string),
		transfersByID:    make(map[string]domain.StockTransfer),
		heldSalesByID:    make(map[string]domain.HeldSale),
		auditLogs:        make([]domain.AuditLog, 0, 128),
		usersByUsername:  seedUsers(),
	}
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.SKU == "" || strings.TrimSpace(product.Name) == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.TaxRatePercent < 0 || product.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}
	if _, exists := s.productIDBySKU[product.SKU]; exists {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	product.Active = true
	s.products[product.ID] = product
	s.productIDBySKU[product.SKU] = product.ID
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(product.Name) == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.TaxRatePercent < 0 || product.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	// SKU is immutable once assigned.
	product.SKU = existing.SKU
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProductByID(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[productID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) CreateStore(_ context.Context, st domain.Store) (*domain.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if st.ID == "" {
		st.ID = xid.New("str")
	}
	if _, exists := s.stores[st.ID]; exists {
		return nil, store.ErrInvalidInput
	}
	st.Active = true
	s.stores[st.ID] = st
	s.stock[st.ID] = make(map[string]int)
	created := st
	return &created, nil
}

func (s *Store) GetStoreByID(_ context.Context, storeID string) (*domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.stores[storeID]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyStore := st
	return &copyStore, nil
}

func (s *Store) ListStores(_ context.Context) ([]domain.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stores := make([]domain.Store, 0, len(s.stores))
	for _, st := range s.stores {
		stores = append(stores, st)
	}
	slices.SortFunc(stores, func(a, b domain.Store) int {
		return cmpString(a.Name, b.Name)
	})
	return stores, nil
}

func (s *Store) GetStockMap(_ context.Context, storeID string, productIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stockMap := make(map[string]int, len(productIDs))
	storeStock := s.stock[storeID]
	for _, id := range productIDs {
		if storeStock == nil {
			stockMap[id] = 0
			continue
		}
		stockMap[id] = storeStock[id]
	}
	return stockMap, nil
}

func (s *Store) ListStockLevels(_ context.Context, storeID string) ([]domain.StockLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	storeStock := s.stock[storeID]
	levels := make([]domain.StockLevel, 0, len(storeStock))
	for productID, qty := range storeStock {
		levels = append(levels, domain.StockLevel{StoreID: storeID, ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(levels, func(a, b domain.StockLevel) int {
		return cmpString(a.ProductID, b.ProductID)
	})
	return levels, nil
}

func (s *Store) AdjustStock(_ context.Context, storeID string, productID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.adjustStockLocked(storeID, productID, delta)
}

// adjustStockLocked applies a guarded delta to one stock level. Callers
// must hold s.mu. A negative delta that would drive the quantity below
// zero fails without changing anything, mirroring the guarded UPDATE in
// the postgres store.
func (s *Store) adjustStockLocked(storeID string, productID string, delta int) (int, error) {
	if _, exists := s.products[productID]; !exists {
		return 0, &store.ProductNotFoundError{ProductID: productID}
	}
	storeStock, ok := s.stock[storeID]
	if !ok {
		storeStock = make(map[string]int)
		s.stock[storeID] = storeStock
	}
	current := storeStock[productID]
	next := current + delta
	if next < 0 {
		return current, &store.InsufficientStockError{
			StoreID:   storeID,
			ProductID: productID,
			Requested: -delta,
			Available: current,
		}
	}
	storeStock[productID] = next
	return next, nil
}

func (s *Store) SetStock(_ context.Context, storeID string, productID string, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[productID]; !exists {
		return &store.ProductNotFoundError{ProductID: productID}
	}
	storeStock, ok := s.stock[storeID]
	if !ok {
		storeStock = make(map[string]int)
		s.stock[storeID] = storeStock
	}
	storeStock[productID] = qty
	return nil
}

func (s *Store) TransferStock(_ context.Context, transfer domain.StockTransfer) (*domain.StockTransfer, error) {
	if transfer.FromStoreID == "" || transfer.ToStoreID == "" || transfer.FromStoreID == transfer.ToStoreID {
		return nil, store.ErrInvalidInput
	}
	if len(transfer.Items) == 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[transfer.FromStoreID]; !exists {
		return nil, store.ErrNotFound
	}
	if _, exists := s.stores[transfer.ToStoreID]; !exists {
		return nil, store.ErrNotFound
	}

	// Validate every line before touching any quantity so a failed line
	// leaves both stores untouched.
	fromStock := s.stock[transfer.FromStoreID]
	for _, item := range transfer.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, exists := s.products[item.ProductID]; !exists {
			return nil, &store.ProductNotFoundError{ProductID: item.ProductID}
		}
		available := 0
		if fromStock != nil {
			available = fromStock[item.ProductID]
		}
		if available < item.Qty {
			return nil, &store.InsufficientStockError{
				StoreID:   transfer.FromStoreID,
				ProductID: item.ProductID,
				Requested: item.Qty,
				Available: available,
			}
		}
	}

	for _, item := range transfer.Items {
		if _, err := s.adjustStockLocked(transfer.FromStoreID, item.ProductID, -item.Qty); err != nil {
			return nil, err
		}
		if _, err := s.adjustStockLocked(transfer.ToStoreID, item.ProductID, item.Qty); err != nil {
			return nil, err
		}
	}

	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	s.transfersByID[transfer.ID] = cloneTransfer(transfer)
	saved := cloneTransfer(transfer)
	return &saved, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}
	if _, exists := s.stores[sale.StoreID]; !exists {
		return nil, store.ErrNotFound
	}

	sessionKey := sessionMapKey(sale.StoreID, sale.CashierUsername)
	sessionID, hasSession := s.openSessionByKey[sessionKey]
	if !hasSession {
		return nil, store.ErrNoOpenRegister
	}
	session := s.sessionsByID[sessionID]

	subtotal := int64(0)
	taxTotal := int64(0)
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
		product, exists := s.products[item.ProductID]
		if !exists {
			return nil, &store.ProductNotFoundError{ProductID: item.ProductID}
		}
		if !product.Active {
			return nil, &store.InactiveProductError{ProductID: product.ID, Name: product.Name}
		}
		lineSubtotal := item.UnitPriceCents * int64(item.Qty)
		lineTax := domain.LineTaxCents(lineSubtotal, product.TaxRatePercent)
		items = append(items, domain.SaleItem{
			ID:              xid.New("sli"),
			ProductID:       product.ID,
			ProductName:     product.Name,
			Qty:             item.Qty,
			UnitPriceCents:  item.UnitPriceCents,
			TaxRatePercent:  product.TaxRatePercent,
			TaxCents:        lineTax,
			TotalPriceCents: lineSubtotal,
		})
		subtotal += lineSubtotal
		taxTotal += lineTax
	}

	if sale.DiscountCents < 0 {
		return nil, store.ErrInvalidInput
	}
	total := domain.SaleTotalCents(subtotal, taxTotal, sale.DiscountCents)

	if sale.PaymentMethod == domain.PaymentMethodCash {
		// Tender is optional for cash; a zero value means the terminal did
		// not record it. When recorded it must cover the total.
		switch {
		case sale.AmountTenderedCents == 0:
			sale.ChangeCents = 0
		case sale.AmountTenderedCents < total:
			return nil, store.ErrInvalidInput
		default:
			sale.ChangeCents = sale.AmountTenderedCents - total
		}
	} else {
		sale.AmountTenderedCents = 0
		sale.ChangeCents = 0
	}

	// Guarded decrement per line. The first failing line aborts the whole
	// sale with no stock mutated, so roll back whatever already applied.
	applied := make([]domain.SaleItem, 0, len(items))
	for _, item := range items {
		if _, err := s.adjustStockLocked(sale.StoreID, item.ProductID, -item.Qty); err != nil {
			for _, undo := range applied {
				_, _ = s.adjustStockLocked(sale.StoreID, undo.ProductID, undo.Qty)
			}
			return nil, err
		}
		applied = append(applied, item)
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.ReceiptNumber == "" {
		sale.ReceiptNumber = xid.Numbered("REC", sale.CreatedAt)
	}
	if _, taken := s.saleIDByReceipt[sale.ReceiptNumber]; taken {
		sale.ReceiptNumber = xid.Numbered("REC", sale.CreatedAt)
		if _, taken := s.saleIDByReceipt[sale.ReceiptNumber]; taken {
			for _, undo := range applied {
				_, _ = s.adjustStockLocked(sale.StoreID, undo.ProductID, undo.Qty)
			}
			return nil, store.ErrDuplicateReceipt
		}
	}

	for i := range items {
		items[i].SaleID = sale.ID
	}
	sale.Items = items
	sale.SessionID = session.ID
	sale.SubtotalCents = subtotal
	sale.TaxCents = taxTotal
	sale.TotalCents = total

	if sale.PaymentMethod == domain.PaymentMethodCash {
		session.TotalSalesCents += total
		s.sessionsByID[session.ID] = session
	}

	saved := cloneSale(&sale)
	s.salesByID[sale.ID] = saved
	s.saleIDByReceipt[sale.ReceiptNumber] = sale.ID

	return cloneSale(saved), nil
}

func (s *Store) GetSaleByID(_ context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByID[saleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(sale), nil
}

func (s *Store) GetSaleByReceiptNumber(_ context.Context, receiptNumber string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	saleID, exists := s.saleIDByReceipt[receiptNumber]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneSale(s.salesByID[saleID]), nil
}

func (s *Store) CreateSaleReturn(_ context.Context, ret domain.SaleReturn) (*domain.SaleReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[ret.OriginalSaleID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if len(ret.Items) == 0 {
		return nil, store.ErrNoValidItems
	}

	saleItemsByID := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		saleItemsByID[item.ID] = item
	}
	alreadyReturned := s.returnedQtyBySaleItemLocked(ret.OriginalSaleID)

	refundTotal := int64(0)
	items := make([]domain.SaleReturnItem, 0, len(ret.Items))
	for _, line := range ret.Items {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		saleItem, ok := saleItemsByID[line.OriginalSaleItemID]
		if !ok {
			return nil, &store.InvalidSaleItemError{SaleItemID: line.OriginalSaleItemID}
		}
		returned := alreadyReturned[saleItem.ID]
		if line.Qty+returned > saleItem.Qty {
			return nil, &store.OverReturnError{
				SaleItemID:      saleItem.ID,
				ProductID:       saleItem.ProductID,
				Requested:       line.Qty,
				Purchased:       saleItem.Qty,
				AlreadyReturned: returned,
			}
		}
		refund := saleItem.UnitPriceCents * int64(line.Qty)
		items = append(items, domain.SaleReturnItem{
			ID:                 xid.New("sri"),
			OriginalSaleItemID: saleItem.ID,
			ProductID:          saleItem.ProductID,
			Qty:                line.Qty,
			UnitPriceCents:     saleItem.UnitPriceCents,
			RefundCents:        refund,
		})
		refundTotal += refund
	}

	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = time.Now().UTC()
	}
	if ret.Status == "" {
		ret.Status = domain.ReturnStatusProcessed
	}
	if ret.ReturnNumber == "" {
		ret.ReturnNumber = xid.Numbered("RET", ret.CreatedAt)
	}
	ret.StoreID = sale.StoreID
	ret.RefundCents = refundTotal
	for i := range items {
		items[i].ReturnID = ret.ID
	}
	ret.Items = items

	// Pending returns reserve the quantities via the over-return guard but
	// have no inventory or register effect until processed.
	if ret.Status == domain.ReturnStatusProcessed {
		if ret.ProcessedAt == nil {
			at := ret.CreatedAt
			ret.ProcessedAt = &at
		}

		// Resolve the drawer before mutating anything, and mutate it only
		// after every stock increment has applied, so a failed increment
		// cannot leave a half-done refund behind.
		var cashSessionID string
		if sale.PaymentMethod == domain.PaymentMethodCash {
			sessionID, hasSession := s.openSessionByKey[sessionMapKey(sale.StoreID, ret.CashierUsername)]
			if !hasSession {
				return nil, store.ErrNoOpenRegister
			}
			cashSessionID = sessionID
		}

		for _, item := range ret.Items {
			if _, err := s.adjustStockLocked(sale.StoreID, item.ProductID, item.Qty); err != nil {
				return nil, err
			}
		}

		if cashSessionID != "" {
			session := s.sessionsByID[cashSessionID]
			session.CashOutCents += refundTotal
			session.TotalSalesCents -= refundTotal
			s.sessionsByID[cashSessionID] = session
		}
	}

	saved := cloneReturn(&ret)
	s.returnsByID[ret.ID] = saved
	return cloneReturn(saved), nil
}

func (s *Store) GetReturnByID(_ context.Context, returnID string) (*domain.SaleReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ret, exists := s.returnsByID[returnID]
	if !exists {
		return nil, store.ErrNotFound
	}
	return cloneReturn(ret), nil
}

func (s *Store) GetReturnedQtyBySaleItem(_ context.Context, saleID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.returnedQtyBySaleItemLocked(saleID), nil
}

// returnedQtyBySaleItemLocked sums return lines per original sale item
// across all non-rejected returns. Callers must hold s.mu.
func (s *Store) returnedQtyBySaleItemLocked(saleID string) map[string]int {
	result := make(map[string]int)
	for _, ret := range s.returnsByID {
		if ret.OriginalSaleID != saleID || ret.Status == domain.ReturnStatusRejected {
			continue
		}
		for _, line := range ret.Items {
			result[line.OriginalSaleItemID] += line.Qty
		}
	}
	return result
}

func (s *Store) ListReturns(_ context.Context, storeID string, limit int) ([]domain.SaleReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleReturn, 0, len(s.returnsByID))
	for _, ret := range s.returnsByID {
		if storeID != "" && ret.StoreID != storeID {
			continue
		}
		result = append(result, *cloneReturn(ret))
	}
	slices.SortFunc(result, func(a, b domain.SaleReturn) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RejectReturn(_ context.Context, returnID string, at time.Time) (*domain.SaleReturn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ret, exists := s.returnsByID[returnID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if ret.Status != domain.ReturnStatusPending {
		return nil, store.ErrInvalidInput
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ret.Status = domain.ReturnStatusRejected
	ret.ProcessedAt = &at
	return cloneReturn(ret), nil
}

func (s *Store) OpenRegister(_ context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.StoreID) == "" || strings.TrimSpace(session.CashierUsername) == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningBalanceCents < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.stores[session.StoreID]; !exists {
		return nil, store.ErrNotFound
	}
	key := sessionMapKey(session.StoreID, session.CashierUsername)
	if _, exists := s.openSessionByKey[key]; exists {
		return nil, store.ErrRegisterAlreadyOpen
	}
	if session.ID == "" {
		session.ID = xid.New("reg")
	}
	if session.OpenedAt.IsZero() {
		session.OpenedAt = time.Now().UTC()
	}
	session.Status = domain.SessionStatusOpen
	session.ClosingBalanceCents = nil
	session.ClosedAt = nil
	session.TotalSalesCents = 0
	session.CashInCents = 0
	session.CashOutCents = 0

	s.sessionsByID[session.ID] = session
	s.openSessionByKey[key] = session.ID
	copySession := cloneSession(session)
	return &copySession, nil
}

func (s *Store) CloseRegister(_ context.Context, sessionID string, closedAt time.Time) (*domain.RegisterSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrRegisterNotOpen
	}
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	closing := session.OpeningBalanceCents + session.TotalSalesCents + session.CashInCents - session.CashOutCents
	session.Status = domain.SessionStatusClosed
	session.ClosingBalanceCents = &closing
	session.ClosedAt = &closedAt

	delete(s.openSessionByKey, sessionMapKey(session.StoreID, session.CashierUsername))
	s.sessionsByID[sessionID] = session
	copySession := cloneSession(session)
	return &copySession, nil
}

func (s *Store) GetOpenRegister(_ context.Context, storeID string, cashierUsername string) (*domain.RegisterSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.openSessionByKey[sessionMapKey(storeID, cashierUsername)]
	if !exists {
		return nil, store.ErrNoOpenRegister
	}
	session := s.sessionsByID[sessionID]
	copySession := cloneSession(session)
	return &copySession, nil
}

func (s *Store) RecordCashMovement(_ context.Context, sessionID string, inCents int64, outCents int64) (*domain.RegisterSession, error) {
	if inCents < 0 || outCents < 0 || (inCents == 0 && outCents == 0) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessionsByID[sessionID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if session.Status != domain.SessionStatusOpen {
		return nil, store.ErrRegisterNotOpen
	}
	session.CashInCents += inCents
	session.CashOutCents += outCents
	s.sessionsByID[sessionID] = session
	copySession := cloneSession(session)
	return &copySession, nil
}

func (s *Store) CreateHeldSale(_ context.Context, held domain.HeldSale) (*domain.HeldSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held.StoreID == "" || len(held.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if held.ID == "" {
		held.ID = xid.New("hold")
	}
	if held.HeldAt.IsZero() {
		held.HeldAt = time.Now().UTC()
	}
	if held.HoldNumber == "" {
		held.HoldNumber = xid.Numbered("HOLD", held.HeldAt)
	}

	s.heldSalesByID[held.ID] = cloneHeldSale(held)
	saved := cloneHeldSale(s.heldSalesByID[held.ID])
	return &saved, nil
}

func (s *Store) ListHeldSales(_ context.Context, storeID string, limit int) ([]domain.HeldSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.HeldSale, 0, 64)
	for _, held := range s.heldSalesByID {
		if storeID != "" && held.StoreID != storeID {
			continue
		}
		result = append(result, cloneHeldSale(held))
	}
	slices.SortFunc(result, func(a, b domain.HeldSale) int {
		if a.HeldAt.Equal(b.HeldAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.HeldAt.After(b.HeldAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) PopHeldSale(_ context.Context, holdID string) (*domain.HeldSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, exists := s.heldSalesByID[holdID]
	if !exists {
		return nil, store.ErrNotFound
	}
	delete(s.heldSalesByID, holdID)
	result := cloneHeldSale(held)
	return &result, nil
}

func (s *Store) DeleteHeldSale(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.heldSalesByID[holdID]; !exists {
		return store.ErrNotFound
	}
	delete(s.heldSalesByID, holdID)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if storeID != "" && entry.StoreID != storeID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func sessionMapKey(storeID string, cashierUsername string) string {
	return storeID + "::" + cashierUsername
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneSale(src *domain.Sale) *domain.Sale {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return &dup
}

func cloneReturn(src *domain.SaleReturn) *domain.SaleReturn {
	if src == nil {
		return nil
	}
	dup := *src
	items := make([]domain.SaleReturnItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	if src.ProcessedAt != nil {
		at := *src.ProcessedAt
		dup.ProcessedAt = &at
	}
	return &dup
}

func cloneSession(src domain.RegisterSession) domain.RegisterSession {
	dup := src
	if src.ClosingBalanceCents != nil {
		closing := *src.ClosingBalanceCents
		dup.ClosingBalanceCents = &closing
	}
	if src.ClosedAt != nil {
		at := *src.ClosedAt
		dup.ClosedAt = &at
	}
	return dup
}

func cloneHeldSale(src domain.HeldSale) domain.HeldSale {
	dup := src
	items := make([]domain.SaleLine, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}

func cloneTransfer(src domain.StockTransfer) domain.StockTransfer {
	dup := src
	items := make([]domain.StockTransferItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	return dup
}
