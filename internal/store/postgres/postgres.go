package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	if product.SKU == "" || strings.TrimSpace(product.Name) == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.TaxRatePercent < 0 || product.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}

	product.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, barcode, name, category, selling_price_cents, tax_rate_percent, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now(),now())
	`, product.ID, product.SKU, nullIfEmpty(product.Barcode), product.Name, product.Category,
		product.SellingPriceCents, product.TaxRatePercent, product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.SellingPriceCents < 1 {
		return nil, store.ErrInvalidInput
	}
	if product.TaxRatePercent < 0 || product.TaxRatePercent > 100 {
		return nil, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET barcode = $2, name = $3, category = $4, selling_price_cents = $5,
			tax_rate_percent = $6, active = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, nullIfEmpty(product.Barcode), product.Name, product.Category,
		product.SellingPriceCents, product.TaxRatePercent, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (s *Store) GetProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var product domain.Product
	var barcode sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku, barcode, name, category, selling_price_cents, tax_rate_percent, active
		FROM products
		WHERE id = $1
	`, productID).Scan(&product.ID, &product.SKU, &barcode, &product.Name, &product.Category,
		&product.SellingPriceCents, &product.TaxRatePercent, &product.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if barcode.Valid {
		product.Barcode = barcode.String
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, barcode, name, category, selling_price_cents, tax_rate_percent, active
		FROM products
		WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		var barcode sql.NullString
		if err := rows.Scan(&p.ID, &p.SKU, &barcode, &p.Name, &p.Category,
			&p.SellingPriceCents, &p.TaxRatePercent, &p.Active); err != nil {
			return nil, err
		}
		if barcode.Valid {
			p.Barcode = barcode.String
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sku, barcode, name, category, selling_price_cents, tax_rate_percent, active
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		var barcode sql.NullString
		if err := rows.Scan(&p.ID, &p.SKU, &barcode, &p.Name, &p.Category,
			&p.SellingPriceCents, &p.TaxRatePercent, &p.Active); err != nil {
			return nil, err
		}
		if barcode.Valid {
			p.Barcode = barcode.String
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) CreateStore(ctx context.Context, st domain.Store) (*domain.Store, error) {
	st.Name = strings.TrimSpace(st.Name)
	if st.Name == "" {
		return nil, store.ErrInvalidInput
	}
	if st.ID == "" {
		st.ID = xid.New("str")
	}

	st.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, address, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,now(),now())
	`, st.ID, st.Name, nullIfEmpty(st.Address), st.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}

	created := st
	return &created, nil
}

func (s *Store) GetStoreByID(ctx context.Context, storeID string) (*domain.Store, error) {
	var st domain.Store
	var address sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, address, active
		FROM stores
		WHERE id = $1
	`, storeID).Scan(&st.ID, &st.Name, &address, &st.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if address.Valid {
		st.Address = address.String
	}
	return &st, nil
}

func (s *Store) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, address, active
		FROM stores
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.Store, 0, 16)
	for rows.Next() {
		var st domain.Store
		var address sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &address, &st.Active); err != nil {
			return nil, err
		}
		if address.Valid {
			st.Address = address.String
		}
		stores = append(stores, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) GetStockMap(ctx context.Context, storeID string, productIDs []string) (map[string]int, error) {
	stockMap := make(map[string]int, len(productIDs))
	if len(productIDs) == 0 {
		return stockMap, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM stock_levels
		WHERE store_id = $1 AND product_id = ANY($2)
	`, storeID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		stockMap[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range productIDs {
		if _, ok := stockMap[id]; !ok {
			stockMap[id] = 0
		}
	}

	return stockMap, nil
}

func (s *Store) ListStockLevels(ctx context.Context, storeID string) ([]domain.StockLevel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, product_id, quantity
		FROM stock_levels
		WHERE store_id = $1
		ORDER BY product_id
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.StockLevel, 0, 128)
	for rows.Next() {
		var level domain.StockLevel
		if err := rows.Scan(&level.StoreID, &level.ProductID, &level.Quantity); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

// AdjustStock applies a guarded delta to one stock level and returns the
// new quantity. Decrements use "quantity + delta >= 0" in the WHERE
// clause so the quantity can never go below zero; zero rows affected
// means insufficient stock.
func (s *Store) AdjustStock(ctx context.Context, storeID string, productID string, delta int) (int, error) {
	if delta == 0 {
		return 0, store.ErrInvalidInput
	}

	if _, err := s.GetProductByID(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, &store.ProductNotFoundError{ProductID: productID}
		}
		return 0, err
	}

	if delta > 0 {
		var qty int
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO stock_levels (store_id, product_id, quantity, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (store_id, product_id)
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = now()
			RETURNING quantity
		`, storeID, productID, delta).Scan(&qty)
		if err != nil {
			return 0, err
		}
		return qty, nil
	}

	var qty int
	err := s.db.QueryRowContext(ctx, `
		UPDATE stock_levels
		SET quantity = quantity + $1, updated_at = now()
		WHERE store_id = $2 AND product_id = $3 AND quantity + $1 >= 0
		RETURNING quantity
	`, delta, storeID, productID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			available := 0
			_ = s.db.QueryRowContext(ctx, `
				SELECT quantity FROM stock_levels WHERE store_id = $1 AND product_id = $2
			`, storeID, productID).Scan(&available)
			return available, &store.InsufficientStockError{
				StoreID:   storeID,
				ProductID: productID,
				Requested: -delta,
				Available: available,
			}
		}
		return 0, err
	}
	return qty, nil
}

func (s *Store) SetStock(ctx context.Context, storeID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrInvalidInput
	}

	if _, err := s.GetProductByID(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &store.ProductNotFoundError{ProductID: productID}
		}
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_levels (store_id, product_id, quantity, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (store_id, product_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()
	`, storeID, productID, qty)
	return err
}

func (s *Store) TransferStock(ctx context.Context, transfer domain.StockTransfer) (*domain.StockTransfer, error) {
	if transfer.FromStoreID == "" || transfer.ToStoreID == "" || transfer.FromStoreID == transfer.ToStoreID {
		return nil, store.ErrInvalidInput
	}
	if len(transfer.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if transfer.ID == "" {
		transfer.ID = xid.New("trf")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	for _, item := range transfer.Items {
		if item.Qty < 1 {
			return nil, store.ErrInvalidInput
		}

		res, err := pgTx.ExecContext(ctx, `
			UPDATE stock_levels
			SET quantity = quantity - $1, updated_at = now()
			WHERE store_id = $2 AND product_id = $3 AND quantity >= $1
		`, item.Qty, transfer.FromStoreID, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			available := 0
			_ = pgTx.QueryRowContext(ctx, `
				SELECT quantity FROM stock_levels WHERE store_id = $1 AND product_id = $2
			`, transfer.FromStoreID, item.ProductID).Scan(&available)
			return nil, &store.InsufficientStockError{
				StoreID:   transfer.FromStoreID,
				ProductID: item.ProductID,
				Requested: item.Qty,
				Available: available,
			}
		}

		_, err = pgTx.ExecContext(ctx, `
			INSERT INTO stock_levels (store_id, product_id, quantity, updated_at)
			VALUES ($1,$2,$3,now())
			ON CONFLICT (store_id, product_id)
			DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = now()
		`, transfer.ToStoreID, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO stock_transfers (id, from_store_id, to_store_id, transferred_by, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, transfer.ID, transfer.FromStoreID, transfer.ToStoreID, transfer.TransferredBy,
		nullIfEmpty(transfer.Notes), transfer.CreatedAt)
	if err != nil {
		return nil, err
	}
	for _, item := range transfer.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO stock_transfer_items (transfer_id, product_id, qty)
			VALUES ($1,$2,$3)
		`, transfer.ID, item.ProductID, item.Qty)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	saved := transfer
	return &saved, nil
}

// errReceiptCollision tags a unique violation on the receipt number so
// CreateSale can restart the transaction with a fresh number.
var errReceiptCollision = errors.New("receipt number collision")

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	created, err := s.createSaleAttempt(ctx, sale)
	if err == nil {
		return created, nil
	}
	// One internal retry covers both a receipt number collision and a
	// serialization failure from a concurrent sale on the same stock rows.
	if errors.Is(err, errReceiptCollision) {
		sale.ReceiptNumber = ""
		created, err = s.createSaleAttempt(ctx, sale)
		if errors.Is(err, errReceiptCollision) {
			return nil, store.ErrDuplicateReceipt
		}
		return created, err
	}
	if isSerializationFailure(err) {
		return s.createSaleAttempt(ctx, sale)
	}
	return nil, err
}

func (s *Store) createSaleAttempt(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if len(sale.Items) == 0 {
		return nil, store.ErrEmptyCart
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var session domain.RegisterSession
	err = pgTx.QueryRowContext(ctx, `
		SELECT id, total_sales_cents
		FROM register_sessions
		WHERE store_id = $1 AND cashier_username = $2 AND status = 'open'
		FOR UPDATE
	`, sale.StoreID, sale.CashierUsername).Scan(&session.ID, &session.TotalSalesCents)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenRegister
		}
		return nil, err
	}

	productIDs := uniqueProductIDs(sale.Items)
	productRows, err := pgTx.QueryContext(ctx, `
		SELECT id, name, tax_rate_percent, active
		FROM products
		WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	productMap := make(map[string]domain.Product, len(productIDs))
	for productRows.Next() {
		var p domain.Product
		if err := productRows.Scan(&p.ID, &p.Name, &p.TaxRatePercent, &p.Active); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		productMap[p.ID] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	subtotal := int64(0)
	taxTotal := int64(0)
	items := make([]domain.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		if item.Qty < 1 || item.UnitPriceCents < 0 {
			return nil, store.ErrInvalidInput
		}
		product, exists := productMap[item.ProductID]
		if !exists {
			return nil, &store.ProductNotFoundError{ProductID: item.ProductID}
		}
		if !product.Active {
			return nil, &store.InactiveProductError{ProductID: product.ID, Name: product.Name}
		}

		res, err := pgTx.ExecContext(ctx, `
			UPDATE stock_levels
			SET quantity = quantity - $1, updated_at = now()
			WHERE store_id = $2 AND product_id = $3 AND quantity >= $1
		`, item.Qty, sale.StoreID, item.ProductID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			available := 0
			_ = pgTx.QueryRowContext(ctx, `
				SELECT quantity FROM stock_levels WHERE store_id = $1 AND product_id = $2
			`, sale.StoreID, item.ProductID).Scan(&available)
			return nil, &store.InsufficientStockError{
				StoreID:   sale.StoreID,
				ProductID: item.ProductID,
				Requested: item.Qty,
				Available: available,
			}
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

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	if sale.ReceiptNumber == "" {
		sale.ReceiptNumber = xid.Numbered("REC", sale.CreatedAt)
	}
	sale.SessionID = session.ID
	sale.SubtotalCents = subtotal
	sale.TaxCents = taxTotal
	sale.TotalCents = total
	for i := range items {
		items[i].SaleID = sale.ID
	}
	sale.Items = items

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, receipt_number, store_id, session_id, cashier_username, customer_id,
			payment_method, subtotal_cents, tax_cents, discount_cents, total_cents,
			amount_tendered_cents, change_cents, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, sale.ID, sale.ReceiptNumber, sale.StoreID, sale.SessionID, sale.CashierUsername,
		nullIfEmpty(sale.CustomerID), sale.PaymentMethod, sale.SubtotalCents, sale.TaxCents,
		sale.DiscountCents, sale.TotalCents, sale.AmountTenderedCents, sale.ChangeCents, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errReceiptCollision
		}
		return nil, err
	}

	for _, item := range sale.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, product_id, product_name, qty,
				unit_price_cents, tax_rate_percent, tax_cents, total_price_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, item.SaleID, item.ProductID, item.ProductName, item.Qty,
			item.UnitPriceCents, item.TaxRatePercent, item.TaxCents, item.TotalPriceCents)
		if err != nil {
			return nil, err
		}
	}

	if sale.PaymentMethod == domain.PaymentMethodCash {
		_, err = pgTx.ExecContext(ctx, `
			UPDATE register_sessions
			SET total_sales_cents = total_sales_cents + $2
			WHERE id = $1
		`, session.ID, total)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	return s.findSale(ctx, "id", saleID)
}

func (s *Store) GetSaleByReceiptNumber(ctx context.Context, receiptNumber string) (*domain.Sale, error) {
	return s.findSale(ctx, "receipt_number", receiptNumber)
}

func (s *Store) findSale(ctx context.Context, column string, value string) (*domain.Sale, error) {
	if column != "id" && column != "receipt_number" {
		return nil, store.ErrInvalidInput
	}

	var sale domain.Sale
	var customerID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, receipt_number, store_id, session_id, cashier_username, customer_id,
			payment_method, subtotal_cents, tax_cents, discount_cents, total_cents,
			amount_tendered_cents, change_cents, created_at
		FROM sales
		WHERE `+column+` = $1
	`, value).Scan(
		&sale.ID,
		&sale.ReceiptNumber,
		&sale.StoreID,
		&sale.SessionID,
		&sale.CashierUsername,
		&customerID,
		&sale.PaymentMethod,
		&sale.SubtotalCents,
		&sale.TaxCents,
		&sale.DiscountCents,
		&sale.TotalCents,
		&sale.AmountTenderedCents,
		&sale.ChangeCents,
		&sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	if customerID.Valid {
		sale.CustomerID = customerID.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_name, qty,
			unit_price_cents, tax_rate_percent, tax_cents, total_price_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, sale.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Qty,
			&item.UnitPriceCents, &item.TaxRatePercent, &item.TaxCents, &item.TotalPriceCents); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &sale, nil
}

func (s *Store) CreateSaleReturn(ctx context.Context, ret domain.SaleReturn) (*domain.SaleReturn, error) {
	created, err := s.createSaleReturnAttempt(ctx, ret)
	if err != nil && isSerializationFailure(err) {
		return s.createSaleReturnAttempt(ctx, ret)
	}
	return created, err
}

func (s *Store) createSaleReturnAttempt(ctx context.Context, ret domain.SaleReturn) (*domain.SaleReturn, error) {
	if strings.TrimSpace(ret.OriginalSaleID) == "" {
		return nil, store.ErrInvalidInput
	}
	if len(ret.Items) == 0 {
		return nil, store.ErrNoValidItems
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleStoreID string
	var salePaymentMethod string
	err = pgTx.QueryRowContext(ctx, `
		SELECT store_id, payment_method
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, ret.OriginalSaleID).Scan(&saleStoreID, &salePaymentMethod)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	saleItems := make(map[string]domain.SaleItem, 8)
	itemRows, err := pgTx.QueryContext(ctx, `
		SELECT id, product_id, qty, unit_price_cents
		FROM sale_items
		WHERE sale_id = $1
	`, ret.OriginalSaleID)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var item domain.SaleItem
		if err := itemRows.Scan(&item.ID, &item.ProductID, &item.Qty, &item.UnitPriceCents); err != nil {
			_ = itemRows.Close()
			return nil, err
		}
		saleItems[item.ID] = item
	}
	if err := itemRows.Err(); err != nil {
		_ = itemRows.Close()
		return nil, err
	}
	_ = itemRows.Close()

	alreadyReturned, err := returnedQtyBySaleItem(ctx, pgTx, ret.OriginalSaleID)
	if err != nil {
		return nil, err
	}

	refundTotal := int64(0)
	items := make([]domain.SaleReturnItem, 0, len(ret.Items))
	for _, line := range ret.Items {
		if line.Qty < 1 {
			return nil, store.ErrInvalidInput
		}
		saleItem, ok := saleItems[line.OriginalSaleItemID]
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
	ret.StoreID = saleStoreID
	ret.RefundCents = refundTotal
	for i := range items {
		items[i].ReturnID = ret.ID
	}
	ret.Items = items

	if ret.Status == domain.ReturnStatusProcessed {
		if ret.ProcessedAt == nil {
			at := ret.CreatedAt
			ret.ProcessedAt = &at
		}

		// Cash refunds come out of the returning cashier's open drawer in
		// the sale's store.
		if salePaymentMethod == domain.PaymentMethodCash {
			res, err := pgTx.ExecContext(ctx, `
				UPDATE register_sessions
				SET cash_out_cents = cash_out_cents + $3, total_sales_cents = total_sales_cents - $3
				WHERE store_id = $1 AND cashier_username = $2 AND status = 'open'
			`, saleStoreID, ret.CashierUsername, refundTotal)
			if err != nil {
				return nil, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return nil, err
			}
			if affected == 0 {
				return nil, store.ErrNoOpenRegister
			}
		}

		for _, item := range ret.Items {
			_, err := pgTx.ExecContext(ctx, `
				INSERT INTO stock_levels (store_id, product_id, quantity, updated_at)
				VALUES ($1,$2,$3,now())
				ON CONFLICT (store_id, product_id)
				DO UPDATE SET quantity = stock_levels.quantity + EXCLUDED.quantity, updated_at = now()
			`, saleStoreID, item.ProductID, item.Qty)
			if err != nil {
				return nil, err
			}
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sale_returns (
			id, return_number, original_sale_id, store_id, cashier_username,
			reason, notes, status, refund_cents, created_at, processed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, ret.ID, ret.ReturnNumber, ret.OriginalSaleID, ret.StoreID, ret.CashierUsername,
		ret.Reason, nullIfEmpty(ret.Notes), ret.Status, ret.RefundCents, ret.CreatedAt, nullTime(ret.ProcessedAt))
	if err != nil {
		return nil, err
	}
	for _, item := range ret.Items {
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO sale_return_items (
				id, return_id, original_sale_item_id, product_id, qty, unit_price_cents, refund_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.ReturnID, item.OriginalSaleItemID, item.ProductID, item.Qty,
			item.UnitPriceCents, item.RefundCents)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &ret, nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func returnedQtyBySaleItem(ctx context.Context, q rowQuerier, saleID string) (map[string]int, error) {
	result := make(map[string]int)
	rows, err := q.QueryContext(ctx, `
		SELECT sri.original_sale_item_id, COALESCE(SUM(sri.qty), 0)::int
		FROM sale_returns sr
		JOIN sale_return_items sri ON sri.return_id = sr.id
		WHERE sr.original_sale_id = $1 AND sr.status <> 'rejected'
		GROUP BY sri.original_sale_item_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleItemID string
		var qty int
		if err := rows.Scan(&saleItemID, &qty); err != nil {
			return nil, err
		}
		result[saleItemID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetReturnedQtyBySaleItem(ctx context.Context, saleID string) (map[string]int, error) {
	return returnedQtyBySaleItem(ctx, s.db, saleID)
}

func (s *Store) GetReturnByID(ctx context.Context, returnID string) (*domain.SaleReturn, error) {
	var ret domain.SaleReturn
	var notes sql.NullString
	var processedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, return_number, original_sale_id, store_id, cashier_username,
			reason, notes, status, refund_cents, created_at, processed_at
		FROM sale_returns
		WHERE id = $1
	`, returnID).Scan(
		&ret.ID,
		&ret.ReturnNumber,
		&ret.OriginalSaleID,
		&ret.StoreID,
		&ret.CashierUsername,
		&ret.Reason,
		&notes,
		&ret.Status,
		&ret.RefundCents,
		&ret.CreatedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ret.CreatedAt = ret.CreatedAt.UTC()
	if notes.Valid {
		ret.Notes = notes.String
	}
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		ret.ProcessedAt = &at
	}

	items, err := s.listReturnItems(ctx, ret.ID)
	if err != nil {
		return nil, err
	}
	ret.Items = items
	return &ret, nil
}

func (s *Store) listReturnItems(ctx context.Context, returnID string) ([]domain.SaleReturnItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_id, original_sale_item_id, product_id, qty, unit_price_cents, refund_cents
		FROM sale_return_items
		WHERE return_id = $1
		ORDER BY id
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.SaleReturnItem, 0, 8)
	for rows.Next() {
		var item domain.SaleReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.OriginalSaleItemID, &item.ProductID,
			&item.Qty, &item.UnitPriceCents, &item.RefundCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListReturns(ctx context.Context, storeID string, limit int) ([]domain.SaleReturn, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_number, original_sale_id, store_id, cashier_username,
			reason, notes, status, refund_cents, created_at, processed_at
		FROM sale_returns
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.SaleReturn, 0, limit)
	for rows.Next() {
		var ret domain.SaleReturn
		var notes sql.NullString
		var processedAt sql.NullTime
		if err := rows.Scan(
			&ret.ID,
			&ret.ReturnNumber,
			&ret.OriginalSaleID,
			&ret.StoreID,
			&ret.CashierUsername,
			&ret.Reason,
			&notes,
			&ret.Status,
			&ret.RefundCents,
			&ret.CreatedAt,
			&processedAt,
		); err != nil {
			return nil, err
		}
		ret.CreatedAt = ret.CreatedAt.UTC()
		if notes.Valid {
			ret.Notes = notes.String
		}
		if processedAt.Valid {
			at := processedAt.Time.UTC()
			ret.ProcessedAt = &at
		}
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range returns {
		items, err := s.listReturnItems(ctx, returns[i].ID)
		if err != nil {
			return nil, err
		}
		returns[i].Items = items
	}
	return returns, nil
}

func (s *Store) RejectReturn(ctx context.Context, returnID string, at time.Time) (*domain.SaleReturn, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sale_returns
		SET status = 'rejected', processed_at = $2
		WHERE id = $1 AND status = 'pending'
	`, returnID, at)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, err := s.GetReturnByID(ctx, returnID); err != nil {
			return nil, err
		}
		return nil, store.ErrInvalidInput
	}

	return s.GetReturnByID(ctx, returnID)
}

func (s *Store) OpenRegister(ctx context.Context, session domain.RegisterSession) (*domain.RegisterSession, error) {
	if strings.TrimSpace(session.StoreID) == "" || strings.TrimSpace(session.CashierUsername) == "" {
		return nil, store.ErrInvalidInput
	}
	if session.OpeningBalanceCents < 0 {
		return nil, store.ErrInvalidInput
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

	// A partial unique index on (store_id, cashier_username) WHERE
	// status = 'open' enforces the single-open-session invariant.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO register_sessions (
			id, store_id, cashier_username, opening_balance_cents, closing_balance_cents,
			total_sales_cents, cash_in_cents, cash_out_cents, status, opened_at, closed_at
		)
		VALUES ($1,$2,$3,$4,NULL,$5,$6,$7,$8,$9,NULL)
	`, session.ID, session.StoreID, session.CashierUsername, session.OpeningBalanceCents,
		session.TotalSalesCents, session.CashInCents, session.CashOutCents, session.Status, session.OpenedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrRegisterAlreadyOpen
		}
		return nil, err
	}
	saved := session
	return &saved, nil
}

func (s *Store) CloseRegister(ctx context.Context, sessionID string, closedAt time.Time) (*domain.RegisterSession, error) {
	if closedAt.IsZero() {
		closedAt = time.Now().UTC()
	}

	var session domain.RegisterSession
	var closingBalance sql.NullInt64
	var closedAtNull sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		UPDATE register_sessions
		SET status = 'closed',
			closing_balance_cents = opening_balance_cents + total_sales_cents + cash_in_cents - cash_out_cents,
			closed_at = $2
		WHERE id = $1 AND status = 'open'
		RETURNING id, store_id, cashier_username, opening_balance_cents, closing_balance_cents,
			total_sales_cents, cash_in_cents, cash_out_cents, status, opened_at, closed_at
	`, sessionID, closedAt).Scan(
		&session.ID,
		&session.StoreID,
		&session.CashierUsername,
		&session.OpeningBalanceCents,
		&closingBalance,
		&session.TotalSalesCents,
		&session.CashInCents,
		&session.CashOutCents,
		&session.Status,
		&session.OpenedAt,
		&closedAtNull,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, lookupErr := s.getRegisterByID(ctx, sessionID); lookupErr == nil {
				return nil, store.ErrRegisterNotOpen
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	if closingBalance.Valid {
		closing := closingBalance.Int64
		session.ClosingBalanceCents = &closing
	}
	if closedAtNull.Valid {
		at := closedAtNull.Time.UTC()
		session.ClosedAt = &at
	}
	return &session, nil
}

func (s *Store) GetOpenRegister(ctx context.Context, storeID string, cashierUsername string) (*domain.RegisterSession, error) {
	var session domain.RegisterSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, cashier_username, opening_balance_cents,
			total_sales_cents, cash_in_cents, cash_out_cents, status, opened_at
		FROM register_sessions
		WHERE store_id = $1 AND cashier_username = $2 AND status = 'open'
	`, storeID, cashierUsername).Scan(
		&session.ID,
		&session.StoreID,
		&session.CashierUsername,
		&session.OpeningBalanceCents,
		&session.TotalSalesCents,
		&session.CashInCents,
		&session.CashOutCents,
		&session.Status,
		&session.OpenedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNoOpenRegister
		}
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	return &session, nil
}

func (s *Store) getRegisterByID(ctx context.Context, sessionID string) (*domain.RegisterSession, error) {
	var session domain.RegisterSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, cashier_username, status
		FROM register_sessions
		WHERE id = $1
	`, sessionID).Scan(&session.ID, &session.StoreID, &session.CashierUsername, &session.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *Store) RecordCashMovement(ctx context.Context, sessionID string, inCents int64, outCents int64) (*domain.RegisterSession, error) {
	if inCents < 0 || outCents < 0 || (inCents == 0 && outCents == 0) {
		return nil, store.ErrInvalidInput
	}

	var session domain.RegisterSession
	err := s.db.QueryRowContext(ctx, `
		UPDATE register_sessions
		SET cash_in_cents = cash_in_cents + $2, cash_out_cents = cash_out_cents + $3
		WHERE id = $1 AND status = 'open'
		RETURNING id, store_id, cashier_username, opening_balance_cents,
			total_sales_cents, cash_in_cents, cash_out_cents, status, opened_at
	`, sessionID, inCents, outCents).Scan(
		&session.ID,
		&session.StoreID,
		&session.CashierUsername,
		&session.OpeningBalanceCents,
		&session.TotalSalesCents,
		&session.CashInCents,
		&session.CashOutCents,
		&session.Status,
		&session.OpenedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if _, lookupErr := s.getRegisterByID(ctx, sessionID); lookupErr == nil {
				return nil, store.ErrRegisterNotOpen
			}
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	session.OpenedAt = session.OpenedAt.UTC()
	return &session, nil
}

func (s *Store) CreateHeldSale(ctx context.Context, held domain.HeldSale) (*domain.HeldSale, error) {
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

	itemsJSON, err := json.Marshal(held.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO held_sales (
			id, hold_number, store_id, cashier_username, customer_id, note,
			payment_method, discount_cents, items, held_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, held.ID, held.HoldNumber, held.StoreID, held.CashierUsername, nullIfEmpty(held.CustomerID),
		held.Note, nullIfEmpty(held.PaymentMethod), held.DiscountCents, itemsJSON, held.HeldAt)
	if err != nil {
		return nil, err
	}
	saved := held
	return &saved, nil
}

func (s *Store) ListHeldSales(ctx context.Context, storeID string, limit int) ([]domain.HeldSale, error) {
	if limit < 1 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hold_number, store_id, cashier_username, customer_id, note,
			payment_method, discount_cents, items, held_at
		FROM held_sales
		WHERE ($1 = '' OR store_id = $1)
		ORDER BY held_at DESC
		LIMIT $2
	`, storeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	helds := make([]domain.HeldSale, 0, limit)
	for rows.Next() {
		held, err := scanHeldSale(rows)
		if err != nil {
			return nil, err
		}
		helds = append(helds, *held)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return helds, nil
}

func (s *Store) PopHeldSale(ctx context.Context, holdID string) (*domain.HeldSale, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	row := pgTx.QueryRowContext(ctx, `
		SELECT id, hold_number, store_id, cashier_username, customer_id, note,
			payment_method, discount_cents, items, held_at
		FROM held_sales
		WHERE id = $1
		FOR UPDATE
	`, holdID)
	held, err := scanHeldSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	res, err := pgTx.ExecContext(ctx, `DELETE FROM held_sales WHERE id = $1`, holdID)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return held, nil
}

func (s *Store) DeleteHeldSale(ctx context.Context, holdID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM held_sales WHERE id = $1`, holdID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHeldSale(row rowScanner) (*domain.HeldSale, error) {
	var held domain.HeldSale
	var customerID sql.NullString
	var paymentMethod sql.NullString
	var itemsRaw []byte
	if err := row.Scan(
		&held.ID,
		&held.HoldNumber,
		&held.StoreID,
		&held.CashierUsername,
		&customerID,
		&held.Note,
		&paymentMethod,
		&held.DiscountCents,
		&itemsRaw,
		&held.HeldAt,
	); err != nil {
		return nil, err
	}
	held.HeldAt = held.HeldAt.UTC()
	if customerID.Valid {
		held.CustomerID = customerID.String
	}
	if paymentMethod.Valid {
		held.PaymentMethod = paymentMethod.String
	}
	if len(itemsRaw) > 0 {
		if err := json.Unmarshal(itemsRaw, &held.Items); err != nil {
			return nil, err
		}
	}
	return &held, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.StoreID, entry.ActorUsername, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, storeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE ($1 = '' OR store_id = $1) AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, storeID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.StoreID, &entry.ActorUsername, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func uniqueProductIDs(items []domain.SaleItem) []string {
	if len(items) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		set[item.ProductID] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
