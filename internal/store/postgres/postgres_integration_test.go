package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
)

func TestSaleReturnRestocksInventory(t *testing.T) {
	databaseURL := os.Getenv("RETAILPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RETAILPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	storeID := fmt.Sprintf("str-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)
	cashier := fmt.Sprintf("cashier-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_return_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_returns WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM register_sessions WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_levels WHERE store_id = $1`, storeID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, storeID)
	})

	if _, err := s.CreateStore(ctx, domain.Store{ID: storeID, Name: "Integration Store"}); err != nil {
		t.Fatalf("create store: %v", err)
	}
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:                productID,
		SKU:               fmt.Sprintf("SKU-IT-%d", stamp),
		Name:              "Integration Cola",
		Category:          "beverage",
		SellingPriceCents: 1200,
		TaxRatePercent:    10,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := s.SetStock(ctx, storeID, productID, 10); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	if _, err := s.OpenRegister(ctx, domain.RegisterSession{
		StoreID:             storeID,
		CashierUsername:     cashier,
		OpeningBalanceCents: 10000,
	}); err != nil {
		t.Fatalf("open register: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID:             storeID,
		CashierUsername:     cashier,
		PaymentMethod:       domain.PaymentMethodCash,
		AmountTenderedCents: 5000,
		Items:               []domain.SaleItem{{ProductID: productID, Qty: 2, UnitPriceCents: 1200}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalCents != 2640 {
		t.Fatalf("sale total = %d, want 2640", sale.TotalCents)
	}

	var qty int
	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM stock_levels WHERE store_id = $1 AND product_id = $2
	`, storeID, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock after sale: %v", err)
	}
	if qty != 8 {
		t.Fatalf("stock after sale = %d, want 8", qty)
	}

	ret, err := s.CreateSaleReturn(ctx, domain.SaleReturn{
		OriginalSaleID:  sale.ID,
		CashierUsername: cashier,
		Reason:          "integration test return",
		Status:          domain.ReturnStatusProcessed,
		Items:           []domain.SaleReturnItem{{OriginalSaleItemID: sale.Items[0].ID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.RefundCents != 1200 {
		t.Fatalf("refund = %d, want 1200", ret.RefundCents)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT quantity FROM stock_levels WHERE store_id = $1 AND product_id = $2
	`, storeID, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock after return: %v", err)
	}
	if qty != 9 {
		t.Fatalf("stock after return = %d, want 9", qty)
	}

	session, err := s.GetOpenRegister(ctx, storeID, cashier)
	if err != nil {
		t.Fatalf("get open register: %v", err)
	}
	if session.CashOutCents != 1200 {
		t.Fatalf("cash out = %d, want 1200", session.CashOutCents)
	}
	if session.TotalSalesCents != 2640-1200 {
		t.Fatalf("total sales = %d, want %d", session.TotalSalesCents, 2640-1200)
	}
}
