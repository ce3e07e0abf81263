package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/app"
	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/db"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/fulfillment"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
	"github.com/odyssey-erp/odyssey-procure/internal/vendors"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()

	pool, err := db.New(ctx, cfg.PoolOptions())
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	defer redisClient.Close() //nolint:errcheck

	vendorService := vendors.NewService(vendors.NewRepository(pool))
	catalogService := catalog.NewService(catalog.NewRedisStore(redisClient), 0)
	orders := procurement.NewService(procurement.NewRepository(pool), procurement.ServiceDeps{
		Vendors: vendorService,
		Locker:  shared.NewRedisLocker(redisClient, cfg.OrderLockTTL),
		Audit:   shared.NewAuditLogger(pool),
		Logger:  app.NewLogger(cfg),
	})

	fmt.Println("→ Seeding vendors...")
	vendorID, err := seedVendors(ctx, vendorService)
	if err != nil {
		log.Fatalf("seed vendors: %v", err)
	}

	fmt.Println("→ Seeding catalog...")
	if err := seedCatalog(ctx, catalogService); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}

	fmt.Println("→ Seeding purchase orders...")
	if err := seedOrders(ctx, orders, vendorID); err != nil {
		log.Fatalf("seed orders: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

// seedVendors creates the demo vendors and returns the id of the first one.
func seedVendors(ctx context.Context, svc *vendors.Service) (int64, error) {
	list := []vendors.Vendor{
		{Code: "VND-001", Name: "Northwind Electronics", Email: "sales@northwind.example", Phone: "+62-21-5550101"},
		{Code: "VND-002", Name: "Contoso Distribution", Email: "orders@contoso.example", Phone: "+62-21-5550102"},
		{Code: "VND-003", Name: "Fabrikam Supplies", Address: "Jl. Industri 7, Bekasi"},
	}
	var firstID int64
	for i, v := range list {
		created, err := svc.Create(ctx, v)
		switch {
		case errors.Is(err, vendors.ErrDuplicate):
			existing, _, err := svc.List(ctx, vendors.ListFilters{Search: v.Code, Limit: 1})
			if err != nil {
				return 0, err
			}
			if len(existing) == 0 {
				return 0, fmt.Errorf("vendor %s reported duplicate but not found", v.Code)
			}
			created = existing[0]
		case err != nil:
			return 0, err
		}
		if i == 0 {
			firstID = created.ID
		}
	}
	return firstID, nil
}

func seedCatalog(ctx context.Context, svc *catalog.Service) error {
	if _, err := svc.Brands(ctx); err != nil {
		return err
	}
	for _, category := range []string{"Laptops", "Monitors", "Phones", "Televisions"} {
		if _, err := svc.AddCategory(ctx, category); err != nil && !errors.Is(err, catalog.ErrDuplicate) {
			return err
		}
	}
	models := map[string][]string{
		"Dell":    {"Latitude 5440", "U2723QE"},
		"Samsung": {"Galaxy S24", "QN90C"},
		"LG":      {"27GP850"},
	}
	for brand, names := range models {
		for _, model := range names {
			if _, err := svc.AddModel(ctx, brand, model); err != nil && !errors.Is(err, catalog.ErrDuplicate) {
				return err
			}
		}
	}
	return nil
}

func seedOrders(ctx context.Context, svc *procurement.Service, vendorID int64) error {
	_, total, err := svc.ListPOs(ctx, 1, 0, procurement.ListFilters{VendorID: vendorID})
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}
	po, err := svc.CreatePurchaseOrder(ctx, procurement.OrderInput{
		VendorID: vendorID,
		Sourcing: fulfillment.Sourcing{
			TransactionType:   "Local",
			PurchaseType:      fulfillment.PurchaseTypeStock,
			WarehouseLocation: "WH-JKT-01",
		},
		PaymentTerms: fulfillment.PaymentTerms{
			AdvancePercent:         decimal.NewFromInt(30),
			AgainstDeliveryPercent: decimal.NewFromInt(60),
			CreditPeriodDays:       30,
		},
		Remark: "Seeded restock order",
		Lines: []procurement.OrderLineInput{
			{BrandName: "Dell", ModelNo: "Latitude 5440", Unit: "pcs", Quantity: decimal.NewFromInt(10), Price: decimal.NewFromInt(14500000), TaxPercent: decimal.NewFromInt(11)},
			{BrandName: "LG", ModelNo: "27GP850", Unit: "pcs", Quantity: decimal.NewFromInt(4), Price: decimal.NewFromInt(6200000), DiscountPercent: decimal.NewFromInt(5), TaxPercent: decimal.NewFromInt(11)},
		},
	})
	if err != nil {
		return err
	}
	if _, err := svc.ApprovePurchaseOrder(ctx, po.ID, 0); err != nil {
		return err
	}
	fmt.Println("  created", po.Number)
	return nil
}
