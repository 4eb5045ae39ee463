package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/finance"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/production"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type seedProduct struct {
	sku, name    string
	category     inventory.Category
	opening      string
	min, max     string
	unitCost     string
	supplierID   int64
	bomComponent map[string]string
}

var products = []seedProduct{
	{sku: "RM-STEEL", name: "Steel sheet 2mm", category: inventory.CategoryRawMaterial, opening: "250", min: "100", max: "500", unitCost: "2.5", supplierID: 1},
	{sku: "RM-BOLT", name: "Hex bolt M8", category: inventory.CategoryRawMaterial, opening: "900", min: "400", max: "2000", unitCost: "0.12", supplierID: 2},
	{sku: "RM-PAINT", name: "Powder coat black", category: inventory.CategoryRawMaterial, opening: "40", min: "50", max: "200", unitCost: "7.8", supplierID: 1},
	{sku: "CP-LEG", name: "Table leg", category: inventory.CategoryComponent, opening: "64", min: "0", max: "0", unitCost: "4"},
	{sku: "FG-TABLE", name: "Workshop table", category: inventory.CategoryFinishedGood, opening: "6", min: "0", max: "0", unitCost: "38",
		bomComponent: map[string]string{"RM-STEEL": "6", "RM-BOLT": "16", "CP-LEG": "4", "RM-PAINT": "0.5"}},
	{sku: "FG-SHELF", name: "Wall shelf", category: inventory.CategoryFinishedGood, opening: "0", min: "0", max: "0", unitCost: "12",
		bomComponent: map[string]string{"RM-STEEL": "2", "RM-BOLT": "6"}},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 4})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	container := app.NewContainer(app.PostgresBackend(pool), app.ContainerConfig{Config: cfg, Logger: app.NewLogger(cfg)})

	fmt.Println("→ Seeding products...")
	ids := map[string]int64{}
	for _, p := range products {
		created, err := container.Inventory.RegisterProduct(ctx, inventory.ProductInput{
			SKU:           p.sku,
			Name:          p.name,
			Category:      p.category,
			OpeningStock:  decimal.RequireFromString(p.opening),
			MinStockLevel: decimal.RequireFromString(p.min),
			MaxStockLevel: decimal.RequireFromString(p.max),
			UnitCost:      decimal.RequireFromString(p.unitCost),
			SupplierID:    p.supplierID,
		})
		if errors.Is(err, shared.ErrDuplicate) {
			fmt.Printf("  %s exists, skipped\n", p.sku)
			continue
		}
		if err != nil {
			log.Fatalf("seed product %s: %v", p.sku, err)
		}
		ids[p.sku] = created.ID
	}

	fmt.Println("→ Seeding bills of materials...")
	for _, p := range products {
		id, ok := ids[p.sku]
		if !ok || len(p.bomComponent) == 0 {
			continue
		}
		inputs := make([]production.ComponentInput, 0, len(p.bomComponent))
		for sku, qty := range p.bomComponent {
			componentID, ok := ids[sku]
			if !ok {
				log.Fatalf("seed bom %s: component %s was not created in this run", p.sku, sku)
			}
			inputs = append(inputs, production.ComponentInput{ComponentID: componentID, Quantity: decimal.RequireFromString(qty)})
		}
		if _, err := container.Production.SetBOM(ctx, id, inputs); err != nil {
			log.Fatalf("seed bom %s: %v", p.sku, err)
		}
	}

	fmt.Println("→ Seeding bank accounts...")
	for name, opening := range map[string]string{"Operating": "25000", "Payroll": "8000"} {
		_, err := container.Finance.OpenAccount(ctx, finance.AccountInput{Name: name, OpeningBalance: decimal.RequireFromString(opening)})
		if errors.Is(err, shared.ErrDuplicate) {
			fmt.Printf("  %s exists, skipped\n", name)
			continue
		}
		if err != nil {
			log.Fatalf("seed account %s: %v", name, err)
		}
	}

	fmt.Println("✓ Seed complete")
}
