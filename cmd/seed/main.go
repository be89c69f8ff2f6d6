package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"edu-checkout/internal/config"
	"edu-checkout/internal/domain"
	"edu-checkout/internal/domain/model"
	pg "edu-checkout/internal/infra/db/postgres"
)

// demoUserID is fixed so local checkouts can hard-code it.
const demoUserID = "0a6e1c2d-3b4f-4a5e-8c7d-000000000001"

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	users := pg.NewPostgresUserRepo(pool)
	catalog := pg.NewCatalogRepo(pool)
	coupons := pg.NewCouponRepo(pool)

	// If the demo course exists, do nothing
	if _, err := catalog.FindByTarget(ctx, nil, model.CourseTarget("go-101")); err == nil {
		fmt.Println("catalog already seeded. No changes.")
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		log.Fatalf("check catalog: %v", err)
	}

	demoUser, err := model.NewUser(demoUserID, "Demo Learner", "learner@example.com", "01700000000")
	if err != nil {
		log.Fatalf("user: %v", err)
	}
	if err := users.Save(ctx, nil, demoUser); err != nil {
		log.Fatalf("save user: %v", err)
	}
	fmt.Printf("seeded user: %s (%s)\n", demoUser.ID, demoUser.Email)

	workshopStart := time.Now().Add(14 * 24 * time.Hour).Truncate(time.Hour)
	seed := []struct {
		ID    string
		Kind  model.TargetKind
		Title string
		Price int64
	}{
		{"go-101", model.TargetCourse, "Go from Zero", 1500},
		{"ws-concurrency", model.TargetWorkshop, "Concurrency Patterns Workshop", 2500},
		{"book-idiomatic", model.TargetBook, "Idiomatic Go (e-book)", 450},
	}
	for _, s := range seed {
		item, err := model.NewCatalogItem(s.ID, s.Kind, s.Title, decimal.NewFromInt(s.Price))
		if err != nil {
			log.Fatalf("catalog item %q: %v", s.ID, err)
		}
		if s.Kind == model.TargetWorkshop {
			item.StartsAt = &workshopStart
		}
		if err := catalog.Save(ctx, nil, item); err != nil {
			log.Fatalf("save %q: %v", s.ID, err)
		}
		fmt.Printf("seeded: %s %s (price=%d %s)\n", s.Kind, item.Title, s.Price, item.Currency)
	}

	now := time.Now()
	for _, c := range []*model.Coupon{
		{ID: "0a6e1c2d-3b4f-4a5e-8c7d-000000000010", Code: "WELCOME10", DiscountType: model.DiscountPercentage, DiscountValue: decimal.NewFromInt(10), MaxUsesPerUser: 1, Active: true, CreatedAt: now, UpdatedAt: now},
		{ID: "0a6e1c2d-3b4f-4a5e-8c7d-000000000011", Code: "BOOK50", DiscountType: model.DiscountAmount, DiscountValue: decimal.NewFromInt(50), AppliesTo: model.TargetBook, MaxUses: 100, Active: true, CreatedAt: now, UpdatedAt: now},
	} {
		if err := coupons.Save(ctx, nil, c); err != nil {
			log.Fatalf("save coupon %q: %v", c.Code, err)
		}
		fmt.Printf("seeded coupon: %s\n", c.Code)
	}

	fmt.Println("✅ Seeding complete.")
}
