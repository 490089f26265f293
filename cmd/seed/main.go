// Command seed populates the document store with demo data: a supply
// owner, a couple of students, an announcement published into a live
// offering and a few orders.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/service/orders"
	"github.com/prasadamconnect/engine/internal/service/registrar"
	"github.com/prasadamconnect/engine/internal/service/supply"
	"github.com/prasadamconnect/engine/internal/storage/postgres"
)

const defaultTimeout = 60 * time.Second

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	var dsn string
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: PRASADAM_POSTGRES_DSN)")
	flag.Parse()

	_ = godotenv.Load()
	if strings.TrimSpace(dsn) == "" {
		dsn = strings.TrimSpace(os.Getenv("PRASADAM_POSTGRES_DSN"))
	}
	if dsn == "" {
		fail("PRASADAM_POSTGRES_DSN (or -dsn) is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, dsn); err != nil {
		fail("seed failed: %v", err)
	}
}

func run(ctx context.Context, dsn string) error {
	pg, err := postgres.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	store := postgres.NewDocStore(pg, log.WithField("component", "seed"))
	users := registrar.NewService(store, nil, 100, nil)
	supplySvc := supply.NewService(store, nil, nil)
	orderSvc := orders.NewService(store, nil, nil)

	owner, err := users.CreateUserWithLogin(ctx, registrar.RegistrationInput{
		UID:   "demo-owner",
		Name:  "Demo Supply Owner",
		Email: "owner@demo.example.com",
		Phone: "+79990001000",
		Role:  "supplyOwner",
	}, registrar.ClientContext{UserAgent: "seed", IPAddress: "127.0.0.1"})
	if err != nil {
		return fmt.Errorf("create owner: %w", err)
	}
	log.WithField("uid", owner.UID).Info("owner created")

	studentUIDs := []string{"demo-student-1", "demo-student-2"}
	for i, uid := range studentUIDs {
		_, err := users.CreateUserWithLogin(ctx, registrar.RegistrationInput{
			UID:   uid,
			Name:  fmt.Sprintf("Demo Student %d", i+1),
			Email: fmt.Sprintf("student%d@demo.example.com", i+1),
			Phone: fmt.Sprintf("+7999000100%d", i+1),
		}, registrar.ClientContext{UserAgent: "seed", IPAddress: "127.0.0.1"})
		if err != nil {
			return fmt.Errorf("create student %s: %w", uid, err)
		}
	}
	log.WithField("count", len(studentUIDs)).Info("students created")

	ann, err := supplySvc.CreateAnnouncement(ctx, owner.UID, supply.AnnouncementInput{
		Title:       "Sunday feast",
		Description: "kitchari, halava and sabji",
		ScheduledAt: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}

	offering, err := supplySvc.PublishOffering(ctx, owner.UID, ann.ID, 20, 150, true)
	if err != nil {
		return fmt.Errorf("publish offering: %w", err)
	}
	log.WithField("offering_id", offering.ID).Info("offering published")

	for _, uid := range studentUIDs {
		order, err := orderSvc.Create(ctx, uid, offering.ID)
		if err != nil {
			return fmt.Errorf("create order for %s: %w", uid, err)
		}
		log.WithFields(log.Fields{"order_id": order.ID, "uid": uid}).Info("order created")
	}

	if _, err := supplySvc.CreateBatch(ctx, owner.UID, supply.BatchInput{
		Title:    "Basmati rice 25kg",
		Quantity: 25,
		Notes:    "demo batch",
	}); err != nil {
		return fmt.Errorf("create batch: %w", err)
	}

	log.Info("seed completed")
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
