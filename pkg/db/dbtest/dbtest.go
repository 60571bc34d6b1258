// Package dbtest opens isolated in-memory SQLite databases carrying the payment schema.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gritsync/gritsync-backend/pkg/db/models"
	"github.com/gritsync/gritsync-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  first_name TEXT,
  last_name TEXT
);`,
	`CREATE TABLE IF NOT EXISTS applications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  payment_type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_method TEXT,
  stripe_payment_intent_id TEXT,
  transaction_id TEXT,
  failure_reason TEXT,
  proof_path TEXT,
  review_status TEXT NOT NULL DEFAULT 'none',
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS timeline_steps (
  id TEXT PRIMARY KEY,
  application_id TEXT NOT NULL,
  step_key TEXT NOT NULL,
  status TEXT NOT NULL,
  data TEXT,
  completed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME,
  UNIQUE (application_id, step_key)
);`,
	`CREATE TABLE IF NOT EXISTS receipts (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL UNIQUE,
  application_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  receipt_number TEXT NOT NULL UNIQUE,
  amount NUMERIC NOT NULL,
  payment_type TEXT NOT NULL,
  payment_method TEXT NOT NULL,
  items TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  application_id TEXT,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  link TEXT,
  read INTEGER NOT NULL DEFAULT 0,
  read_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  dedupe_key TEXT NOT NULL DEFAULT '',
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  UNIQUE (event_type, aggregate_type, aggregate_id, dedupe_key)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);`,
}

// Open returns a fresh database private to the calling test. A single pooled
// connection keeps transactions and follow-up reads on the same handle.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// SeedApplication inserts a user and an application owned by that user.
func SeedApplication(t testing.TB, conn *gorm.DB) (models.User, models.Application) {
	t.Helper()

	first := "Maria"
	last := "Santos"
	user := models.User{
		ID:        uuid.New(),
		Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		FirstName: &first,
		LastName:  &last,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	app := models.Application{
		ID:     uuid.New(),
		UserID: user.ID,
		Status: "submitted",
	}
	if err := conn.Create(&app).Error; err != nil {
		t.Fatalf("seed application: %v", err)
	}
	return user, app
}

// SeedPayment inserts a pending payment for the application.
func SeedPayment(t testing.TB, conn *gorm.DB, applicationID uuid.UUID, amount string, paymentType enums.PaymentType) models.Payment {
	t.Helper()

	payment := models.Payment{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		Amount:        decimal.RequireFromString(amount),
		PaymentType:   paymentType,
		Status:        enums.PaymentStatusPending,
		ReviewStatus:  enums.ReviewStatusNone,
	}
	if err := conn.Create(&payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}

// SeedSettings writes key/value rows into settings.
func SeedSettings(t testing.TB, conn *gorm.DB, values map[string]string) {
	t.Helper()

	for key, value := range values {
		row := models.Setting{Key: key, Value: value}
		if err := conn.Create(&row).Error; err != nil {
			t.Fatalf("seed setting %s: %v", key, err)
		}
	}
}

// LoadPayment re-reads a payment by id.
func LoadPayment(t testing.TB, conn *gorm.DB, id uuid.UUID) models.Payment {
	t.Helper()

	var payment models.Payment
	if err := conn.First(&payment, "id = ?", id).Error; err != nil {
		t.Fatalf("load payment: %v", err)
	}
	return payment
}

// Count returns the number of rows in model matching the optional condition.
func Count(t testing.TB, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()

	var count int64
	q := conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return count
}
