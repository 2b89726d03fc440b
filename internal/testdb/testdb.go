// Package testdb opens throwaway sqlite databases with the full schema and seeds catalog rows for
// workflow tests.
package testdb

import (
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/evdms/dealer-backend/pkg/db"
	"github.com/evdms/dealer-backend/pkg/db/models"
	"github.com/evdms/dealer-backend/pkg/enums"
	"github.com/evdms/dealer-backend/pkg/logger"
	"github.com/evdms/dealer-backend/pkg/migrate"
	"github.com/evdms/dealer-backend/pkg/outbox"
)

// Open returns a migrated in-memory database private to the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:evdms_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := migrate.AutoMigrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}

// Client wraps conn the way the binaries do.
func Client(conn *gorm.DB) *db.Client {
	return db.NewFromConn(conn)
}

// Logger discards output.
func Logger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Level: zerolog.Disabled, Output: io.Discard})
}

// Outbox returns a real outbox emitter writing into conn.
func Outbox(conn *gorm.DB) *outbox.Service {
	return outbox.NewService(outbox.NewRepository(conn), nil)
}

func Dealer(t testing.TB, conn *gorm.DB) models.Dealer {
	t.Helper()
	dealer := models.Dealer{Name: "Dealer", Code: "D-" + uuid.NewString()[:8], OutstandingDebt: decimal.Zero}
	if err := conn.Create(&dealer).Error; err != nil {
		t.Fatalf("seed dealer: %v", err)
	}
	return dealer
}

func Customer(t testing.TB, conn *gorm.DB, dealerID uuid.UUID, totalSpent decimal.Decimal, vip bool) models.Customer {
	t.Helper()
	customer := models.Customer{
		DealerID:   dealerID,
		FullName:   "Customer",
		TotalSpent: totalSpent,
		TotalDebt:  decimal.Zero,
		IsVIP:      vip,
	}
	if err := conn.Create(&customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return customer
}

// Vehicle seeds a catalog row; withIdentity assigns a VIN and engine number.
func Vehicle(t testing.TB, conn *gorm.DB, price decimal.Decimal, withIdentity bool) models.Vehicle {
	t.Helper()
	vehicle := models.Vehicle{ModelName: "VF 8", ListPrice: price}
	if withIdentity {
		suffix := uuid.NewString()[:8]
		vin := fmt.Sprintf("RLLV%s", suffix)
		engine := fmt.Sprintf("EN%s", suffix)
		vehicle.VIN = &vin
		vehicle.EngineNumber = &engine
	}
	if err := conn.Create(&vehicle).Error; err != nil {
		t.Fatalf("seed vehicle: %v", err)
	}
	return vehicle
}

// Stock seeds an inventory record. A nil dealerID targets the factory pool.
func Stock(t testing.TB, conn *gorm.DB, vehicleID uuid.UUID, dealerID *uuid.UUID, qty int) models.InventoryRecord {
	t.Helper()
	pool := enums.InventoryPoolFactory
	if dealerID != nil {
		pool = enums.InventoryPoolDealer
	}
	record := models.InventoryRecord{VehicleID: vehicleID, DealerID: dealerID, PoolType: pool, AvailableQuantity: qty}
	if err := conn.Create(&record).Error; err != nil {
		t.Fatalf("seed stock: %v", err)
	}
	return record
}

// Available reads the current available quantity of a pool record.
func Available(t testing.TB, conn *gorm.DB, vehicleID uuid.UUID, dealerID *uuid.UUID) int {
	t.Helper()
	var record models.InventoryRecord
	q := conn.Where("vehicle_id = ?", vehicleID)
	if dealerID == nil {
		q = q.Where("dealer_id IS NULL")
	} else {
		q = q.Where("dealer_id = ?", *dealerID)
	}
	if err := q.First(&record).Error; err != nil {
		t.Fatalf("load stock: %v", err)
	}
	return record.AvailableQuantity
}

// CountEvents counts outbox rows of one type.
func CountEvents(t testing.TB, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func Ptr[T any](v T) *T {
	return &v
}
