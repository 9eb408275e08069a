package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"CareLedger/internal/persistence"
	"CareLedger/internal/query"
	"CareLedger/internal/testutil"
)

// ============================================================================
// Test: settlement log round trip (requires Postgres)
// ============================================================================

func TestQueryService_SettlementRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewSettlementWriter(db)
	settlementID := uuid.New()
	medicine := "aspirin"

	rows := []persistence.SettlementRow{
		{
			SettlementID: settlementID.String(),
			Flow:         "purchase",
			PatientID:    "p1",
			PayeeRole:    "supplier",
			PayeeID:      "s1",
			MedicineID:   &medicine,
			Unit:         "Token",
			GrossAmount:  30,
			FeeAmount:    5,
			NetAmount:    25,
			Sequence:     1,
			SettledAt:    time.Now().UTC(),
		},
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteSettlementBatch(ctx, tx, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	qs := query.NewService(db)

	got, err := qs.GetSettlement(ctx, settlementID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Flow != "purchase" || got.NetAmount != 25 {
		t.Errorf("settlement: %+v", got)
	}
	if got.MedicineID == nil || *got.MedicineID != "aspirin" {
		t.Errorf("medicine id: %v", got.MedicineID)
	}

	list, err := qs.ListSettlementsByPatient(ctx, "p1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].SettlementID != settlementID {
		t.Errorf("list: %+v", list)
	}
}

func TestQueryService_GetSettlement_NotFound(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	qs := query.NewService(db)
	_, err := qs.GetSettlement(ctx, uuid.New())
	if err == nil {
		t.Fatal("expected not-found error")
	}
}
