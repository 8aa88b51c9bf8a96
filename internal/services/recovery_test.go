package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"resto_pos_backend/internal/allocation"
	"resto_pos_backend/internal/models"
	"resto_pos_backend/internal/repositories"
)

// fakeBackupRepo is an in-memory SessionBackupRepository for tests.
type fakeBackupRepo struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newFakeBackupRepo() *fakeBackupRepo {
	return &fakeBackupRepo{m: make(map[string][]byte)}
}

func (f *fakeBackupRepo) Save(key string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[key] = append([]byte(nil), payload...)
	return nil
}

func (f *fakeBackupRepo) Get(key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repositories.ErrNotFound, key)
	}
	return payload, nil
}

func (f *fakeBackupRepo) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, key)
	return nil
}

func (f *fakeBackupRepo) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[key]
	return ok
}

func recoveryOrder() *models.OrderSnapshot {
	return &models.OrderSnapshot{
		OrderID:    "order-77",
		TableLabel: "Mesa 2",
		LineItems: []models.OrderLineItem{
			{ID: "li-1", Name: "Ajiaco", Quantity: 4, UnitPrice: 18000},
			{ID: "li-2", Name: "Jugo", Quantity: 2, UnitPrice: 6000},
		},
	}
}

func TestRecoveryRoundTrip(t *testing.T) {
	repo := newFakeBackupRepo()
	manager := NewRecoveryManager(repo)
	order := recoveryOrder()

	engine := allocation.New(order, nil)
	engine.InitSession(models.ModeItem, 0)
	session := engine.Session()
	a, b := session.Splits[0].ID, session.Splits[1].ID
	if _, err := engine.UpdateSplit(a, allocation.SplitPatch{
		AssignedItems: []models.AssignedItem{{LineItemID: "li-1", Quantity: 3}},
	}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	if _, err := engine.UpdateSplit(b, allocation.SplitPatch{
		AssignedItems: []models.AssignedItem{
			{LineItemID: "li-1", Quantity: 1},
			{LineItemID: "li-2", Quantity: 2},
		},
	}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	session.Splits[0].Identity = models.SplitIdentity{Name: "Ana", Email: "ana@example.com"}

	if err := manager.Save(session); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// The fresh order carries a new price; persisted metadata must not win.
	fresh := recoveryOrder()
	fresh.LineItems[0].UnitPrice = 20000

	restored, settled, err := manager.Load(fresh)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settled {
		t.Fatal("unpaid session must not report settled")
	}
	if restored == nil {
		t.Fatal("expected a restored session")
	}
	if !restored.Locked || !restored.Restored {
		t.Error("restored session must be locked and flagged as restored")
	}

	if got := restored.SplitByID(a); got == nil || len(got.AssignedItems) != 1 || got.AssignedItems[0].Quantity != 3 {
		t.Errorf("split a assignments not preserved: %+v", got)
	}
	if got := restored.SplitByID(a).Identity.Name; got != "Ana" {
		t.Errorf("identity name = %q, want Ana", got)
	}

	// Totals price the restored quantities with the fresh unit price.
	totals := allocation.New(fresh, restored).ComputeTotals()
	want := fresh.GrandTotal()
	if totals.AllocatedTotal != want {
		t.Errorf("allocated = %d, want %d computed from fresh prices", totals.AllocatedTotal, want)
	}
}

func TestRecoveryDropsVanishedItems(t *testing.T) {
	repo := newFakeBackupRepo()
	manager := NewRecoveryManager(repo)
	order := recoveryOrder()

	engine := allocation.New(order, nil)
	engine.InitSession(models.ModeItem, 0)
	a := engine.Session().Splits[0].ID
	if _, err := engine.UpdateSplit(a, allocation.SplitPatch{
		AssignedItems: []models.AssignedItem{
			{LineItemID: "li-1", Quantity: 2},
			{LineItemID: "li-2", Quantity: 2},
		},
	}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	if err := manager.Save(engine.Session()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	fresh := recoveryOrder()
	fresh.LineItems = fresh.LineItems[:1] // li-2 is gone upstream

	restored, _, err := manager.Load(fresh)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	for _, ai := range restored.SplitByID(a).AssignedItems {
		if ai.LineItemID == "li-2" {
			t.Error("assignment to a vanished line item must be dropped")
		}
	}
}

func TestRecoveryDetectsFullSettlement(t *testing.T) {
	repo := newFakeBackupRepo()
	manager := NewRecoveryManager(repo)
	order := recoveryOrder()

	engine := allocation.New(order, nil)
	engine.InitSession(models.ModeMoney, 2)
	for _, sp := range engine.Session().Splits {
		if err := engine.MarkPaid(sp.ID, models.ChannelCash); err != nil {
			t.Fatalf("MarkPaid failed: %v", err)
		}
	}
	if err := manager.Save(engine.Session()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	restored, settled, err := manager.Load(order)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !settled {
		t.Error("all-paid backup must report full settlement")
	}
	if restored != nil {
		t.Error("settled load must not return a session")
	}
	if repo.has("backup_" + order.OrderID) {
		t.Error("settled record must be deleted")
	}

	if err := manager.Clear(order.OrderID); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, settled, err := manager.Load(order); err != nil || settled {
		t.Errorf("after clear, load should take the fresh path: settled=%v err=%v", settled, err)
	}
}

func TestRecoveryDiscardsUnusableRecords(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{
			name:    "malformed JSON",
			payload: []byte("{this is not json"),
		},
		{
			name: "unknown schema version",
			payload: func() []byte {
				p, _ := json.Marshal(map[string]interface{}{
					"schema_version": 99,
					"order_id":       "order-77",
				})
				return p
			}(),
		},
		{
			name: "order id mismatch",
			payload: func() []byte {
				p, _ := json.Marshal(map[string]interface{}{
					"schema_version": 1,
					"order_id":       "some-other-order",
				})
				return p
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeBackupRepo()
			manager := NewRecoveryManager(repo)
			order := recoveryOrder()
			key := "backup_" + order.OrderID
			if err := repo.Save(key, tt.payload); err != nil {
				t.Fatalf("seeding repo failed: %v", err)
			}

			restored, settled, err := manager.Load(order)
			if err != nil {
				t.Fatalf("Load must treat unusable records as absent, got: %v", err)
			}
			if restored != nil || settled {
				t.Error("unusable record must yield the fresh-session path")
			}
			if repo.has(key) {
				t.Error("unusable record must be deleted")
			}
		})
	}
}
