package allocation

import (
	"math/rand"
	"testing"

	"resto_pos_backend/internal/models"
)

func testOrder() *models.OrderSnapshot {
	return &models.OrderSnapshot{
		OrderID:    "order-1",
		TableLabel: "Mesa 4",
		LineItems: []models.OrderLineItem{
			{ID: "li-1", Name: "Bandeja paisa", Quantity: 5, UnitPrice: 12000},
			{ID: "li-2", Name: "Limonada", Quantity: 3, UnitPrice: 5000},
			{ID: "li-3", Name: "Arepa", Quantity: 2, UnitPrice: 2500},
		},
	}
}

func TestInitSessionDefaults(t *testing.T) {
	tests := []struct {
		name       string
		mode       models.AllocationMode
		splitCount int
		wantSplits int
		check      func(t *testing.T, e *Engine)
	}{
		{
			name:       "single mode covers the whole order with one split",
			mode:       models.ModeSingle,
			wantSplits: 1,
			check: func(t *testing.T, e *Engine) {
				totals := e.ComputeTotals()
				if totals.AllocatedTotal != e.Order().GrandTotal() {
					t.Errorf("allocated = %d, want full order total %d", totals.AllocatedTotal, e.Order().GrandTotal())
				}
				if !totals.WithinTolerance {
					t.Error("single mode default should reconcile")
				}
			},
		},
		{
			name:       "item mode starts with two empty splits",
			mode:       models.ModeItem,
			wantSplits: 2,
			check: func(t *testing.T, e *Engine) {
				for _, sp := range e.Session().Splits {
					if len(sp.AssignedItems) != 0 {
						t.Errorf("expected empty assignments, got %v", sp.AssignedItems)
					}
				}
			},
		},
		{
			name:       "money mode defaults to two ceiling shares",
			mode:       models.ModeMoney,
			splitCount: 0,
			wantSplits: 2,
		},
		{
			name:       "money mode clamps oversized count",
			mode:       models.ModeMoney,
			splitCount: 5000,
			wantSplits: MaxMoneySplits,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(testOrder(), nil)
			e.InitSession(tt.mode, tt.splitCount)
			if got := len(e.Session().Splits); got != tt.wantSplits {
				t.Fatalf("splits = %d, want %d", got, tt.wantSplits)
			}
			if tt.check != nil {
				tt.check(t, e)
			}
		})
	}
}

// Ceiling shares must sum to at least the order total and at most total + n.
func TestMoneyShareBounds(t *testing.T) {
	order := testOrder()
	total := order.GrandTotal()

	for _, n := range []int{1, 2, 3, 7, 13, 99, 400} {
		e := New(order, nil)
		e.InitSession(models.ModeMoney, n)

		var sum int64
		for _, sp := range e.Session().Splits {
			sum += sp.CustomAmount
		}
		if sum < total {
			t.Errorf("n=%d: share sum %d below order total %d", n, sum, total)
		}
		if sum > total+int64(n) {
			t.Errorf("n=%d: share sum %d exceeds total+n bound %d", n, sum, total+int64(n))
		}
	}
}

// The 100,000 / 3 scenario: shares of 33,334 overshoot by 2, inside tolerance.
func TestMoneyThreeWayReconciles(t *testing.T) {
	order := &models.OrderSnapshot{
		OrderID:   "order-2",
		LineItems: []models.OrderLineItem{{ID: "li-1", Name: "Parrillada", Quantity: 1, UnitPrice: 100000}},
	}
	e := New(order, nil)
	e.InitSession(models.ModeMoney, 3)

	for _, sp := range e.Session().Splits {
		if sp.CustomAmount != 33334 {
			t.Errorf("share = %d, want 33334", sp.CustomAmount)
		}
	}

	totals := e.ComputeTotals()
	if totals.AllocatedTotal != 100002 {
		t.Errorf("allocated = %d, want 100002", totals.AllocatedTotal)
	}
	if !totals.WithinTolerance {
		t.Error("diff of 2 should be within tolerance")
	}
	if !totals.MeetsMinimumSplits {
		t.Error("money mode has no minimum-splits requirement")
	}
}

// Assigning beyond another split's holdings must clamp to the headroom.
func TestUpdateSplitClampsToHeadroom(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeItem, 0)
	splits := e.Session().Splits
	a, b := splits[0].ID, splits[1].ID

	if _, err := e.UpdateSplit(a, SplitPatch{
		AssignedItems: []models.AssignedItem{{LineItemID: "li-1", Quantity: 3}},
	}); err != nil {
		t.Fatalf("UpdateSplit(a) failed: %v", err)
	}

	if _, err := e.UpdateSplit(b, SplitPatch{
		AssignedItems: []models.AssignedItem{{LineItemID: "li-1", Quantity: 4}},
	}); err != nil {
		t.Fatalf("UpdateSplit(b) failed: %v", err)
	}

	got := e.Session().SplitByID(b).AssignedItems[0].Quantity
	if got != 2 {
		t.Errorf("split b quantity = %d, want clamp to remaining headroom 2", got)
	}
}

// Duplicate entries for the same line item within one patch must share the
// headroom, not each consume it in full.
func TestUpdateSplitClampsDuplicateEntries(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeItem, 0)
	splits := e.Session().Splits
	a, b := splits[0].ID, splits[1].ID

	if _, err := e.UpdateSplit(a, SplitPatch{
		AssignedItems: []models.AssignedItem{
			{LineItemID: "li-1", Quantity: 5},
			{LineItemID: "li-1", Quantity: 5},
		},
	}); err != nil {
		t.Fatalf("UpdateSplit(a) failed: %v", err)
	}

	var total int64
	for _, ai := range e.Session().SplitByID(a).AssignedItems {
		if ai.LineItemID == "li-1" {
			total += ai.Quantity
		}
	}
	if total != 5 {
		t.Errorf("split a holds %d of li-1, want the order quantity 5", total)
	}

	// Same with another split already holding part of the item.
	if _, err := e.UpdateSplit(a, SplitPatch{
		AssignedItems: []models.AssignedItem{{LineItemID: "li-1", Quantity: 3}},
	}); err != nil {
		t.Fatalf("UpdateSplit(a) failed: %v", err)
	}
	if _, err := e.UpdateSplit(b, SplitPatch{
		AssignedItems: []models.AssignedItem{
			{LineItemID: "li-1", Quantity: 4},
			{LineItemID: "li-1", Quantity: 4},
		},
	}); err != nil {
		t.Fatalf("UpdateSplit(b) failed: %v", err)
	}
	total = 0
	for _, ai := range e.Session().SplitByID(b).AssignedItems {
		if ai.LineItemID == "li-1" {
			total += ai.Quantity
		}
	}
	if total != 2 {
		t.Errorf("split b holds %d of li-1, want the remaining headroom 2", total)
	}
	if !e.conservationHolds() {
		t.Error("conservation must hold after duplicate-entry clamping")
	}
}

// A SINGLE session's only split can never be removed.
func TestRemoveSplitKeepsSingleSession(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeSingle, 0)
	only := e.Session().Splits[0].ID

	if err := e.RemoveSplit(only); err == nil {
		t.Fatal("removing the only SINGLE split should be rejected")
	}
	if len(e.Session().Splits) != 1 {
		t.Errorf("splits = %d, want the session left intact", len(e.Session().Splits))
	}
}

// A single-split ITEM session never meets the minimum regardless of amounts.
func TestItemModeSingleSplitFailsMinimum(t *testing.T) {
	order := testOrder()
	session := &models.SplitSession{
		OrderID: order.OrderID,
		Mode:    models.ModeItem,
		Splits: []models.Split{{
			ID:             "only",
			AllocationMode: models.ModeItem,
			AssignedItems: []models.AssignedItem{
				{LineItemID: "li-1", Quantity: 5},
				{LineItemID: "li-2", Quantity: 3},
				{LineItemID: "li-3", Quantity: 2},
			},
		}},
	}
	e := New(order, session)

	totals := e.ComputeTotals()
	if !totals.WithinTolerance {
		t.Fatal("amounts reconcile exactly, tolerance check should pass")
	}
	if totals.MeetsMinimumSplits {
		t.Error("one split in ITEM mode must not meet the minimum")
	}
}

// Once locked, no structural operation changes split count or mode.
func TestLockIdempotence(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeMoney, 3)
	splitID := e.Session().Splits[0].ID

	if err := e.MarkPaid(splitID, models.ChannelCash); err != nil {
		t.Fatalf("MarkPaid failed: %v", err)
	}
	if !e.Session().Locked {
		t.Fatal("session should lock when a payment starts")
	}

	wantLen, wantMode := len(e.Session().Splits), e.Session().Mode

	if err := e.SetSplitCount(7); err == nil {
		t.Error("SetSplitCount should be rejected while locked")
	}
	if err := e.RemoveSplit(e.Session().Splits[1].ID); err == nil {
		t.Error("RemoveSplit should be rejected while locked")
	}
	e.InitSession(models.ModeItem, 0) // silent no-op

	if len(e.Session().Splits) != wantLen {
		t.Errorf("split count changed under lock: %d != %d", len(e.Session().Splits), wantLen)
	}
	if e.Session().Mode != wantMode {
		t.Errorf("mode changed under lock: %s != %s", e.Session().Mode, wantMode)
	}

	if err := e.MarkPaid(splitID, models.ChannelCash); err == nil {
		t.Error("paying the same split twice should fail")
	}
}

func TestAddRemoveSplitRules(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeItem, 0)

	if !e.CanAddSplit() {
		t.Fatal("fresh session has headroom everywhere")
	}
	if err := e.AddSplit(); err != nil {
		t.Fatalf("AddSplit failed: %v", err)
	}
	third := e.Session().Splits[2].ID
	if err := e.RemoveSplit(third); err != nil {
		t.Fatalf("RemoveSplit failed: %v", err)
	}
	if err := e.RemoveSplit(e.Session().Splits[0].ID); err == nil {
		t.Error("removing below two splits should be rejected in ITEM mode")
	}

	// Assign everything to one split; no headroom remains for a new one.
	all := []models.AssignedItem{
		{LineItemID: "li-1", Quantity: 5},
		{LineItemID: "li-2", Quantity: 3},
		{LineItemID: "li-3", Quantity: 2},
	}
	if _, err := e.UpdateSplit(e.Session().Splits[0].ID, SplitPatch{AssignedItems: all}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	if e.CanAddSplit() {
		t.Error("no headroom should remain")
	}
	if err := e.AddSplit(); err == nil {
		t.Error("AddSplit should be rejected without headroom")
	}
}

func TestDiscountAppliesToBothSides(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeSingle, 0)
	if err := e.SetDiscount(10); err != nil {
		t.Fatalf("SetDiscount failed: %v", err)
	}

	total := e.Order().GrandTotal()
	totals := e.ComputeTotals()
	want := ApplyDiscount(total, 10)
	if totals.OrderTotalAfterDiscount != want {
		t.Errorf("order total after discount = %d, want %d", totals.OrderTotalAfterDiscount, want)
	}
	if totals.AllocatedTotal != want {
		t.Errorf("allocated = %d, want %d", totals.AllocatedTotal, want)
	}
	if !totals.WithinTolerance {
		t.Error("discounted single split should still reconcile")
	}

	if err := e.SetDiscount(101); err == nil {
		t.Error("discount above 100 should be rejected")
	}
}

func TestSplitPayableIncludesTip(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeMoney, 2)
	sp := e.Session().Splits[0]

	enabled := true
	percent := 10.0
	if _, err := e.UpdateSplit(sp.ID, SplitPatch{TipEnabled: &enabled, TipPercent: &percent}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}

	payable, err := e.SplitPayable(sp.ID)
	if err != nil {
		t.Fatalf("SplitPayable failed: %v", err)
	}
	want := sp.CustomAmount + sp.CustomAmount/10
	if payable != want {
		t.Errorf("payable = %d, want %d", payable, want)
	}

	// The tip never leaks into reconciliation.
	totals := e.ComputeTotals()
	var sum int64
	for _, s := range e.Session().Splits {
		sum += s.CustomAmount
	}
	if totals.AllocatedTotal != sum {
		t.Errorf("allocated = %d, want tip-free %d", totals.AllocatedTotal, sum)
	}
}

func TestApplyLookupMatchesBySplitID(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeItem, 0)
	a := e.Session().Splits[0].ID

	docType, docNumber := models.DocTypeCedula, "10203040"
	if _, err := e.UpdateSplit(a, SplitPatch{DocumentType: &docType, DocumentNumber: &docNumber}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}

	if !e.ApplyLookup(a, docType, docNumber, "Ana Maria", "") {
		t.Error("lookup for an existing split with a matching pair should apply")
	}
	if got := e.Session().SplitByID(a).Identity.Name; got != "Ana Maria" {
		t.Errorf("name = %q, want resolved name", got)
	}

	// A result for a deleted split is discarded.
	if err := e.AddSplit(); err != nil {
		t.Fatalf("AddSplit failed: %v", err)
	}
	if err := e.RemoveSplit(a); err != nil {
		t.Fatalf("RemoveSplit failed: %v", err)
	}
	if e.ApplyLookup(a, docType, docNumber, "Ghost", "") {
		t.Error("lookup for a removed split must be discarded")
	}

	// A result for a split whose document pair changed meanwhile is discarded.
	b := e.Session().Splits[0].ID
	if _, err := e.UpdateSplit(b, SplitPatch{DocumentType: &docType, DocumentNumber: &docNumber}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	newNumber := "99999999"
	if _, err := e.UpdateSplit(b, SplitPatch{DocumentNumber: &newNumber}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	if e.ApplyLookup(b, docType, docNumber, "Stale", "") {
		t.Error("stale lookup for an edited pair must be discarded")
	}
}

// Random walk of assignments: conservation must hold after every clamped edit.
func TestConservationRandomWalk(t *testing.T) {
	order := testOrder()
	e := New(order, nil)
	e.InitSession(models.ModeItem, 0)
	for i := 0; i < 4; i++ {
		if err := e.AddSplit(); err != nil {
			break
		}
	}

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 500; step++ {
		splits := e.Session().Splits
		sp := splits[rng.Intn(len(splits))]
		if sp.Paid {
			continue
		}

		var assigned []models.AssignedItem
		for _, item := range order.LineItems {
			if rng.Intn(2) == 0 {
				continue
			}
			assigned = append(assigned, models.AssignedItem{
				LineItemID: item.ID,
				Quantity:   int64(rng.Intn(int(item.Quantity) + 4)), // may overshoot on purpose
			})
		}
		if _, err := e.UpdateSplit(sp.ID, SplitPatch{AssignedItems: assigned}); err != nil {
			t.Fatalf("step %d: UpdateSplit failed: %v", step, err)
		}

		for _, item := range order.LineItems {
			var total int64
			for _, s := range e.Session().Splits {
				for _, ai := range s.AssignedItems {
					if ai.LineItemID == item.ID {
						total += ai.Quantity
					}
				}
			}
			if total > item.Quantity {
				t.Fatalf("step %d: item %s over-assigned: %d > %d", step, item.ID, total, item.Quantity)
			}
		}
	}
}
