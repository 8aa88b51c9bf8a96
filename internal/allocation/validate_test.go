package allocation

import (
	"testing"

	"resto_pos_backend/internal/models"
)

func completeIdentity() models.SplitIdentity {
	return models.SplitIdentity{
		Name:           "Ana Maria Rios",
		DocumentType:   models.DocTypeCedula,
		DocumentNumber: "10203040",
		Email:          "ana@example.com",
	}
}

func TestValidateSplit(t *testing.T) {
	tests := []struct {
		name       string
		identity   models.SplitIdentity
		bypass     models.ValidationBypass
		wantFields []string
	}{
		{
			name:     "complete natural-person identity passes",
			identity: completeIdentity(),
		},
		{
			name: "missing fields are each reported",
			identity: models.SplitIdentity{
				Email: "not-an-email",
			},
			wantFields: []string{"name", "document_type", "document_number", "email"},
		},
		{
			name: "NIT requires a check digit",
			identity: models.SplitIdentity{
				Name:           "Acme SAS",
				DocumentType:   models.DocTypeNIT,
				DocumentNumber: "900123456",
				Email:          "facturas@acme.com",
			},
			wantFields: []string{"check_digit"},
		},
		{
			name: "NIT with check digit passes",
			identity: models.SplitIdentity{
				Name:           "Acme SAS",
				DocumentType:   models.DocTypeNIT,
				DocumentNumber: "900123456",
				CheckDigit:     "7",
				Email:          "facturas@acme.com",
			},
		},
		{
			name:   "cash bypass skips all identity checks",
			bypass: models.BypassCash,
		},
		{
			name:       "email-only bypass still validates the email",
			bypass:     models.BypassEmailOnly,
			identity:   models.SplitIdentity{Email: "bad@@example"},
			wantFields: []string{"email"},
		},
		{
			name:     "email-only bypass with valid email passes",
			bypass:   models.BypassEmailOnly,
			identity: models.SplitIdentity{Email: "walkin@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(testOrder(), nil)
			e.InitSession(models.ModeItem, 0)
			sp := &e.Session().Splits[0]
			sp.Identity = tt.identity
			sp.Bypass = tt.bypass
			sp.AssignedItems = []models.AssignedItem{{LineItemID: "li-1", Quantity: 1}}

			errs := e.ValidateSplit(sp)
			if len(errs.Fields) != len(tt.wantFields) {
				t.Fatalf("got fields %v, want %v", errs.Fields, tt.wantFields)
			}
			for _, field := range tt.wantFields {
				if _, ok := errs.Fields[field]; !ok {
					t.Errorf("missing expected error for field %q in %v", field, errs.Fields)
				}
			}
		})
	}
}

func TestValidateSplitRequiresAmount(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeItem, 0)
	sp := &e.Session().Splits[0]
	sp.Identity = completeIdentity()

	errs := e.ValidateSplit(sp)
	if _, ok := errs.Fields["amount"]; !ok {
		t.Errorf("empty split should report an amount error, got %v", errs.Fields)
	}
}

func TestValidateAllAggregates(t *testing.T) {
	e := New(testOrder(), nil)
	e.InitSession(models.ModeItem, 0)
	splits := e.Session().Splits
	a, b := splits[0].ID, splits[1].ID

	if _, err := e.UpdateSplit(a, SplitPatch{
		AssignedItems: []models.AssignedItem{{LineItemID: "li-1", Quantity: 5}},
	}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}
	if _, err := e.UpdateSplit(b, SplitPatch{
		AssignedItems: []models.AssignedItem{
			{LineItemID: "li-2", Quantity: 3},
			{LineItemID: "li-3", Quantity: 2},
		},
	}); err != nil {
		t.Fatalf("UpdateSplit failed: %v", err)
	}

	results, ok := e.ValidateAll()
	if ok {
		t.Error("identities are empty, aggregate pass must be false")
	}
	if len(results) != 2 {
		t.Fatalf("expected one error record per split, got %d", len(results))
	}

	for i := range e.Session().Splits {
		e.Session().Splits[i].Identity = completeIdentity()
	}
	if _, ok := e.ValidateAll(); !ok {
		t.Error("fully assigned and identified session should validate")
	}
}

// The global check catches over-assignment even if it slipped past clamping.
func TestValidateAllDetectsConservationDrift(t *testing.T) {
	order := testOrder()
	session := &models.SplitSession{
		OrderID: order.OrderID,
		Mode:    models.ModeItem,
		Splits: []models.Split{
			{
				ID:             "a",
				AllocationMode: models.ModeItem,
				Identity:       completeIdentity(),
				AssignedItems:  []models.AssignedItem{{LineItemID: "li-1", Quantity: 4}},
			},
			{
				ID:             "b",
				AllocationMode: models.ModeItem,
				Identity:       completeIdentity(),
				AssignedItems:  []models.AssignedItem{{LineItemID: "li-1", Quantity: 4}},
			},
		},
	}
	e := New(order, session)

	if _, ok := e.ValidateAll(); ok {
		t.Error("8 assigned of 5 available must fail the conservation re-check")
	}
}
