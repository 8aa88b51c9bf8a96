package allocation

import (
	"regexp"
	"strings"

	"resto_pos_backend/internal/models"
)

var emailRegex = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,4}$`)

// ValidateSplit recomputes the field-level errors of one split: identity
// completeness (subject to the split's bypass flag) and a non-zero amount.
func (e *Engine) ValidateSplit(sp *models.Split) models.DivisionErrors {
	errs := models.DivisionErrors{SplitID: sp.ID, Fields: map[string]string{}}

	switch sp.Bypass {
	case models.BypassCash:
		// Walk-in cash customer: no identity required at all.
	case models.BypassEmailOnly:
		validateEmail(sp.Identity.Email, errs.Fields)
	default:
		if strings.TrimSpace(sp.Identity.Name) == "" {
			errs.Fields["name"] = "name is required"
		}
		if strings.TrimSpace(sp.Identity.DocumentType) == "" {
			errs.Fields["document_type"] = "document type is required"
		}
		if strings.TrimSpace(sp.Identity.DocumentNumber) == "" {
			errs.Fields["document_number"] = "document number is required"
		}
		if sp.Identity.DocumentType == models.DocTypeNIT &&
			strings.TrimSpace(sp.Identity.CheckDigit) == "" {
			errs.Fields["check_digit"] = "check digit is required for NIT"
		}
		validateEmail(sp.Identity.Email, errs.Fields)
	}

	if e.splitBase(sp) <= 0 {
		errs.Fields["amount"] = "split amount must be greater than zero"
	}

	if len(errs.Fields) == 0 {
		errs.Fields = nil
	}
	return errs
}

// ValidateAll runs the full-session validation pass used right before a pay
// action: one DivisionErrors record per split plus a global item-distribution
// check that re-verifies conservation, defending against computation drift.
// The boolean is the aggregate pass/fail notice surfaced to the caller.
func (e *Engine) ValidateAll() ([]models.DivisionErrors, bool) {
	ok := true
	results := make([]models.DivisionErrors, 0, len(e.session.Splits))
	for i := range e.session.Splits {
		de := e.ValidateSplit(&e.session.Splits[i])
		if de.HasErrors() {
			ok = false
		}
		results = append(results, de)
	}

	if !e.conservationHolds() {
		ok = false
	}
	return results, ok
}

// conservationHolds re-checks that no line item is over-assigned across all
// splits. Clamping should make this impossible; a failure here means drift.
func (e *Engine) conservationHolds() bool {
	for _, item := range e.order.LineItems {
		var assigned int64
		for _, sp := range e.session.Splits {
			for _, ai := range sp.AssignedItems {
				if ai.LineItemID == item.ID {
					assigned += ai.Quantity
				}
			}
		}
		if assigned > item.Quantity {
			return false
		}
	}
	return true
}

func validateEmail(email string, fields map[string]string) {
	em := strings.ToLower(strings.TrimSpace(email))
	if em == "" {
		fields["email"] = "email is required"
		return
	}
	if !emailRegex.MatchString(em) {
		fields["email"] = "email format is invalid"
	}
}
