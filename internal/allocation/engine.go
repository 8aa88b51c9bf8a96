// Package allocation implements the split allocation engine of the
// "Dividir Cuenta" cashier flow: it owns SplitSession mutation, the
// remaining-quantity computation for item assignments, and the
// reconciliation totals that gate payment.
//
// The package is pure with respect to I/O: no storage, no HTTP, no logging.
// Every operation runs to completion on the in-memory session; callers are
// responsible for serializing access and for persisting the session after
// each committed mutation.
package allocation

import (
	"errors"
	"math"

	"github.com/google/uuid"

	"resto_pos_backend/internal/models"
)

const (
	// Tolerance is the maximum allowed excess of the allocated total over the
	// discounted order total, in minor currency units. Downstream settlement
	// tolerates this much rounding slack, so the engine does too.
	Tolerance int64 = 85

	// MinMoneySplits and MaxMoneySplits bound the MONEY-mode split count.
	MinMoneySplits = 1
	MaxMoneySplits = 400

	// DefaultSplitCount is used when the caller does not request a count.
	DefaultSplitCount = 2
)

var (
	ErrSessionLocked  = errors.New("session is locked, structural edits are not allowed")
	ErrSplitNotFound  = errors.New("split not found in session")
	ErrSplitPaid      = errors.New("split has already been paid")
	ErrWrongMode      = errors.New("operation not valid for the session's allocation mode")
	ErrNoHeadroom     = errors.New("no remaining item quantity to assign to a new split")
	ErrMinimumSplits  = errors.New("split count cannot drop below the minimum")
	ErrInvalidPercent = errors.New("percentage must be between 0 and 100")
)

// SplitPatch is a partial update for one split. Nil fields are left untouched;
// AssignedItems replaces the split's assignments when non-nil.
type SplitPatch struct {
	Name           *string
	DocumentType   *string
	DocumentNumber *string
	CheckDigit     *string
	Email          *string
	AssignedItems  []models.AssignedItem
	CustomAmount   *int64
	TipEnabled     *bool
	TipPercent     *float64
	Bypass         *models.ValidationBypass
}

// Engine binds one SplitSession to the OrderSnapshot it partitions.
// It is the only component that mutates the session's splits.
type Engine struct {
	order   *models.OrderSnapshot
	session *models.SplitSession
}

// New creates an engine over an existing session. The session may be nil,
// in which case InitSession must be called before any other operation.
func New(order *models.OrderSnapshot, session *models.SplitSession) *Engine {
	return &Engine{order: order, session: session}
}

// Session exposes the current session. Callers must not mutate splits
// directly; all mutation goes through the engine operations.
func (e *Engine) Session() *models.SplitSession {
	return e.session
}

// Order returns the snapshot this engine allocates against.
func (e *Engine) Order() *models.OrderSnapshot {
	return e.order
}

// InitSession builds the default session for the given mode, replacing any
// current one. Invoked on a locked session it is a silent no-op: the cashier
// cannot re-derive defaults once a payment has started.
func (e *Engine) InitSession(mode models.AllocationMode, splitCount int) {
	if e.session != nil && e.session.Locked {
		return
	}

	session := &models.SplitSession{
		OrderID: e.order.OrderID,
		Mode:    mode,
	}

	switch mode {
	case models.ModeItem:
		session.Splits = []models.Split{newSplit(mode), newSplit(mode)}
	case models.ModeMoney:
		n := clampSplitCount(splitCount)
		share := ceilShare(e.order.GrandTotal(), n)
		for i := 0; i < n; i++ {
			sp := newSplit(mode)
			sp.CustomAmount = share
			session.Splits = append(session.Splits, sp)
		}
	default:
		// SINGLE: one split covering the whole order.
		sp := newSplit(models.ModeSingle)
		for _, item := range e.order.LineItems {
			sp.AssignedItems = append(sp.AssignedItems, models.AssignedItem{
				LineItemID: item.ID,
				Quantity:   item.Quantity,
			})
		}
		session.Mode = models.ModeSingle
		session.Splits = []models.Split{sp}
	}

	e.session = session
}

// SetSplitCount regenerates the MONEY-mode splits with ceiling shares of the
// order total. The ceiling guarantees the sum of shares is never below the
// order total, so the reconciliation lower bound holds by construction.
func (e *Engine) SetSplitCount(n int) error {
	if e.session.Locked {
		return ErrSessionLocked
	}
	if e.session.Mode != models.ModeMoney {
		return ErrWrongMode
	}

	n = clampSplitCount(n)
	share := ceilShare(e.order.GrandTotal(), n)
	splits := make([]models.Split, 0, n)
	for i := 0; i < n; i++ {
		sp := newSplit(models.ModeMoney)
		sp.CustomAmount = share
		splits = append(splits, sp)
	}
	e.session.Splits = splits
	return nil
}

// SetDiscount sets the session-wide discount percentage. Editing the discount
// remains allowed while locked; it is not a structural edit.
func (e *Engine) SetDiscount(percent float64) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidPercent
	}
	e.session.DiscountPercent = percent
	return nil
}

// CanAddSplit reports whether any line item still has unassigned quantity.
func (e *Engine) CanAddSplit() bool {
	for _, item := range e.order.LineItems {
		if e.RemainingQuantity(item.ID, "") > 0 {
			return true
		}
	}
	return false
}

// AddSplit appends an empty ITEM-mode split.
func (e *Engine) AddSplit() error {
	if e.session.Locked {
		return ErrSessionLocked
	}
	if e.session.Mode != models.ModeItem {
		return ErrWrongMode
	}
	if !e.CanAddSplit() {
		return ErrNoHeadroom
	}
	e.session.Splits = append(e.session.Splits, newSplit(models.ModeItem))
	return nil
}

// RemoveSplit deletes a split. ITEM and MONEY sessions keep at least two;
// a SINGLE session keeps its only split.
func (e *Engine) RemoveSplit(splitID string) error {
	if e.session.Locked {
		return ErrSessionLocked
	}
	idx := -1
	for i := range e.session.Splits {
		if e.session.Splits[i].ID == splitID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrSplitNotFound
	}
	minSplits := 1
	if e.session.Mode == models.ModeItem || e.session.Mode == models.ModeMoney {
		minSplits = 2
	}
	if len(e.session.Splits) <= minSplits {
		return ErrMinimumSplits
	}
	e.session.Splits = append(e.session.Splits[:idx], e.session.Splits[idx+1:]...)
	return nil
}

// UpdateSplit applies a partial update to one split, then clamps its item
// assignments against each item's remaining headroom and leaves the split in
// a state that never double-assigns quantity, even transiently.
func (e *Engine) UpdateSplit(splitID string, patch SplitPatch) (*models.Split, error) {
	sp := e.session.SplitByID(splitID)
	if sp == nil {
		return nil, ErrSplitNotFound
	}
	if sp.Paid {
		return nil, ErrSplitPaid
	}

	if patch.Name != nil {
		sp.Identity.Name = *patch.Name
	}
	if patch.DocumentType != nil {
		sp.Identity.DocumentType = *patch.DocumentType
	}
	if patch.DocumentNumber != nil {
		sp.Identity.DocumentNumber = *patch.DocumentNumber
	}
	if patch.CheckDigit != nil {
		sp.Identity.CheckDigit = *patch.CheckDigit
	}
	if patch.Email != nil {
		sp.Identity.Email = *patch.Email
	}
	if patch.AssignedItems != nil {
		sp.AssignedItems = patch.AssignedItems
	}
	if patch.CustomAmount != nil {
		sp.CustomAmount = *patch.CustomAmount
	}
	if patch.TipEnabled != nil {
		sp.TipEnabled = *patch.TipEnabled
	}
	if patch.TipPercent != nil {
		if *patch.TipPercent < 0 || *patch.TipPercent > 100 {
			return nil, ErrInvalidPercent
		}
		sp.TipPercent = *patch.TipPercent
	}
	if patch.Bypass != nil {
		sp.Bypass = *patch.Bypass
	}

	e.clampAssignments(sp)
	return sp, nil
}

// MarkPaid records a completed payment on a split and locks the session.
// Paid is monotonic; paying twice is rejected. No other split is touched.
func (e *Engine) MarkPaid(splitID string, channel models.PaymentChannel) error {
	sp := e.session.SplitByID(splitID)
	if sp == nil {
		return ErrSplitNotFound
	}
	if sp.Paid {
		return ErrSplitPaid
	}
	sp.Paid = true
	sp.IsElectronic = channel == models.ChannelElectronic
	e.session.Locked = true
	return nil
}

// ApplyLookup applies an identity-resolver result to the split the lookup
// was issued for. Results are matched by split id, never by position, and
// are discarded when the split is gone or its document pair changed while
// the lookup was in flight.
func (e *Engine) ApplyLookup(splitID, docType, docNumber, name, checkDigit string) bool {
	sp := e.session.SplitByID(splitID)
	if sp == nil {
		return false
	}
	if sp.Identity.DocumentType != docType || sp.Identity.DocumentNumber != docNumber {
		return false
	}
	sp.Identity.Name = name
	if checkDigit != "" {
		sp.Identity.CheckDigit = checkDigit
	}
	return true
}

// RemainingQuantity computes the headroom of a line item available to the
// split identified by excludeSplitID: the original quantity minus everything
// assigned across the other splits. Pass an empty id to count all splits.
func (e *Engine) RemainingQuantity(lineItemID, excludeSplitID string) int64 {
	item, ok := e.order.LineItem(lineItemID)
	if !ok {
		return 0
	}
	var assigned int64
	for _, sp := range e.session.Splits {
		if sp.ID == excludeSplitID {
			continue
		}
		for _, ai := range sp.AssignedItems {
			if ai.LineItemID == lineItemID {
				assigned += ai.Quantity
			}
		}
	}
	remaining := item.Quantity - assigned
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Recompute re-clamps every split's assignments in order. It is idempotent
// and is used after restoring a session against a freshly fetched order.
func (e *Engine) Recompute() {
	for i := range e.session.Splits {
		e.clampAssignments(&e.session.Splits[i])
	}
}

// ComputeTotals derives the reconciliation summary from the current state.
// It is a pure function of the session and order; callers re-invoke it after
// every mutation rather than caching the result.
func (e *Engine) ComputeTotals() models.SessionTotals {
	discount := e.session.DiscountPercent
	totalAfterDiscount := ApplyDiscount(e.order.GrandTotal(), discount)

	var allocated int64
	for i := range e.session.Splits {
		allocated += ApplyDiscount(e.splitBase(&e.session.Splits[i]), discount)
	}

	diff := allocated - totalAfterDiscount
	return models.SessionTotals{
		AllocatedTotal:          allocated,
		OrderTotalAfterDiscount: totalAfterDiscount,
		WithinTolerance:         diff >= 0 && diff <= Tolerance,
		MeetsMinimumSplits:      e.session.Mode != models.ModeItem || len(e.session.Splits) >= 2,
	}
}

// SplitPayable is the amount the split settles: its discounted base plus tip.
// The tip never participates in reconciliation.
func (e *Engine) SplitPayable(splitID string) (int64, error) {
	sp := e.session.SplitByID(splitID)
	if sp == nil {
		return 0, ErrSplitNotFound
	}
	base := ApplyDiscount(e.splitBase(sp), e.session.DiscountPercent)
	if sp.TipEnabled {
		base += int64(math.Round(float64(base) * sp.TipPercent / 100))
	}
	return base, nil
}

// splitBase is the split's undiscounted amount: assigned quantities priced at
// the order's unit prices, or the custom amount in MONEY mode.
func (e *Engine) splitBase(sp *models.Split) int64 {
	if sp.AllocationMode == models.ModeMoney {
		return sp.CustomAmount
	}
	var total int64
	for _, ai := range sp.AssignedItems {
		item, ok := e.order.LineItem(ai.LineItemID)
		if !ok {
			continue
		}
		total += ai.Quantity * item.UnitPrice
	}
	return total
}

// clampAssignments drops assignments whose line item no longer exists and
// lowers any quantity above the split's headroom down to the headroom value.
// Duplicate entries for one line item share that headroom, so the split's
// total for an item never exceeds it. Violating edits are corrected, not
// rejected.
func (e *Engine) clampAssignments(sp *models.Split) {
	kept := sp.AssignedItems[:0]
	taken := make(map[string]int64)
	for _, ai := range sp.AssignedItems {
		if _, ok := e.order.LineItem(ai.LineItemID); !ok {
			continue
		}
		if ai.Quantity < 0 {
			ai.Quantity = 0
		}
		headroom := e.RemainingQuantity(ai.LineItemID, sp.ID) - taken[ai.LineItemID]
		if headroom < 0 {
			headroom = 0
		}
		if ai.Quantity > headroom {
			ai.Quantity = headroom
		}
		taken[ai.LineItemID] += ai.Quantity
		kept = append(kept, ai)
	}
	sp.AssignedItems = kept
}

// ApplyDiscount reduces an amount by a percentage, rounding the discounted
// portion to the nearest minor unit.
func ApplyDiscount(amount int64, percent float64) int64 {
	if percent <= 0 {
		return amount
	}
	return amount - int64(math.Round(float64(amount)*percent/100))
}

func ceilShare(total int64, n int) int64 {
	if n <= 0 {
		return total
	}
	return (total + int64(n) - 1) / int64(n)
}

func clampSplitCount(n int) int {
	if n == 0 {
		return DefaultSplitCount
	}
	if n < MinMoneySplits {
		return MinMoneySplits
	}
	if n > MaxMoneySplits {
		return MaxMoneySplits
	}
	return n
}

func newSplit(mode models.AllocationMode) models.Split {
	return models.Split{
		ID:             uuid.New().String(),
		AllocationMode: mode,
	}
}
