package models

// AllocationMode selects how the payable amount is partitioned across splits.
type AllocationMode string

const (
	ModeSingle AllocationMode = "SINGLE" // one split covering the whole order
	ModeItem   AllocationMode = "ITEM"   // splits own line-item quantities
	ModeMoney  AllocationMode = "MONEY"  // splits own free-form amounts
)

// PaymentChannel is the settlement channel chosen at pay time.
type PaymentChannel string

const (
	ChannelCash       PaymentChannel = "cash"
	ChannelElectronic PaymentChannel = "electronic"
)

// ValidationBypass relaxes identity checks for walk-in customers without documents.
// This replaces the legacy convention of sentinel customer names doubling as flags.
type ValidationBypass string

const (
	BypassNone      ValidationBypass = ""           // full identity required
	BypassCash      ValidationBypass = "cash"       // no identity fields required
	BypassEmailOnly ValidationBypass = "email_only" // only a valid email required
)

// Document type codes understood by the identity resolver.
const (
	DocTypeCedula            = "CC"  // natural person, external lookup
	DocTypeCedulaExtranjeria = "CE"  // natural person, external lookup
	DocTypePassport          = "PAS" // natural person, external lookup
	DocTypeNIT               = "NIT" // company tax id, cached directory lookup
)

// SplitIdentity is the billing identity attached to one split.
type SplitIdentity struct {
	Name           string `json:"name"`
	DocumentType   string `json:"document_type"`
	DocumentNumber string `json:"document_number"`
	CheckDigit     string `json:"check_digit"`
	Email          string `json:"email"`
}

// AssignedItem is one line-item assignment inside an ITEM-mode split.
type AssignedItem struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int64  `json:"quantity"`
}

// Split is one sub-account of a split session.
type Split struct {
	// ID is opaque, generated once and stable across edits.
	ID       string        `json:"id"`
	Identity SplitIdentity `json:"identity"`

	// AllocationMode is inherited from the session but stored per split so a
	// session migrating between modes never leaves a split ambiguous.
	AllocationMode AllocationMode `json:"allocation_mode"`

	AssignedItems []AssignedItem `json:"assigned_items,omitempty"` // ITEM mode only
	CustomAmount  int64          `json:"custom_amount"`            // MONEY mode only

	TipEnabled bool    `json:"tip_enabled"`
	TipPercent float64 `json:"tip_percent"`

	// Paid is monotonic: once true it is never reset.
	Paid         bool             `json:"paid"`
	IsElectronic bool             `json:"is_electronic"`
	Bypass       ValidationBypass `json:"bypass,omitempty"`
}

// SplitSession is the aggregate root of the "Dividir Cuenta" flow for one order.
type SplitSession struct {
	OrderID         string         `json:"order_id"`
	Mode            AllocationMode `json:"mode"`
	Splits          []Split        `json:"splits"`
	DiscountPercent float64        `json:"discount_percent"`

	// Locked becomes true once any split has begun payment, or when the session
	// was restored from a backup with an unpaid remainder. It is monotonic and
	// forbids mode switches, split count changes and default regeneration.
	Locked bool `json:"locked"`

	// Restored reports whether this session came from a persisted backup
	// rather than being created fresh.
	Restored bool `json:"restored"`
}

// SplitByID returns a pointer into Splits for in-place mutation by the engine.
func (s *SplitSession) SplitByID(id string) *Split {
	for i := range s.Splits {
		if s.Splits[i].ID == id {
			return &s.Splits[i]
		}
	}
	return nil
}

// AllPaid reports whether every split has completed payment.
func (s *SplitSession) AllPaid() bool {
	if len(s.Splits) == 0 {
		return false
	}
	for _, sp := range s.Splits {
		if !sp.Paid {
			return false
		}
	}
	return true
}

// SessionTotals is the reconciliation summary gating payment.
type SessionTotals struct {
	AllocatedTotal          int64 `json:"allocated_total"`
	OrderTotalAfterDiscount int64 `json:"order_total_after_discount"`
	WithinTolerance         bool  `json:"within_tolerance"`
	MeetsMinimumSplits      bool  `json:"meets_minimum_splits"`
}

// DivisionErrors carries the field-level validation failures of one split.
type DivisionErrors struct {
	SplitID string            `json:"split_id"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HasErrors reports whether any field failed validation.
func (d DivisionErrors) HasErrors() bool {
	return len(d.Fields) > 0
}

// SettlementHandoff is what the external settlement flow receives after a
// successful pay action. SplitID is "single" for SINGLE-mode sessions.
type SettlementHandoff struct {
	OrderID string         `json:"order_id"`
	SplitID string         `json:"split_id"`
	Channel PaymentChannel `json:"channel"`
}
