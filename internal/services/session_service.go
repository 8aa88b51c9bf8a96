package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resto_pos_backend/internal/allocation"
	"resto_pos_backend/internal/clients"
	"resto_pos_backend/internal/models"
	"resto_pos_backend/pkg/utils"
)

// --- Custom Service Errors for Split Sessions ---
var (
	ErrSessionNotFound = errors.New("no open split session for this order")
	ErrOrderFetch      = errors.New("failed to load order from order service")
	ErrPayRejected     = errors.New("payment rejected: session does not reconcile or a split is invalid")
	ErrInvalidMode     = errors.New("unknown allocation mode")
	ErrInvalidChannel  = errors.New("unknown payment channel")
)

// --- Split Session DTOs ---

type OpenSessionRequest struct {
	Mode       models.AllocationMode `json:"mode"`
	SplitCount int                   `json:"split_count"`
}

type UpdateSplitRequest struct {
	Name           *string                  `json:"name"`
	DocumentType   *string                  `json:"document_type"`
	DocumentNumber *string                  `json:"document_number"`
	CheckDigit     *string                  `json:"check_digit"`
	Email          *string                  `json:"email"`
	AssignedItems  []models.AssignedItem    `json:"assigned_items"`
	CustomAmount   *int64                   `json:"custom_amount"`
	TipEnabled     *bool                    `json:"tip_enabled"`
	TipPercent     *float64                 `json:"tip_percent"`
	Bypass         *models.ValidationBypass `json:"bypass"`
}

type PayRequest struct {
	Channel models.PaymentChannel `json:"channel" binding:"required"`
}

// SessionView is what every session endpoint returns: the session with its
// freshly recomputed totals and validation state. Totals are derived on
// every call, never cached across mutations.
type SessionView struct {
	Order   *models.OrderSnapshot   `json:"order,omitempty"`
	Session *models.SplitSession    `json:"session,omitempty"`
	Totals  *models.SessionTotals   `json:"totals,omitempty"`
	Errors  []models.DivisionErrors `json:"errors,omitempty"`
	CanPay  bool                    `json:"can_pay"`
	Settled bool                    `json:"settled"`
}

// --- SessionService Interface ---
type SessionService interface {
	OpenSession(ctx context.Context, orderID string, req OpenSessionRequest) (*SessionView, error)
	GetSession(orderID string) (*SessionView, error)
	ChangeMode(orderID string, req OpenSessionRequest) (*SessionView, error)
	SetSplitCount(orderID string, n int) (*SessionView, error)
	SetDiscount(orderID string, percent float64) (*SessionView, error)
	AddSplit(orderID string) (*SessionView, error)
	RemoveSplit(orderID, splitID string) (*SessionView, error)
	UpdateSplit(orderID, splitID string, req UpdateSplitRequest) (*SessionView, error)
	Pay(orderID, splitID string, channel models.PaymentChannel) (*models.SettlementHandoff, *SessionView, error)
	CloseSession(orderID string)
}

// liveSession binds an open session's engine to its order snapshot.
type liveSession struct {
	order  *models.OrderSnapshot
	engine *allocation.Engine
}

// sessionService owns the live sessions. A single mutex serializes every
// operation, preserving the run-to-completion semantics of the flow: no two
// mutations of any session interleave, and persistence always happens in the
// same critical section as the mutation it records.
type sessionService struct {
	mu       sync.Mutex
	sessions map[string]*liveSession

	orders   clients.OrderClient
	resolver *IdentityResolver
	recovery *RecoveryManager
}

// NewSessionService creates a new instance of SessionService.
func NewSessionService(orders clients.OrderClient, resolver *IdentityResolver, recovery *RecoveryManager) SessionService {
	return &sessionService{
		sessions: make(map[string]*liveSession),
		orders:   orders,
		resolver: resolver,
		recovery: recovery,
	}
}

// OpenSession fetches the order, attempts to restore a prior session from
// the durable store, and falls back to a default session for the requested
// mode. A restore that shows every split paid short-circuits to a settled
// view so the UI can confirm and navigate away.
func (s *sessionService) OpenSession(ctx context.Context, orderID string, req OpenSessionRequest) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if live, ok := s.sessions[orderID]; ok {
		return s.buildView(live), nil
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOrderFetch, err)
	}

	restored, settled, err := s.recovery.Load(order)
	if err != nil {
		return nil, err
	}
	if settled {
		return &SessionView{Order: order, Settled: true}, nil
	}

	engine := allocation.New(order, restored)
	if restored == nil {
		mode, err := normalizeMode(req.Mode)
		if err != nil {
			return nil, err
		}
		engine.InitSession(mode, req.SplitCount)
		if err := s.recovery.Save(engine.Session()); err != nil {
			return nil, err
		}
	}

	live := &liveSession{order: order, engine: engine}
	s.sessions[orderID] = live
	utils.LogInfo("Split session opened", map[string]interface{}{
		"order_id": orderID,
		"mode":     string(engine.Session().Mode),
		"restored": engine.Session().Restored,
	})
	return s.buildView(live), nil
}

func (s *sessionService) GetSession(orderID string) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[orderID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.buildView(live), nil
}

// ChangeMode re-derives the default session for a new mode. On a locked
// session the engine turns this into a no-op rather than an error.
func (s *sessionService) ChangeMode(orderID string, req OpenSessionRequest) (*SessionView, error) {
	mode, err := normalizeMode(req.Mode)
	if err != nil {
		return nil, err
	}
	return s.mutate(orderID, func(live *liveSession) error {
		live.engine.InitSession(mode, req.SplitCount)
		return nil
	})
}

func (s *sessionService) SetSplitCount(orderID string, n int) (*SessionView, error) {
	return s.mutate(orderID, func(live *liveSession) error {
		return live.engine.SetSplitCount(n)
	})
}

func (s *sessionService) SetDiscount(orderID string, percent float64) (*SessionView, error) {
	return s.mutate(orderID, func(live *liveSession) error {
		return live.engine.SetDiscount(percent)
	})
}

func (s *sessionService) AddSplit(orderID string) (*SessionView, error) {
	return s.mutate(orderID, func(live *liveSession) error {
		return live.engine.AddSplit()
	})
}

func (s *sessionService) RemoveSplit(orderID, splitID string) (*SessionView, error) {
	return s.mutate(orderID, func(live *liveSession) error {
		return live.engine.RemoveSplit(splitID)
	})
}

// UpdateSplit applies a partial edit and opportunistically triggers identity
// resolution when the document pair changed. Company (NIT) numbers resolve
// synchronously from the cached directory inside the same critical section;
// natural-person numbers resolve in the background and re-enter by split id.
func (s *sessionService) UpdateSplit(orderID, splitID string, req UpdateSplitRequest) (*SessionView, error) {
	var pendingDocType, pendingDocNumber string

	view, err := s.mutate(orderID, func(live *liveSession) error {
		before := live.engine.Session().SplitByID(splitID)
		if before == nil {
			return allocation.ErrSplitNotFound
		}
		prevType, prevNumber := before.Identity.DocumentType, before.Identity.DocumentNumber

		sp, err := live.engine.UpdateSplit(splitID, allocation.SplitPatch{
			Name:           req.Name,
			DocumentType:   req.DocumentType,
			DocumentNumber: req.DocumentNumber,
			CheckDigit:     req.CheckDigit,
			Email:          req.Email,
			AssignedItems:  req.AssignedItems,
			CustomAmount:   req.CustomAmount,
			TipEnabled:     req.TipEnabled,
			TipPercent:     req.TipPercent,
			Bypass:         req.Bypass,
		})
		if err != nil {
			return err
		}

		docType, docNumber := sp.Identity.DocumentType, sp.Identity.DocumentNumber
		if docType == prevType && docNumber == prevNumber {
			return nil
		}
		if docType == models.DocTypeNIT {
			res := s.resolver.Resolve(context.Background(), docType, docNumber)
			if res.Found {
				live.engine.ApplyLookup(splitID, docType, docNumber, res.Name, res.CheckDigit)
			}
			return nil
		}
		pendingDocType, pendingDocNumber = docType, docNumber
		return nil
	})
	if err != nil {
		return nil, err
	}

	if pendingDocNumber != "" {
		go s.resolveInBackground(orderID, splitID, pendingDocType, pendingDocNumber)
	}
	return view, nil
}

// Pay is the final go/no-go gate before the external settlement flow. A
// rejected pay mutates nothing; a successful one marks the split paid, locks
// the session, writes through to the durable store, and returns the
// settlement handoff. Full settlement clears the persisted record.
func (s *sessionService) Pay(orderID, splitID string, channel models.PaymentChannel) (*models.SettlementHandoff, *SessionView, error) {
	if channel != models.ChannelCash && channel != models.ChannelElectronic {
		return nil, nil, ErrInvalidChannel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[orderID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	engine := live.engine
	session := engine.Session()

	if !s.canPay(engine) {
		return nil, nil, ErrPayRejected
	}

	handoffSplitID := splitID
	if session.Mode == models.ModeSingle {
		if len(session.Splits) == 0 {
			return nil, nil, allocation.ErrSplitNotFound
		}
		splitID = session.Splits[0].ID
		handoffSplitID = "single"
	}

	if err := engine.MarkPaid(splitID, channel); err != nil {
		return nil, nil, err
	}
	if err := s.recovery.Save(session); err != nil {
		return nil, nil, err
	}

	handoff := &models.SettlementHandoff{
		OrderID: orderID,
		SplitID: handoffSplitID,
		Channel: channel,
	}

	view := s.buildView(live)
	if session.AllPaid() {
		if err := s.recovery.Clear(orderID); err != nil {
			return nil, nil, err
		}
		delete(s.sessions, orderID)
		view.Settled = true
		utils.LogInfo("Order fully settled", map[string]interface{}{"order_id": orderID})
	}
	return handoff, view, nil
}

// CloseSession drops the live session without touching the durable record,
// so an abandoned screen can still be recovered later.
func (s *sessionService) CloseSession(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, orderID)
}

// mutate runs an engine operation and, when it commits, persists the session
// in the same critical section before returning the recomputed view.
func (s *sessionService) mutate(orderID string, fn func(*liveSession) error) (*SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[orderID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := fn(live); err != nil {
		return nil, err
	}
	if err := s.recovery.Save(live.engine.Session()); err != nil {
		return nil, err
	}
	return s.buildView(live), nil
}

// canPay implements the session-level payment gate: full validation plus
// aggregate reconciliation. Per-split amounts are never individually
// reconciled against the order total.
func (s *sessionService) canPay(engine *allocation.Engine) bool {
	_, ok := engine.ValidateAll()
	totals := engine.ComputeTotals()
	return ok && totals.WithinTolerance && totals.MeetsMinimumSplits
}

func (s *sessionService) buildView(live *liveSession) *SessionView {
	totals := live.engine.ComputeTotals()
	errs, ok := live.engine.ValidateAll()
	return &SessionView{
		Order:   live.order,
		Session: live.engine.Session(),
		Totals:  &totals,
		Errors:  errs,
		CanPay:  ok && totals.WithinTolerance && totals.MeetsMinimumSplits,
	}
}

// resolveInBackground performs a natural-person lookup without holding the
// session lock, then re-enters through the registry and applies the result
// by split id. A result for a split that was deleted, or whose document pair
// changed meanwhile, is discarded.
func (s *sessionService) resolveInBackground(orderID, splitID, docType, docNumber string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := s.resolver.Resolve(ctx, docType, docNumber)
	if !res.Found {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	live, ok := s.sessions[orderID]
	if !ok {
		return
	}
	if !live.engine.ApplyLookup(splitID, docType, docNumber, res.Name, res.CheckDigit) {
		return
	}
	if err := s.recovery.Save(live.engine.Session()); err != nil {
		utils.LogError(err, "resolveInBackground: failed to persist resolved identity for order "+orderID)
	}
}

func normalizeMode(mode models.AllocationMode) (models.AllocationMode, error) {
	switch mode {
	case "":
		return models.ModeSingle, nil
	case models.ModeSingle, models.ModeItem, models.ModeMoney:
		return mode, nil
	default:
		return "", ErrInvalidMode
	}
}
