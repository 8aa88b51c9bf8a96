package services

import (
	"encoding/json"
	"errors"
	"fmt"

	"resto_pos_backend/internal/allocation"
	"resto_pos_backend/internal/models"
	"resto_pos_backend/internal/repositories"
	"resto_pos_backend/pkg/utils"
)

const (
	backupKeyPrefix = "backup_"

	// backupSchemaVersion guards the persisted record format. A record with
	// an unknown or missing version is discarded and the session starts
	// fresh; silently trusting a stale shape risks reviving stale prices.
	backupSchemaVersion = 1
)

// ErrPersistence wraps failures of the durable session store.
var ErrPersistence = errors.New("failed to persist split session")

// sessionBackup is the durable record format. Assignments carry only line
// item ids and quantities: item names and prices are never trusted from the
// backup and are always re-resolved from a freshly fetched order.
type sessionBackup struct {
	SchemaVersion   int                   `json:"schema_version"`
	OrderID         string                `json:"order_id"`
	Mode            models.AllocationMode `json:"mode"`
	DiscountPercent float64               `json:"discount_percent"`
	Splits          []models.Split        `json:"splits"`
}

// RecoveryManager owns crash-tolerant session storage keyed by order id.
// Save is invoked as a same-turn continuation of every committed mutation,
// so a crash can never leave a persisted record older than what the cashier
// saw on screen.
type RecoveryManager struct {
	backups repositories.SessionBackupRepository
}

// NewRecoveryManager creates a new RecoveryManager over the given store.
func NewRecoveryManager(backups repositories.SessionBackupRepository) *RecoveryManager {
	return &RecoveryManager{backups: backups}
}

// Save serializes the session to its durable record.
func (m *RecoveryManager) Save(session *models.SplitSession) error {
	record := sessionBackup{
		SchemaVersion:   backupSchemaVersion,
		OrderID:         session.OrderID,
		Mode:            session.Mode,
		DiscountPercent: session.DiscountPercent,
		Splits:          session.Splits,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encoding backup: %v", ErrPersistence, err)
	}
	if err := m.backups.Save(backupKey(session.OrderID), payload); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// Load restores the in-progress session for the given freshly fetched order.
// It returns (nil, false) when no usable record exists (the normal fresh
// path), (nil, true) when the record shows every split paid (the order is
// fully settled and the record is cleared), and otherwise the restored
// session marked locked.
func (m *RecoveryManager) Load(order *models.OrderSnapshot) (*models.SplitSession, bool, error) {
	key := backupKey(order.OrderID)
	payload, err := m.backups.Get(key)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	var record sessionBackup
	if err := json.Unmarshal(payload, &record); err != nil {
		utils.LogError(err, "RecoveryManager: discarding malformed session backup for order "+order.OrderID)
		m.discard(key)
		return nil, false, nil
	}
	if record.SchemaVersion != backupSchemaVersion || record.OrderID != order.OrderID {
		utils.LogInfo("RecoveryManager: discarding incompatible session backup", map[string]interface{}{
			"order_id":       order.OrderID,
			"schema_version": record.SchemaVersion,
		})
		m.discard(key)
		return nil, false, nil
	}

	session := &models.SplitSession{
		OrderID:         record.OrderID,
		Mode:            record.Mode,
		Splits:          record.Splits,
		DiscountPercent: record.DiscountPercent,
	}

	// Re-attach assignments to the fresh order and drop anything that no
	// longer fits: items may have changed since the crash.
	allocation.New(order, session).Recompute()

	if session.AllPaid() {
		if err := m.backups.Delete(key); err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return nil, true, nil
	}

	session.Locked = true
	session.Restored = true
	return session, false, nil
}

// Clear deletes the persisted record; called only after full settlement.
func (m *RecoveryManager) Clear(orderID string) error {
	if err := m.backups.Delete(backupKey(orderID)); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

func (m *RecoveryManager) discard(key string) {
	if err := m.backups.Delete(key); err != nil {
		utils.LogError(err, "RecoveryManager: failed to delete unusable session backup "+key)
	}
}

func backupKey(orderID string) string {
	return backupKeyPrefix + orderID
}
