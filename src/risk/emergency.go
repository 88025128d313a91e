package risk

import (
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradecontrol/src/security"
)

// EmergencyStop is the account-wide kill switch. Once tripped it blocks all
// new entries until an operator clears it with the admin token. Closing
// positions stays allowed so exposure can still be reduced.
type EmergencyStop struct {
	mu        sync.RWMutex
	active    bool
	reason    string
	stoppedAt time.Time
}

func NewEmergencyStop() *EmergencyStop {
	return &EmergencyStop{}
}

// Trigger activates the stop. Returns false when it was already active;
// repeated triggers never overwrite the original reason.
func (e *EmergencyStop) Trigger(reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active {
		return false
	}

	e.active = true
	e.reason = reason
	e.stoppedAt = time.Now().UTC()

	logger.WithFields(map[string]interface{}{
		"component": "EmergencyStop",
		"reason":    reason,
	}).Error("EMERGENCY STOP TRIGGERED")

	return true
}

// Reset clears the stop after the admin token verifies.
func (e *EmergencyStop) Reset(adminToken string) error {
	if err := security.VerifyAdminToken(adminToken); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.active = false
	e.reason = ""
	e.stoppedAt = time.Time{}

	logger.WithField("component", "EmergencyStop").Warn("Emergency stop cleared by operator")
	return nil
}

// Active reports the current state.
func (e *EmergencyStop) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Status returns the state together with the trigger reason and time.
func (e *EmergencyStop) Status() (bool, string, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active, e.reason, e.stoppedAt
}
