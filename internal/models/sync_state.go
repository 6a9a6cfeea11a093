package models

// Status is the phase of the sync state machine
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPushing Status = "pushing"
	StatusPulling Status = "pulling"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// IsActive reports whether a cycle is running in this status
func (s Status) IsActive() bool {
	return s == StatusPushing || s == StatusPulling
}

// SyncState is the observable state of the sync engine
type SyncState struct {
	Status        Status  `json:"status"`
	LastSyncedAt  *string `json:"lastSyncedAt"`
	DeviceID      *string `json:"deviceId"`
	Error         *string `json:"error"`
	LastPushCount int     `json:"lastPushCount"`
	LastPullCount int     `json:"lastPullCount"`
}

// InitialSyncState returns the state at process start and after sign-out
func InitialSyncState() SyncState {
	return SyncState{Status: StatusIdle}
}

// Clone returns a copy that shares no pointers with s
func (s SyncState) Clone() SyncState {
	out := s
	out.LastSyncedAt = cloneString(s.LastSyncedAt)
	out.DeviceID = cloneString(s.DeviceID)
	out.Error = cloneString(s.Error)
	return out
}

func cloneString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
