package model

const (
	PositionChangeNew     = "new"
	PositionChangeUpdated = "updated"
	PositionChangeClosed  = "closed"
)

// PositionChange is one reconciliation diff entry. For updates, Changes maps
// each drifted field to its new value.
type PositionChange struct {
	Type     string             `json:"type"`
	Position Position           `json:"position"`
	Changes  map[string]float64 `json:"changes,omitempty"`
}
