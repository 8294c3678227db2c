package domain

// Alert is the payload handed to the delivery sink when a level touch
// passes the cooldown gate.
type Alert struct {
	Symbol       string      `json:"symbol"`
	Name         string      `json:"name"`
	Kind         LevelKind   `json:"level_kind"`
	Value        float64     `json:"level_value"`
	Candle       Candle      `json:"candle"`
	TotalTouches int         `json:"total_touches"`
	PendingKinds []LevelKind `json:"pending_level_tags"`
}

// StoredAlert is the append-only persistence record of a delivered alert,
// keyed uniquely by (symbol, level kind, candle timestamp).
type StoredAlert struct {
	ID         int64     `json:"id"`
	Symbol     string    `json:"symbol"`
	Kind       LevelKind `json:"level_kind"`
	LevelValue float64   `json:"level_value"`
	TouchPrice float64   `json:"touch_price"`
	Timestamp  int64     `json:"timestamp"`
	DateSent   string    `json:"date_sent"`
}
