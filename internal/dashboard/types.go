package dashboard

import "time"

// --- Response envelope ---

// APIResponse wraps every payload returned by the client.
// Error is nil whenever the call itself returns a nil error.
type APIResponse[T any] struct {
	Data  T       `json:"data"`
	Error *string `json:"error"`
}

// --- Prototype types ---

// GameplayState is the score/lives/level triple tracked per prototype.
type GameplayState struct {
	Score int `json:"score"`
	Lives int `json:"lives"`
	Level int `json:"level"`
}

// GamePrototype is one game instance as stored by the dashboard server.
type GamePrototype struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	GameID        string        `json:"gameId"`
	PlayerID      string        `json:"playerId"`
	GameplayState GameplayState `json:"gameplayState"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// PrototypeUpdate is a partial GamePrototype. Nil fields are left out of the
// request body and therefore left untouched by the server.
type PrototypeUpdate struct {
	ID            *string        `json:"id,omitempty"`
	Name          *string        `json:"name,omitempty"`
	Description   *string        `json:"description,omitempty"`
	GameID        *string        `json:"gameId,omitempty"`
	PlayerID      *string        `json:"playerId,omitempty"`
	GameplayState *GameplayState `json:"gameplayState,omitempty"`
	CreatedAt     *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
}

// IsEmpty reports whether the update carries no fields.
func (u PrototypeUpdate) IsEmpty() bool {
	return u.ID == nil && u.Name == nil && u.Description == nil && u.GameID == nil &&
		u.PlayerID == nil && u.GameplayState == nil && u.CreatedAt == nil && u.UpdatedAt == nil
}

// --- Event types ---

// EventType tags a GameEvent.
type EventType string

const (
	EventUpdateScore EventType = "UPDATE_SCORE"
	EventUpdateLives EventType = "UPDATE_LIVES"
	EventUpdateLevel EventType = "UPDATE_LEVEL"
)

// Valid returns true for the three known event kinds.
func (t EventType) Valid() bool {
	switch t {
	case EventUpdateScore, EventUpdateLives, EventUpdateLevel:
		return true
	}
	return false
}

// EventData is a partial GameplayState carried by an event.
type EventData struct {
	Score *int `json:"score,omitempty"`
	Lives *int `json:"lives,omitempty"`
	Level *int `json:"level,omitempty"`
}

// GameEvent describes a change to one gameplay counter.
// GamePrototypeID and EmittedAt are assigned by the server.
type GameEvent struct {
	Type            EventType  `json:"type"`
	Data            EventData  `json:"data"`
	GamePrototypeID string     `json:"gamePrototypeId,omitempty"`
	EmittedAt       *time.Time `json:"emittedAt,omitempty"`
}

// Value returns the counter matching the event type, if present.
func (e GameEvent) Value() (int, bool) {
	var v *int
	switch e.Type {
	case EventUpdateScore:
		v = e.Data.Score
	case EventUpdateLives:
		v = e.Data.Lives
	case EventUpdateLevel:
		v = e.Data.Level
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// ScoreEvent builds an UPDATE_SCORE event.
func ScoreEvent(score int) GameEvent {
	return GameEvent{Type: EventUpdateScore, Data: EventData{Score: Int(score)}}
}

// LivesEvent builds an UPDATE_LIVES event.
func LivesEvent(lives int) GameEvent {
	return GameEvent{Type: EventUpdateLives, Data: EventData{Lives: Int(lives)}}
}

// LevelEvent builds an UPDATE_LEVEL event.
func LevelEvent(level int) GameEvent {
	return GameEvent{Type: EventUpdateLevel, Data: EventData{Level: Int(level)}}
}

// --- Dashboard ---

// DashboardData is the snapshot returned by GET /dashboard.
type DashboardData struct {
	GamePrototypes []GamePrototype `json:"gamePrototypes"`
	GameEvents     []GameEvent     `json:"gameEvents"`
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// String returns a pointer to s.
func String(s string) *string { return &s }
