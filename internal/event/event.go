// Package event defines the stage-transition event model consumed by the
// analytics and rule-engine layers. Events are append-only; all derived
// state is reconstructed from them at query time.
package event

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindStageEntered Kind = "stage_entered"
	KindStageChanged Kind = "stage_changed"
)

// StageTransitionEvent is an immutable record of a role entering or
// changing pipeline stage. FromStage is -1 for stage_entered events.
type StageTransitionEvent struct {
	ID            string    `json:"id"`
	WorkspaceID   string    `json:"workspace_id"`
	RoleID        string    `json:"role_id"`
	Kind          Kind      `json:"kind"`
	Timestamp     time.Time `json:"ts"`
	Stage         int       `json:"stage"`
	StageName     string    `json:"stage_name"`
	FromStage     int       `json:"from_stage"`
	FromStageName string    `json:"from_stage_name,omitempty"`
	ClientID      string    `json:"client_id,omitempty"`
	Fee           float64   `json:"fee,omitempty"`
}

// IngestEvent is the wire shape accepted by the events-intake endpoint:
// an event name, an epoch-millisecond timestamp, and a free-form props bag.
type IngestEvent struct {
	Name  string         `json:"name"`
	TS    int64          `json:"ts"`
	Props map[string]any `json:"props"`
}

var (
	ErrUnknownKind  = errors.New("unknown event name")
	ErrMissingRole  = errors.New("missing role_id")
	ErrMissingStage = errors.New("missing or unparseable stage")
)

// FromIngest converts a raw ingested event into a StageTransitionEvent.
// Props it understands: role_id, stage, stage_name, to_stage, from_stage,
// from_stage_name, client_id, fee. For stage_changed events to_stage takes
// precedence over stage.
func FromIngest(workspaceID string, in IngestEvent) (StageTransitionEvent, error) {
	kind := Kind(in.Name)
	if kind != KindStageEntered && kind != KindStageChanged {
		return StageTransitionEvent{}, ErrUnknownKind
	}

	roleID, _ := in.Props["role_id"].(string)
	if roleID == "" {
		return StageTransitionEvent{}, ErrMissingRole
	}

	ev := StageTransitionEvent{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		RoleID:      roleID,
		Kind:        kind,
		Timestamp:   time.UnixMilli(in.TS).UTC(),
		FromStage:   -1,
	}

	stage, ok := propInt(in.Props, "stage")
	if kind == KindStageChanged {
		if to, tok := propInt(in.Props, "to_stage"); tok {
			stage, ok = to, true
		}
		from, fok := propInt(in.Props, "from_stage")
		if !fok {
			return StageTransitionEvent{}, ErrMissingStage
		}
		ev.FromStage = from
		ev.FromStageName, _ = in.Props["from_stage_name"].(string)
	}
	if !ok {
		return StageTransitionEvent{}, ErrMissingStage
	}
	ev.Stage = stage

	ev.StageName, _ = in.Props["stage_name"].(string)
	ev.ClientID, _ = in.Props["client_id"].(string)
	if fee, fok := propFloat(in.Props, "fee"); fok {
		ev.Fee = fee
	}
	return ev, nil
}

// propInt reads an integer prop that may arrive as a JSON number or a
// numeric string, both common in analytics payloads.
func propInt(props map[string]any, key string) (int, bool) {
	switch v := props[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func propFloat(props map[string]any, key string) (float64, bool) {
	switch v := props[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (e *StageTransitionEvent) ToJSON() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func FromJSON(data string) (*StageTransitionEvent, error) {
	var ev StageTransitionEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
