package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/tool"
	"github.com/helmsman-ai/helmsman/types"
)

// Event is a persisted schedule entry. Times are unix seconds in UTC.
type Event struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name       string    `gorm:"type:text;not null" json:"name"`
	StartTime  int64     `gorm:"not null" json:"start_time"`
	EndTime    int64     `gorm:"not null" json:"end_time"`
	Importance string    `gorm:"type:text" json:"importance"`
	UserID     uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
}

// TableName implements gorm's table naming.
func (Event) TableName() string { return "events" }

// BeforeCreate assigns an id when none was set.
func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// MigrateEvents creates the events table.
func MigrateEvents(db *gorm.DB) error {
	return db.AutoMigrate(&Event{})
}

// eventView is the wire form served to agents, with RFC 3339 UTC times.
type eventView struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Importance string    `json:"importance"`
}

func viewOf(e Event) eventView {
	return eventView{
		ID:         e.ID,
		Name:       e.Name,
		StartTime:  time.Unix(e.StartTime, 0).UTC().Format(time.RFC3339),
		EndTime:    time.Unix(e.EndTime, 0).UTC().Format(time.RFC3339),
		Importance: e.Importance,
	}
}

// RegisterScheduling registers the planner agent's event tools over db.
func RegisterScheduling(r *tool.Registry, db *gorm.DB) {
	r.Register("view_schedule", viewScheduleFactory(db))
	r.Register("add_new_event", addEventFactory(db))
	r.Register("remove_event_with_id", removeEventFactory(db))
	r.Register("modify_event", modifyEventFactory(db))
}

func viewScheduleFactory(db *gorm.DB) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name:        "view_schedule",
			Description: "Returns a list of events on the schedule.",
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			Call: func(ctx context.Context, _ map[string]any) (string, error) {
				var events []Event
				err := db.WithContext(ctx).
					Where("user_id = ?", sctx.OwnerIdentity().UserID).
					Order("start_time asc").
					Find(&events).Error
				if err != nil {
					return "Error: could not load the schedule, try again later", nil
				}

				views := make([]eventView, len(events))
				for i, e := range events {
					views[i] = viewOf(e)
				}
				encoded, err := json.Marshal(views)
				if err != nil {
					return "Error: could not encode the schedule", nil
				}
				return string(encoded), nil
			},
		}, nil
	}
}

func addEventFactory(db *gorm.DB) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name: "add_new_event",
			Description: "Adds a new event to the schedule. Times are RFC 3339 and must be in UTC; " +
				"convert from the user's timezone before calling, and convert back when telling the " +
				"user about the event.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "Event name."},
					"start_time": {"type": "string", "description": "Start, RFC 3339 UTC."},
					"end_time": {"type": "string", "description": "End, RFC 3339 UTC."},
					"importance": {"type": "string", "description": "How important the event is."}
				},
				"required": ["name", "start_time", "end_time"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				name, _ := args["name"].(string)
				importance, _ := args["importance"].(string)

				start, err := parseEventTime(args["start_time"])
				if err != nil {
					return "Error: start_time must be an RFC 3339 timestamp", nil
				}
				end, err := parseEventTime(args["end_time"])
				if err != nil {
					return "Error: end_time must be an RFC 3339 timestamp", nil
				}

				event := Event{
					Name:       name,
					StartTime:  start,
					EndTime:    end,
					Importance: importance,
					UserID:     sctx.OwnerIdentity().UserID,
				}
				if err := db.WithContext(ctx).Create(&event).Error; err != nil {
					return "Error: could not save the event, try again later", nil
				}
				return "successfully added event", nil
			},
		}, nil
	}
}

func removeEventFactory(db *gorm.DB) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name:        "remove_event_with_id",
			Description: "Removes the event with the given ID from the schedule.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"event_id": {"type": "string", "description": "UUID of the event to remove."}
				},
				"required": ["event_id"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				raw, _ := args["event_id"].(string)
				eventID, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Sprintf("event with id %s was not present", raw), nil
				}

				res := db.WithContext(ctx).
					Where("id = ? AND user_id = ?", eventID, sctx.OwnerIdentity().UserID).
					Delete(&Event{})
				if res.Error != nil {
					return "Error: could not delete the event, try again later", nil
				}
				if res.RowsAffected == 0 {
					return fmt.Sprintf("event with id %s was not present", eventID), nil
				}
				return "successfully deleted event", nil
			},
		}, nil
	}
}

func modifyEventFactory(db *gorm.DB) tool.Factory {
	return func(sctx types.SessionContext) (*tool.Capability, error) {
		return &tool.Capability{
			Name: "modify_event",
			Description: "Modifies the existing event with the given event ID. Fields that are " +
				"omitted are left unchanged.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"event_id": {"type": "string", "description": "UUID of the event to modify."},
					"new_name": {"type": "string", "description": "Replacement name."},
					"new_start_time": {"type": "string", "description": "Replacement start, RFC 3339 UTC."},
					"new_end_time": {"type": "string", "description": "Replacement end, RFC 3339 UTC."},
					"new_importance": {"type": "string", "description": "Replacement importance."}
				},
				"required": ["event_id"]
			}`),
			Call: func(ctx context.Context, args map[string]any) (string, error) {
				raw, _ := args["event_id"].(string)
				eventID, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Sprintf("event with id %s was not present", raw), nil
				}

				var event Event
				err = db.WithContext(ctx).
					Where("id = ? AND user_id = ?", eventID, sctx.OwnerIdentity().UserID).
					First(&event).Error
				if err != nil {
					return fmt.Sprintf("event with id %s was not present", eventID), nil
				}

				if name, ok := args["new_name"].(string); ok {
					event.Name = name
				}
				if ts, ok := args["new_start_time"]; ok {
					start, err := parseEventTime(ts)
					if err != nil {
						return "Error: new_start_time must be an RFC 3339 timestamp", nil
					}
					event.StartTime = start
				}
				if ts, ok := args["new_end_time"]; ok {
					end, err := parseEventTime(ts)
					if err != nil {
						return "Error: new_end_time must be an RFC 3339 timestamp", nil
					}
					event.EndTime = end
				}
				if importance, ok := args["new_importance"].(string); ok {
					event.Importance = importance
				}

				if err := db.WithContext(ctx).Save(&event).Error; err != nil {
					return "Error: could not save the event, try again later", nil
				}
				return "Successfully modified the event", nil
			},
		}, nil
	}
}

func parseEventTime(raw any) (int64, error) {
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("not a string")
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, err
	}
	return ts.UTC().Unix(), nil
}
