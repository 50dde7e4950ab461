package agent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/helmsman-ai/helmsman/types"
)

// Tool is a persisted tool row. The id doubles as the registry key a
// factory is bound under.
type Tool struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	Name        string `gorm:"size:128;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// TableName implements gorm's table naming.
func (Tool) TableName() string { return "tools" }

// Template is a persisted agent template. A nil UserID marks a global
// template visible to every user; otherwise it is a per-user custom one.
type Template struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name           string     `gorm:"size:128;not null;index:idx_templates_user_name" json:"name"`
	Persona        string     `gorm:"type:text;not null" json:"persona"`
	Purpose        string     `gorm:"type:text;not null" json:"purpose"`
	SwitchableInto bool       `gorm:"not null" json:"switchable_into"`
	UserID         *uuid.UUID `gorm:"type:uuid;index:idx_templates_user_name" json:"user_id,omitempty"`

	Tools []Tool `gorm:"many2many:template_tools" json:"tools"`
}

// TableName implements gorm's table naming.
func (Template) TableName() string { return "agent_templates" }

// IsGlobal reports whether the template is visible to all users.
func (t *Template) IsGlobal() bool { return t.UserID == nil }

// BeforeCreate assigns an id when none was set.
func (t *Template) BeforeCreate(_ *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TemplateStore wraps template and tool queries over gorm.
type TemplateStore struct {
	db *gorm.DB
}

// NewTemplateStore creates a store over db.
func NewTemplateStore(db *gorm.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// Migrate creates the template and tool tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Tool{}, &Template{}, &SummaryRecord{})
}

// ListTools returns every persisted tool.
func (s *TemplateStore) ListTools() ([]Tool, error) {
	var tools []Tool
	if err := s.db.Order("id asc").Find(&tools).Error; err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return tools, nil
}

// ForUser returns the templates visible to userID: global templates plus
// the user's own custom ones.
func (s *TemplateStore) ForUser(userID uuid.UUID) ([]Template, error) {
	var templates []Template
	err := s.db.Preload("Tools").
		Where("user_id IS NULL OR user_id = ?", userID).
		Order("name asc").
		Find(&templates).Error
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// ByNameForUser resolves one template by name among those visible to the
// user. Returns gorm.ErrRecordNotFound when absent.
func (s *TemplateStore) ByNameForUser(userID uuid.UUID, name string) (*Template, error) {
	var tmpl Template
	err := s.db.Preload("Tools").
		Where("(user_id IS NULL OR user_id = ?) AND name = ?", userID, name).
		First(&tmpl).Error
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// CreateCustom persists a per-user template. The name must be unique among
// templates visible to the user, and every tool id must exist.
func (s *TemplateStore) CreateCustom(userID uuid.UUID, name, persona, purpose string, switchableInto bool, toolIDs []string) (*Template, error) {
	if _, err := s.ByNameForUser(userID, name); err == nil {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("agent template with name %q already exists", name))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tools, err := s.resolveToolRows(toolIDs)
	if err != nil {
		return nil, err
	}

	tmpl := &Template{
		Name:           name,
		Persona:        persona,
		Purpose:        purpose,
		SwitchableInto: switchableInto,
		UserID:         &userID,
		Tools:          tools,
	}
	if err := s.db.Create(tmpl).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return tmpl, nil
}

// ModifyCustom updates one of the user's own templates. Global templates
// cannot be modified.
func (s *TemplateStore) ModifyCustom(userID, templateID uuid.UUID, name, persona, purpose string, switchableInto bool, toolIDs []string) (*Template, error) {
	var tmpl Template
	err := s.db.Where("user_id = ? AND id = ?", userID, templateID).First(&tmpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrInvalidConfig,
				fmt.Sprintf("agent template %s not found or not modifiable", templateID))
		}
		return nil, err
	}

	if existing, err := s.ByNameForUser(userID, name); err == nil && existing.ID != templateID {
		return nil, types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("agent template with name %q already exists", name))
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	tools, err := s.resolveToolRows(toolIDs)
	if err != nil {
		return nil, err
	}

	tmpl.Name = name
	tmpl.Persona = persona
	tmpl.Purpose = purpose
	tmpl.SwitchableInto = switchableInto

	if err := s.db.Save(&tmpl).Error; err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	if err := s.db.Model(&tmpl).Association("Tools").Replace(tools); err != nil {
		return nil, fmt.Errorf("replace template tools: %w", err)
	}
	tmpl.Tools = tools
	return &tmpl, nil
}

// DeleteCustom removes one of the user's own templates.
func (s *TemplateStore) DeleteCustom(userID, templateID uuid.UUID) error {
	res := s.db.Where("user_id = ? AND id = ?", userID, templateID).Delete(&Template{})
	if res.Error != nil {
		return fmt.Errorf("delete template: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrInvalidConfig,
			fmt.Sprintf("agent template %s not found or not deletable", templateID))
	}
	return nil
}

func (s *TemplateStore) resolveToolRows(toolIDs []string) ([]Tool, error) {
	tools := make([]Tool, 0, len(toolIDs))
	for _, id := range toolIDs {
		var t Tool
		if err := s.db.First(&t, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, types.NewError(types.ErrInvalidConfig,
					fmt.Sprintf("tool %q was not found", id))
			}
			return nil, err
		}
		tools = append(tools, t)
	}
	return tools, nil
}
