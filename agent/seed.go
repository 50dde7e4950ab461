package agent

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Fixed ids for the global templates so reseeding across environments is
// deterministic.
var defaultTemplateIDs = map[string]uuid.UUID{
	"supervisor_agent": uuid.MustParse("0e3f9f3a-9a01-4a7e-8a11-6f1c2b5d0001"),
	"math_agent":       uuid.MustParse("0e3f9f3a-9a01-4a7e-8a11-6f1c2b5d0002"),
	"coding_agent":     uuid.MustParse("0e3f9f3a-9a01-4a7e-8a11-6f1c2b5d0003"),
	"research_agent":   uuid.MustParse("0e3f9f3a-9a01-4a7e-8a11-6f1c2b5d0004"),
	"creator_agent":    uuid.MustParse("0e3f9f3a-9a01-4a7e-8a11-6f1c2b5d0005"),
	"planner_agent":    uuid.MustParse("0e3f9f3a-9a01-4a7e-8a11-6f1c2b5d0006"),
}

func defaultTools() []Tool {
	return []Tool{
		{ID: "switch_to_more_qualified_agent", Name: "Switch to qualified agent", Description: "Hands the conversation off to a more qualified helper agent."},
		{ID: "switch_back_to_supervisor", Name: "Switch back to supervisor", Description: "Returns control of the conversation to the supervisor."},
		{ID: "check_helper_agent_chat_summaries", Name: "Check helper summaries", Description: "Shows what the helper agents have talked about with the user."},
		{ID: "summarize_chat", Name: "Summarize chat", Description: "Stores a rolling summary of the current chat."},
		{ID: "get_current_date", Name: "Get current date", Description: "Returns the current date and time in UTC."},
		{ID: "run_command", Name: "Run command", Description: "Runs a shell command inside the session sandbox."},
		{ID: "create_file", Name: "Create file", Description: "Writes a file inside the session sandbox."},
		{ID: "run_code_snippet_tool", Name: "Run code snippet", Description: "Runs a Python snippet inside the session sandbox."},
		{ID: "run_wolfram_alpha_tool", Name: "Wolfram Alpha", Description: "Evaluates a mathematical query with Wolfram Alpha."},
		{ID: "perform_web_search", Name: "Web search", Description: "Searches the web for articles."},
		{ID: "request_external_information", Name: "Ask research agent", Description: "Asks the research agent to look something up."},
		{ID: "generate_image_and_show_it_to_user", Name: "Generate image", Description: "Generates an image and shows it to the user."},
		{ID: "view_schedule", Name: "View schedule", Description: "Lists the user's scheduled events."},
		{ID: "add_new_event", Name: "Add event", Description: "Adds an event to the user's schedule."},
		{ID: "remove_event_with_id", Name: "Remove event", Description: "Removes an event from the user's schedule."},
		{ID: "modify_event", Name: "Modify event", Description: "Modifies an event on the user's schedule."},
	}
}

type templateSeed struct {
	name           string
	persona        string
	purpose        string
	switchableInto bool
	toolIDs        []string
}

func defaultTemplates() []templateSeed {
	return []templateSeed{
		{
			name:    "supervisor_agent",
			persona: "You are a helpful, slightly sassy assistant. You can talk about any topic.",
			purpose: "You coordinate the conversation. When the user needs something a helper agent is better at, " +
				"hand off with the switch_to_more_qualified_agent tool; don't hesitate to use it.",
			toolIDs: []string{
				"switch_to_more_qualified_agent",
				"check_helper_agent_chat_summaries",
				"summarize_chat",
				"get_current_date",
			},
		},
		{
			name:           "math_agent",
			persona:        "You are a precise and patient math assistant.",
			purpose:        "You solve mathematical problems, using Wolfram Alpha for anything non-trivial.",
			switchableInto: true,
			toolIDs: []string{
				"run_wolfram_alpha_tool",
				"summarize_chat",
				"switch_back_to_supervisor",
			},
		},
		{
			name: "coding_agent",
			persona: "You are a helpful coding assistant. You only work with Python, no other programming " +
				"language. Always add comments and type annotations to any Python code you run.",
			purpose:        "You write and execute Python code in a sandbox on the user's behalf.",
			switchableInto: true,
			toolIDs: []string{
				"run_command",
				"create_file",
				"run_code_snippet_tool",
				"summarize_chat",
				"switch_back_to_supervisor",
			},
		},
		{
			name: "research_agent",
			persona: "You are a helpful research agent. You look for articles on the internet and use the " +
				"current date to tell whether an article talks about the past or the future.",
			purpose: "You answer questions that require up-to-date information from the web.",
			toolIDs: []string{
				"get_current_date",
				"perform_web_search",
				"summarize_chat",
			},
		},
		{
			name:           "creator_agent",
			persona:        "You are a creative writer and illustrator.",
			purpose:        "You produce textual content such as poems, stories, and scripts, and generate images on request.",
			switchableInto: true,
			toolIDs: []string{
				"generate_image_and_show_it_to_user",
				"request_external_information",
				"summarize_chat",
				"switch_back_to_supervisor",
			},
		},
		{
			name:           "planner_agent",
			persona:        "You are an organized scheduling assistant.",
			purpose:        "You manage the user's schedule of events.",
			switchableInto: true,
			toolIDs: []string{
				"view_schedule",
				"add_new_event",
				"remove_event_with_id",
				"modify_event",
				"get_current_date",
				"summarize_chat",
				"switch_back_to_supervisor",
			},
		},
	}
}

// Seed populates the tool and template tables with the default agents.
// It is idempotent: populated tables are left untouched.
func Seed(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var toolCount int64
	if err := db.Model(&Tool{}).Count(&toolCount).Error; err != nil {
		return fmt.Errorf("count tools: %w", err)
	}
	if toolCount == 0 {
		logger.Info("seeding default tools")
		if err := db.Create(defaultToolsPtr()).Error; err != nil {
			return fmt.Errorf("seed tools: %w", err)
		}
	}

	var templateCount int64
	if err := db.Model(&Template{}).Count(&templateCount).Error; err != nil {
		return fmt.Errorf("count templates: %w", err)
	}
	if templateCount > 0 {
		logger.Info("template seeding skipped, templates already exist")
		return nil
	}

	var tools []Tool
	if err := db.Find(&tools).Error; err != nil {
		return fmt.Errorf("load tools: %w", err)
	}
	byID := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byID[t.ID] = t
	}

	for _, seed := range defaultTemplates() {
		tmpl := Template{
			ID:             defaultTemplateIDs[seed.name],
			Name:           seed.name,
			Persona:        seed.persona,
			Purpose:        seed.purpose,
			SwitchableInto: seed.switchableInto,
		}
		for _, id := range seed.toolIDs {
			t, ok := byID[id]
			if !ok {
				return fmt.Errorf("seed template %q: tool %q does not exist", seed.name, id)
			}
			tmpl.Tools = append(tmpl.Tools, t)
		}
		if err := db.Create(&tmpl).Error; err != nil {
			return fmt.Errorf("seed template %q: %w", seed.name, err)
		}
	}

	logger.Info("seeded default agent templates", zap.Int("templates", len(defaultTemplates())))
	return nil
}

func defaultToolsPtr() []*Tool {
	tools := defaultTools()
	out := make([]*Tool, len(tools))
	for i := range tools {
		out[i] = &tools[i]
	}
	return out
}
