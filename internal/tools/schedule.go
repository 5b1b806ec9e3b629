package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FerryClaw/FerryClaw/internal/scheduler"
	"github.com/FerryClaw/FerryClaw/internal/store"
)

// RegisterTaskTool creates scheduled tasks that the scheduler will run.
type RegisterTaskTool struct {
	store    *store.Store
	location *time.Location
}

// NewRegisterTaskTool creates the tool. loc is the timezone cron
// expressions are evaluated in.
func NewRegisterTaskTool(st *store.Store, loc *time.Location) *RegisterTaskTool {
	if loc == nil {
		loc = time.UTC
	}
	return &RegisterTaskTool{store: st, location: loc}
}

func (t *RegisterTaskTool) Name() string { return "register_task" }

func (t *RegisterTaskTool) Description() string {
	return "Register a scheduled task. The task's prompt is run by the agent on the given schedule and the result is delivered to the chat. Use schedule_type 'cron' with a 5-field cron expression for recurring tasks, or 'once' with an RFC3339 timestamp for a one-shot."
}

func (t *RegisterTaskTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chat_id": map[string]any{
				"type":        "integer",
				"description": "The chat to deliver results to (use the current chat_id from the system prompt)",
			},
			"prompt": map[string]any{
				"type":        "string",
				"description": "The instruction the agent should execute on schedule",
			},
			"schedule_type": map[string]any{
				"type":        "string",
				"enum":        []string{"cron", "once"},
				"description": "Recurring cron schedule or a single future execution",
			},
			"schedule_value": map[string]any{
				"type":        "string",
				"description": "5-field cron expression (for 'cron') or RFC3339 timestamp (for 'once')",
			},
		},
		"required": []string{"chat_id", "prompt", "schedule_type", "schedule_value"},
	}
}

func (t *RegisterTaskTool) Execute(_ context.Context, params map[string]any) (string, error) {
	chatID := GetInt64(params, "chat_id", 0)
	prompt := strings.TrimSpace(GetString(params, "prompt", ""))
	scheduleType := GetString(params, "schedule_type", "")
	scheduleValue := strings.TrimSpace(GetString(params, "schedule_value", ""))

	if chatID == 0 {
		return "Error: chat_id is required", nil
	}
	if prompt == "" {
		return "Error: prompt is required", nil
	}
	if auth := AuthFromParams(params); !auth.CanAccessChat(chatID) {
		return fmt.Sprintf("Permission denied: cannot register tasks for chat %d", chatID), nil
	}

	var nextRun time.Time
	switch scheduleType {
	case "cron":
		expr, err := scheduler.ParseCron(scheduleValue)
		if err != nil {
			return fmt.Sprintf("Error: invalid cron expression: %v", err), nil
		}
		nextRun = expr.Next(time.Now().In(t.location)).UTC()
	case "once":
		parsed, err := time.Parse(time.RFC3339, scheduleValue)
		if err != nil {
			return fmt.Sprintf("Error: invalid timestamp (want RFC3339): %v", err), nil
		}
		if parsed.Before(time.Now()) {
			return "Error: one-shot schedule must be in the future", nil
		}
		nextRun = parsed.UTC()
	default:
		return "Error: schedule_type must be 'cron' or 'once'", nil
	}

	id, err := t.store.CreateScheduledTask(&store.ScheduledTask{
		ChatID:        chatID,
		Prompt:        prompt,
		ScheduleType:  scheduleType,
		ScheduleValue: scheduleValue,
		NextRun:       &nextRun,
	})
	if err != nil {
		return fmt.Sprintf("Error registering task: %v", err), nil
	}
	return fmt.Sprintf("Task #%d registered, next run at %s", id, nextRun.Format(time.RFC3339)), nil
}

// ListScheduledTasksTool lists registered tasks.
type ListScheduledTasksTool struct {
	store *store.Store
}

// NewListScheduledTasksTool creates the tool around the store.
func NewListScheduledTasksTool(st *store.Store) *ListScheduledTasksTool {
	return &ListScheduledTasksTool{store: st}
}

func (t *ListScheduledTasksTool) Name() string { return "list_scheduled_tasks" }

func (t *ListScheduledTasksTool) Description() string {
	return "List all registered scheduled tasks with their schedules and next run times."
}

func (t *ListScheduledTasksTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}

func (t *ListScheduledTasksTool) Execute(_ context.Context, params map[string]any) (string, error) {
	tasks, err := t.store.ListScheduledTasks()
	if err != nil {
		return fmt.Sprintf("Error listing tasks: %v", err), nil
	}

	auth := AuthFromParams(params)
	var b strings.Builder
	count := 0
	for _, task := range tasks {
		if !auth.CanAccessChat(task.ChatID) {
			continue
		}
		count++
		next := "retired"
		if task.NextRun != nil {
			next = task.NextRun.Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "#%d [%s %s] chat=%d next=%s prompt=%s\n",
			task.ID, task.ScheduleType, task.ScheduleValue, task.ChatID, next, task.Prompt)
	}
	if count == 0 {
		return "No scheduled tasks.", nil
	}
	return fmt.Sprintf("%d scheduled task(s):\n%s", count, b.String()), nil
}
