package models

import "time"

// TaskInfo records one task spawned by a node execution.
type TaskInfo struct {
	TaskID  string     `json:"task_id"`
	Actor   string     `json:"actor,omitempty"`
	Status  string     `json:"status,omitempty"`
	Comment string     `json:"comment,omitempty"`
	Ended   bool       `json:"ended"`
	EndDate *time.Time `json:"end_date,omitempty"`
}

func (t *TaskInfo) Clone() *TaskInfo {
	clone := *t
	clone.EndDate = cloneTime(t.EndDate)

	return &clone
}

// TasksInfo aggregates the task infos of one node execution.
type TasksInfo struct {
	infos []*TaskInfo
}

func NewTasksInfo(infos []*TaskInfo) TasksInfo {
	return TasksInfo{infos: infos}
}

func (t TasksInfo) Total() int { return len(t.infos) }

func (t TasksInfo) NumberEnded() int {
	count := 0

	for _, info := range t.infos {
		if info.Ended {
			count++
		}
	}

	return count
}

// NumberProcessed counts tasks ended with a chosen status, canceled ones excluded.
func (t TasksInfo) NumberProcessed() int {
	count := 0

	for _, info := range t.infos {
		if info.Ended && info.Status != "" {
			count++
		}
	}

	return count
}

func (t TasksInfo) NumberOpen() int {
	return t.Total() - t.NumberEnded()
}

func (t TasksInfo) NumberEndedWithStatus(status string) int {
	count := 0

	for _, info := range t.infos {
		if info.Ended && info.Status == status {
			count++
		}
	}

	return count
}

// Map is the shape exposed to transition conditions under the "tasks" node variable.
func (t TasksInfo) Map() map[string]any {
	byStatus := make(map[string]any)

	for _, info := range t.infos {
		if !info.Ended || info.Status == "" {
			continue
		}

		count, _ := byStatus[info.Status].(int)
		byStatus[info.Status] = count + 1
	}

	return map[string]any{
		"total":     t.Total(),
		"ended":     t.NumberEnded(),
		"processed": t.NumberProcessed(),
		"open":      t.NumberOpen(),
		"status":    byStatus,
	}
}

type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusEnded    TaskStatus = "ended"
	TaskStatusCanceled TaskStatus = "canceled"
)

// Task is the task record kept by the task service.
type Task struct {
	ID         string     `json:"id"`
	RouteID    string     `json:"route_id"`
	NodeID     string     `json:"node_id"`
	Name       string     `json:"name,omitempty"`
	Assignees  []string   `json:"assignees,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	Permission string     `json:"permission,omitempty"`
	Status     TaskStatus `json:"status"`
	Actor      string     `json:"actor,omitempty"`
	Action     string     `json:"action,omitempty"`
	Comment    string     `json:"comment,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

func (t *Task) IsOpen() bool {
	return t.Status == TaskStatusOpen
}

// IsOverdue reports whether an open task passed its due date at now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.IsOpen() && t.DueDate != nil && t.DueDate.Before(now)
}

func (t *Task) Clone() *Task {
	clone := *t
	clone.Assignees = append([]string(nil), t.Assignees...)
	clone.DueDate = cloneTime(t.DueDate)
	clone.EndedAt = cloneTime(t.EndedAt)

	return &clone
}

func (t *Task) AssignedTo(actor string) bool {
	for _, assignee := range t.Assignees {
		if assignee == actor {
			return true
		}
	}

	return false
}
