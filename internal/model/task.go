package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

const (
	// GrowthUpdateInterval is the spacing between growth updates.
	GrowthUpdateInterval = 30 * 24 * time.Hour

	// EscalationAge is how long a completed task may stay dormant before the
	// escalation sweep moves it to updating.
	EscalationAge = 90 * 24 * time.Hour

	MinImages = 1
	MaxImages = 5
)

// TaskStatus is the state of a wellwisher task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskUpdating   TaskStatus = "updating"
)

// rank orders statuses along the lifecycle.
var rank = map[TaskStatus]int{
	TaskPending:    0,
	TaskInProgress: 1,
	TaskCompleted:  2,
	TaskUpdating:   3,
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	_, ok := rank[s]
	return ok
}

// After reports whether s is strictly later in the lifecycle than other.
func (s TaskStatus) After(other TaskStatus) bool {
	return rank[s] > rank[other]
}

// HasPlanting reports whether tasks in this status carry planting details.
func (s TaskStatus) HasPlanting() bool {
	return s == TaskCompleted || s == TaskUpdating
}

// CanTransition reports whether from → to is an edge of the task lifecycle.
// updating → updating is the growth-update loop.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskPending:
		return to == TaskInProgress
	case TaskInProgress:
		return to == TaskCompleted
	case TaskCompleted:
		return to == TaskUpdating
	case TaskUpdating:
		return to == TaskUpdating
	}
	return false
}

// TaskPriority is the scheduling priority of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

// Image is an uploaded photo held in blob storage.
type Image struct {
	URL        string    `json:"url"`
	ExternalID string    `json:"externalId"`
	Caption    string    `json:"caption,omitempty"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// PlantingDetails records how and where a tree was planted.
type PlantingDetails struct {
	PlantedAt   time.Time  `json:"plantedAt"`
	Location    *orb.Point `json:"location,omitempty"` // [lng, lat]
	Accuracy    *float64   `json:"accuracy,omitempty"`
	Altitude    *float64   `json:"altitude,omitempty"`
	Heading     *float64   `json:"heading,omitempty"`
	Speed       *float64   `json:"speed,omitempty"`
	Images      []Image    `json:"images"`
	Notes       string     `json:"notes,omitempty"`
	CompletedAt time.Time  `json:"completedAt"`
}

// GrowthUpdate is one dated photo submission for a planted tree.
type GrowthUpdate struct {
	ID                uuid.UUID `json:"id"`
	UploadedAt        time.Time `json:"uploadedAt"`
	Images            []Image   `json:"images"`
	Notes             string    `json:"notes,omitempty"`
	DaysSincePlanting int       `json:"daysSincePlanting"`
}

// Task is one unit of planting work inside an order.
type Task struct {
	ID                  uuid.UUID        `json:"-" db:"id"`
	OrderID             uuid.UUID        `json:"orderId" db:"order_id"`
	TaskID              string           `json:"taskId" db:"task_id"`
	WellwisherID        uuid.UUID        `json:"wellwisherId" db:"wellwisher_id"`
	OrderCode           string           `json:"orderCode,omitempty"`
	Description         string           `json:"description" db:"description"`
	TreeName            string           `json:"treeName" db:"tree_name"`
	Quantity            int              `json:"quantity" db:"quantity"`
	ScheduledDate       time.Time        `json:"scheduledDate" db:"scheduled_date"`
	Priority            TaskPriority     `json:"priority" db:"priority"`
	Status              TaskStatus       `json:"status" db:"status"`
	Location            string           `json:"location" db:"location"`
	Planting            *PlantingDetails `json:"plantingDetails,omitempty" db:"planting"`
	GrowthUpdates       []GrowthUpdate   `json:"growthUpdates" db:"growth_updates"`
	NextGrowthUpdateDue *time.Time       `json:"nextGrowthUpdateDue,omitempty" db:"next_growth_update_due"`
	CompletedAt         *time.Time       `json:"completedAt,omitempty" db:"completed_at"`
	StartedAt           *time.Time       `json:"startedAt,omitempty" db:"started_at"`
	CreatedAt           time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt           time.Time        `json:"updatedAt" db:"updated_at"`
}

// DaysSince returns whole days elapsed between from and now, floored.
func DaysSince(from, now time.Time) int {
	if now.Before(from) {
		return 0
	}
	return int(now.Sub(from) / (24 * time.Hour))
}

// GrowthDueBefore returns the start of the UTC day after now. A growth update
// is due when its due date falls before it, i.e. on or before today.
func GrowthDueBefore(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// GrowthUpdateDue reports whether a growth update is due today or earlier.
func (t *Task) GrowthUpdateDue(now time.Time) bool {
	return t.Status.HasPlanting() && t.NextGrowthUpdateDue != nil &&
		t.NextGrowthUpdateDue.Before(GrowthDueBefore(now))
}

// TaskStatusRequest is the body of PUT tasks.
type TaskStatusRequest struct {
	TaskID  string     `json:"taskId"`
	OrderID uuid.UUID  `json:"orderId"`
	Status  TaskStatus `json:"status"`
}

// Upload is an image file received from a client, not yet stored.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// PlantingRequest completes a task with planting evidence.
type PlantingRequest struct {
	TaskID   string
	OrderID  uuid.UUID
	Images   []Upload
	Captions []string
	Notes    string
	Location *orb.Point
	Accuracy *float64
	Altitude *float64
	Heading  *float64
	Speed    *float64
}

// GrowthUpdateRequest submits a growth update for a planted task.
type GrowthUpdateRequest struct {
	TaskID  string
	OrderID uuid.UUID
	Images  []Upload
	Notes   string
}

// TaskFilter narrows a wellwisher's task listing.
type TaskFilter struct {
	Status            TaskStatus
	NeedsGrowthUpdate bool
	Page              int
	Limit             int
}

// TaskPage is a paged task listing.
type TaskPage struct {
	Tasks      []Task     `json:"tasks"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes the position of a page in a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// SweepResult summarises one escalation sweep.
type SweepResult struct {
	Scanned   int `json:"scanned"`
	Escalated int `json:"escalated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}
