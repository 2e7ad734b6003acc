package model

import (
	"time"

	"github.com/google/uuid"
)

// Wellwisher is a field worker who plants and maintains trees.
type Wellwisher struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	Active       bool      `json:"active" db:"active"`
	RegisteredAt time.Time `json:"registeredAt" db:"registered_at"`
}

// WorkerLoad is a wellwisher together with their count of unfinished tasks.
type WorkerLoad struct {
	WellwisherID uuid.UUID
	ActiveTasks  int
	RegisteredAt time.Time
}

// ActivityKind labels entries of the recent-activity feed.
type ActivityKind string

const (
	ActivityPlanted      ActivityKind = "planted"
	ActivityCompleted    ActivityKind = "completed"
	ActivityGrowthUpdate ActivityKind = "growth_update"
)

// Activity is one entry of a wellwisher's recent-activity feed.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	OrderID   uuid.UUID    `json:"orderId"`
	TaskID    string       `json:"taskId"`
	TreeName  string       `json:"treeName"`
	Timestamp time.Time    `json:"timestamp"`
}

// WorkerStats is the dashboard projection for one wellwisher.
type WorkerStats struct {
	TotalTasks         int                `json:"totalTasks"`
	ByStatus           map[TaskStatus]int `json:"byStatus"`
	TreesPlanted       int                `json:"treesPlanted"`
	GrowthUpdatesDue   int                `json:"growthUpdatesDue"`
	OverdueTasks       []Task             `json:"overdueTasks"`
	GrowthUpdatesTotal int                `json:"growthUpdatesTotal"`
	RecentActivity     []Activity         `json:"recentActivity"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}
