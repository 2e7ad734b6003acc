// Package projection derives read-only dashboard views from task state.
package projection

import (
	"sort"
	"time"

	"treeadopt/internal/model"
)

// DefaultRecentLimit is the length of the recent-activity feed.
const DefaultRecentLimit = 10

// Build computes a wellwisher's dashboard from their tasks at instant now.
// A non-positive recentLimit uses DefaultRecentLimit.
func Build(tasks []model.Task, now time.Time, recentLimit int) model.WorkerStats {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	stats := model.WorkerStats{
		TotalTasks: len(tasks),
		ByStatus: map[model.TaskStatus]int{
			model.TaskPending:    0,
			model.TaskInProgress: 0,
			model.TaskCompleted:  0,
			model.TaskUpdating:   0,
		},
		OverdueTasks:   []model.Task{},
		RecentActivity: []model.Activity{},
		GeneratedAt:    now,
	}

	var activity []model.Activity
	for _, t := range tasks {
		stats.ByStatus[t.Status]++

		if t.Status.HasPlanting() {
			stats.TreesPlanted += t.Quantity
			if t.GrowthUpdateDue(now) {
				stats.GrowthUpdatesDue++
			}
		}
		if t.Status == model.TaskPending && t.ScheduledDate.Before(now) {
			stats.OverdueTasks = append(stats.OverdueTasks, t)
		}

		stats.GrowthUpdatesTotal += len(t.GrowthUpdates)
		activity = append(activity, taskActivity(t)...)
	}

	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].Timestamp.After(activity[j].Timestamp)
	})
	if len(activity) > recentLimit {
		activity = activity[:recentLimit]
	}
	stats.RecentActivity = append(stats.RecentActivity, activity...)

	sort.SliceStable(stats.OverdueTasks, func(i, j int) bool {
		return stats.OverdueTasks[i].ScheduledDate.Before(stats.OverdueTasks[j].ScheduledDate)
	})

	return stats
}

func taskActivity(t model.Task) []model.Activity {
	var out []model.Activity
	entry := func(kind model.ActivityKind, at time.Time) {
		out = append(out, model.Activity{
			Kind:      kind,
			OrderID:   t.OrderID,
			TaskID:    t.TaskID,
			TreeName:  t.TreeName,
			Timestamp: at,
		})
	}

	if t.Planting != nil && !t.Planting.PlantedAt.IsZero() {
		entry(model.ActivityPlanted, t.Planting.PlantedAt)
	}
	if t.CompletedAt != nil {
		entry(model.ActivityCompleted, *t.CompletedAt)
	}
	for _, u := range t.GrowthUpdates {
		entry(model.ActivityGrowthUpdate, u.UploadedAt)
	}
	return out
}
