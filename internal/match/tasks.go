package match

// The task queue replaces ad-hoc one-shot timers. Deferred effects (respawn,
// reload completion) are queued with the generation they were scheduled
// under; RunDue discards tasks whose generation no longer matches, so a
// restart invalidates everything pending from the previous match without a
// cancellation primitive.

import "time"

type scheduledTask struct {
	runAt      time.Time
	generation uint64
	run        func(now time.Time)
}

// TaskQueue holds deferred effects checked once per tick. The engine is the
// only caller, so no locking is needed.
type TaskQueue struct {
	tasks []scheduledTask
}

// NewTaskQueue constructs an empty queue.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{}
}

// Schedule queues fn to run at or after runAt, stamped with the generation it
// was created under.
func (q *TaskQueue) Schedule(runAt time.Time, generation uint64, fn func(now time.Time)) {
	if q == nil || fn == nil {
		return
	}
	q.tasks = append(q.tasks, scheduledTask{runAt: runAt, generation: generation, run: fn})
}

// RunDue executes every due task whose generation matches and drops due tasks
// from older generations. Returns how many tasks ran.
func (q *TaskQueue) RunDue(now time.Time, generation uint64) int {
	if q == nil || len(q.tasks) == 0 {
		return 0
	}
	var pending []scheduledTask
	var due []scheduledTask
	for _, task := range q.tasks {
		if task.runAt.After(now) {
			pending = append(pending, task)
			continue
		}
		if task.generation == generation {
			due = append(due, task)
		}
		// Stale generations fall through and disappear.
	}
	q.tasks = pending
	for _, task := range due {
		task.run(now)
	}
	return len(due)
}

// Len reports how many tasks are pending.
func (q *TaskQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.tasks)
}

// Clear drops every pending task.
func (q *TaskQueue) Clear() {
	if q == nil {
		return
	}
	q.tasks = nil
}
