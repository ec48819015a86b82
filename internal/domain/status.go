package domain

import "slices"

// Status represents the workflow states a task can be in.
type Status string

const (
	StatusToDo       Status = "ToDo"
	StatusInProgress Status = "InProgress"
	StatusBlocked    Status = "Blocked"
	StatusInQA       Status = "InQA"
	StatusDone       Status = "Done"
	StatusDeployed   Status = "Deployed"
)

// InitialStatus is the only status a task may be created in.
const InitialStatus = StatusToDo

// transitions maps every known status to the statuses reachable from it.
// It is never written after package initialisation.
var transitions = map[Status][]Status{
	StatusToDo:       {StatusInProgress},
	StatusInProgress: {StatusBlocked, StatusInQA},
	StatusBlocked:    {StatusToDo},
	StatusInQA:       {StatusToDo, StatusDone},
	StatusDone:       {StatusDeployed},
	StatusDeployed:   {},
}

// Statuses returns every known status in workflow order.
func Statuses() []Status {
	return []Status{
		StatusToDo, StatusInProgress, StatusBlocked,
		StatusInQA, StatusDone, StatusDeployed,
	}
}

// Valid reports whether s is a member of the status enumeration.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// Successors returns the statuses reachable from s in one step.
// The returned slice is a copy and may be modified by the caller.
func (s Status) Successors() []Status {
	return slices.Clone(transitions[s])
}

// IsAllowed reports whether a task may move from prev to next.
// A nil prev means the task is being created, in which case only
// InitialStatus is accepted.
func IsAllowed(prev *Status, next Status) bool {
	if prev == nil {
		return next == InitialStatus
	}
	allowed, ok := transitions[*prev]
	if !ok {
		return false
	}
	return slices.Contains(allowed, next)
}
