package domain

// Action is what a run may do with a container.
type Action string

const (
	ActionNone   Action = ""
	ActionCheck  Action = "check"
	ActionUpdate Action = "update"
)

// ActionFor derives the action from a stored policy. A container without a policy is ignored.
func ActionFor(p *ContainerPolicy) Action {
	if p == nil || !p.CheckEnabled {
		return ActionNone
	}
	if p.UpdateEnabled {
		return ActionUpdate
	}
	return ActionCheck
}

// Outcome is the per-container result of a run.
type Outcome string

const (
	OutcomeUnset             Outcome = ""
	OutcomeNotAvailable      Outcome = "not_available"
	OutcomeAvailable         Outcome = "available"
	OutcomeAvailableNotified Outcome = "available(notified)"
	OutcomeUpdated           Outcome = "updated"
	OutcomeRolledBack        Outcome = "rolled_back"
	OutcomeFailed            Outcome = "failed"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeNotAvailable,
		OutcomeAvailable,
		OutcomeAvailableNotified,
		OutcomeUpdated,
		OutcomeRolledBack,
		OutcomeFailed:
		return true
	}
	return false
}

// Worthy reports whether the outcome is something a notification should mention.
func (o Outcome) Worthy() bool {
	switch o {
	case OutcomeAvailable, OutcomeUpdated, OutcomeRolledBack, OutcomeFailed:
		return true
	}
	return false
}

// Status is the progress of a run at some scope.
type Status string

const (
	StatusPreparing Status = "preparing"
	StatusChecking  Status = "checking"
	StatusUpdating  Status = "updating"
	StatusPruning   Status = "pruning"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// Finished is true for statuses that allow a new run to start.
func (s Status) Finished() bool {
	return s == StatusDone || s == StatusError
}

type ContainerCheckResult struct {
	Container *Container `json:"container"`
	OldImage  *Image     `json:"old_image,omitempty"`
	NewImage  *Image     `json:"new_image,omitempty"`
	Result    Outcome    `json:"result,omitempty"`
}

func (r ContainerCheckResult) Name() string {
	return ContainerName(r.Container)
}

type GroupResult struct {
	HostID   int                     `json:"host_id"`
	HostName string                  `json:"host_name"`
	Items    []*ContainerCheckResult `json:"items"`
}

type HostResult struct {
	GroupResult
	PruneResult string `json:"prune_result,omitempty"`
}

// AnyWorthy reports whether any item has an outcome worth notifying about.
func (r *HostResult) AnyWorthy() bool {
	for _, item := range r.Items {
		if item.Result.Worthy() {
			return true
		}
	}
	return false
}

// FleetResult maps host ids to their results.
type FleetResult map[int]*HostResult
