// Package types defines the shared data model for Fleet's dependency-aware
// workload scheduler: workload and instance names, execution states, add/delete
// conditions, workload specs, and the tagged operation/queue-entry unions that
// flow between the server's admission path and an agent's scheduler.
package types

import (
	"fmt"
	"regexp"
	"time"
)

// InstanceNameSeparator joins the fields of an instance name's text form and
// is also embedded in the filter/suffix forms used to match runtime
// artefacts belonging to a given agent.
const InstanceNameSeparator = "."

var workloadNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// WorkloadName is a non-empty string restricted to [A-Za-z0-9_-].
type WorkloadName string

// Valid reports whether n is a well-formed workload name.
func (n WorkloadName) Valid() bool {
	return n != "" && workloadNamePattern.MatchString(string(n))
}

// InstanceName uniquely identifies a runtime incarnation of a workload: the
// workload name, the agent it runs on, and the hash of the runtime config it
// was created with.
type InstanceName struct {
	WorkloadName WorkloadName
	AgentName    string
	ConfigHash   string
}

// String renders the instance name's stable text form:
// "<workload_name><SEP><agent_name><SEP><config_hash>".
func (n InstanceName) String() string {
	return fmt.Sprintf("%s%s%s%s%s", n.WorkloadName, InstanceNameSeparator, n.AgentName, InstanceNameSeparator, n.ConfigHash)
}

// AgentFilterSuffix returns the literal suffix form "<SEP><agent_name>" used
// to match all instances of a workload running on a particular agent,
// irrespective of config hash.
func (n InstanceName) AgentFilterSuffix() string {
	return InstanceNameSeparator + n.AgentName
}

// ExecutionState is the tagged runtime lifecycle value reported for a
// workload instance. Values outside this set are treated as "other" by
// fulfilment rules: they never satisfy an AddCondition and are treated
// like any other non-matching known state for a DeleteCondition.
type ExecutionState string

const (
	ExecPending        ExecutionState = "Pending"
	ExecRunning        ExecutionState = "Running"
	ExecSucceeded      ExecutionState = "Succeeded"
	ExecFailed         ExecutionState = "Failed"
	ExecStopping       ExecutionState = "Stopping"
	ExecRemoved        ExecutionState = "Removed"
	ExecWaitingToStart ExecutionState = "WaitingToStart"
	ExecWaitingToStop  ExecutionState = "WaitingToStop"
)

// AddCondition is the state a dependency must be in before a dependant
// workload may be created.
type AddCondition string

const (
	AddCondRunning   AddCondition = "AddCondRunning"
	AddCondSucceeded AddCondition = "AddCondSucceeded"
	AddCondFailed    AddCondition = "AddCondFailed"
)

// FulfilledBy reports whether a dependency reporting state s satisfies c.
// An unknown dependency state (known=false) never fulfils an add
// condition: creation is conservative.
func (c AddCondition) FulfilledBy(s ExecutionState, known bool) bool {
	if !known {
		return false
	}
	switch c {
	case AddCondRunning:
		return s == ExecRunning
	case AddCondSucceeded:
		return s == ExecSucceeded
	case AddCondFailed:
		return s == ExecFailed
	default:
		return false
	}
}

// DeleteCondition is the state a dependant must be in before the workload it
// depends on may be deleted.
type DeleteCondition string

const (
	DelCondRunning              DeleteCondition = "DelCondRunning"
	DelCondNotPendingNorRunning DeleteCondition = "DelCondNotPendingNorRunning"
)

// FulfilledBy reports whether a dependant reporting state s satisfies c. An
// unknown dependant state (known=false) fulfils DelCondNotPendingNorRunning
// but never fulfils DelCondRunning on its own — teardown must not be
// permanently blocked by a dependency Fleet has simply never heard from,
// but "unknown" still isn't "confirmed running".
func (c DeleteCondition) FulfilledBy(s ExecutionState, known bool) bool {
	switch c {
	case DelCondRunning:
		return known && s == ExecRunning
	case DelCondNotPendingNorRunning:
		if !known {
			return true
		}
		return s != ExecPending && s != ExecRunning
	default:
		return false
	}
}

// WorkloadSpec is the desired-state declaration of one workload.
type WorkloadSpec struct {
	InstanceName   InstanceName
	WorkloadName   WorkloadName
	RuntimeName    string
	AgentName      string
	Dependencies   map[WorkloadName]AddCondition
	UpdateStrategy string
	RuntimeConfig  []byte // opaque to the scheduler; interpreted by pkg/runtimeadapter
	CreatedAt      time.Time
}

// DeletedWorkload is the teardown-side view of a workload: the instance
// being removed and the conditions its dependants must be in first.
type DeletedWorkload struct {
	InstanceName InstanceName
	WorkloadName WorkloadName
	Dependencies map[WorkloadName]DeleteCondition
}

// DesiredState is the complete set of workloads a server admits for a
// cluster, plus the runtime states it currently knows about for them.
type DesiredState struct {
	Workloads      map[WorkloadName]*WorkloadSpec
	WorkloadStates map[WorkloadName]ExecutionState
}
