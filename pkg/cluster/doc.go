/*
Package cluster is the server side of Fleet: a Raft-replicated desired
state, admitted through pkg/admission before it ever reaches the log, plus
the operation producer that turns a desired-vs-current diff into the
Create/Update/Delete operations an agent's scheduler consumes.

Manager owns the Raft instance and the FSM. ApplyDesiredState is the only
write path for desired state and is where admission happens — a state that
fails admission.CheckState is rejected before Manager.apply ever marshals a
Raft command, so rejection never leaves a partially-applied state behind.
ReportWorkloadState replicates execution-state reports from agents so every
follower's FSM observes the same report stream the leader does.

Raft's own log and stable store are the only place this package uses
boltdb; the FSM's actual business state — the desired workload set and the
reported execution states — lives in an ordinary Go map guarded by a mutex,
copied out on every read.
*/
package cluster
