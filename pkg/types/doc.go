/*
Package types defines the data model shared by Fleet's server-side admission
path and agent-side scheduler: workload and instance names, the execution
state enum, add/delete conditions and their fulfilment rules, and the tagged
WorkloadOperation/PendingEntry unions that carry intent between the two.

Nothing in this package does I/O or holds mutable state — it exists so that
pkg/depeval, pkg/scheduler, pkg/admission, and pkg/cluster can all talk about
the same workload without importing each other.
*/
package types
