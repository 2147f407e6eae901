// Package storage persists the one piece of state that doesn't belong in
// the Raft log: the cluster certificate authority's key material. Every
// other piece of cluster state (workload specs, execution states) lives in
// cluster.Manager's FSM and is replicated there instead, so this package
// no longer carries the node/service/container/secret/volume/ingress CRUD
// surface a pre-Raft version of the store once did.
package storage

// Store persists the cluster CA's serialized key material across restarts.
type Store interface {
	SaveCA(data []byte) error
	GetCA() ([]byte, error)
	Close() error
}
