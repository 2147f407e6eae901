/*
Package storage persists the cluster certificate authority's key material
in a small BoltDB (bbolt) file, separate from the Raft log directory
cluster.Manager owns.

Every other piece of cluster state — workload specs, execution states —
is replicated through Raft instead of kept here; a pre-Raft version of
this package stored that state directly in BoltDB, but reconciling two
sources of truth for the same data was a correctness hazard once Raft
took over, so this package shrank down to just the CA.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		// first run: ca.Initialize() then ca.SaveToStore()
	}
*/
package storage
