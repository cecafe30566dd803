/*
Package storage persists the worker slot table in an embedded BoltDB file.

The controlling process records, for every slot, the instance id it last
observed or provisioned. BoltStore keeps those records in the "slots" bucket of
<dataDir>/colony.db, keyed by the big-endian slot index so iteration follows
index order. Values are JSON-encoded types.WorkerSlot.

Persisting the table is optional: the fleet controller rediscovers instances
by their Name tag, and the stored ids only let status reporting survive a
restart without querying the cloud first.

Usage:

	store, err := storage.NewBoltStore(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	slots, err := store.ListSlots()
*/
package storage
