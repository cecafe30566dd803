/*
Package fleet is the single entry point of the system: it owns the worker slot
table and exposes fleet lifecycle, message relay and file transfer.

A Controller is built once from explicit dependencies and passed to whoever
needs it. Every slot carries its own lock, so EnsureWorker calls for the same
index run one after another while different indices proceed in parallel.

	ctrl, err := fleet.NewController(fleet.Config{Size: 9, WorkerKey: "WorkerProgram.jar"}, fleet.Deps{
		Compute: compute.NewManager(ec2Client, computeCfg),
		Queues:  coordinator,
		Objects: objectstore.NewStore(s3Client, bucket),
		Store:   boltStore,
		Events:  broker,
	})

	if err := ctrl.EnsureWorker(ctx, 3); err != nil {
		// types.KindOf(err) tells provisioning, query and state failures apart
	}

Relay helpers name the direction from the caller's point of view:
SendToManager and ReceiveFromManager are used by the local client,
SendToWorkers, ReceiveFromLocal and ReceiveFromWorkers by the manager,
ReceiveWorkerTask and SendFromWorker by workers.
*/
package fleet
