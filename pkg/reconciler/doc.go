/*
Package reconciler keeps a fleet converged by calling EnsureFleet on a fixed
interval.

Each cycle ensures every slot and logs the ones that failed; failed slots are
simply retried on the next tick. The loop runs one cycle as soon as it starts.
It is only used by the long-running "colony fleet watch" command; one-shot
commands call the fleet controller directly.

	r := reconciler.NewReconciler(ctrl, time.Duration(cfg.Fleet.WatchInterval), broker)
	r.Start(ctx)
	defer r.Stop()
*/
package reconciler
