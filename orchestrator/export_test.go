package orchestrator

// HeldLocks reports the number of sessions with a lock holder or waiter.
func (o *Orchestrator) HeldLocks() int {
	return o.locks.len()
}
