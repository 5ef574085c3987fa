// Package allocation implements the station's central state machine. It owns
// the priority queue and the slot pool exclusively; every mutation runs under
// one lock per station, so allocation decisions are never computed on a stale
// snapshot. Notification delivery happens outside the critical section: each
// operation collects its events while holding the lock and publishes them on
// the bus after releasing it, so slow or failing observers cannot block new
// allocations.
package allocation
