// Package events defines the station events delivered on the notification bus.
//
// Available event types:
//   - SlotAvailableEvent: a slot became free or a fault was cleared
//   - ChargingStartedEvent: a vehicle was bound to a slot
//   - ChargingCompleteEvent: a charging session finished
//   - BillingFinalizedEvent: a billing record was issued
//   - SlotFaultedEvent: a slot was withdrawn from allocation
package events
