// Package incident holds Beacon's incident lifecycle: the domain model, the
// Transition state machine that turns an alert signal into the next incident
// state and a notification decision, and the Store interface whose Apply
// cycle serializes read-modify-write per monitor.
package incident
