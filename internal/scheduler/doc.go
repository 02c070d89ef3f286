// Package scheduler executes flow-control missions one at a time.
//
// The Runner drives a single mission: it opens the valve, steps the flow
// setpoint through the trajectory with cancellable waits between points,
// and always clears the setpoint and closes the valve afterwards.
//
// The Controller owns the FIFO mission queue, the current-mission slot and
// the active flag. One loop goroutine pulls missions from the queue and
// hands them to the Runner; every mission that leaves the queue produces
// exactly one mission.Completed, which is forwarded to the telemetry sinks
// and published on the completed topic. Clearing the active flag cancels
// the running mission and parks the loop until the flag is set again.
//
// Classification results from an external classifier enter through
// PostClassification and are published on a replaying topic, so a late
// subscriber still receives the most recent one.
package scheduler
