// Package exitcodes defines the exit codes used by op-recorder.
package exitcodes

// Exit code constants used by op-recorder:
//
// * Success (0): the log was recorded and every case passed or was skipped
// * TestFailure (1): the log was recorded and at least one case failed or broke
// * RuntimeErr (2): the log could not be recorded (bad flags, unreadable log, corrupt fixture pairing)
const (
	Success     = 0 // All cases pass
	TestFailure = 1 // Failed or broken cases
	RuntimeErr  = 2 // Runtime errors
)
