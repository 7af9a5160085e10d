// Package supervisor spawns client processes and tracks them until they exit.
//
// The registry maps pids and instance names to live records; an instance
// name may have several live processes. A record exists from a successful
// spawn until the exit is observed: failed spawns register nothing, and the
// record is gone before the exit event is published. Console output is
// streamed line by line as events and, optionally, into rotating log files.
//
// Process states:
//
//	running -> exited
//	running -> closing -> closed
package supervisor
