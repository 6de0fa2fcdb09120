/*
Package terminal runs interactive sessions behind pseudo-terminals.

A session is a local shell or an ssh client attached to a PTY. The Registry
owns every session record and OS handle; callers address sessions by id and
only ever see Snapshot copies.

Each running session has three goroutines:
  - the output pump, which reads the PTY master in order and publishes data
    events to the session's bus topic
  - the input writer, which drains the session's bounded input queue into the
    PTY so Write never waits on the child
  - the exit watcher, which blocks in Wait, lets the pump drain, publishes one
    exit event and releases the handles

Lifecycle:

	starting -> running -> exited -> closed
	                 \_____________/^
	                   Close

Starting is never observable: Open spawns the process before the session is
registered. Close is idempotent, force-terminates the process group and
returns once teardown is complete. No exit event is published for a session
closed while running; its listeners see the end of their subscription instead.
Once a closed session is torn down only its id is kept: Lookup reports
StateClosed and Snapshot returns ErrNotFound.

Example Usage:

	hub := events.NewHub(events.DefaultConfig(), logger)
	reg := terminal.NewRegistry(hub, logger, terminal.DefaultOptions())

	sid, err := reg.OpenLocal(ctx, terminal.LocalOptions{Cols: 120, Rows: 30})
	if err != nil {
		return err
	}
	defer reg.Close(sid)

	reg.Write(sid, []byte("ls\r"))
*/
package terminal
