package sync

import "fmt"

// RemoteWriteError reports a create, update or archive call that failed for
// one record. The record is left as it was and picked up by a later cycle.
type RemoteWriteError struct {
	Op      string
	TaskID  string
	PageID  string
	Payload any
	Err     error
}

func (e *RemoteWriteError) Error() string {
	if e.PageID != "" {
		return fmt.Sprintf("%s page %s for task %s: %v", e.Op, e.PageID, e.TaskID, e.Err)
	}
	return fmt.Sprintf("%s page for task %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *RemoteWriteError) Unwrap() error { return e.Err }

// RemoteReadError aborts a pass: the candidate set could not be read.
type RemoteReadError struct {
	Pass string
	Op   string
	Err  error
}

func (e *RemoteReadError) Error() string {
	return fmt.Sprintf("%s pass: %s: %v", e.Pass, e.Op, e.Err)
}

func (e *RemoteReadError) Unwrap() error { return e.Err }
