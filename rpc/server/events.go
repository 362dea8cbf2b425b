package server

import "fmt"

// --------------------------------------------------------------------------
// Runmode
// --------------------------------------------------------------------------

// Runmode is the lifecycle state of a server
type Runmode int32

const (
	Stopped Runmode = iota
	Starting
	Running
	Terminating
	Failed
)

func (m Runmode) String() string {
	switch m {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Terminating:
		return "Terminating"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Runmode(%d)", int32(m))
	}
}

// --------------------------------------------------------------------------
// Connection state
// --------------------------------------------------------------------------

// ConnState is the responder state of a connection
type ConnState uint32

const (
	StateWaitFrame ConnState = iota
	StateParsingParams
	StateDispatching
	StateWritingReply
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateWaitFrame:
		return "WaitFrame"
	case StateParsingParams:
		return "ParsingParams"
	case StateDispatching:
		return "Dispatching"
	case StateWritingReply:
		return "WritingReply"
	default:
		return "Closed"
	}
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// EventKind identifies a server event
type EventKind uint8

const (
	// EventRunmode is raised on every runmode change
	EventRunmode EventKind = iota
	// EventConnected is raised for every accepted connection
	EventConnected
	// EventClosed is raised when a connection was closed
	EventClosed
	// EventIdle is raised when an idle connection was parked on the reactor
	EventIdle
	// EventResumed is raised when a parked connection became readable
	EventResumed
)

func (k EventKind) String() string {
	switch k {
	case EventRunmode:
		return "Runmode"
	case EventConnected:
		return "Connected"
	case EventClosed:
		return "Closed"
	case EventIdle:
		return "Idle"
	case EventResumed:
		return "Resumed"
	default:
		return "Unknown"
	}
}

// Event is delivered to the callbacks registered with OnEvent
type Event struct {
	Kind    EventKind
	Runmode Runmode // for EventRunmode
	ConnID  uint64  // for connection events
	Remote  string  // for connection events
	Err     error   // close reason or the error that failed the server
}

func (e Event) String() string {
	switch e.Kind {
	case EventRunmode:
		return fmt.Sprintf("runmode %s", e.Runmode)
	case EventClosed:
		if e.Err != nil {
			return fmt.Sprintf("connection %d (%s) closed: %v", e.ConnID, e.Remote, e.Err)
		}
	}
	return fmt.Sprintf("connection %d (%s) %s", e.ConnID, e.Remote, e.Kind)
}

// OnEvent registers fn for all server events. Callbacks run synchronously on
// the goroutine raising the event, which may be the reactor loop, so they
// must return quickly.
func (s *RPCServer) OnEvent(fn func(Event)) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

func (s *RPCServer) emit(ev Event) {
	s.eventsMu.RLock()
	callbacks := s.callbacks
	s.eventsMu.RUnlock()

	for _, fn := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					Logger.Errorf("event callback panicked on %s: %v", ev, r)
				}
			}()
			fn(ev)
		}()
	}
}
