package common

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/binrpc/lib/tree"
)

// --------------------------------------------------------------------------
// Sentinel errors
// --------------------------------------------------------------------------

var (
	ErrTimedOut           = errors.New("rpc call timed out")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrMethodNotFound     = errors.New("method not found")
	ErrDuplicateProcedure = errors.New("procedure already registered")
	ErrCallInProgress     = errors.New("a call is already in progress")
	ErrCanceled           = errors.New("call canceled")
	ErrNoCall             = errors.New("no call in progress")
)

// --------------------------------------------------------------------------
// Fault codes
// --------------------------------------------------------------------------

// FaultCode is the numeric code carried by a fault frame.
type FaultCode int32

const (
	FaultApplication    FaultCode = 1
	FaultMethodNotFound FaultCode = 2
	FaultConversion     FaultCode = 3
	FaultArgumentCount  FaultCode = 4
	FaultInternal       FaultCode = 5
)

func (c FaultCode) String() string {
	switch c {
	case FaultApplication:
		return "Application"
	case FaultMethodNotFound:
		return "MethodNotFound"
	case FaultConversion:
		return "Conversion"
	case FaultArgumentCount:
		return "ArgumentCount"
	case FaultInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Remote error
// --------------------------------------------------------------------------

// RemoteError is a fault raised on the other side of the connection. Servers
// send it as a fault frame, clients receive it from EndCall.
type RemoteError struct {
	Code    FaultCode
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("RemoteError (code %s): %s", e.Code, e.Message)
}

// Is lets a MethodNotFound fault match ErrMethodNotFound.
func (e *RemoteError) Is(target error) bool {
	return e.Code == FaultMethodNotFound && target == ErrMethodNotFound
}

// NewRemoteError creates a new RemoteError with the given code and message.
func NewRemoteError(code FaultCode, msg string) *RemoteError {
	return &RemoteError{
		Code:    code,
		Message: msg,
	}
}

// Errorf formats a RemoteError with FaultApplication.
func Errorf(format string, args ...any) *RemoteError {
	return NewRemoteError(FaultApplication, fmt.Sprintf(format, args...))
}

// ToRemoteError maps an error raised while handling a call to the fault that
// is sent back. A *RemoteError keeps its code.
func ToRemoteError(err error) *RemoteError {
	var re *RemoteError
	switch {
	case errors.As(err, &re):
		return re
	case errors.Is(err, ErrMethodNotFound):
		return NewRemoteError(FaultMethodNotFound, err.Error())
	case errors.Is(err, tree.ErrConversion):
		return NewRemoteError(FaultConversion, err.Error())
	default:
		return NewRemoteError(FaultApplication, err.Error())
	}
}
