package framework

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicateCommandName is returned when a name or alias is already registered.
	ErrDuplicateCommandName = errors.New("duplicate command name")
	// ErrInvalidCommand is returned for commands without a name or handler.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrUnknownBucket is returned when a command names a bucket that was never added.
	ErrUnknownBucket = errors.New("unknown bucket")
)

// DispatchErrorKind classifies why a message did not reach its handler
type DispatchErrorKind int

const (
	KindCommandNotFound DispatchErrorKind = iota
	KindRateLimited
	KindLackOfPermissions
	KindLackingRole
	KindCheckFailed
)

func (k DispatchErrorKind) String() string {
	switch k {
	case KindCommandNotFound:
		return "command-not-found"
	case KindRateLimited:
		return "rate-limited"
	case KindLackOfPermissions:
		return "lack-of-permissions"
	case KindLackingRole:
		return "lacking-role"
	case KindCheckFailed:
		return "check-failed"
	default:
		return "unknown"
	}
}

// DispatchError is passed to the OnDispatchError hook when a gate rejects a message.
type DispatchError struct {
	Kind DispatchErrorKind
	// Command is the resolved command; nil for KindCommandNotFound
	Command *Command
	// Token is the unresolved first word for KindCommandNotFound
	Token string
	// RetryAfter is set for KindRateLimited
	RetryAfter time.Duration
	// Permissions holds the missing bits for KindLackOfPermissions
	Permissions int64
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case KindCommandNotFound:
		return fmt.Sprintf("command %q not found", e.Token)
	case KindRateLimited:
		return fmt.Sprintf("command %q rate limited for %s", e.Command.Name, e.RetryAfter)
	default:
		return fmt.Sprintf("command %q rejected: %s", e.Command.Name, e.Kind)
	}
}

// RetrySeconds rounds RetryAfter up to whole seconds
func (e *DispatchError) RetrySeconds() int64 {
	secs := int64(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}
