package channel

import "errors"

var (
	// ErrUnresolvable is returned when no channel answers to a name.
	ErrUnresolvable = errors.New("channel: unresolvable channel")
	// ErrDuplicateChannel is returned by Register for a name already taken.
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")
	// ErrEmptyName is returned by Register for a channel without a name.
	ErrEmptyName = errors.New("channel: empty channel name")
)
