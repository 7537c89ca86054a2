// Package router resolves messages to destination channels through
// key-to-channel mapping tables. Variants extract keys from the payload
// type, a header value, an error cause chain or a caller-supplied function.
package router

import "errors"

// Sentinel errors for router operations.
var (
	// ErrAmbiguousMapping indicates several mapped types are equally close
	// to a payload type. The router never picks one arbitrarily.
	ErrAmbiguousMapping = errors.New("router: ambiguous type mapping")

	// ErrUnsupportedKey indicates a channel key of a type the router cannot
	// turn into a channel name.
	ErrUnsupportedKey = errors.New("router: unsupported channel key type")

	// ErrUnresolvableChannel indicates a channel name could not be resolved
	// while resolution is required.
	ErrUnresolvableChannel = errors.New("router: unresolvable channel")

	// ErrNoResolver indicates channel names must be resolved but the router
	// has no resolver configured.
	ErrNoResolver = errors.New("router: no channel resolver configured")

	// ErrNoRoute indicates no channel was resolved for a message and no
	// default output channel is configured.
	ErrNoRoute = errors.New("router: no channel resolved and no default output")

	// ErrUnknownType indicates a type name that is not registered.
	ErrUnknownType = errors.New("router: unknown type")
)
