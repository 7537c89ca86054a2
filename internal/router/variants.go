package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/flemzord/sbus/pkg/message"
)

// NewPayloadTypeRouter routes on the payload's type. Mapping keys are type
// names from types; the mapped type closest to the payload type wins, and
// equally close candidates are an ErrAmbiguousMapping.
func NewPayloadTypeRouter(name string, types *TypeRegistry, cfg Config) (*MappingRouter, error) {
	return newTypeKeyed(name, types, cfg, func(r *MappingRouter) KeyExtractor {
		return func(_ context.Context, msg message.Message) ([]ChannelKey, error) {
			if msg.Payload == nil {
				return nil, nil
			}
			candidates := r.mappingKeys()
			if len(candidates) == 0 {
				return nil, nil
			}
			match, err := types.ClosestMatch(types.Describe(msg.Payload), candidates)
			if err != nil || match == "" {
				return nil, err
			}
			return []ChannelKey{Name(match)}, nil
		}
	})
}

// NewExceptionTypeRouter routes messages whose payload is an error on the
// types found in its wrap chain. Only exact type names are matched, and
// the deepest mapped cause wins.
func NewExceptionTypeRouter(name string, types *TypeRegistry, cfg Config) (*MappingRouter, error) {
	return newTypeKeyed(name, types, cfg, func(r *MappingRouter) KeyExtractor {
		return func(_ context.Context, msg message.Message) ([]ChannelKey, error) {
			err, ok := msg.Payload.(error)
			if !ok {
				return nil, nil
			}
			var deepest string
			walkCauses(err, func(cause error) {
				if n := types.NameOf(cause); r.hasMapping(n) {
					deepest = n
				}
			})
			if deepest == "" {
				return nil, nil
			}
			return []ChannelKey{Name(deepest)}, nil
		}
	})
}

// newTypeKeyed builds a router whose mapping keys must be registered type
// names.
func newTypeKeyed(name string, types *TypeRegistry, cfg Config, build func(r *MappingRouter) KeyExtractor) (*MappingRouter, error) {
	mappings := cfg.Mappings
	cfg.Mappings = nil

	r := New(name, nil, cfg)
	r.extract = build(r)
	r.validateKey = func(key string) error {
		if !types.Known(key) {
			return fmt.Errorf("%w: %s", ErrUnknownType, key)
		}
		return nil
	}
	if err := r.ReplaceChannelMappings(mappings); err != nil {
		return nil, err
	}
	return r, nil
}

// walkCauses visits err and every error it wraps, depth first, outermost
// first.
func walkCauses(err error, visit func(error)) {
	for err != nil {
		visit(err)
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, e := range u.Unwrap() {
				walkCauses(e, visit)
			}
			return
		default:
			err = errors.Unwrap(err)
		}
	}
}

// NewHeaderValueRouter routes on the value of one header. String values
// may name several channels separated by commas; string slices are taken
// element-wise; other values go through the Converter. A missing header
// yields no channels.
func NewHeaderValueRouter(name, header string, cfg Config) *MappingRouter {
	return New(name, func(_ context.Context, msg message.Message) ([]ChannelKey, error) {
		v, ok := msg.Header(header)
		if !ok || v == nil {
			return nil, nil
		}
		return []ChannelKey{Value(v)}, nil
	}, cfg)
}

// Expression evaluates a message to a channel key value: a name, a list of
// names, a channel, or anything the Converter accepts.
type Expression func(ctx context.Context, msg message.Message) (any, error)

// NewExpressionRouter routes on the result of evaluating expr.
func NewExpressionRouter(name string, expr Expression, cfg Config) *MappingRouter {
	return New(name, func(ctx context.Context, msg message.Message) ([]ChannelKey, error) {
		v, err := expr(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("router %s: evaluate: %w", name, err)
		}
		if v == nil {
			return nil, nil
		}
		return []ChannelKey{Value(v)}, nil
	}, cfg)
}
