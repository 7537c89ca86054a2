package router

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/sbus/internal/channel"
	"github.com/flemzord/sbus/pkg/message"
)

const instrumentationName = "github.com/flemzord/sbus/internal/router"

// KeyExtractor produces the channel keys for a message. Returning no keys
// is not an error: the message simply has no mapped destination.
type KeyExtractor func(ctx context.Context, msg message.Message) ([]ChannelKey, error)

// Observer is notified of routing outcomes.
type Observer interface {
	Routed(router string, channels []string)
	Failed(router string, err error)
}

// Config configures a MappingRouter.
type Config struct {
	// Prefix and Suffix are added around every name produced from a string key.
	Prefix string
	Suffix string

	// ResolutionRequired makes unresolvable channel names an error instead
	// of being dropped.
	ResolutionRequired bool

	// Resolver turns channel names into channels.
	Resolver channel.Resolver

	// Converter turns non-string key values into names. Defaults to CastConverter.
	Converter Converter

	// DefaultOutput receives messages for which no channel was resolved.
	DefaultOutput channel.Channel

	// IgnoreSendFailures keeps routing to the remaining channels when a
	// send fails.
	IgnoreSendFailures bool

	// Mappings seeds the key-to-channel-name table.
	Mappings map[string]string

	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider

	// Observer, if set, is told about every Route outcome.
	Observer Observer
}

// MappingRouter maps extracted channel keys to channels. The variant
// constructors in this package differ only in how keys are extracted.
type MappingRouter struct {
	name    string
	cfg     Config
	extract KeyExtractor
	tracer  trace.Tracer

	// validateKey, if set, vets mapping keys before they are stored.
	validateKey func(key string) error

	mu       sync.RWMutex
	mappings map[string]string
}

// New creates a router using extract to obtain channel keys.
func New(name string, extract KeyExtractor, cfg Config) *MappingRouter {
	if cfg.Converter == nil {
		cfg.Converter = CastConverter
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	r := &MappingRouter{
		name:     name,
		cfg:      cfg,
		extract:  extract,
		tracer:   tp.Tracer(instrumentationName),
		mappings: make(map[string]string),
	}
	maps.Copy(r.mappings, cfg.Mappings)
	return r
}

// Name returns the router name.
func (r *MappingRouter) Name() string { return r.name }

// SetChannelMapping maps key to the channel name.
func (r *MappingRouter) SetChannelMapping(key, channelName string) error {
	if r.validateKey != nil {
		if err := r.validateKey(key); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[key] = channelName
	return nil
}

// RemoveChannelMapping deletes the mapping for key, if any.
func (r *MappingRouter) RemoveChannelMapping(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, key)
}

// ReplaceChannelMappings swaps the whole mapping table atomically.
func (r *MappingRouter) ReplaceChannelMappings(mappings map[string]string) error {
	if r.validateKey != nil {
		for key := range mappings {
			if err := r.validateKey(key); err != nil {
				return err
			}
		}
	}
	next := maps.Clone(mappings)
	if next == nil {
		next = make(map[string]string)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings = next
	return nil
}

// ChannelMappings returns a copy of the mapping table.
func (r *MappingRouter) ChannelMappings() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.mappings)
}

// mappingKeys returns the mapped keys in sorted order.
func (r *MappingRouter) mappingKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := lo.Keys(r.mappings)
	slices.Sort(keys)
	return keys
}

func (r *MappingRouter) hasMapping(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mappings[key]
	return ok
}

// target is a normalized key: a channel name, plus the channel itself when
// the key was a handle.
type target struct {
	name string
	ch   channel.Channel
}

// ResolveChannelNames returns the channel names msg maps to, after mapping,
// comma splitting, prefix and suffix, without resolving them.
func (r *MappingRouter) ResolveChannelNames(ctx context.Context, msg message.Message) ([]string, error) {
	targets, err := r.targets(ctx, msg)
	if err != nil {
		return nil, err
	}
	return lo.Map(targets, func(t target, _ int) string { return t.name }), nil
}

// TargetChannels returns the channels msg should be delivered to.
// Unresolvable names are dropped unless ResolutionRequired is set.
func (r *MappingRouter) TargetChannels(ctx context.Context, msg message.Message) ([]channel.Channel, error) {
	targets, err := r.targets(ctx, msg)
	if err != nil {
		return nil, err
	}

	channels := make([]channel.Channel, 0, len(targets))
	for _, t := range targets {
		if t.ch != nil {
			channels = append(channels, t.ch)
			continue
		}
		ch, err := r.resolve(t.name)
		if err != nil {
			return nil, err
		}
		if ch != nil {
			channels = append(channels, ch)
		}
	}
	return channels, nil
}

func (r *MappingRouter) resolve(name string) (channel.Channel, error) {
	if r.cfg.Resolver == nil {
		return nil, fmt.Errorf("%w: router %s", ErrNoResolver, r.name)
	}
	ch, err := r.cfg.Resolver.ResolveDestination(name)
	if err == nil && ch != nil {
		return ch, nil
	}
	if !r.cfg.ResolutionRequired {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrUnresolvableChannel, name, err)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnresolvableChannel, name)
}

func (r *MappingRouter) targets(ctx context.Context, msg message.Message) ([]target, error) {
	keys, err := r.extract(ctx, msg)
	if err != nil {
		return nil, err
	}
	var out []target
	for _, k := range keys {
		if out, err = r.normalize(k, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *MappingRouter) normalize(k ChannelKey, out []target) ([]target, error) {
	var err error
	switch k.kind {
	case KindHandle:
		if k.handle != nil {
			out = append(out, target{name: k.handle.Name(), ch: k.handle})
		}
	case KindName:
		for _, tok := range splitNames(k.name) {
			out = append(out, target{name: r.channelName(tok)})
		}
	case KindMany:
		for _, sub := range k.many {
			if out, err = r.normalize(sub, out); err != nil {
				return nil, err
			}
		}
	case KindValue:
		return r.normalizeValue(k.value, out)
	}
	return out, nil
}

func (r *MappingRouter) normalizeValue(v any, out []target) ([]target, error) {
	var err error
	switch v := v.(type) {
	case nil:
		return out, nil
	case ChannelKey:
		return r.normalize(v, out)
	case string:
		return r.normalize(Name(v), out)
	case channel.Channel:
		return r.normalize(Handle(v), out)
	case []string:
		for _, s := range v {
			out = r.appendNames(s, out)
		}
		return out, nil
	case []channel.Channel:
		for _, ch := range v {
			if out, err = r.normalize(Handle(ch), out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case []any:
		for _, e := range v {
			if out, err = r.normalizeValue(e, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	s, err := r.cfg.Converter.ConvertToString(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %T: %w", ErrUnsupportedKey, v, err)
	}
	return r.normalize(Name(s), out)
}

func (r *MappingRouter) appendNames(s string, out []target) []target {
	for _, tok := range splitNames(s) {
		out = append(out, target{name: r.channelName(tok)})
	}
	return out
}

// channelName maps one key token through the mapping table, falling back to
// the token itself, and applies prefix and suffix.
func (r *MappingRouter) channelName(key string) string {
	r.mu.RLock()
	name, ok := r.mappings[key]
	r.mu.RUnlock()
	if !ok {
		name = key
	}
	return r.cfg.Prefix + name + r.cfg.Suffix
}

// splitNames splits a comma separated key, trimming blanks and dropping
// empty tokens.
func splitNames(s string) []string {
	return lo.FilterMap(strings.Split(s, ","), func(tok string, _ int) (string, bool) {
		tok = strings.TrimSpace(tok)
		return tok, tok != ""
	})
}

// Route sends msg to every target channel. When no channel is resolved, or
// every send failed while IgnoreSendFailures is set, msg goes to the default
// output channel; without one, Route fails with ErrNoRoute.
func (r *MappingRouter) Route(ctx context.Context, msg message.Message) error {
	ctx, span := r.tracer.Start(ctx, "router.route", trace.WithAttributes(
		attribute.String("router.name", r.name),
		attribute.String("message.id", msg.ID.String()),
	))
	defer span.End()

	sent, err := r.route(ctx, span, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if r.cfg.Observer != nil {
			r.cfg.Observer.Failed(r.name, err)
		}
		return err
	}
	span.SetAttributes(attribute.StringSlice("router.channels", sent))
	if r.cfg.Observer != nil {
		r.cfg.Observer.Routed(r.name, sent)
	}
	return nil
}

func (r *MappingRouter) route(ctx context.Context, span trace.Span, msg message.Message) ([]string, error) {
	channels, err := r.TargetChannels(ctx, msg)
	if err != nil {
		return nil, err
	}

	var sent []string
	for _, ch := range channels {
		if err := ch.Send(ctx, msg); err != nil {
			if !r.cfg.IgnoreSendFailures {
				return sent, fmt.Errorf("router %s: send to %s: %w", r.name, ch.Name(), err)
			}
			span.AddEvent("send failed", trace.WithAttributes(
				attribute.String("channel", ch.Name()),
				attribute.String("error", err.Error()),
			))
			continue
		}
		sent = append(sent, ch.Name())
	}
	if len(sent) > 0 {
		return sent, nil
	}

	if r.cfg.DefaultOutput == nil {
		return nil, fmt.Errorf("%w: router %s, message %s", ErrNoRoute, r.name, msg.ID)
	}
	if err := r.cfg.DefaultOutput.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("router %s: send to default output %s: %w", r.name, r.cfg.DefaultOutput.Name(), err)
	}
	return []string{r.cfg.DefaultOutput.Name()}, nil
}
