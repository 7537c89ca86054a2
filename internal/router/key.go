package router

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/flemzord/sbus/internal/channel"
)

// KeyKind discriminates the variant stored in a ChannelKey.
type KeyKind uint8

// Channel key variants.
const (
	// KindName is a channel name, possibly comma separated, subject to the
	// mapping table.
	KindName KeyKind = iota + 1
	// KindHandle is a channel used as-is.
	KindHandle
	// KindMany is a sequence of keys resolved element-wise.
	KindMany
	// KindValue is an arbitrary value converted to a name.
	KindValue
)

// ChannelKey is an intermediate value extracted from a message that the
// router turns into zero or more channels.
type ChannelKey struct {
	kind   KeyKind
	name   string
	handle channel.Channel
	many   []ChannelKey
	value  any
}

// Name returns a key naming one or more channels.
func Name(name string) ChannelKey {
	return ChannelKey{kind: KindName, name: name}
}

// Handle returns a key that resolves directly to ch.
func Handle(ch channel.Channel) ChannelKey {
	return ChannelKey{kind: KindHandle, handle: ch}
}

// Many returns a key grouping several keys.
func Many(keys ...ChannelKey) ChannelKey {
	return ChannelKey{kind: KindMany, many: keys}
}

// Value returns a key for an arbitrary value. Strings, string slices,
// channels and slices of those are recognized; anything else goes through
// the router's Converter.
func Value(v any) ChannelKey {
	return ChannelKey{kind: KindValue, value: v}
}

// Kind returns the variant of k.
func (k ChannelKey) Kind() KeyKind { return k.kind }

func (k ChannelKey) String() string {
	switch k.kind {
	case KindName:
		return k.name
	case KindHandle:
		if k.handle == nil {
			return "channel:<nil>"
		}
		return "channel:" + k.handle.Name()
	case KindMany:
		return fmt.Sprint(k.many)
	default:
		return fmt.Sprintf("value:%v", k.value)
	}
}

// Converter coerces an arbitrary key value to a channel name.
type Converter interface {
	ConvertToString(v any) (string, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(v any) (string, error)

// ConvertToString implements Converter.
func (f ConverterFunc) ConvertToString(v any) (string, error) { return f(v) }

// CastConverter converts scalars, byte slices, fmt.Stringer and error
// values to strings. Other types are rejected.
var CastConverter Converter = ConverterFunc(cast.ToStringE)
