package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// MaxKeyLength bounds the rendered text of a key accepted by Validate.
const MaxKeyLength = 4096

// Key is an immutable cache key. The zero value is NotCacheable.
type Key struct {
	text string
	ok   bool
}

// NotCacheable marks output that must not be stored. Composing it with any
// other key yields NotCacheable.
var NotCacheable = Key{}

// Cacheable reports whether k may be used to store output.
func (k Key) Cacheable() bool { return k.ok }

// String returns the canonical text of the key, or "<not-cacheable>".
func (k Key) String() string {
	if !k.ok {
		return "<not-cacheable>"
	}
	return k.text
}

// Equal reports whether two keys render identically.
func (k Key) Equal(o Key) bool { return k == o }

// Hash returns the hex SHA-256 of the key text. It is stable across
// processes and safe to use as a file name.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.String()))
	return hex.EncodeToString(sum[:])
}

// Compose joins keys in order. Each segment is written as "<n>:<text>" so
// the result is unambiguous and position-preserving. Composing nothing is
// NotCacheable.
func Compose(keys ...Key) Key {
	if len(keys) == 0 {
		return NotCacheable
	}
	var b strings.Builder
	for _, k := range keys {
		if !k.ok {
			return NotCacheable
		}
		b.WriteString(strconv.Itoa(len(k.text)))
		b.WriteByte(':')
		b.WriteString(k.text)
	}
	return Key{text: b.String(), ok: true}
}

// Builder accumulates the fields of a component key.
type Builder struct {
	component string
	b         strings.Builder
	n         int
	err       error
}

// New starts a key for the named component.
func New(component string) *Builder {
	return &Builder{component: component}
}

func (b *Builder) field(name, value string) *Builder {
	if b.n > 0 {
		b.b.WriteByte(';')
	}
	b.n++
	b.b.WriteString(name)
	b.b.WriteByte('=')
	b.b.WriteString(strconv.Itoa(len(value)))
	b.b.WriteByte(':')
	b.b.WriteString(value)
	return b
}

// String adds a text field.
func (b *Builder) String(name, value string) *Builder { return b.field(name, value) }

// Int adds an integer field.
func (b *Builder) Int(name string, value int) *Builder {
	return b.field(name, strconv.Itoa(value))
}

// Int64 adds a 64-bit integer field.
func (b *Builder) Int64(name string, value int64) *Builder {
	return b.field(name, strconv.FormatInt(value, 10))
}

// Bool adds a boolean field.
func (b *Builder) Bool(name string, value bool) *Builder {
	return b.field(name, strconv.FormatBool(value))
}

// Params adds the Digest of an arbitrary parameter bag.
func (b *Builder) Params(name string, v any) *Builder {
	d, err := Digest(v)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("cachekey: field %q: %w", name, err)
		}
		return b
	}
	return b.field(name, d)
}

// Err returns the first error recorded while adding fields.
func (b *Builder) Err() error { return b.err }

// Build returns the key. A builder that recorded an error builds
// NotCacheable.
func (b *Builder) Build() Key {
	if b.err != nil {
		return NotCacheable
	}
	return Key{text: b.component + "{" + b.b.String() + "}", ok: true}
}

// Validate checks a rendered key before it is handed to a store.
func Validate(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d > %d", ErrKeyTooLong, len(key), MaxKeyLength)
	}
	if strings.ContainsAny(key, "\r\n") {
		return ErrInvalidKey
	}
	return nil
}
