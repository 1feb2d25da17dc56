package emitter

import "strings"

// Option names understood by the emitter broker.
const (
	optionMe   = "me"
	optionTTL  = "ttl"
	optionLast = "last"
)

type option struct {
	name  string
	value string
}

// Options is an ordered list of channel options.
//
// Options serialise in insertion order. Setting a name that is already
// present replaces its value and keeps its position. The zero value is an
// empty list ready for use.
type Options struct {
	entries []option
}

// Set assigns value to name and returns o for chaining.
func (o *Options) Set(name, value string) *Options {
	for i := range o.entries {
		if o.entries[i].name == name {
			o.entries[i].value = value
			return o
		}
	}
	o.entries = append(o.entries, option{name: name, value: value})
	return o
}

// Get returns the value for name and whether it is set.
func (o Options) Get(name string) (string, bool) {
	for _, e := range o.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return "", false
}

// Len returns the number of options.
func (o Options) Len() int {
	return len(o.entries)
}

// Encode returns the options as name=value pairs joined by '&'.
// An empty list encodes as "".
func (o Options) Encode() string {
	var b strings.Builder
	for i, e := range o.entries {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(e.name)
		b.WriteByte('=')
		b.WriteString(e.value)
	}
	return b.String()
}

// FormatChannel builds the MQTT topic for key, channel and options.
//
// The key is prefixed to the channel with a '/' separator unless it already
// ends in one; an empty key leaves the channel alone. The result always
// ends with a single added '/' and is followed by "?" and the encoded
// options when there are any. Nothing is escaped or validated.
//
//	FormatChannel("ABC123", "articles", opts) // "ABC123/articles/?me=1&ttl=10"
//	FormatChannel("", "articles/", Options{}) // "articles/"
func FormatChannel(key, channel string, options Options) string {
	formatted := channel
	if key != "" {
		if strings.HasSuffix(key, "/") {
			formatted = key + channel
		} else {
			formatted = key + "/" + channel
		}
	}

	if !strings.HasSuffix(formatted, "/") {
		formatted += "/"
	}

	if options.Len() > 0 {
		formatted += "?" + options.Encode()
	}

	return formatted
}
