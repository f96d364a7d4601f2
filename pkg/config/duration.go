package config

import "time"

// Duration wraps time.Duration with text (de)serialization, since TOML has
// no native duration type and BurntSushi/toml falls back to a value's
// encoding.TextUnmarshaler when one is implemented.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting any string
// time.ParseDuration understands (e.g. "15s", "1m30s").
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }
