// Package mode enumerates the train, eval and predict phases.
package mode

import (
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	lferrors "lightforge/internal/errors"
)

var _ flag.Value = (*Mode)(nil)

// Mode is the operating phase of a collator or a run.
type Mode int

const (
	Train Mode = iota
	Eval
	Predict

	// Count is the number of valid modes; dispatch tables are sized by it.
	Count = int(Predict) + 1
)

var names = [Count]string{"train", "eval", "predict"}

// Names returns the accepted mode names in declaration order.
func Names() []string {
	return append([]string(nil), names[:]...)
}

// All returns every valid mode in declaration order.
func All() []Mode {
	return []Mode{Train, Eval, Predict}
}

// Valid reports whether m is one of Train, Eval or Predict.
func (m Mode) Valid() bool {
	return m >= Train && m <= Predict
}

func (m Mode) String() string {
	if !m.Valid() {
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
	return names[m]
}

// Parse maps a name (case-insensitive) to a Mode.
func Parse(s string) (Mode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for i, name := range names {
		if name == key {
			return Mode(i), nil
		}
	}
	return Train, lferrors.Invalid("mode", s, names[:])
}

// Set implements pflag.Value.
func (m *Mode) Set(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Type implements pflag.Value.
func (m *Mode) Type() string { return "mode" }

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, lferrors.Invalid("mode", m.String(), names[:])
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}
