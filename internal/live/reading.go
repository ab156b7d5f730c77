// Package live proxies single-value metric reads from the graphing node.
package live

import (
	"strconv"
	"strings"

	"github.com/f9-o/sensorhub/internal/remote"
)

// Reading is one metric value as reported by a node: either a value or
// absent because the node has no such sensor.
type Reading struct {
	value   string
	present bool
}

// Value returns a present reading.
func Value(s string) Reading { return Reading{value: s, present: true} }

// Absent is the reading for a metric the node cannot provide.
var Absent = Reading{}

// ParseReading converts a wire body into a Reading. The NoSensor sentinel
// becomes Absent; anything else is kept verbatim.
func ParseReading(body string) Reading {
	if strings.TrimSpace(body) == remote.NoSensor {
		return Absent
	}
	return Value(body)
}

// Present reports whether the reading holds a value.
func (r Reading) Present() bool { return r.present }

// String returns the wire form: the raw value or the NoSensor sentinel.
func (r Reading) String() string {
	if !r.present {
		return remote.NoSensor
	}
	return r.value
}

// Float parses the value as a number. Multi-axis values such as
// "x,y,z" yield their first component.
func (r Reading) Float() (float64, bool) {
	if !r.present {
		return 0, false
	}
	s := strings.TrimSpace(r.value)
	if i := strings.IndexAny(s, ", "); i >= 0 {
		s = s[:i]
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}
