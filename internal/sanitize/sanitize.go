// Package sanitize cleans metric records before they are queued or sent.
package sanitize

import (
	"strings"

	"github.com/and161185/toolkit-telemetry/model"
)

// MetricName removes every character outside [A-Za-z0-9_\-+.:].
func MetricName(name string) string {
	return strings.Map(func(r rune) rune {
		if Allowed(r) {
			return r
		}
		return -1
	}, name)
}

// Allowed reports whether r may appear in a metric name.
func Allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-', r == '+', r == '.', r == ':':
		return true
	}
	return false
}

// Datum defaults the unit, cleans the name and drops metadata with empty keys.
func Datum(d *model.MetricDatum) {
	if d.Unit == "" {
		d.Unit = model.UnitNone
	}
	d.MetricName = MetricName(d.MetricName)

	if len(d.Metadata) == 0 {
		return
	}
	kept := d.Metadata[:0]
	for _, e := range d.Metadata {
		if e.Key == "" {
			continue
		}
		kept = append(kept, e)
	}
	d.Metadata = kept
}

// Metrics sanitizes every datum and drops the ones left without a name.
func Metrics(m *model.Metrics) {
	kept := m.Data[:0]
	for i := range m.Data {
		d := m.Data[i]
		if !d.IsValid() {
			continue
		}
		Datum(&d)
		if !d.IsValid() {
			continue
		}
		kept = append(kept, d)
	}
	m.Data = kept
}
