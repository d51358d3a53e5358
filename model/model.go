// Package model contains core data types for the project.
package model

import "time"

// Unit defines the unit of a metric value.
type Unit string

const (
	UnitNone         Unit = "None"
	UnitMilliseconds Unit = "Milliseconds"
	UnitBytes        Unit = "Bytes"
	UnitPercent      Unit = "Percent"
	UnitCount        Unit = "Count"
)

// MetadataEntry is a single key/value pair attached to a datum.
type MetadataEntry struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// MetricDatum represents one named measurement.
type MetricDatum struct {
	MetricName string          // Metric name, required.
	Unit       Unit            // Defaults to None when empty.
	Value      float64         // Measured value.
	Passive    bool            // Not triggered by a user action.
	Metadata   []MetadataEntry // Ordered, unique keys.
}

// IsValid reports whether the datum may be transmitted.
func (d *MetricDatum) IsValid() bool {
	return d.MetricName != ""
}

// AddMetadata sets key to value, keeping the original position of an existing key.
func (d *MetricDatum) AddMetadata(key, value string) {
	for i := range d.Metadata {
		if d.Metadata[i].Key == key {
			d.Metadata[i].Value = value
			return
		}
	}
	d.Metadata = append(d.Metadata, MetadataEntry{Key: key, Value: value})
}

// MetadataValue returns the value stored under key.
func (d *MetricDatum) MetadataValue(key string) (string, bool) {
	for _, e := range d.Metadata {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Metrics is a batch of data observed at the same moment.
type Metrics struct {
	CreatedOn time.Time
	Data      []MetricDatum
}

// NewMetrics creates a batch stamped with the current time.
func NewMetrics(data ...MetricDatum) Metrics {
	return Metrics{CreatedOn: time.Now(), Data: data}
}

// IsValid reports whether the batch still carries data.
func (m *Metrics) IsValid() bool {
	return len(m.Data) > 0
}

// EpochMillis returns the batch creation time in milliseconds since the epoch.
func (m *Metrics) EpochMillis() int64 {
	return m.CreatedOn.UnixMilli()
}
