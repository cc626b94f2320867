// Package tracker implements functionality for tracking and saving
// the metrics reported during training.
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Tracker tracks metric values reported at evaluation checkpoints and
// saves them to disk once training is done.
type Tracker interface {
	// Track records the metric values reported at a training step
	Track(step int, metrics map[string]float64)

	// Save all tracked data to disk
	Save() error
}

// metricsData is the on-disk representation of tracked metrics.
type metricsData struct {
	Steps   []int
	History map[string][]float64
}

// Metrics tracks every reported metric value, keyed by metric name,
// together with the training step it was reported at.
type Metrics struct {
	filename string
	data     metricsData
}

// NewMetrics creates and returns a new *Metrics Tracker that saves to
// filename.
func NewMetrics(filename string) *Metrics {
	return &Metrics{
		filename: filename,
		data: metricsData{
			History: make(map[string][]float64),
		},
	}
}

// Track records the metric values reported at a training step.
func (m *Metrics) Track(step int, metrics map[string]float64) {
	m.data.Steps = append(m.data.Steps, step)
	for name, value := range metrics {
		m.data.History[name] = append(m.data.History[name], value)
	}
}

// Save saves the data tracked by the Metrics Tracker to disk.
func (m *Metrics) Save() error {
	file, err := os.Create(m.filename)
	if err != nil {
		return fmt.Errorf("save: could not open save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(m.data); err != nil {
		return fmt.Errorf("save: could not encode metric data: %v", err)
	}
	return nil
}

// LoadMetrics loads metric data saved by a Metrics Tracker.
func LoadMetrics(filename string) (steps []int,
	history map[string][]float64, err error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("loadMetrics: could not open file: %v",
			err)
	}
	defer file.Close()

	var data metricsData
	dec := gob.NewDecoder(file)
	if err := dec.Decode(&data); err != nil {
		return nil, nil, fmt.Errorf("loadMetrics: could not decode "+
			"metric data: %v", err)
	}
	return data.Steps, data.History, nil
}
