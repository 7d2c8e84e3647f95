// Package codec packs and unpacks the sample and trigger-history
// buffers the shared store holds as opaque strings (spec §6 "Sample
// encoding"). It is the only place in the core that talks a wire
// format; everything above it works with []Sample / []Trigger.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Sample is one (timestamp, value) point of a raw metric buffer.
type Sample struct {
	T int64   `msgpack:"t"`
	V float64 `msgpack:"v"`
}

// Trigger is one entry of a metric's trigger_history.<metric> list.
type Trigger struct {
	T int64   `msgpack:"t"`
	V float64 `msgpack:"v"`
}

// EncodeSamples packs an ordered list of samples into the tagged
// binary scheme the shared store expects under <FULL_NAMESPACE><metric>.
func EncodeSamples(samples []Sample) ([]byte, error) {
	b, err := msgpack.Marshal(samples)
	if err != nil {
		return nil, fmt.Errorf("codec: encode samples: %w", err)
	}
	return b, nil
}

// DecodeSamples unpacks a buffer fetched from the shared store. It
// returns MalformedSeries-compatible errors by wrapping the
// underlying msgpack failure; callers in internal/timeseries turn
// this into the typed MalformedSeries reject.
func DecodeSamples(raw []byte) ([]Sample, error) {
	var samples []Sample
	if err := msgpack.Unmarshal(raw, &samples); err != nil {
		return nil, fmt.Errorf("codec: decode samples: %w", err)
	}
	return samples, nil
}

// EncodeTriggers packs a metric's trigger history for persistence
// under trigger_history.<metric>.
func EncodeTriggers(triggers []Trigger) ([]byte, error) {
	b, err := msgpack.Marshal(triggers)
	if err != nil {
		return nil, fmt.Errorf("codec: encode triggers: %w", err)
	}
	return b, nil
}

// DecodeTriggers unpacks a trigger_history.<metric> buffer.
func DecodeTriggers(raw []byte) ([]Trigger, error) {
	var triggers []Trigger
	if err := msgpack.Unmarshal(raw, &triggers); err != nil {
		return nil, fmt.Errorf("codec: decode triggers: %w", err)
	}
	return triggers, nil
}
