// Package timex contains a JSON-friendly duration wrapper so config files
// can spell intervals either as strings like "15m" or as integer
// nanoseconds.
package timex

import (
	"encoding/json"
	"errors"
	"time"
)

// Duration wraps time.Duration with JSON unmarshalling support.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}
