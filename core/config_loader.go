// core/config_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// internal JSON shapes; pointer fields let absent keys keep their defaults.
type configJSON struct {
	MaxQueueLength                  *int                `json:"max_queue_length"`
	TickInterval                    *string             `json:"tick_interval"` // Go duration, e.g. "5s"
	HeldVehicleCount                *int                `json:"held_vehicle_count"`
	MaxHoldDuration                 *int                `json:"max_hold_duration"`
	ActivationThreshold             *thresholdRangeJSON `json:"activation_threshold"`
	CrossingsBeforeHoldDelayCounted *int                `json:"crossings_before_hold_delay_counted"`
}

type thresholdRangeJSON struct {
	Low  *int `json:"low"`
	High *int `json:"high"`
}

// LoadConfig reads a JSON configuration from r, layering it over base. The
// merged result is validated before it is returned.
func LoadConfig(r io.Reader, base SimulationConfig) (SimulationConfig, error) {
	if r == nil {
		return base, base.Validate()
	}

	var raw configJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return base, fmt.Errorf("%w: decode config: %v", ErrInvalidConfiguration, err)
	}

	cfg, err := raw.merge(base)
	if err != nil {
		return base, err
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// UnmarshalJSON layers the document over c without validating the result.
func (c *SimulationConfig) UnmarshalJSON(data []byte) error {
	var raw configJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	cfg, err := raw.merge(*c)
	if err != nil {
		return err
	}
	*c = cfg
	return nil
}

func (raw configJSON) merge(base SimulationConfig) (SimulationConfig, error) {
	cfg := base
	if raw.MaxQueueLength != nil {
		cfg.MaxQueueLength = *raw.MaxQueueLength
	}
	if raw.TickInterval != nil {
		d, err := time.ParseDuration(*raw.TickInterval)
		if err != nil {
			return base, fmt.Errorf("%w: tick_interval %q: %v", ErrInvalidConfiguration, *raw.TickInterval, err)
		}
		cfg.TickInterval = d
	}
	if raw.HeldVehicleCount != nil {
		cfg.HeldVehicleCount = *raw.HeldVehicleCount
	}
	if raw.MaxHoldDuration != nil {
		cfg.MaxHoldDuration = *raw.MaxHoldDuration
	}
	if t := raw.ActivationThreshold; t != nil {
		if t.Low != nil {
			cfg.ActivationThreshold.Low = *t.Low
		}
		if t.High != nil {
			cfg.ActivationThreshold.High = *t.High
		}
	}
	if raw.CrossingsBeforeHoldDelayCounted != nil {
		cfg.CrossingsBeforeHoldDelayCounted = *raw.CrossingsBeforeHoldDelayCounted
	}
	return cfg, nil
}

// MarshalJSON renders the config in the same shape LoadConfig accepts.
func (c SimulationConfig) MarshalJSON() ([]byte, error) {
	tick := c.TickInterval.String()
	return json.Marshal(configJSON{
		MaxQueueLength:   &c.MaxQueueLength,
		TickInterval:     &tick,
		HeldVehicleCount: &c.HeldVehicleCount,
		MaxHoldDuration:  &c.MaxHoldDuration,
		ActivationThreshold: &thresholdRangeJSON{
			Low:  &c.ActivationThreshold.Low,
			High: &c.ActivationThreshold.High,
		},
		CrossingsBeforeHoldDelayCounted: &c.CrossingsBeforeHoldDelayCounted,
	})
}
