package api

import (
	"time"

	"github.com/signalsfoundry/border-queue-sim/core"
	"github.com/signalsfoundry/border-queue-sim/internal/sim/state"
	"github.com/signalsfoundry/border-queue-sim/kb"
	"github.com/signalsfoundry/border-queue-sim/model"
)

// Durations leave the API as float seconds.

type vehicleDTO struct {
	ID                  int          `json:"id"`
	Position            int          `json:"position"`
	OriginalPosition    int          `json:"original_position"`
	Status              model.Status `json:"status"`
	IsHeld              bool         `json:"is_held"`
	HoldCountdownActive bool         `json:"hold_countdown_active"`
	HoldRemaining       int          `json:"hold_remaining"`
	WaitSeconds         float64      `json:"wait_seconds"`
}

type etaDTO struct {
	AllCrossed bool     `json:"all_crossed"`
	Seconds    *float64 `json:"seconds,omitempty"`
	Text       string   `json:"text"`
}

type statsDTO struct {
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	Crossed            int     `json:"crossed"`
	InQueue            int     `json:"in_queue"`
	Held               int     `json:"held"`
	Moving             int     `json:"moving"`
	AverageWaitSeconds float64 `json:"average_wait_seconds"`
	ETA                etaDTO  `json:"eta"`
}

// statsResponseDTO adds the lifetime crossing count from the event log to
// the per-run stats.
type statsResponseDTO struct {
	statsDTO
	TotalCrossings *int `json:"total_crossings,omitempty"`
}

type snapshotDTO struct {
	RunID    string                `json:"run_id"`
	Tick     int                   `json:"tick"`
	Running  bool                  `json:"running"`
	Config   core.SimulationConfig `json:"config"`
	Vehicles []vehicleDTO          `json:"vehicles"`
	Stats    statsDTO              `json:"stats"`
}

type eventDTO struct {
	Seq            uint64       `json:"seq"`
	Type           kb.EventType `json:"type"`
	RunID          string       `json:"run_id"`
	Tick           int          `json:"tick"`
	ElapsedSeconds float64      `json:"elapsed_seconds"`
	VehicleID      int          `json:"vehicle_id,omitempty"`
	WaitSeconds    float64      `json:"wait_seconds,omitempty"`
}

type errorDTO struct {
	Error string `json:"error"`
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func toETADTO(e core.ETA) etaDTO {
	out := etaDTO{AllCrossed: e.AllCrossed, Text: e.String()}
	if !e.AllCrossed {
		s := seconds(e.Estimate)
		out.Seconds = &s
	}
	return out
}

func toStatsDTO(s core.SimulationStats) statsDTO {
	return statsDTO{
		ElapsedSeconds:     seconds(s.Elapsed),
		Crossed:            s.Crossed,
		InQueue:            s.InQueue,
		Held:               s.Held,
		Moving:             s.Moving,
		AverageWaitSeconds: seconds(s.AverageWait),
		ETA:                toETADTO(s.ETA),
	}
}

func toSnapshotDTO(s state.Snapshot) snapshotDTO {
	vehicles := make([]vehicleDTO, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		vehicles = append(vehicles, vehicleDTO{
			ID:                  v.ID,
			Position:            v.Position,
			OriginalPosition:    v.OriginalPosition,
			Status:              v.Status,
			IsHeld:              v.IsHeld,
			HoldCountdownActive: v.HoldCountdownActive,
			HoldRemaining:       v.HoldRemaining,
			WaitSeconds:         seconds(v.WaitTime),
		})
	}
	return snapshotDTO{
		RunID:    s.RunID,
		Tick:     s.Tick,
		Running:  s.Running,
		Config:   s.Config,
		Vehicles: vehicles,
		Stats:    toStatsDTO(s.Stats),
	}
}

func toEventDTO(e kb.Event) eventDTO {
	out := eventDTO{
		Seq:            e.Seq,
		Type:           e.Type,
		RunID:          e.RunID,
		Tick:           e.Tick,
		ElapsedSeconds: seconds(e.Elapsed),
		VehicleID:      e.VehicleID,
	}
	if e.Type == kb.EventVehicleCrossed {
		out.WaitSeconds = seconds(e.Vehicle.WaitTime)
	}
	return out
}
