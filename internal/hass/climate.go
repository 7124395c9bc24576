package hass

import (
	"context"
	"fmt"
	"slices"
)

// ClimateEntity is an entity on the climate platform.
type ClimateEntity interface {
	Entity

	SupportedFeatures() ClimateEntityFeature
	HVACModes() []HVACMode
	// HVACMode and HVACAction return "" when unknown.
	HVACMode() HVACMode
	HVACAction() HVACAction
	CurrentTemperature() *float64
	TargetTemperature() *float64
	MinTemp() float64
	MaxTemp() float64
	TargetTemperatureStep() float64
	TemperatureUnit() UnitOfTemperature

	SetHVACMode(ctx context.Context, mode HVACMode) error
	SetTemperature(ctx context.Context, data map[string]any) error
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
}

// ClimateState is a point-in-time snapshot of a climate entity.
type ClimateState struct {
	UniqueID           string               `json:"unique_id"`
	Available          bool                 `json:"available"`
	HVACMode           HVACMode             `json:"hvac_mode,omitempty"`
	HVACAction         HVACAction           `json:"hvac_action,omitempty"`
	HVACModes          []HVACMode           `json:"hvac_modes"`
	CurrentTemperature *float64             `json:"current_temperature"`
	TargetTemperature  *float64             `json:"temperature"`
	MinTemp            float64              `json:"min_temp"`
	MaxTemp            float64              `json:"max_temp"`
	Step               float64              `json:"target_temp_step"`
	Unit               UnitOfTemperature    `json:"temperature_unit"`
	SupportedFeatures  ClimateEntityFeature `json:"supported_features"`
}

func SnapshotClimate(e ClimateEntity) ClimateState {
	return ClimateState{
		UniqueID:           e.UniqueID(),
		Available:          e.Available(),
		HVACMode:           e.HVACMode(),
		HVACAction:         e.HVACAction(),
		HVACModes:          e.HVACModes(),
		CurrentTemperature: e.CurrentTemperature(),
		TargetTemperature:  e.TargetTemperature(),
		MinTemp:            e.MinTemp(),
		MaxTemp:            e.MaxTemp(),
		Step:               e.TargetTemperatureStep(),
		Unit:               e.TemperatureUnit(),
		SupportedFeatures:  e.SupportedFeatures(),
	}
}

// CallSetHVACMode validates mode against the entity's modes before invoking it.
func CallSetHVACMode(ctx context.Context, e ClimateEntity, mode HVACMode) error {
	if !slices.Contains(e.HVACModes(), mode) {
		return NewError(fmt.Sprintf("HVAC mode %q is not valid for %s", mode, e.UniqueID()), nil)
	}
	return e.SetHVACMode(ctx, mode)
}

// CallSetTemperature validates the setpoint range before invoking the entity.
func CallSetTemperature(ctx context.Context, e ClimateEntity, temperature float64) error {
	if !e.SupportedFeatures().Has(ClimateTargetTemperature) {
		return NewError(fmt.Sprintf("%s does not support setting a target temperature", e.UniqueID()), ErrNotSupported)
	}
	if temperature < e.MinTemp() || temperature > e.MaxTemp() {
		return NewError(fmt.Sprintf("temperature %.1f is outside %.1f-%.1f", temperature, e.MinTemp(), e.MaxTemp()), nil)
	}
	return e.SetTemperature(ctx, map[string]any{AttrTemperature: temperature})
}

// CallTurnOn invokes TurnOn when the entity declares support for it.
func CallTurnOn(ctx context.Context, e ClimateEntity) error {
	if !e.SupportedFeatures().Has(ClimateTurnOn) {
		return NewError(fmt.Sprintf("%s does not support turn on", e.UniqueID()), ErrNotSupported)
	}
	return e.TurnOn(ctx)
}

// CallTurnOff invokes TurnOff when the entity declares support for it.
func CallTurnOff(ctx context.Context, e ClimateEntity) error {
	if !e.SupportedFeatures().Has(ClimateTurnOff) {
		return NewError(fmt.Sprintf("%s does not support turn off", e.UniqueID()), ErrNotSupported)
	}
	return e.TurnOff(ctx)
}
