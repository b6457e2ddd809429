// Package aqi provides Air Quality Index breakpoints and conversions for
// particulate matter concentrations according to EPA standards.
package aqi

import (
	"fmt"
	"math"
)

// Breakpoint is one row of an EPA breakpoint table: concentrations in
// [CLow, CHigh] map linearly onto index values [ILow, IHigh].
type Breakpoint struct {
	CLow, CHigh float64
	ILow, IHigh float64
}

// PM25Breakpoints are the EPA breakpoints for 24-hour PM2.5 averages (μg/m³)
var PM25Breakpoints = []Breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 350.4, 301, 400},
	{350.5, 500.4, 401, 500},
}

// PM10Breakpoints are the EPA breakpoints for 24-hour PM10 averages (μg/m³)
var PM10Breakpoints = []Breakpoint{
	{0, 54, 0, 50},
	{55, 154, 51, 100},
	{155, 254, 101, 150},
	{255, 354, 151, 200},
	{355, 424, 201, 300},
	{425, 504, 301, 400},
	{505, 604, 401, 500},
}

func calculate(c float64, table []Breakpoint) int32 {
	if c < 0 {
		return 0
	}
	for _, bp := range table {
		if c <= bp.CHigh {
			// I = (I_high - I_low) / (C_high - C_low) * (C - C_low) + I_low
			aqi := (bp.IHigh-bp.ILow)/(bp.CHigh-bp.CLow)*(c-bp.CLow) + bp.ILow
			return int32(math.Round(aqi))
		}
	}
	// Beyond the top of the table the AQI is 500+
	return 500
}

// CalculatePM25 calculates the Air Quality Index from PM2.5 concentration (μg/m³)
func CalculatePM25(pm25 float64) int32 {
	return calculate(pm25, PM25Breakpoints)
}

// CalculatePM10 calculates the Air Quality Index from PM10 concentration (μg/m³)
func CalculatePM10(pm10 float64) int32 {
	return calculate(pm10, PM10Breakpoints)
}

// GetCategory returns the AQI category name for a given AQI value
func GetCategory(aqi int32) string {
	switch {
	case aqi <= 50:
		return "Good"
	case aqi <= 100:
		return "Moderate"
	case aqi <= 150:
		return "Unhealthy for Sensitive Groups"
	case aqi <= 200:
		return "Unhealthy"
	case aqi <= 300:
		return "Very Unhealthy"
	default:
		return "Hazardous"
	}
}

// GetCategoryColor returns the standard color code for an AQI value
func GetCategoryColor(aqi int32) string {
	switch {
	case aqi <= 50:
		return "#00e400" // Green
	case aqi <= 100:
		return "#ffff00" // Yellow
	case aqi <= 150:
		return "#ff7e00" // Orange
	case aqi <= 200:
		return "#ff0000" // Red
	case aqi <= 300:
		return "#99004c" // Purple
	default:
		return "#7e0023" // Maroon
	}
}

// CategoryFor returns the category name of a value of measurement m. PM2.5
// concentrations are converted to an index first.
func CategoryFor(m Measurement, v float64) string {
	if m == MeasurementPM25 {
		return GetCategory(CalculatePM25(v))
	}
	return GetCategory(int32(math.Round(v)))
}

// Measurement identifies which quantity the point cloud carries.
type Measurement string

const (
	MeasurementPM25 Measurement = "pm25"
	MeasurementAQI  Measurement = "aqi"
)

// Domain is the valid value range of a measurement. Thresholds are clamped
// into it and missing values are coalesced to Sentinel, which lies below it.
type Domain struct {
	Min, Max float64
}

// Sentinel is strictly below every valid value of the domain.
func (d Domain) Sentinel() float64 {
	return d.Min - 1
}

// Clamp limits v to the domain. NaN clamps to Min.
func (d Domain) Clamp(v float64) float64 {
	if math.IsNaN(v) || v < d.Min {
		return d.Min
	}
	if v > d.Max {
		return d.Max
	}
	return v
}

// DomainFor returns the valid range for a measurement.
func DomainFor(m Measurement) (Domain, error) {
	switch m {
	case MeasurementPM25:
		return Domain{Min: 0, Max: PM25Breakpoints[len(PM25Breakpoints)-1].CHigh}, nil
	case MeasurementAQI:
		return Domain{Min: 0, Max: 500}, nil
	}
	return Domain{}, fmt.Errorf("unknown measurement %q", m)
}

// CategoryStops returns the lower bound of each AQI category expressed in the
// measurement's own units, in ascending order. Color ramps are keyed on these.
func CategoryStops(m Measurement) ([]float64, error) {
	switch m {
	case MeasurementPM25:
		stops := make([]float64, 0, len(PM25Breakpoints))
		for _, bp := range PM25Breakpoints[:6] {
			stops = append(stops, bp.CLow)
		}
		return stops, nil
	case MeasurementAQI:
		stops := make([]float64, 0, len(PM25Breakpoints))
		for _, bp := range PM25Breakpoints[:6] {
			stops = append(stops, bp.ILow)
		}
		return stops, nil
	}
	return nil, fmt.Errorf("unknown measurement %q", m)
}
