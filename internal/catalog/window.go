package catalog

import (
	"fmt"
	"strings"
	"time"
)

// Default patterns for generated chunk identifiers. {date} expands to
// YYYYMMDD and {hour} to the zero-padded start hour.
const (
	DefaultIDPattern    = "aq_{date}_{hour}"
	DefaultLayerPattern = "aq_{date}_{hour}"
)

// WindowSpec describes a rolling catalog derived from the current date.
type WindowSpec struct {
	Days          int
	HoursPerChunk int
	IDPattern     string
	LayerPattern  string
}

// RollingWindow generates records covering the Days complete days before now.
// HoursPerChunk must divide 24.
func RollingWindow(now time.Time, spec WindowSpec) ([]Record, error) {
	if spec.Days <= 0 {
		return nil, fmt.Errorf("rolling window needs at least one day, got %d", spec.Days)
	}
	if spec.HoursPerChunk <= 0 || HoursPerDay%spec.HoursPerChunk != 0 {
		return nil, fmt.Errorf("hours per chunk must divide %d, got %d", HoursPerDay, spec.HoursPerChunk)
	}
	idPattern := spec.IDPattern
	if idPattern == "" {
		idPattern = DefaultIDPattern
	}
	layerPattern := spec.LayerPattern
	if layerPattern == "" {
		layerPattern = DefaultLayerPattern
	}

	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	first := today.AddDate(0, 0, -spec.Days)

	records := make([]Record, 0, spec.Days*HoursPerDay/spec.HoursPerChunk)
	for day := 0; day < spec.Days; day++ {
		date := first.AddDate(0, 0, day)
		for start := 0; start < HoursPerDay; start += spec.HoursPerChunk {
			records = append(records, Record{
				ID:        expand(idPattern, date, start),
				Layer:     expand(layerPattern, date, start),
				Date:      date.Format(DateLayout),
				StartHour: start,
				EndHour:   start + spec.HoursPerChunk - 1,
			})
		}
	}
	return records, nil
}

func expand(pattern string, date time.Time, hour int) string {
	r := strings.NewReplacer(
		"{date}", date.Format("20060102"),
		"{hour}", fmt.Sprintf("%02d", hour),
	)
	return r.Replace(pattern)
}
