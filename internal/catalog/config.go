package catalog

import (
	"time"

	"github.com/chrissnell/aqtimeline/pkg/config"
	"go.uber.org/zap"
)

// FromConfig builds the registry for a catalog section. A rolling window is
// expanded relative to now; explicit chunks are appended after it.
func FromConfig(cc config.CatalogData, now time.Time, logger *zap.SugaredLogger) (*Registry, error) {
	var records []Record
	if w := cc.Window; w != nil {
		windowed, err := RollingWindow(now, WindowSpec{
			Days:          w.Days,
			HoursPerChunk: w.HoursPerChunk,
			IDPattern:     w.IDPattern,
			LayerPattern:  w.LayerPattern,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, windowed...)
	}
	for _, c := range cc.Chunks {
		records = append(records, Record{
			ID:        c.ID,
			Layer:     c.Layer,
			Date:      c.Date,
			StartHour: c.StartHour,
			EndHour:   c.EndHour,
		})
	}
	return NewRegistry(records, logger)
}

// Rolling reports whether the catalog changes with the date.
func Rolling(cc config.CatalogData) bool {
	return cc.Window != nil
}
