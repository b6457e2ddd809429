package main

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/chrissnell/aqtimeline/internal/catalog"
	"github.com/chrissnell/aqtimeline/internal/layers"
	"github.com/chrissnell/aqtimeline/internal/log"
	"github.com/chrissnell/aqtimeline/internal/scheduler"
	"github.com/chrissnell/aqtimeline/internal/timeline"
	"github.com/chrissnell/aqtimeline/pkg/config"
)

func main() {
	var (
		cfgFile = flag.String("config", "config.yaml", "Path to YAML configuration file")
		at      = flag.String("now", "", "Resolve rolling windows as of this RFC 3339 time (default: now)")
		hours   = flag.Bool("hours", false, "Print every hour with its owning chunk and desired set")
		debug   = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	now := time.Now()
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			log.Fatalf("invalid -now: %v", err)
		}
		now = t
	}

	cfg, err := config.NewYAMLProvider(*cfgFile).LoadConfig()
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}
	reg, err := catalog.FromConfig(cfg.Catalog, now, log.Named("catalog"))
	if err != nil {
		log.Fatalf("error building catalog: %v", err)
	}
	settings, err := layers.SettingsFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid settings: %v", err)
	}
	sched, err := scheduler.New(settings.Options.Scheduler, reg, nil, log.Named("scheduler"))
	if err != nil {
		log.Fatalf("invalid scheduler settings: %v", err)
	}
	tl := timeline.New(reg, log.Named("timeline"))

	fmt.Printf("Catalog: %d chunks, %d days from %s, %d hours\n\n",
		reg.Len(), reg.Days(), reg.Epoch().Format(catalog.DateLayout), tl.TotalHours())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if !*hours {
		fmt.Fprintln(w, "#\tID\tLAYER\tDATE\tHOURS")
		for i, c := range reg.Chunks() {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%02d-%02d\n", i, c.ID, c.SourceLayer, c.Date.Format(catalog.DateLayout), c.StartHour, c.EndHour)
		}
		w.Flush()
		return
	}

	fmt.Fprintln(w, "INDEX\tTIME\tCHUNK\tDESIRED")
	for h := 0; h < tl.TotalHours(); h++ {
		inst := tl.Resolve(h)
		owner := inst.ChunkID
		if !inst.Found {
			owner = "(missing)"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", h, inst.Time().Format("2006-01-02 15:00"), owner, sched.DesiredSet(inst).IDs)
	}
	w.Flush()
}
