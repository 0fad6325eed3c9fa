package main

import (
	"os"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"
	"github.com/ryansann/waypoint/config"
	"github.com/ryansann/waypoint/engine"
	"github.com/ryansann/waypoint/export"
	"github.com/ryansann/waypoint/storage/slotfile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	file := pflag.StringP("config", "c", "", "path to a config file (yaml, toml, json, ini)")
	out := pflag.StringP("out", "o", "waypoint.jsonl.bz2", "export file")
	level := pflag.IntP("level", "l", bzip2.DefaultCompression, "bzip2 compression level (1-9)")
	pflag.Parse()

	log := logrus.New()

	cfg, err := config.Load(*file)
	if err != nil {
		log.Fatal(err)
	}

	// run returns before we exit so its deferred closes always happen
	n, err := run(log, cfg, *out, *level)
	if err != nil {
		log.Fatalf("export failed after %d samples: %v", n, err)
	}

	log.WithFields(logrus.Fields{"samples": n, "file": *out}).Info("export complete")
}

// run exports the data file named by cfg to out and returns the number of samples written.
func run(log *logrus.Logger, cfg *config.Config, out string, level int) (int, error) {
	s, err := slotfile.NewStore(log, cfg.Storage.File, slotfile.SlotSize(cfg.Storage.SlotSize))
	if err != nil {
		return 0, errors.Wrap(err, "could not open storage")
	}
	defer s.Close()

	eng, err := engine.New(log, s, engine.Parallelism(cfg.Engine.Parallelism))
	if err != nil {
		return 0, errors.Wrap(err, "could not restore engine")
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, errors.Wrap(err, "could not create export file")
	}
	defer f.Close()

	return export.Export(eng, f, level)
}
