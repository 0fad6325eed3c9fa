package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ryansann/waypoint/config"
	"github.com/ryansann/waypoint/engine"
	"github.com/ryansann/waypoint/service"
	"github.com/ryansann/waypoint/storage"
	"github.com/ryansann/waypoint/storage/slotfile"
	"github.com/ryansann/waypoint/tcp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	file := pflag.StringP("config", "c", "", "path to a config file (yaml, toml, json, ini)")
	pflag.Parse()

	cfg, err := config.Load(*file)
	if err != nil {
		logrus.Fatal(err)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		logrus.Fatal(err)
	}

	s, err := slotfile.NewStore(log, cfg.Storage.File,
		slotfile.SlotSize(cfg.Storage.SlotSize),
		slotfile.SyncInterval(cfg.Storage.SyncInterval),
	)
	if err != nil {
		log.Fatalf("could not create storage: %v", err)
	}
	defer s.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	// log.Fatalf skips deferred funcs, openEngine closes s when it fails
	eng, err := openEngine(log, s, cfg.Engine, reg)
	if err != nil {
		if storage.IsFatal(err) {
			log.Fatalf("storage can not be trusted, refusing to start: %v", err)
		}
		log.Fatalf("could not create engine: %v", err)
	}

	metrics := serveMetrics(log, cfg.Metrics.Addr, reg)

	faults := make(chan error, 1)

	srv := tcp.NewServer(log, service.New(log, eng),
		tcp.Port(cfg.Server.Port),
		tcp.ReadTimeout(cfg.Server.ReadTimeout),
		tcp.ShutdownTimeout(cfg.Server.ShutdownTimeout),
		tcp.OnFatal(func(err error) { faults <- err }),
	)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	var fault error

	go func() {
		// this blocks until we receive a signal or a storage fault
		select {
		case sig := <-sigs:
			log.Infof("received %v signal, shutting down...", sig)
		case fault = <-faults:
			log.Errorf("storage fault, shutting down: %v", fault)
		}

		err := srv.Close()
		if err != nil {
			log.Error(err)
		}
	}()

	// Serve blocks until the server is Closed
	err = srv.Serve()
	if err != nil {
		s.Close()
		log.Fatal(err)
	}

	if metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		metrics.Shutdown(ctx)
	}

	if fault != nil {
		s.Close()
		os.Exit(1)
	}
}

// openEngine restores an engine from s. If the restore fails s is closed before returning.
func openEngine(log *logrus.Logger, s storage.Storer, cfg config.Engine, reg prometheus.Registerer) (*engine.Engine, error) {
	eng, err := engine.New(log, s,
		engine.Parallelism(cfg.Parallelism),
		engine.Registerer(reg),
	)
	if err != nil {
		cerr := s.Close()
		if cerr != nil {
			log.Errorf("could not close storage: %v", cerr)
		}
		return nil, err
	}

	return eng, nil
}

// newLogger returns a logger with the configured level and format.
func newLogger(cfg config.Log) (*logrus.Logger, error) {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	}

	return log, nil
}

// serveMetrics serves reg on addr in the background, it returns nil if addr is empty.
func serveMetrics(log *logrus.Logger, addr string, reg *prometheus.Registry) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	hs := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Infof("serving metrics on %s", addr)
		err := hs.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server: %v", err)
		}
	}()

	return hs
}
