/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// Package srv wires the stream bridge, the sample store and the processing
// worker into one process and exposes them over the HTTP control API.
package srv

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"jinr.ru/greenlab/go-eeg/pkg/bridge"
	"jinr.ru/greenlab/go-eeg/pkg/config"
	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/log"
	"jinr.ru/greenlab/go-eeg/pkg/processing"
	"jinr.ru/greenlab/go-eeg/pkg/state"
	"jinr.ru/greenlab/go-eeg/pkg/store"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

type Server struct {
	context.Context
	*config.Config
	*mux.Router
	Registry *prometheus.Registry
	Store    *store.Store
	Bridge   *bridge.Bridge
	Worker   *processing.Worker
	Presets  *state.Presets
	Events   *event.Log
}

func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	bridgeCfg, err := cfg.Bridge()
	if err != nil {
		return nil, err
	}
	presets, err := state.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	events := event.NewLog(event.DefaultLogSize)
	handler := event.Multi{events, event.HandlerFunc(logEvent)}

	s := &Server{
		Context:  ctx,
		Config:   cfg,
		Registry: registry,
		Presets:  presets,
		Events:   events,
	}
	s.Store = store.New(store.WithCapacitySeconds(cfg.CapacitySeconds), store.WithMetrics(registry))
	s.Bridge = bridge.NewBridge(bridgeCfg, s.Store, bridge.WithEventHandler(handler), bridge.WithMetrics(registry))
	s.Worker = processing.NewWorker(s.Store, nil, processing.WithEventHandler(handler), processing.WithMetrics(registry))
	s.configureRouter()
	return s, nil
}

func logEvent(e event.Event) {
	switch e.Kind {
	case event.Stimulation:
		log.Debug("Event: %s", e)
	case event.Finished:
		log.Info("Event: %s", e)
	default:
		log.Warning("Event: %s", e)
	}
}

// Handler is the router wrapped with request logging and panic recovery
func (s *Server) Handler() http.Handler {
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.LoggingHandler(log.Writer(), s.Router))
}

// Run binds the bridge socket and serves until the context is done
// or the bridge or the API server fails.
func (s *Server) Run() error {
	defer s.Presets.Close()

	if err := s.Bridge.Bind(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(s.Context)
	defer cancel()
	errChan := make(chan error, 2)

	go func() {
		if err := s.Bridge.Spin(ctx); err != nil {
			errChan <- err
		}
	}()

	log.Info("Starting API server on %s", s.ApiEndpoint())
	httpServer := &http.Server{
		Handler:           s.Handler(),
		Addr:              s.ApiEndpoint(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-errChan:
	}
	cancel()
	s.Worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Warning("API server shutdown: %s", shutdownErr)
	}
	return err
}
