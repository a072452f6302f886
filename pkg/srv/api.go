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

// go-eeg API
//
// # RESTful API to control the go-eeg closed loop server
//
// Schemes: http
// Host: localhost:8000
// Version: 1.0.0
//
//	Consumes:
//	- application/json
//
//	Produces:
//	- application/json
//
// swagger:meta
package srv

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jinr.ru/greenlab/go-eeg/pkg/bridge"
	"jinr.ru/greenlab/go-eeg/pkg/event"
	"jinr.ru/greenlab/go-eeg/pkg/log"
	"jinr.ru/greenlab/go-eeg/pkg/processing"
	"jinr.ru/greenlab/go-eeg/pkg/state"
	"jinr.ru/greenlab/go-eeg/pkg/store"
)

// Status is the state of the whole server
type Status struct {
	Bridge     bridge.Status     `json:"bridge"`
	Store      store.Status      `json:"store"`
	Processing processing.Status `json:"processing"`
}

// Message is the body of responses without data
type Message struct {
	Message string `json:"message"`
}

func (s *Server) configureRouter() {
	s.Router = mux.NewRouter()
	subRouter := s.Router.PathPrefix("/api").Subrouter()
	subRouter.HandleFunc("/status", s.handleStatus()).Methods("GET")
	subRouter.HandleFunc("/bridge", s.handleBridge()).Methods("GET")
	subRouter.HandleFunc("/store", s.handleStore()).Methods("GET")
	// swagger:operation POST /processing/{mode:start|benchmark} start processing
	// ---
	// summary: start processing with the parameters in the body or a preset
	subRouter.HandleFunc("/processing/{mode:start|benchmark}", s.handleProcessingStart()).Methods("POST")
	subRouter.HandleFunc("/processing/stop", s.handleProcessingStop()).Methods("GET", "POST")
	subRouter.HandleFunc("/processing", s.handleProcessing()).Methods("GET")
	subRouter.Handle("/output", handlers.CompressHandler(s.handleOutput())).Methods("GET")
	subRouter.HandleFunc("/events", s.handleEvents()).Methods("GET")
	subRouter.HandleFunc("/presets", s.handlePresetList()).Methods("GET")
	subRouter.HandleFunc("/presets/{name}", s.handlePresetGet()).Methods("GET")
	subRouter.HandleFunc("/presets/{name}", s.handlePresetSet()).Methods("POST", "PUT")
	subRouter.HandleFunc("/presets/{name}", s.handlePresetDelete()).Methods("DELETE")
	s.Router.Handle("/metrics", promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to write response: %s", err)
	}
}

// statusCode maps domain errors to HTTP status codes
func statusCode(err error) int {
	var (
		configErr   processing.ErrConfiguration
		runningErr  processing.ErrAlreadyRunning
		notFoundErr state.ErrPresetNotFound
		nameErr     state.ErrInvalidPresetName
		queryErr    ErrBadQuery
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &runningErr):
		return http.StatusConflict
	case errors.As(err, &configErr), errors.As(err, &nameErr), errors.As(err, &queryErr),
		errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusCode(err))
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, ErrBadQuery{Name: name, Value: value}
	}
	return n, nil
}

// decodeParameters reads parameters from the body over base.
// An empty body leaves base unchanged.
func decodeParameters(body io.Reader, base processing.Parameters) (processing.Parameters, error) {
	params := base
	err := json.NewDecoder(body).Decode(&params)
	if errors.Is(err, io.EOF) {
		return base, nil
	}
	return params, err
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, Status{
			Bridge:     s.Bridge.Status(),
			Store:      s.Store.Status(),
			Processing: s.Worker.Status(),
		})
	}
}

func (s *Server) handleBridge() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Bridge.Status())
	}
}

func (s *Server) handleStore() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Store.Status())
	}
}

func (s *Server) handleProcessingStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := mux.Vars(r)["mode"]
		base := processing.DefaultParameters()
		if preset := r.URL.Query().Get("preset"); preset != "" {
			var err error
			if base, err = s.Presets.Get(preset); err != nil {
				writeError(w, err)
				return
			}
		}
		params, err := decodeParameters(r.Body, base)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Debug("Handling processing %s request: %s", mode, params)

		switch mode {
		case "start":
			err = s.Worker.Start(params)
		case "benchmark":
			err = s.Worker.RunBenchmark(params)
		default:
			err = ErrUnknownOperation{What: "processing " + mode}
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, s.Worker.Status())
	}
}

func (s *Server) handleProcessingStop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Debug("Handling processing stop request")
		s.Worker.Stop()
		writeJSON(w, s.Worker.Status())
	}
}

func (s *Server) handleProcessing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Worker.Status())
	}
}

func (s *Server) handleOutput() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, s.Worker.Output().Snapshot())
	}
}

func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		max, err := queryInt(r, "max", 0)
		if err != nil {
			writeError(w, err)
			return
		}
		recent := s.Events.Recent(max)
		if kind := r.URL.Query().Get("kind"); kind != "" {
			var k event.Kind
			if err := k.UnmarshalText([]byte(kind)); err != nil {
				writeError(w, ErrBadQuery{Name: "kind", Value: kind})
				return
			}
			filtered := []event.Event{}
			for _, e := range recent {
				if e.Kind == k {
					filtered = append(filtered, e)
				}
			}
			recent = filtered
		}
		writeJSON(w, recent)
	}
}

func (s *Server) handlePresetList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := s.Presets.List()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, names)
	}
}

func (s *Server) handlePresetGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := s.Presets.Get(mux.Vars(r)["name"])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, params)
	}
}

func (s *Server) handlePresetSet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		params, err := decodeParameters(r.Body, processing.DefaultParameters())
		if err != nil {
			writeError(w, err)
			return
		}
		if err = s.Presets.Put(name, params); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, params)
	}
}

func (s *Server) handlePresetDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		if err := s.Presets.Delete(name); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, Message{Message: "deleted " + name})
	}
}
