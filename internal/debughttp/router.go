package debughttp

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NeonKnightOA/KMQuake2/internal/dump"
	"github.com/NeonKnightOA/KMQuake2/internal/telemetry"
	"github.com/NeonKnightOA/KMQuake2/internal/view"
)

type RouterConfig struct {
	Store    *Store
	Gatherer prometheus.Gatherer
	Counters *telemetry.Counters
	Logger   *log.Logger
}

func NewRouter(cfg RouterConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	r.Method(nethttp.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/telemetry", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		var snapshot telemetry.Snapshot
		if cfg.Counters != nil {
			snapshot = cfg.Counters.Snapshot()
		}
		writeJSON(w, logger, snapshot)
	})

	r.Get("/frames/latest", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		snap, ok := store.Latest()
		if !ok {
			nethttp.Error(w, "no frame yet", nethttp.StatusNotFound)
			return
		}
		format, err := dump.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			nethttp.Error(w, err.Error(), nethttp.StatusBadRequest)
			return
		}
		data, err := dump.Marshal(snap, format)
		if err != nil {
			logger.Printf("failed to marshal frame %d: %v", snap.Frame.ServerFrame, err)
			nethttp.Error(w, "marshal failed", nethttp.StatusInternalServerError)
			return
		}
		if format == dump.FormatMsgpack {
			w.Header().Set("Content-Type", "application/msgpack")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		w.Write(data)
	})

	r.Get("/view", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		snap, ok := store.Latest()
		if !ok {
			nethttp.Error(w, "no frame yet", nethttp.StatusNotFound)
			return
		}
		frac := float32(1)
		if raw := r.URL.Query().Get("frac"); raw != "" {
			value, err := strconv.ParseFloat(raw, 32)
			if err != nil || value < 0 || value > 1 {
				nethttp.Error(w, "frac must be in [0, 1]", nethttp.StatusBadRequest)
				return
			}
			frac = float32(value)
		}
		writeJSON(w, logger, view.CalcViewValues(store, snap.Frame, frac, store.Prediction()))
	})

	r.Get("/entities/{id}", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			nethttp.Error(w, "bad entity number", nethttp.StatusBadRequest)
			return
		}
		rec, ok := store.Entity(id)
		if !ok {
			nethttp.Error(w, "entity not in the latest frame", nethttp.StatusNotFound)
			return
		}
		writeJSON(w, logger, rec)
	})

	return r
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to marshal response: %v", err)
		nethttp.Error(w, "marshal failed", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
