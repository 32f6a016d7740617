// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/vio_frontend/internal/bus"
	"github.com/relabs-tech/vio_frontend/internal/frontend"
	"github.com/relabs-tech/vio_frontend/internal/pose"
)

const wsBuffer = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// Web serves the latest frontend outputs over HTTP and streams poses over
// a WebSocket.
type Web struct {
	poses   *bus.Topic[pose.Sample]
	latency func() frontend.LatencyStats
	logger  *zap.SugaredLogger

	poseCh <-chan pose.Sample
	seedCh <-chan pose.IntegratorSeed

	mu       sync.RWMutex
	lastPose pose.Sample
	havePose bool
	lastSeed pose.IntegratorSeed
	haveSeed bool

	nextClient atomic.Uint64
}

// NewWeb subscribes to both output topics.
func NewWeb(
	poses *bus.Topic[pose.Sample],
	seeds *bus.Topic[pose.IntegratorSeed],
	latency func() frontend.LatencyStats,
	logger *zap.SugaredLogger,
) (*Web, error) {
	poseCh, err := poses.Subscribe("web", outputBuffer)
	if err != nil {
		return nil, fmt.Errorf("web: subscribe %s: %w", poses.Name(), err)
	}
	seedCh, err := seeds.Subscribe("web", outputBuffer)
	if err != nil {
		return nil, fmt.Errorf("web: subscribe %s: %w", seeds.Name(), err)
	}
	return &Web{
		poses:   poses,
		latency: latency,
		logger:  logger,
		poseCh:  poseCh,
		seedCh:  seedCh,
	}, nil
}

// Track records the latest pose and seed until both topics close or ctx
// ends.
func (w *Web) Track(ctx context.Context) error {
	poseCh, seedCh := w.poseCh, w.seedCh
	for poseCh != nil || seedCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-poseCh:
			if !ok {
				poseCh = nil
				continue
			}
			w.mu.Lock()
			w.lastPose, w.havePose = p, true
			w.mu.Unlock()
		case s, ok := <-seedCh:
			if !ok {
				seedCh = nil
				continue
			}
			w.mu.Lock()
			w.lastSeed, w.haveSeed = s, true
			w.mu.Unlock()
		}
	}
	return nil
}

// Handler returns the HTTP routes.
func (w *Web) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/pose", func(rw http.ResponseWriter, r *http.Request) {
		w.mu.RLock()
		p, ok := w.lastPose, w.havePose
		w.mu.RUnlock()
		if !ok {
			http.Error(rw, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.writeJSON(rw, p)
	})

	mux.HandleFunc("/api/seed", func(rw http.ResponseWriter, r *http.Request) {
		w.mu.RLock()
		s, ok := w.lastSeed, w.haveSeed
		w.mu.RUnlock()
		if !ok {
			http.Error(rw, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.writeJSON(rw, s)
	})

	mux.HandleFunc("/api/latency", func(rw http.ResponseWriter, r *http.Request) {
		w.writeJSON(rw, w.latency())
	})

	mux.HandleFunc("/ws/pose", w.handlePoseWS)
	return mux
}

func (w *Web) writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		w.logger.Warnw("json encode error", "error", err)
	}
}

// handlePoseWS streams every published pose to one client until either
// side goes away.
func (w *Web) handlePoseWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.logger.Warnw("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	id := fmt.Sprintf("ws-%d", w.nextClient.Add(1))
	ch, err := w.poses.Subscribe(id, wsBuffer)
	if err != nil {
		w.logger.Warnw("websocket subscribe error", "client", id, "error", err)
		return
	}
	defer func() { _ = w.poses.Unsubscribe(id) }()
	w.logger.Infow("websocket client connected", "client", id)

	// The client sends nothing; reading only detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					w.logger.Debugw("websocket read error", "client", id, "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			w.logger.Infow("websocket client disconnected", "client", id)
			return
		case <-r.Context().Done():
			return
		case p, ok := <-ch:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
				return
			}
			if err := conn.WriteJSON(p); err != nil {
				w.logger.Debugw("websocket write error", "client", id, "error", err)
				return
			}
		}
	}
}
