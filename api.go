package main

import (
	"encoding/json"
	"net/http"

	"github.com/ocupoint/sdraudio/pkg/registry"
)

// API exposes the read-only introspection endpoints added beyond the
// original spec (SPEC_FULL.md §12), in the teacher's handlers.go
// JSON-handler style: a plain http.HandlerFunc per route encoding a
// map[string]interface{} with json.NewEncoder.
type API struct {
	reg   *registry.Registry[*Subscription]
	state *ServerState
}

// NewAPI builds the introspection API bound to the given registry and
// server state.
func NewAPI(reg *registry.Registry[*Subscription], state *ServerState) *API {
	return &API{reg: reg, state: state}
}

// RegisterRoutes wires the introspection endpoints onto mux.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/subscriptions", a.handleSubscriptions)
	mux.HandleFunc("/api/stats", a.handleStats)
}

func (a *API) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	type subView struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
		L      int    `json:"l"`
		R      int    `json:"r"`
		Mode   string `json:"mode"`
		Stereo bool   `json:"stereo"`
		Muted  bool   `json:"muted"`
	}
	var subs []subView
	a.reg.Walk(func(key registry.Key, sub *Subscription) bool {
		snap := sub.snapshot()
		subs = append(subs, subView{
			ID:     sub.ID,
			UserID: sub.UserID,
			L:      snap.l,
			R:      snap.r,
			Mode:   snap.mode.String(),
			Stereo: snap.stereo,
			Muted:  snap.muted,
		})
		return true
	})
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"subscriptions": subs,
		"count":         len(subs),
	})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := a.state.snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"sample_rate":    snap.SampleRate,
		"audio_rate":     snap.AudioRate,
		"audio_fft_size": snap.AudioFFTSize,
		"flac_mode":      snap.FlacMode.BlockSize(),
		"subscriptions":  a.reg.Len(),
	})
}
