package gateway

import (
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Groups int    `json:"groups"`

	// IndividualAvailable is the free flat capacity, -1 when unbounded.
	IndividualAvailable int `json:"individual_available"`
}

// handleHealth returns an http.HandlerFunc for GET /health. It answers 503
// when no store is registered or the flat message space is full.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok"}

		if g.store == nil {
			resp.Status = "degraded"
		} else {
			st := g.store.Stats()
			resp.Groups = st.Groups
			resp.IndividualAvailable = st.IndividualAvailable
			if st.IndividualCapacity > 0 && st.IndividualAvailable == 0 {
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}
