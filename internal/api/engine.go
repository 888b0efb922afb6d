package api

import "net/http"

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	recs, err := s.footprint.Recommend(r.Context(), claimsFrom(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleFootprint computes the caller's report and credits any tokens it
// earned.
func (s *Server) handleFootprint(w http.ResponseWriter, r *http.Request) {
	report, err := s.footprint.Footprint(r.Context(), claimsFrom(r).UserID, true)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
