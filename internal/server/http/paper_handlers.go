package httpserver

import (
	"net/http"
)

// listReviewPapers handles GET /reviews/{jobID}/papers.
// It returns the candidate papers attached to the job in candidate-set order.
func (s *Server) listReviewPapers(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadUserJob(w, r)
	if !ok {
		return
	}

	papers, err := s.paperRepo.ListByJob(r.Context(), job.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := listPapersResponse{
		Papers:     make([]paperResponse, len(papers)),
		TotalCount: len(papers),
	}
	for i, p := range papers {
		resp.Papers[i] = paperToResponse(p)
	}

	writeJSON(w, http.StatusOK, resp)
}
