package service

import (
	"github.com/xiaot623/docpilot/internal/domain"
	"github.com/xiaot623/docpilot/internal/tools"
)

// SubmitToolResults answers the outstanding delegated tool request of the
// session's active run.
func (s *Service) SubmitToolResults(sessionID string, req domain.SubmitToolResultsRequest) (*domain.SubmitToolResultsResponse, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	if req.RunID == "" || req.RequestID == "" {
		return nil, domain.InvalidInput(domain.CodeInvalidRequest, "run_id and request_id are required")
	}

	ar := sess.activeRun()
	if ar == nil {
		return nil, domain.Conflict(domain.CodeNoActiveRun, "session %s has no active run", sess.ID)
	}
	if ar.run.RunID != req.RunID {
		return nil, domain.Conflict(domain.CodeRunMismatch, "run %s is not the active run of session %s", req.RunID, sess.ID)
	}
	if ar.delegated == nil {
		return nil, domain.Conflict(domain.CodeUnknownToolRequest, "run %s executes tools on the server", req.RunID)
	}

	if err := ar.delegated.Submit(req.RunID, req.RequestID, req.Observations); err != nil {
		s.logger.Warn("tool results rejected", "session_id", sess.ID, "run_id", req.RunID, "request_id", req.RequestID, "error", err)
		return nil, err
	}
	s.logger.Info("tool results accepted", "session_id", sess.ID, "run_id", req.RunID, "request_id", req.RequestID)
	return &domain.SubmitToolResultsResponse{OK: true}, nil
}

// ListTools returns the tool catalogue.
func (s *Service) ListTools() *domain.ListToolsResponse {
	return &domain.ListToolsResponse{Tools: tools.DefaultRegistry.List()}
}
