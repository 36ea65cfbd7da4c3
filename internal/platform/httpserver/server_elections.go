package httpserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	domainerrors "guildhall/contexts/governance/election-service/domain/errors"
	electionhttp "guildhall/contexts/governance/election-service/transport/http"
)

func requireElectionUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeElectionError(w, http.StatusUnauthorized, "USER_REQUIRED", "X-User-Id header is required", nil)
		return "", false
	}
	return userID, true
}

// handleCreateElection godoc
// @Summary Create a draft election
// @Tags elections
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Organizer id"
// @Param body body electionhttp.CreateElectionRequest true "Election"
// @Success 201 {object} electionhttp.ElectionResponse
// @Failure 400 {object} electionhttp.ErrorEnvelope
// @Router /v1/elections [post]
func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.CreateElectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.CreateElectionHandler(r.Context(), actorID, req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	resp, err := s.elections.Handler.ListElectionsHandler(r.Context(), status)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.GetElectionHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateElection(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.UpdateElectionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.UpdateElectionHandler(r.Context(), actorID, r.PathValue("election_id"), req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddPosition(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.AddPositionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.AddPositionHandler(r.Context(), actorID, r.PathValue("election_id"), req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.AddCandidateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.AddCandidateHandler(
		r.Context(),
		actorID,
		r.PathValue("election_id"),
		r.PathValue("position_id"),
		req,
	)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleChangeCandidateStatus(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.ChangeCandidateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.ChangeCandidateStatusHandler(
		r.Context(),
		actorID,
		r.PathValue("election_id"),
		r.PathValue("candidate_id"),
		req,
	)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleTransitionElection godoc
// @Summary Move an election to another lifecycle state
// @Tags elections
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Organizer id"
// @Param election_id path string true "Election id"
// @Param body body electionhttp.TransitionRequest true "Target state"
// @Success 200 {object} electionhttp.ElectionResponse
// @Failure 409 {object} electionhttp.ErrorEnvelope
// @Router /v1/elections/{election_id}/transition [post]
func (s *Server) handleTransitionElection(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.TransitionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.TransitionElectionHandler(r.Context(), actorID, r.PathValue("election_id"), req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBallotForm(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.BallotFormHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSubmitBallot godoc
// @Summary Cast one complete ballot
// @Tags ballots
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Voter id"
// @Param election_id path string true "Election id"
// @Param body body electionhttp.SubmitBallotRequest true "Selections"
// @Success 201 {object} electionhttp.SubmitBallotResponse
// @Failure 403 {object} electionhttp.ErrorEnvelope
// @Failure 409 {object} electionhttp.ErrorEnvelope
// @Failure 422 {object} electionhttp.ErrorEnvelope
// @Failure 503 {object} electionhttp.ErrorEnvelope
// @Router /v1/elections/{election_id}/ballots [post]
func (s *Server) handleSubmitBallot(w http.ResponseWriter, r *http.Request) {
	voterID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	var req electionhttp.SubmitBallotRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.elections.Handler.SubmitBallotHandler(r.Context(), voterID, r.PathValue("election_id"), req)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleVoterStatus(w http.ResponseWriter, r *http.Request) {
	voterID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	resp, err := s.elections.Handler.VoterStatusHandler(r.Context(), voterID, r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleResults godoc
// @Summary Current or final results
// @Tags results
// @Produce json
// @Param election_id path string true "Election id"
// @Success 200 {object} electionhttp.ResultsResponse
// @Failure 409 {object} electionhttp.ErrorEnvelope
// @Router /v1/elections/{election_id}/results [get]
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.ResultsHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuildVoteCounts(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireElectionUser(w, r)
	if !ok {
		return
	}
	resp, err := s.elections.Handler.RebuildVoteCountsHandler(r.Context(), actorID, r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeElectionError(w http.ResponseWriter, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, electionhttp.ErrorEnvelope{
		Status: "error",
		Error: electionhttp.ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func writeElectionDomainError(w http.ResponseWriter, err error) {
	var (
		transitionErr *domainerrors.InvalidTransitionError
		incompleteErr *domainerrors.IncompleteBallotError
		selectionErr  *domainerrors.InvalidSelectionError
	)
	switch {
	case errors.As(err, &transitionErr):
		writeElectionError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error(), map[string]any{
			"from":   transitionErr.From,
			"to":     transitionErr.To,
			"reason": transitionErr.Reason,
		})
	case errors.As(err, &incompleteErr):
		writeElectionError(w, http.StatusUnprocessableEntity, "INCOMPLETE_BALLOT", err.Error(), map[string]any{
			"missing":   positionRefs(incompleteErr.Missing),
			"extra":     positionRefs(incompleteErr.Extra),
			"duplicate": positionRefs(incompleteErr.Duplicate),
		})
	case errors.As(err, &selectionErr):
		writeElectionError(w, http.StatusUnprocessableEntity, "INVALID_SELECTION", err.Error(), map[string]any{
			"position_id":   selectionErr.PositionID,
			"position_name": selectionErr.PositionName,
			"candidate_id":  selectionErr.CandidateID,
			"reason":        selectionErr.Reason,
		})
	case errors.Is(err, domainerrors.ErrInvalidInput):
		writeElectionError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrElectionNotFound):
		writeElectionError(w, http.StatusNotFound, "ELECTION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrPositionNotFound):
		writeElectionError(w, http.StatusNotFound, "POSITION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrCandidateNotFound):
		writeElectionError(w, http.StatusNotFound, "CANDIDATE_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrElectionLocked):
		writeElectionError(w, http.StatusConflict, "ELECTION_LOCKED", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrElectionNotOpen):
		writeElectionError(w, http.StatusConflict, "ELECTION_NOT_OPEN", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrNotEligible):
		writeElectionError(w, http.StatusForbidden, "NOT_ELIGIBLE", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrAlreadyVoted):
		writeElectionError(w, http.StatusConflict, "ALREADY_VOTED", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrElectionCancelled):
		writeElectionError(w, http.StatusConflict, "ELECTION_CANCELLED", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrConflict):
		writeElectionError(w, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, domainerrors.ErrPersistenceUnavailable):
		w.Header().Set("Retry-After", "1")
		writeElectionError(w, http.StatusServiceUnavailable, "PERSISTENCE_UNAVAILABLE",
			domainerrors.ErrPersistenceUnavailable.Error()+", please retry", nil)
	default:
		writeElectionError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil)
	}
}

func positionRefs(refs []domainerrors.PositionRef) []electionhttp.PositionRefDTO {
	items := make([]electionhttp.PositionRefDTO, 0, len(refs))
	for _, ref := range refs {
		items = append(items, electionhttp.PositionRefDTO{
			PositionID: ref.PositionID,
			Name:       ref.Name,
		})
	}
	return items
}
