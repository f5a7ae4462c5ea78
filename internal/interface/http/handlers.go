package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/studygroup-stats/internal/application/command"
	"github.com/alem-hub/studygroup-stats/internal/application/query"
	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
	"github.com/alem-hub/studygroup-stats/internal/domain/shared"
	"github.com/alem-hub/studygroup-stats/internal/interface/http/handlers"
	"github.com/alem-hub/studygroup-stats/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.Health.Check(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARE POLICY
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetSharePolicy(c *gin.Context) {
	policy, err := s.deps.GetSharePolicy.Handle(c.Request.Context(), query.GetSharePolicyQuery{
		UserID:  callerID(c),
		GroupID: c.Param("groupID"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, policy)
}

// updateSharePolicyRequest is the PATCH body. Both parts are optional.
type updateSharePolicyRequest struct {
	Visibility         map[string]string                 `json:"visibility"`
	DisplayPreferences *command.DisplayPreferenceUpdates `json:"displayPreferences"`
}

func (s *Server) handleUpdateSharePolicy(c *gin.Context) {
	var req updateSharePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.Abort(c, http.StatusBadRequest, shared.KindInvalidInput, "malformed request body: "+err.Error())
		return
	}

	res, err := s.deps.UpdateSharePolicy.Handle(c.Request.Context(), command.UpdateSharePolicyCommand{
		UserID:             callerID(c),
		GroupID:            c.Param("groupID"),
		Visibility:         req.Visibility,
		DisplayPreferences: req.DisplayPreferences,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, res)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleGetDashboard(c *gin.Context) {
	dto, err := s.deps.GetDashboard.Handle(c.Request.Context(), query.GetDashboardQuery{
		GroupID:  c.Param("groupID"),
		ViewerID: callerID(c),
		Period:   c.Query("period"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, dto)
}

func (s *Server) handleGetLeaderboards(c *gin.Context) {
	dto, err := s.deps.GetLeaderboards.Handle(c.Request.Context(), query.GetLeaderboardsQuery{
		GroupID:  c.Param("groupID"),
		ViewerID: callerID(c),
		Period:   c.Query("period"),
		Type:     c.Query("type"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTNERSHIPS
// ══════════════════════════════════════════════════════════════════════════════

type requestPartnershipRequest struct {
	TargetUserID string `json:"targetUserId"`
}

func (s *Server) handleRequestPartnership(c *gin.Context) {
	var req requestPartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.Abort(c, http.StatusBadRequest, shared.KindInvalidInput, "malformed request body: "+err.Error())
		return
	}

	res, err := s.deps.RequestPartnership.Handle(c.Request.Context(), command.RequestPartnershipCommand{
		GroupID:     c.Param("groupID"),
		RequesterID: callerID(c),
		TargetID:    req.TargetUserID,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, res)
}

type respondPartnershipRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleRespondPartnership(c *gin.Context) {
	var req respondPartnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handlers.Abort(c, http.StatusBadRequest, shared.KindInvalidInput, "malformed request body: "+err.Error())
		return
	}

	res, err := s.deps.RespondPartnership.Handle(c.Request.Context(), command.RespondPartnershipCommand{
		GroupID:     c.Param("groupID"),
		RequesterID: c.Param("requesterID"),
		ResponderID: callerID(c),
		Status:      privacy.PartnerStatus(req.Status),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, res)
}

func (s *Server) handleGetPartners(c *gin.Context) {
	dto, err := s.deps.GetPartners.Handle(c.Request.Context(), query.GetPartnersQuery{
		GroupID: c.Param("groupID"),
		UserID:  callerID(c),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// dataBody is the envelope of a successful response.
type dataBody struct {
	Data any `json:"data"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, dataBody{Data: data})
}

// respondError maps the error kind to a status code. Internal errors are
// logged with their cause and returned with a generic message.
func (s *Server) respondError(c *gin.Context, err error) {
	kind := shared.KindOf(err)
	status := StatusForKind(kind)
	message := err.Error()

	log := logger.FromContext(c.Request.Context())
	switch {
	case status >= http.StatusInternalServerError:
		log.Error("request failed",
			logger.String("kind", kind), logger.String("path", c.FullPath()), logger.Err(err))
		if kind == shared.KindInternal {
			message = "internal error"
		}
	default:
		log.Debug("request rejected", logger.String("kind", kind), logger.Err(err))
	}

	handlers.Abort(c, status, kind, message)
}

// StatusForKind returns the HTTP status for an error kind name.
func StatusForKind(kind string) int {
	switch kind {
	case shared.KindNotMember:
		return http.StatusForbidden
	case shared.KindNotFound, shared.KindPartnershipNotFound:
		return http.StatusNotFound
	case shared.KindSelfReference, shared.KindInvalidStatus, shared.KindInvalidInput:
		return http.StatusBadRequest
	case shared.KindDuplicatePartnership:
		return http.StatusConflict
	case shared.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(handlers.ContextUserID)
}
