package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/middleware"
	"github.com/stemsi/exam-portal/internal/response"
	"github.com/stemsi/exam-portal/internal/service"
	"github.com/stemsi/exam-portal/internal/validator"
)

// StudentPortalHandler handles student-facing REST endpoints.
type StudentPortalHandler struct {
	resultService *service.ResultService
	log           zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(resultService *service.ResultService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		resultService: resultService,
		log:           log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// examParams are the path parameters of the student exam routes.
type examParams struct {
	ExamID string `uri:"exam_id" json:"exam_id" binding:"required,max=128"`
}

// GetExamResult godoc
// GET /api/v1/student/exams/:exam_id/result
// Returns the student's result summary. Scores are withheld until approved.
func (h *StudentPortalHandler) GetExamResult(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var params examParams
	if fields := validator.BindURI(c, &params); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	summary, err := h.resultService.Summary(c.Request.Context(), params.ExamID, claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrResultNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrResultNotFound)
			return
		}
		h.log.Error().Err(err).Str("exam_id", params.ExamID).Msg("Get result failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, summary)
}
