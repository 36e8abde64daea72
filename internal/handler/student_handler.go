package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fee-recon-api/internal/dto"
	"github.com/noah-isme/fee-recon-api/internal/models"
	appErrors "github.com/noah-isme/fee-recon-api/pkg/errors"
	"github.com/noah-isme/fee-recon-api/pkg/response"
)

type studentRoll interface {
	List(ctx context.Context, schoolID string, query dto.StudentListQuery) ([]models.StudentBalance, *models.Pagination, error)
}

type studentFeesReader interface {
	StudentFees(ctx context.Context, schoolID, studentID string) (*dto.StudentFeesResponse, error)
}

// StudentHandler exposes the student roll and each student's fee ledger.
type StudentHandler struct {
	students studentRoll
	fees     studentFeesReader
}

// NewStudentHandler constructs a StudentHandler.
func NewStudentHandler(students studentRoll, fees studentFeesReader) *StudentHandler {
	return &StudentHandler{students: students, fees: fees}
}

// List godoc
// @Summary List students
// @Description Student roll with totals due, paid and outstanding.
// @Tags Students
// @Produce json
// @Param class_id query string false "Class ID"
// @Param search query string false "Name or admission number"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope{data=[]models.StudentBalance}
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	var query dto.StudentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	students, pagination, err := h.students.List(c.Request.Context(), claims.SchoolID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Student detail
// @Description The student with every fee obligation and the running balance.
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope{data=dto.StudentFeesResponse}
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	h.Fees(c)
}

// Fees godoc
// @Summary Student fee ledger
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope{data=dto.StudentFeesResponse}
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/fees [get]
func (h *StudentHandler) Fees(c *gin.Context) {
	claims, ok := tenantFromContext(c)
	if !ok {
		return
	}
	fees, err := h.fees.StudentFees(c.Request.Context(), claims.SchoolID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}
