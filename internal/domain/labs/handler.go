package labs

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/cmlcare/cml/internal/platform/auth"
	"github.com/cmlcare/cml/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.RoleDoctor))
	clinical.POST("/patients", h.CreatePatient)
	clinical.POST("/patients/:id/test-results", h.RecordResult)

	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/patients/:id/test-results", h.ListResults)
}

type createPatientRequest struct {
	FullName      string     `json:"full_name"`
	DiagnosisDate string     `json:"diagnosis_date"`
	HospitalID    *uuid.UUID `json:"hospital_id"`
}

type recordResultRequest struct {
	TestDate string   `json:"test_date"`
	TestType string   `json:"test_type"`
	BCRABLIS *float64 `json:"bcr_abl_is"`
	Notes    *string  `json:"notes"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req createPatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	diag, err := parseDate("diagnosis_date", req.DiagnosisDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p := &Patient{FullName: req.FullName, DiagnosisDate: diag, HospitalID: req.HospitalID}
	if err := h.svc.CreatePatient(c.Request().Context(), p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := h.patientParam(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) RecordResult(c echo.Context) error {
	id, err := h.patientParam(c)
	if err != nil {
		return err
	}
	var req recordResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	testDate, err := parseDate("test_date", req.TestDate)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	r := &TestResult{
		PatientID: id,
		TestDate:  testDate,
		TestType:  req.TestType,
		BCRABLIS:  req.BCRABLIS,
		Notes:     req.Notes,
	}
	if uid := auth.UserIDFromContext(c.Request().Context()); uid != "" {
		r.RecordedBy = &uid
	}
	if err := r.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	out, err := h.svc.RecordResult(c.Request().Context(), r)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) ListResults(c echo.Context) error {
	id, err := h.patientParam(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListResults(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// patientParam parses :id and checks that the caller may see that patient.
func (h *Handler) patientParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if !auth.CanAccessPatient(c.Request().Context(), id.String()) {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "access to this patient is not allowed")
	}
	return id, nil
}

func mapError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
