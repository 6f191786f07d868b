package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "sfcli/internal/errors"
	"sfcli/internal/hierarchy"
	"sfcli/internal/services"
)

// maxBatchSize bounds a single batch prediction request
const maxBatchSize = 1000

// ForecastHandler handles forecast-related HTTP requests
type ForecastHandler struct {
	service  *services.ForecastService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(service *services.ForecastService, logger *slog.Logger) *ForecastHandler {
	return &ForecastHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "forecast")),
	}
}

// PredictRequest is a single prediction request. Callers either name the
// series directly or give the store and family that compose it.
type PredictRequest struct {
	SeriesID string `json:"series_id" validate:"required_without_all=StoreNbr Family"`
	StoreNbr int    `json:"store_nbr" validate:"omitempty,min=1"`
	Family   string `json:"family" validate:"required_with=StoreNbr"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Method   string `json:"method" validate:"omitempty,oneof=bottom_up top_down_forecast_proportions min_trace_ols min_trace_shrink"`
}

// BatchPredictRequest is a batch prediction request
type BatchPredictRequest struct {
	Predictions []PredictRequest `json:"predictions" validate:"required,min=1,dive"`
}

// BatchPredictResponse carries per-item results in request order
type BatchPredictResponse struct {
	Predictions []*services.Prediction `json:"predictions"`
	Count       int                    `json:"count"`
}

// Predict handles POST /api/predict
func (h *ForecastHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	prediction, apiErr := h.predictOne(r, &req)
	if apiErr != nil {
		render.Render(w, r, apiErr)
		return
	}
	render.JSON(w, r, prediction)
}

// PredictBatch handles POST /api/predict/batch
func (h *ForecastHandler) PredictBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchPredictRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		render.Render(w, r, validationError(err))
		return
	}
	if len(req.Predictions) > maxBatchSize {
		render.Render(w, r, apierrors.ErrValidation("predictions",
			fmt.Sprintf("batch size %d exceeds limit %d", len(req.Predictions), maxBatchSize)))
		return
	}

	out := make([]*services.Prediction, 0, len(req.Predictions))
	for i := range req.Predictions {
		prediction, apiErr := h.predictOne(r, &req.Predictions[i])
		if apiErr != nil {
			render.Render(w, r, apierrors.NewWithDetails(apiErr.StatusCode, apiErr.ErrorCode,
				apiErr.Message, fmt.Sprintf("batch item %d", i)))
			return
		}
		out = append(out, prediction)
	}

	render.JSON(w, r, &BatchPredictResponse{Predictions: out, Count: len(out)})
}

func (h *ForecastHandler) predictOne(r *http.Request, req *PredictRequest) (*services.Prediction, *apierrors.APIError) {
	if err := h.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	seriesID := req.SeriesID
	if seriesID == "" {
		seriesID = hierarchy.BottomID(req.StoreNbr, req.Family)
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, apierrors.ErrValidation("date", "date must be YYYY-MM-DD")
	}

	method := req.Method
	if method == "" {
		methods := h.service.Methods()
		if len(methods) == 0 {
			return nil, apierrors.ErrServiceUnavailable
		}
		method = methods[0]
	}

	prediction, err := h.service.Predict(r.Context(), seriesID, date, method)
	if err != nil {
		return nil, h.mapServiceError(r, err)
	}
	return prediction, nil
}

// Hierarchy handles GET /api/hierarchy
func (h *ForecastHandler) Hierarchy(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Hierarchy(r.Context())
	if err != nil {
		render.Render(w, r, h.mapServiceError(r, err))
		return
	}
	render.JSON(w, r, summary)
}

// Accuracy handles GET /api/accuracy
func (h *ForecastHandler) Accuracy(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Accuracy(r.Context())
	if err != nil {
		render.Render(w, r, h.mapServiceError(r, err))
		return
	}
	render.JSON(w, r, result)
}

// Reload handles POST /api/admin/reload. It sits behind the admin auth
// middleware.
func (h *ForecastHandler) Reload(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reload(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "artifact reload failed",
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.NewWithDetails(http.StatusInternalServerError,
			"RELOAD_FAILED", "Failed to reload forecast artifacts", err.Error()))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"reloaded": true,
		"methods":  h.service.Methods(),
	})
}

func (h *ForecastHandler) mapServiceError(r *http.Request, err error) *apierrors.APIError {
	switch {
	case errors.Is(err, services.ErrArtifactsNotLoaded):
		return apierrors.ErrServiceUnavailable
	case errors.Is(err, services.ErrSeriesNotFound):
		return apierrors.NewWithDetails(http.StatusNotFound, "SERIES_NOT_FOUND",
			"Series not found in hierarchy", err.Error())
	case errors.Is(err, services.ErrMethodNotFound):
		return apierrors.NewWithDetails(http.StatusNotFound, "METHOD_NOT_FOUND",
			"Reconciliation method not available", err.Error())
	case errors.Is(err, services.ErrDateNotForecast):
		return apierrors.NewWithDetails(http.StatusNotFound, "DATE_NOT_FORECAST",
			"No forecast for requested date", err.Error())
	case errors.Is(err, services.ErrMetricsNotFound):
		return apierrors.NewWithDetails(http.StatusNotFound, "METRICS_NOT_FOUND",
			"Cross-validation metrics not found", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "unexpected service error",
			slog.String("error", err.Error()))
		return apierrors.FromDomain(err)
	}
}

func validationError(err error) *apierrors.APIError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return apierrors.ErrValidation(first.Field(),
			fmt.Sprintf("failed %s validation", first.Tag()))
	}
	return apierrors.InvalidRequestWithError(err)
}
