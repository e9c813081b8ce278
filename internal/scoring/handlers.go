package scoring

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/mbd888/fraudgate/internal/features"
	"github.com/mbd888/fraudgate/internal/logging"
)

var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New(validator.WithRequiredStructEnabled())
	// Report JSON field names, not Go field names.
	requestValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// PredictRequest is the POST /predict body. Numeric fields are pointers so
// an explicit 0 can be told apart from a missing field.
type PredictRequest struct {
	Type           string   `json:"type" validate:"required"`
	Amount         *float64 `json:"amount" validate:"required"`
	OldBalanceOrg  *float64 `json:"oldbalanceOrg" validate:"required"`
	NewBalanceOrig *float64 `json:"newbalanceOrig" validate:"required"`
	OldBalanceDest *float64 `json:"oldbalanceDest" validate:"required"`
	NewBalanceDest *float64 `json:"newbalanceDest" validate:"required"`
	IsFlaggedFraud *int     `json:"isFlaggedFraud"`
}

// Validate checks that every required field is present.
func (r *PredictRequest) Validate() error {
	err := requestValidate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("%w: missing required field(s): %s", ErrValidation, strings.Join(missing, ", "))
}

// Transaction converts a validated request to its domain form. The type is
// passed through unchecked; Service.Predict owns that check.
func (r *PredictRequest) Transaction() features.Transaction {
	tx := features.Transaction{
		Type:           features.TransactionType(r.Type),
		Amount:         deref(r.Amount),
		OldBalanceOrig: deref(r.OldBalanceOrg),
		NewBalanceOrig: deref(r.NewBalanceOrig),
		OldBalanceDest: deref(r.OldBalanceDest),
		NewBalanceDest: deref(r.NewBalanceDest),
	}
	if r.IsFlaggedFraud != nil {
		tx.IsFlaggedFraud = *r.IsFlaggedFraud
	}
	return tx
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Handler provides HTTP endpoints for scoring.
type Handler struct {
	service *Service
	strict  bool
}

// NewHandler creates a new scoring handler. Every failure is reported as
// 400 unless WithStrictStatus is applied.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// WithStrictStatus maps server-side failures to 5xx instead of 400.
func (h *Handler) WithStrictStatus() *Handler {
	h.strict = true
	return h
}

// RegisterRoutes sets up scoring routes
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Root)
	r.POST("/predict", h.Predict)
	r.GET("/model_info", h.ModelInfo)
}

// Root handles GET /
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, APIDescriptor())
}

// Predict handles POST /predict
func (h *Handler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, fmt.Errorf("%w: malformed request body: %v", ErrValidation, err))
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.service.Predict(c.Request.Context(), req.Transaction())
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ModelInfo handles GET /model_info
func (h *Handler) ModelInfo(c *gin.Context) {
	info, err := h.service.Describe()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := h.classify(err)
	msg := err.Error()

	logger := logging.L(c.Request.Context())
	if errors.Is(err, ErrValidation) {
		logger.Info("scoring request rejected", "error", msg)
	} else {
		logger.Error("scoring request failed", "error", msg)
	}

	c.JSON(status, gin.H{
		"error":   code,
		"message": msg,
		"detail":  "Error: " + msg,
	})
}

func (h *Handler) classify(err error) (int, string) {
	var status int
	var code string
	switch {
	case errors.Is(err, ErrValidation):
		status, code = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ErrInferenceUnavailable):
		status, code = http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, ErrFeatureMismatch):
		status, code = http.StatusServiceUnavailable, "feature_mismatch"
	default:
		status, code = http.StatusInternalServerError, "inference_failed"
	}
	if !h.strict {
		status = http.StatusBadRequest
	}
	return status, code
}
