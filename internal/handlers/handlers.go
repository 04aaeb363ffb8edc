package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/Brownie44l1/digit-api/internal/errors"
	"github.com/Brownie44l1/digit-api/internal/model"
)

// Predictor is the pipeline behind the prediction endpoints.
type Predictor interface {
	PredictPayload(ctx context.Context, payload string) (*model.PredictionResponse, error)
	PredictImage(ctx context.Context, imageBytes []byte) (*model.PredictionResponse, error)
}

// ModelInfo is reported by the health endpoint.
type ModelInfo struct {
	Path    string
	Classes int
}

type Handler struct {
	predictor      Predictor
	info           ModelInfo
	requestTimeout time.Duration
	logger         *zap.Logger
}

func NewHandler(predictor Predictor, info ModelInfo, requestTimeout time.Duration, logger *zap.Logger) *Handler {
	return &Handler{
		predictor:      predictor,
		info:           info,
		requestTimeout: requestTimeout,
		logger:         logger.Named("handlers"),
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.Health)
	router.POST("/predict", h.Predict)
	router.POST("/predict/image", h.PredictFromImage)

	// Preflight requests are answered by CORS(); these keep them off the 404 path.
	router.OPTIONS("/predict", noContent)
	router.OPTIONS("/predict/image", noContent)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"model":   h.info.Path,
		"classes": h.info.Classes,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) Predict(c *gin.Context) {
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, apperrors.NewPayloadTooLargeError("request body too large", err))
			return
		}
		h.respondError(c, apperrors.NewValidationError("invalid JSON body", err))
		return
	}
	if strings.TrimSpace(req.Image) == "" {
		h.respondError(c, apperrors.NewValidationError("image field is required", nil))
		return
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()

	result, err := h.predictor.PredictPayload(ctx, req.Image)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// PredictFromImage accepts a multipart upload in the "image" field.
func (h *Handler) PredictFromImage(c *gin.Context) {
	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, apperrors.NewPayloadTooLargeError("request body too large", err))
			return
		}
		h.respondError(c, apperrors.NewValidationError("no image file provided, use 'image' as the form field name", err))
		return
	}

	src, err := file.Open()
	if err != nil {
		h.respondError(c, apperrors.NewValidationError("unable to open image", err))
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.respondError(c, apperrors.NewInternalError("failed to read image", err))
		return
	}

	h.logger.Debug("received upload",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size),
		zap.String("request_id", c.GetString(requestIDKey)))

	ctx, cancel := h.withTimeout(c)
	defer cancel()

	result, err := h.predictor.PredictImage(ctx, data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.requestTimeout)
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError("request processing failed", err)
	}

	fields := []zap.Field{
		zap.Error(err),
		zap.Int("status_code", appErr.StatusCode),
		zap.String("type", string(appErr.Type)),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString(requestIDKey)),
	}
	if appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}

	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{"error": appErr.ClientMessage()})
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
