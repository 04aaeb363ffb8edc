package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Brownie44l1/digit-api/internal/cache"
	apperrors "github.com/Brownie44l1/digit-api/internal/errors"
	"github.com/Brownie44l1/digit-api/internal/logging"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

// Classifier runs the model on one normalized tensor.
type Classifier interface {
	Predict(input []float32) (*model.PredictionResponse, error)
}

// PredictionUseCase turns image payloads into digit predictions.
type PredictionUseCase struct {
	classifier Classifier
	cache      cache.PredictionCache
	slots      *semaphore.Weighted
	options    preprocess.Options
	logger     *zap.Logger
}

// NewPredictionUseCase wires the pipeline. maxConcurrent bounds simultaneous model runs.
func NewPredictionUseCase(classifier Classifier, predictionCache cache.PredictionCache, options preprocess.Options, maxConcurrent int64, logger *zap.Logger) *PredictionUseCase {
	if predictionCache == nil {
		predictionCache = cache.Nop{}
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &PredictionUseCase{
		classifier: classifier,
		cache:      predictionCache,
		slots:      semaphore.NewWeighted(maxConcurrent),
		options:    options,
		logger:     logger.Named("prediction_usecase"),
	}
}

// PredictPayload handles a base64 or data-URI image string.
func (uc *PredictionUseCase) PredictPayload(ctx context.Context, payload string) (*model.PredictionResponse, error) {
	imageBytes, err := preprocess.DecodePayload(payload)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image payload", err)
	}
	return uc.PredictImage(ctx, imageBytes)
}

// PredictImage handles raw encoded image bytes (PNG, JPEG, ...).
func (uc *PredictionUseCase) PredictImage(ctx context.Context, imageBytes []byte) (*model.PredictionResponse, error) {
	requestID := logging.RequestIDFromContext(ctx)
	opLogger := logging.WithOperation(uc.logger, "usecase.predict", requestID)

	if len(imageBytes) == 0 {
		return nil, apperrors.NewValidationError("invalid image payload", preprocess.ErrEmptyPayload)
	}

	key := cache.Key(imageBytes)
	if cached, found, err := uc.cache.Get(ctx, key); err != nil {
		opLogger.Warn("prediction cache lookup failed", zap.Error(err))
	} else if found {
		opLogger.Debug("prediction served from cache", zap.Int("prediction", cached.Prediction))
		return cached, nil
	}

	// Decoding allocates the full pixel buffer, so it holds the same slot as the model run.
	if err := uc.slots.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.NewTimeoutError("timed out waiting for an inference slot", err)
		}
		return nil, apperrors.NewUnavailableError("request cancelled while waiting for an inference slot", err)
	}
	start := time.Now()
	result, err := uc.classify(imageBytes)
	uc.slots.Release(1)
	if err != nil {
		if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
			opLogger.Error("inference failed", zap.Error(err))
		}
		return nil, err
	}

	opLogger.Debug("inference completed",
		zap.Int("prediction", result.Prediction),
		zap.Float32("confidence", result.Confidence),
		zap.Duration("latency", time.Since(start)))

	if err := uc.cache.Set(ctx, key, result); err != nil {
		opLogger.Warn("failed to cache prediction", zap.Error(err))
	}
	return result, nil
}

func (uc *PredictionUseCase) classify(imageBytes []byte) (*model.PredictionResponse, error) {
	tensor, err := preprocess.FromBytes(imageBytes, uc.options)
	if errors.Is(err, preprocess.ErrImageTooLarge) {
		return nil, apperrors.NewValidationError("image too large", err)
	}
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image", err)
	}

	result, err := uc.classifier.Predict(tensor.Data)
	if err != nil {
		return nil, apperrors.NewInferenceError("inference failed", err)
	}
	return result, nil
}
