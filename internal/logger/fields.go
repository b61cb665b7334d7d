package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared across packages.
const (
	FieldProvider     = "ai_provider"
	FieldModel        = "ai_model"
	FieldReference    = "reference"
	FieldNotification = "notification_id"
	FieldOutcome      = "outcome"
)

// WithCommonFields tags every entry of an inference client with its provider and model.
// Blank values are left out. A nil logger becomes a no-op logger.
func WithCommonFields(log *zap.Logger, provider, model string) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}

	var fields []zap.Field
	if provider = strings.TrimSpace(provider); provider != "" {
		fields = append(fields, zap.String(FieldProvider, provider))
	}
	if model = strings.TrimSpace(model); model != "" {
		fields = append(fields, zap.String(FieldModel, model))
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}

func Reference(reference string) zap.Field {
	return zap.String(FieldReference, reference)
}

func Notification(id uint32) zap.Field {
	return zap.Uint32(FieldNotification, id)
}

// Outcome records how a notification ended; any string-based type is accepted.
func Outcome[T ~string](outcome T) zap.Field {
	return zap.String(FieldOutcome, string(outcome))
}
