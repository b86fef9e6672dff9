package utils

import (
	"go.uber.org/zap"
)

// HandleFatalError logs err with msg and exits when err is not nil.
// A nil logger panics.
func HandleFatalError(err error, msg string, logger *zap.Logger) {
	if logger == nil {
		panic("logger is nil")
	}
	if err != nil {
		logger.Fatal(msg, zap.Error(err))
	}
}
