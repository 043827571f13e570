package queue

import (
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-converter/pkg/logger"
)

// asynqLogger routes asynq's internal logging through the application logger.
type asynqLogger struct {
	l logger.Logger
}

// NewLogger adapts l to asynq.Logger.
func NewLogger(l logger.Logger) asynq.Logger {
	return asynqLogger{l: l}
}

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal(fmt.Sprint(args...)) }
