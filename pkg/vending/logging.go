package vending

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	loggers           []OperationLogger
	serializeBalances bool
	sessionTTL        time.Duration
	changeCalculator  *ChangeCalculator
}

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation string
	UserID    UserID
	ProductID ProductID
	Amount    decimal.Decimal
	Quantity  Quantity
	Coins     []Coin
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
// It may be passed more than once; every logger receives every entry.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(options *serviceOptions) {
		if logger != nil {
			options.loggers = append(options.loggers, logger)
		}
	}
}

// WithSerializedBalances serializes balance mutations per identity within this process.
// Without it concurrent mutations of one account race and the last writer wins.
func WithSerializedBalances() ServiceOption {
	return func(options *serviceOptions) {
		options.serializeBalances = true
	}
}

// WithSessionTTL overrides DefaultSessionTTL for login markers.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(options *serviceOptions) {
		options.sessionTTL = ttl
	}
}

// WithChangeCalculator replaces the default fixed-denomination calculator.
func WithChangeCalculator(calculator *ChangeCalculator) ServiceOption {
	return func(options *serviceOptions) {
		options.changeCalculator = calculator
	}
}

type operationRecorder struct {
	loggers []OperationLogger
}

func (recorder operationRecorder) logOperation(ctx context.Context, entry OperationLog) {
	if len(recorder.loggers) == 0 {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	for _, logger := range recorder.loggers {
		logger.LogOperation(ctx, entry)
	}
}
