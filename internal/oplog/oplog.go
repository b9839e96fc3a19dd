// Package oplog writes vending operation records to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/vending/pkg/vending"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const statusOK = "ok"

// Logger implements vending.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New returns a Logger writing to logger. A nil logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("operation")}
}

func (operationLogger *Logger) LogOperation(_ context.Context, entry vending.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if entry.ProductID.String() != "" {
		fields = append(fields, zap.String("product_id", entry.ProductID.String()))
	}
	if !entry.Amount.IsZero() {
		fields = append(fields, zap.String("amount", entry.Amount.StringFixed(2)))
	}
	if entry.Quantity > 0 {
		fields = append(fields, zap.Int("quantity", entry.Quantity.Int()))
	}
	if len(entry.Coins) > 0 {
		fields = append(fields, zap.Array("coins", coinList(entry.Coins)))
	}
	if entry.Error != nil {
		fields = append(fields, zap.String("error_kind", string(vending.KindOf(entry.Error))), zap.Error(entry.Error))
	}

	level := zapcore.InfoLevel
	if entry.Status != statusOK {
		level = levelFor(entry.Error)
	}
	operationLogger.logger.Log(level, "vending operation", fields...)
}

// Expected business outcomes log at warn; infrastructure failures at error.
func levelFor(err error) zapcore.Level {
	switch vending.KindOf(err) {
	case vending.KindPersistenceFailure, vending.KindInternal:
		return zapcore.ErrorLevel
	default:
		return zapcore.WarnLevel
	}
}

type coinList []vending.Coin

func (coins coinList) MarshalLogArray(encoder zapcore.ArrayEncoder) error {
	for _, coin := range coins {
		encoder.AppendInt(coin.Int())
	}
	return nil
}
