// Package logging builds the zap loggers used by the CLI and the language
// server. Logs always go to the writer given (stderr in practice); stdout
// carries structured output and the LSP wire.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to w. Only warnings and errors are
// shown unless verbose is set, in which case debug records are included.
func New(verbose bool, w io.Writer) *zap.Logger {
	level := zap.WarnLevel
	encCfg := zap.NewProductionEncoderConfig()
	if verbose {
		level = zap.DebugLevel
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.TimeKey = ""
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core).Named("jsoncheck")
}
