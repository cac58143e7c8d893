package logger

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

type color uint8

const (
	colorRed     color = 31
	colorGreen   color = 32
	colorYellow  color = 33
	colorBlue    color = 34
	colorMagenta color = 35
	colorCyan    color = 36
)

func (c color) Wrap(s string) string {
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", uint8(c), s)
}

var (
	levelToCapitalColorString = map[zapcore.Level]string{
		zapcore.DebugLevel:  colorCyan.Wrap(zapcore.DebugLevel.CapitalString()),
		zapcore.InfoLevel:   colorGreen.Wrap(zapcore.InfoLevel.CapitalString()),
		zapcore.WarnLevel:   colorYellow.Wrap(zapcore.WarnLevel.CapitalString()),
		zapcore.ErrorLevel:  colorRed.Wrap(zapcore.ErrorLevel.CapitalString()),
		zapcore.DPanicLevel: colorMagenta.Wrap(zapcore.DPanicLevel.CapitalString()),
		zapcore.PanicLevel:  colorMagenta.Wrap(zapcore.PanicLevel.CapitalString()),
		zapcore.FatalLevel:  colorMagenta.Wrap(zapcore.FatalLevel.CapitalString()),
	}
	unknownLevelColor = colorBlue
)
