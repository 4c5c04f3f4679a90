package logger

import (
	"fmt"
	"log"
)

type ColorLogger struct {
	*log.Logger
}

type Color string

const (
	ColorBlack  Color = "\u001b[30m"
	ColorRed    Color = "\u001b[31m"
	ColorGreen  Color = "\u001b[32m"
	ColorYellow Color = "\u001b[33m"
	ColorBlue   Color = "\u001b[34m"
	ColorReset  Color = "\u001b[0m"
)

// NewColorLogger wraps lg, a nil lg falls back to log.Default().
func NewColorLogger(lg *log.Logger) *ColorLogger {
	if lg == nil {
		lg = log.Default()
	}
	c := ColorLogger{
		lg,
	}
	return &c
}

func (c *ColorLogger) Printcf(color Color, format string, args ...interface{}) {
	c.Print(string(color) + fmt.Sprintf(format, args...) + string(ColorReset))
}

func (c *ColorLogger) Printc(color Color, s string) {
	c.Print(string(color) + s + string(ColorReset))
}

func (c *ColorLogger) Infof(format string, args ...interface{}) {
	c.Printcf(ColorBlue, format, args...)
}

func (c *ColorLogger) Warnf(format string, args ...interface{}) {
	c.Printcf(ColorYellow, format, args...)
}

func (c *ColorLogger) Errorf(format string, args ...interface{}) {
	c.Printcf(ColorRed, format, args...)
}
