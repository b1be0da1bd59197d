// Package logging configures the logrus standard logger for the command line.
package logging

import (
	"io"
	"path"
	"runtime"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup apply level and format ("text" or "json") to the standard logger.
// Debug and trace levels also report the calling function.
func Setup(out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	log.SetOutput(out)
	log.SetLevel(lvl)
	log.SetReportCaller(lvl >= log.DebugLevel)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{CallerPrettyfier: callerPrettyfier})
	default:
		log.SetFormatter(&log.TextFormatter{
			DisableTimestamp: true,
			PadLevelText:     true,
			QuoteEmptyFields: true,
			CallerPrettyfier: callerPrettyfier,
		})
	}
	return nil
}

func callerPrettyfier(f *runtime.Frame) (string, string) {
	s := strings.Split(f.Function, ".")
	funcName := s[len(s)-1] + "()"
	_, filename := path.Split(f.File)
	return funcName, filename + ":" + strconv.Itoa(f.Line)
}
