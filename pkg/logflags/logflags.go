package logflags

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var loader = false
var auxvLayer = false
var transfer = false
var supervisor = false
var config = false

var logOut io.WriteCloser

var textFormatterInstance = &textFormatter{}

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = textFormatterInstance
	if logOut != nil {
		logger.Logger.Out = logOut
	} else {
		logger.Logger.Out = os.Stderr
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if flag {
		return makeLogger(logrus.DebugLevel, fields)
	}
	return makeLogger(logrus.ErrorLevel, fields)
}

// Loader returns true if the loader package should log.
func Loader() bool {
	return loader
}

// LoaderLogger returns a logger for the loader package.
func LoaderLogger() Logger {
	return makeFlaggableLogger(loader, Fields{"layer": "loader"})
}

// Auxv returns true if argument block discovery and patching should be
// logged.
func Auxv() bool {
	return auxvLayer
}

// AuxvLogger returns a logger for argument block discovery and patching.
func AuxvLogger() Logger {
	return makeFlaggableLogger(auxvLayer, Fields{"layer": "auxv"})
}

// Transfer returns true if the control transfer should be logged.
func Transfer() bool {
	return transfer
}

// TransferLogger returns a logger for the control transfer.
func TransferLogger() Logger {
	return makeFlaggableLogger(transfer, Fields{"layer": "transfer"})
}

// Supervisor returns true if the fault supervisor should log.
func Supervisor() bool {
	return supervisor
}

// SupervisorLogger returns a logger for the fault supervisor. Faults are
// reported at error level and are therefore always visible.
func SupervisorLogger() Logger {
	return makeFlaggableLogger(supervisor, Fields{"layer": "supervisor"})
}

// Config returns true if configuration loading should be logged.
func Config() bool {
	return config
}

// ConfigLogger returns a logger for configuration loading.
func ConfigLogger() Logger {
	return makeFlaggableLogger(config, Fields{"layer": "config"})
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the logging flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	loader, auxvLayer, transfer, supervisor, config = false, false, false, false, false
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "uexec-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if logstr == "" {
		logstr = "loader"
	}
	v := strings.Split(logstr, ",")
	for _, logcmd := range v {
		// If adding another value, do make sure to
		// update "Help about logging flags" in commands.go.
		switch logcmd {
		case "loader":
			loader = true
		case "auxv":
			auxvLayer = true
		case "transfer":
			transfer = true
		case "supervisor":
			supervisor = true
		case "config":
			config = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'uexec help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
		logOut = nil
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *strings.Builder = &strings.Builder{}

	fmt.Fprintf(b, "%s %s ", entry.Time.Format("2006-01-02T15:04:05Z07:00"), strings.ToLower(entry.Level.String()))
	if layer, ok := entry.Data["layer"]; ok {
		fmt.Fprintf(b, "layer=%v ", layer)
	}
	for k, v := range entry.Data {
		if k == "layer" {
			continue
		}
		fmt.Fprintf(b, "%s=%v ", k, v)
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return []byte(b.String()), nil
}
