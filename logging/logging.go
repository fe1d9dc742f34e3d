// Package logging holds the process-wide leveled logger.
package logging

import (
	"strings"

	"github.com/astaxie/beego/logs"
	"github.com/pkg/errors"
)

// Logger is shared by every package.
// it writes synchronously to the console so that a message logged right before a panic is not lost
var Logger = newLogger()

func newLogger() *logs.BeeLogger {
	l := logs.NewLogger()
	// the console adapter takes no config, so registration cannot fail
	_ = l.SetLogger(logs.AdapterConsole)
	l.EnableFuncCallDepth(true)
	l.SetLevel(logs.LevelInformational)
	return l
}

// levels maps names accepted in config to beego levels
var levels = map[string]int{
	"critical": logs.LevelCritical,
	"error":    logs.LevelError,
	"warning":  logs.LevelWarning,
	"info":     logs.LevelInformational,
	"debug":    logs.LevelDebug,
}

// ParseLevel converts a level name (case insensitive) into a beego level
func ParseLevel(name string) (int, error) {
	level, ok := levels[strings.ToLower(name)]
	if !ok {
		return 0, errors.Errorf("unknown log level: %q", name)
	}
	return level, nil
}

// SetLevel changes the level of Logger by name
func SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return errors.Wrap(err, "ParseLevel failed")
	}
	Logger.SetLevel(level)
	return nil
}
