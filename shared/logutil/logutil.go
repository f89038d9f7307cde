// Package logutil configures the process-wide logrus logger, adapted from
// Prysm's validator/main.go and beacon-chain/main.go log-format
// switch (text / json / fluentd via joonix).
package logutil

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	joonix "github.com/joonix/log"
)

// Configure sets the global logrus formatter and level from the
// --log-format and --log-level flags.
func Configure(format, level string) error {
	switch format {
	case "text", "":
		formatter := &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
		logrus.SetFormatter(formatter)
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "fluentd":
		f := joonix.NewFormatter()
		if err := joonix.DisableTimestampFormat(f); err != nil {
			return errors.Wrap(err, "could not disable fluentd timestamp format")
		}
		logrus.SetFormatter(f)
	default:
		return errors.Errorf("unknown log format %q", format)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	logrus.SetLevel(lvl)
	return nil
}
