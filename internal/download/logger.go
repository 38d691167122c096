package download

import (
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// LeveledLogrus lets the retrying HTTP client log through logrus
type LeveledLogrus struct {
	*logrus.Logger
}

// NewLeveledLogrus wraps logger, or the standard logger when nil
func NewLeveledLogrus(logger *logrus.Logger) retryablehttp.LeveledLogger {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LeveledLogrus{logger}
}

// retry attempts are worth seeing without --verbose
const retryKeyword = "retrying"

func fields(keysAndValues ...interface{}) logrus.Fields {
	f := make(logrus.Fields)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}

func (l *LeveledLogrus) Error(msg string, keysAndValues ...interface{}) {
	l.WithFields(fields(keysAndValues...)).Error(msg)
}

func (l *LeveledLogrus) Info(msg string, keysAndValues ...interface{}) {
	l.WithFields(fields(keysAndValues...)).Info(msg)
}

func (l *LeveledLogrus) Debug(msg string, keysAndValues ...interface{}) {
	if strings.Contains(msg, retryKeyword) {
		l.WithFields(fields(keysAndValues...)).Info(msg)
	} else {
		l.WithFields(fields(keysAndValues...)).Debug(msg)
	}
}

func (l *LeveledLogrus) Warn(msg string, keysAndValues ...interface{}) {
	l.WithFields(fields(keysAndValues...)).Warn(msg)
}
