package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// New builds the process logger. Production emits JSON, everything else text.
func New(env, level string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if strings.EqualFold(env, "production") || strings.EqualFold(env, "prod") {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

// Discard returns a logger that writes nowhere, for tests
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// Component tags every entry with the emitting component
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}

// LogError writes an error entry with the call site context attached
func LogError(entry *logrus.Entry, funcName string, context string, data any, err error) {
	fields := logrus.Fields{
		"funcName": funcName,
		"context":  context,
	}
	if data != nil {
		fields["data"] = data
	}
	entry.WithFields(fields).Error(err.Error())
}

// Gorm adapts a logrus logger to gorm's logger interface
type Gorm struct {
	entry         *logrus.Entry
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGorm(log *logrus.Logger) *Gorm {
	return &Gorm{
		entry:         Component(log, "gorm"),
		level:         gormlogger.Warn,
		slowThreshold: time.Second,
	}
}

func (g *Gorm) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *Gorm) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.entry.Infof(msg, args...)
	}
}

func (g *Gorm) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.entry.Warnf(msg, args...)
	}
}

func (g *Gorm) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.entry.Errorf(msg, args...)
	}
}

func (g *Gorm) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && g.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		g.entry.WithFields(logrus.Fields{"elapsed": elapsed.String(), "rows": rows, "sql": sql}).Error(err.Error())
	case elapsed > g.slowThreshold && g.slowThreshold != 0 && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.entry.WithFields(logrus.Fields{"elapsed": elapsed.String(), "rows": rows, "sql": sql}).
			Warn(fmt.Sprintf("slow query >= %v", g.slowThreshold))
	case g.level == gormlogger.Info:
		sql, rows := fc()
		g.entry.WithFields(logrus.Fields{"elapsed": elapsed.String(), "rows": rows}).Debug(sql)
	}
}
