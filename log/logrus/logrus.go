// Package logrus adapts a logrus entry to viewcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/viewcache"
)

var _ viewcache.Logger = Logger{}

// Logger writes through E. A nil E logs through logrus.StandardLogger().
type Logger struct{ E *logrus.Entry }

func (l Logger) Debug(msg string, f viewcache.Fields) { l.with(f).Debug(msg) }
func (l Logger) Info(msg string, f viewcache.Fields)  { l.with(f).Info(msg) }
func (l Logger) Warn(msg string, f viewcache.Fields)  { l.with(f).Warn(msg) }
func (l Logger) Error(msg string, f viewcache.Fields) { l.with(f).Error(msg) }

func (l Logger) with(f viewcache.Fields) *logrus.Entry {
	e := l.E
	if e == nil {
		e = logrus.NewEntry(logrus.StandardLogger())
	}
	if len(f) == 0 {
		return e
	}
	return e.WithFields(logrus.Fields(f))
}
