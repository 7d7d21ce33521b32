package worker

import (
	"github.com/sirupsen/logrus"
)

type Options struct {
	Size   int
	Logger *logrus.Entry

	// OnStart and OnFinish observe task lifecycle (metrics hooks).
	OnStart  func(name string)
	OnFinish func(name string, err error)
}

func (o *Options) setDefaults() {
	if o.Size == 0 {
		o.Size = 4
	}
	if o.Logger == nil {
		o.Logger = logrusNop()
	}
	if o.OnStart == nil {
		o.OnStart = func(string) {}
	}
	if o.OnFinish == nil {
		o.OnFinish = func(string, error) {}
	}
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type submitOptions struct {
	onAbandon func(err error)
}

type SubmitOption func(*submitOptions)

// OnAbandon registers fn to run when the task is dropped from the queue
// without ever starting.
func OnAbandon(fn func(err error)) SubmitOption {
	return func(o *submitOptions) {
		o.onAbandon = fn
	}
}
