package log

// MultiLogger fans every event out to a fixed set of loggers, e.g. a
// FileLogger capture plus an SlogAdapter for the console.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger builds a MultiLogger over the given loggers. Order is
// preserved: each event reaches the loggers in the order given here.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

var _ Logger = (*MultiLogger)(nil)
