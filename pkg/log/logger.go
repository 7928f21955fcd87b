package log

// Logger receives transport protocol events: frames crossing the wire,
// connection state changes and transport errors. Implementations must
// tolerate concurrent calls and should return quickly; a slow Log call
// stalls the connection it observes.
type Logger interface {
	Log(event Event)
}

// LoggerFunc adapts a plain function to the Logger interface.
type LoggerFunc func(Event)

func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
