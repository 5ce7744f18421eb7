package logging

// Logger is the leveled logger every component writes to.
type Logger interface {
	Printf(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Nop discards everything. Used when a component is built without a logger.
type Nop struct{}

func (Nop) Printf(format string, v ...interface{}) {}
func (Nop) Debug(format string, v ...interface{})  {}
func (Nop) Info(format string, v ...interface{})   {}
func (Nop) Warn(format string, v ...interface{})   {}
func (Nop) Error(format string, v ...interface{})  {}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}
