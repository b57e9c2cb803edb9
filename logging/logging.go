// Package logging contains the structured logger used by the motion engine, its arm and the sorter.
package logging

// NewLogger returns a logger writing Info+ entries to stdout in UTC.
func NewLogger(name string) Logger {
	return newImpl(name, INFO, true, NewStdoutAppender())
}

// NewDebugLogger returns a logger writing Debug+ entries to stdout in UTC.
func NewDebugLogger(name string) Logger {
	return newImpl(name, DEBUG, true, NewStdoutAppender())
}

// NewBlankLogger returns a Debug+ logger without appenders. Entries go nowhere until one is
// added.
func NewBlankLogger(name string) Logger {
	return newImpl(name, DEBUG, true)
}
