package core

// Logger is the application logger.
// args may contain errors, key/value maps or the identifier of the user concerned.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the user concerned by a log entry. Pass it among the args.
type Person struct {
	ID       string
	Username string
}
