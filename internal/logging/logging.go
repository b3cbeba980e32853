// Package logging provides a component-tagged wrapper around the standard
// library's log package, matching the bracketed-level idiom
// ("[INFO] ...", "[WARN] ...", "[ERROR] ...") already used throughout the
// teacher's usecase and delivery layers. No third-party logging library is
// wired elsewhere in the pack (the teacher itself uses stdlib log), so
// there is nothing to adopt here beyond formalising the prefix convention
// with a component tag.
package logging

import "log"

// Logger tags every line with a component name, e.g. "processor" or
// "providers/sherpa".
type Logger struct {
	component string
}

// New returns a Logger tagging lines with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] %s: "+format, append([]interface{}{l.component}, args...)...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] %s: "+format, append([]interface{}{l.component}, args...)...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] %s: "+format, append([]interface{}{l.component}, args...)...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] %s: "+format, append([]interface{}{l.component}, args...)...)
}
