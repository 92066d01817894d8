package logx

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Later fields win on duplicate keys.
type Field func(e *zerolog.Event)

func String(k, v string) Field                 { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field                { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field            { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field          { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field              { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field         { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field                { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err is a no-op for nil errors.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Well-known keys, so the same thing is always logged under the same name.
const (
	KeyComp  = "comp"
	KeyUser  = "user"
	KeyItem  = "item"
	KeyJob   = "job"
	KeyStack = "stack"
)

func Comp(name string) Field { return String(KeyComp, name) }
func User(id int64) Field    { return Int64(KeyUser, id) }
func Item(id string) Field   { return String(KeyItem, id) }
func Job(id string) Field    { return String(KeyJob, id) }

// Stack attaches a rendered stack trace; blank traces are dropped.
func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str(KeyStack, stack)
		}
	}
}

// Panic records a recovered value and the stack of the goroutine that panicked.
// skip counts frames above the deferred recover, as in runtime.Callers.
func Panic(r any, skip int) Field {
	stack := StackTrace(skip+1, 24)
	return func(e *zerolog.Event) {
		e.Interface("panic", r)
		if stack != "" {
			e.Str(KeyStack, stack)
		}
	}
}

// StackTrace renders up to maxFrames frames of the current goroutine, skipping
// the first skip callers.
func StackTrace(skip, maxFrames int) string {
	if maxFrames <= 0 {
		maxFrames = 16
	}
	pcs := make([]uintptr, maxFrames)
	frames := runtime.CallersFrames(pcs[:runtime.Callers(skip, pcs)])
	lines := make([]string, 0, maxFrames)
	for {
		fr, more := frames.Next()
		if fr.File != "" {
			lines = append(lines, fr.Function+"\n  "+fr.File+":"+strconv.Itoa(fr.Line))
		}
		if !more || len(lines) >= maxFrames {
			break
		}
	}
	return strings.Join(lines, "\n")
}
