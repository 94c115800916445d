package diagnostics

import "github.com/rs/zerolog"

// ZerologSink writes Diagnostics through a zerolog.Logger, the ambient
// structured-logging backend the rest of the daemon uses.
type ZerologSink struct {
	Logger zerolog.Logger
}

func (z ZerologSink) Emit(d Diagnostic) {
	var ev *zerolog.Event
	switch d.Severity {
	case Error:
		ev = z.Logger.Error()
	case Warn:
		ev = z.Logger.Warn()
	default:
		ev = z.Logger.Info()
	}
	ev.Str("code", string(d.Code)).
		Str("device", d.Device).
		Str("detail", d.Detail).
		Time("at", d.At).
		Msg(d.Summary)
}
