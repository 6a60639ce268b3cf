// Package logrushook adapts treelog into an ordinary logrus.Hook, so code
// already instrumented with logrus.WithContext(ctx).Info(...) gets its
// entries mirrored into whatever branches ctx's frontier names, without
// switching callers over to treelog.Log directly.
package logrushook

import (
	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/treelog"
)

var levelToMessageType = map[logrus.Level]treelog.MessageType{
	logrus.PanicLevel: treelog.MessageTypeError,
	logrus.FatalLevel: treelog.MessageTypeError,
	logrus.ErrorLevel: treelog.MessageTypeError,
	logrus.WarnLevel:  treelog.MessageTypeSystem,
	logrus.InfoLevel:  treelog.MessageTypeUser,
	logrus.DebugLevel: treelog.MessageTypeSystem,
	logrus.TraceLevel: treelog.MessageTypeSystem,
}

// Hook forwards logrus entries carrying a context.Context into treelog.Log.
// Entries logged without a context (entry.Context == nil) are ignored, so
// plain logrus.Info calls outside any branch scope behave exactly as
// before the hook was installed.
type Hook struct {
	// MirroredLevels restricts which logrus levels are mirrored. A nil
	// slice mirrors every level logrus itself would fire the hook for.
	MirroredLevels []logrus.Level
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	if h.MirroredLevels != nil {
		return h.MirroredLevels
	}
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *Hook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}

	messageType, ok := levelToMessageType[entry.Level]
	if !ok {
		messageType = treelog.MessageTypeUser
	}

	var entryMetadata map[string]any
	if len(entry.Data) > 0 {
		entryMetadata = make(map[string]any, len(entry.Data))
		for k, v := range entry.Data {
			entryMetadata[k] = v
		}
	}

	return treelog.Log(entry.Context, entry.Message,
		treelog.WithMessageType(messageType),
		treelog.WithEntryMetadata(entryMetadata))
}

var _ logrus.Hook = (*Hook)(nil)
