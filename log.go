package motionheic

import (
	"context"

	"github.com/rs/zerolog"
)

// loggerFromContext returns the zerolog.Logger attached to ctx by
// (*ConvertRequest).Run's caller. With none attached it falls back to
// zerolog.DefaultContextLogger, and to a disabled logger when that is unset.
func loggerFromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

func logDebug(ctx context.Context, msg string) {
	loggerFromContext(ctx).Debug().Msg(msg)
}

func logWarn(ctx context.Context, msg string) {
	loggerFromContext(ctx).Warn().Msg(msg)
}

func logInfo(ctx context.Context, msg string) {
	loggerFromContext(ctx).Info().Msg(msg)
}
