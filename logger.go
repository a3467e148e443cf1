package shadertoggle

import (
	"log/slog"

	"github.com/gogpu/shadertoggle/internal/logx"
)

// SetLogger configures the logger for shadertoggle and all its
// sub-packages. By default shadertoggle produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by shadertoggle:
//   - [slog.LevelDebug]: state transitions, layout registration, view and
//     texture recreation
//   - [slog.LevelInfo]: configuration loads and effect reloads
//   - [slog.LevelWarn]: failed view or buffer creation, unknown copy
//     strategies
//
// Example:
//
//	shadertoggle.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logx.Set(l)
}

// Logger returns the current logger used by shadertoggle.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logx.L()
}
