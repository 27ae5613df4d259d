package logging

import (
	"log/slog"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof handlers
)

const pprofAddr = "localhost:6060"

// startPprof serves the runtime profiler on loopback. Enabled by logs.pprof.
func startPprof() {
	go func() {
		Logger().Info("pprof_listen", slog.String("addr", pprofAddr))
		if err := http.ListenAndServe(pprofAddr, nil); err != nil {
			Logger().Warn("pprof_stopped", slog.String("error", err.Error()))
		}
	}()
}
