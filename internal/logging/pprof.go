package logging

import (
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // Register pprof handlers
	"sync"
)

const pprofAddr = "localhost:6060"

var pprofOnce sync.Once

// startPprof serves pprof on localhost:6060. Only the first call has effect.
func startPprof(logger *slog.Logger) {
	pprofOnce.Do(func() {
		go func() {
			logger.Info("pprof_server_start", slog.String("addr", pprofAddr))
			if err := http.ListenAndServe(pprofAddr, nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("pprof_server_error", slog.String("error", err.Error()))
			}
		}()
	})
}
