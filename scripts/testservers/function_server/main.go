// Command function_server is a sample serverless-style endpoint for manual
// latbench runs. It answers requests carrying the expected function header
// with a JSON body reporting its simulated work time.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type options struct {
	port     int
	function string
	latency  time.Duration
	jitter   time.Duration
	throttle float64
}

type handler struct {
	opt    options
	logger *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

func main() {
	var opt options
	flags := pflag.NewFlagSet("function_server", pflag.ExitOnError)
	flags.IntVar(&opt.port, "port", 8080, "Listening port")
	flags.StringVar(&opt.function, "function", "hello", "Value expected in the X-Function header")
	flags.DurationVar(&opt.latency, "latency", 5*time.Millisecond, "Base simulated work time")
	flags.DurationVar(&opt.jitter, "jitter", 2*time.Millisecond, "Maximum random extra work time")
	flags.Float64Var(&opt.throttle, "throttle", 0, "Fraction of requests answered with 429")
	_ = flags.Parse(os.Args[1:])

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	h := &handler{opt: opt, logger: logger, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	addr := fmt.Sprintf(":%d", opt.port)
	logger.Info("function server listening", zap.String("addr", addr), zap.String("function", opt.function))
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.EqualFold(r.Header.Get("X-Function"), h.opt.function) {
		http.Error(w, "unknown function", http.StatusNotFound)
		return
	}

	work, throttled := h.draw()
	if throttled {
		w.Header().Set("Retry-After", "1")
		http.Error(w, "throttled", http.StatusTooManyRequests)
		return
	}
	time.Sleep(work)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"function": h.opt.function,
		"timing": map[string]float64{
			"work_ms": float64(work) / float64(time.Millisecond),
		},
	})
}

func (h *handler) draw() (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opt.throttle > 0 && h.rnd.Float64() < h.opt.throttle {
		return 0, true
	}
	work := h.opt.latency
	if h.opt.jitter > 0 {
		work += time.Duration(h.rnd.Int63n(int64(h.opt.jitter)))
	}
	return work, false
}
