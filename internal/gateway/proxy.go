// Trackplane - Real-Time Fleet Location Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/trackplane

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/trackplane/internal/config"
	"github.com/tomtom215/trackplane/internal/logging"
	"github.com/tomtom215/trackplane/internal/metrics"
)

type proxyErrKeyType struct{}

var proxyErrKey proxyErrKeyType

// proxyErrCapture carries a transport failure out of the reverse proxy's
// ErrorHandler so the circuit breaker can count it.
type proxyErrCapture struct {
	err error
}

// backendProxy is one backend's reverse proxy wrapped in a circuit
// breaker. The breaker uses real time for its recovery windows.
type backendProxy struct {
	rule    RouteRule
	proxy   *httputil.ReverseProxy
	breaker *gobreaker.CircuitBreaker[interface{}]
}

func newBackendProxy(rule RouteRule, cfg *config.GatewayConfig) *backendProxy {
	bp := &backendProxy{rule: rule}

	transport := &http.Transport{
		ResponseHeaderTimeout: cfg.ProxyTimeout,
		MaxIdleConnsPerHost:   32,
	}

	bp.proxy = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = rule.Target.Scheme
			req.URL.Host = rule.Target.Host
			req.URL.Path = rule.rewritePath(req.URL.Path)
			req.Host = rule.Target.Host
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if capture, ok := r.Context().Value(proxyErrKey).(*proxyErrCapture); ok {
				capture.err = err
			}
			logging.Error().
				Err(err).
				Str("backend", rule.Backend).
				Str("path", logging.SanitizeValue(r.URL.Path)).
				Msg("Backend request failed")
			writeBackendError(w, rule.Backend)
		},
	}

	metrics.SetBreakerState(rule.Backend, 0)

	maxRequests := cfg.BreakerMaxRequests
	if maxRequests == 0 {
		maxRequests = 3
	}
	interval := cfg.BreakerInterval
	if interval <= 0 {
		interval = time.Minute
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	bp.breaker = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        rule.Backend,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,

		// Open after a 60% failure rate over at least 10 requests.
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= 0.6
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("backend", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
			metrics.SetBreakerState(name, stateToFloat(to))
		},
	})

	return bp
}

// ServeHTTP forwards the request through the breaker. When the breaker
// is open the backend is never contacted.
func (bp *backendProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	capture := &proxyErrCapture{}
	ctx := context.WithValue(r.Context(), proxyErrKey, capture)

	_, err := bp.breaker.Execute(func() (interface{}, error) {
		bp.proxy.ServeHTTP(w, r.WithContext(ctx))
		if capture.err != nil {
			return nil, capture.err
		}
		return nil, nil
	})

	switch {
	case err == nil:
		metrics.RecordProxy(bp.rule.Backend, "ok", time.Since(start))
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		// The proxy never ran, so nothing has been written yet.
		metrics.RecordProxy(bp.rule.Backend, "open", time.Since(start))
		logging.Warn().
			Str("backend", bp.rule.Backend).
			Msg("Request rejected by open circuit breaker")
		writeBackendError(w, bp.rule.Backend)
	default:
		// ErrorHandler already wrote the response.
		metrics.RecordProxy(bp.rule.Backend, "error", time.Since(start))
	}
}

// State reports the breaker state for the health endpoint.
func (bp *backendProxy) State() string {
	return bp.breaker.State().String()
}

func writeBackendError(w http.ResponseWriter, backend string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	body := fmt.Sprintf(`{"error":%q}`, backendErrorMessage(backend))
	_, _ = w.Write([]byte(body))
}

// backendErrorMessage names the failed backend the way existing clients
// expect, e.g. "Location Service Error".
func backendErrorMessage(backend string) string {
	switch backend {
	case "auth":
		return "Auth Service Error"
	case "device":
		return "Device Service Error"
	case "location":
		return "Location Service Error"
	default:
		return "Service Error"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	default:
		return -1
	}
}
