package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/go-vase/vase/internal/routing"
)

// acceptBackoff bounds the retry delay for temporary Accept errors, the
// classic net/http.Server.Serve idiom, expressed with the same
// exponential-backoff library the rest of the corpus reaches for
// instead of a hand-rolled doubling loop.
func acceptBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	return b
}

// visitor tracks one remote IP's token bucket, adapted from
// _teacher_auth_middleware.go.ref's RateLimitMiddleware for gating
// accepted connections instead of individual HTTP requests behind a
// reverse proxy.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter throttles accepted connections per remote IP, evicting
// entries idle past ttl so a long-running listener doesn't accumulate
// one visitor per ever-seen client forever.
type IPRateLimiter struct {
	mu    sync.Mutex
	rate  rate.Limit
	burst int
	ttl   time.Duration
	seen  map[string]*visitor
}

// NewIPRateLimiter returns a limiter allowing r events per second with
// burst capacity per distinct remote IP.
func NewIPRateLimiter(r rate.Limit, burst int) *IPRateLimiter {
	return &IPRateLimiter{rate: r, burst: burst, ttl: 3 * time.Minute, seen: make(map[string]*visitor)}
}

// Allow reports whether a new connection from addr may proceed.
func (l *IPRateLimiter) Allow(addr string) bool {
	ip := hostOf(addr)

	l.mu.Lock()
	v, ok := l.seen[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.seen[ip] = v
	}
	v.lastSeen = time.Now()
	limiter := v.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// evictStale runs until ctx is cancelled, periodically dropping
// visitors idle past ttl.
func (l *IPRateLimiter) evictStale(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.mu.Lock()
			for ip, v := range l.seen {
				if now.Sub(v.lastSeen) > l.ttl {
					delete(l.seen, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// Accepter is the accept loop: it owns the listener and a rate limiter,
// spawning a Supervisor goroutine per connection admitted past the
// limiter (spec.md §4.3, §9 "one goroutine per connection").
type Accepter struct {
	ln             net.Listener
	router         *routing.Router
	limiter        *IPRateLimiter
	keepAlive      time.Duration
	maxHeaderBytes int
	logger         *slog.Logger
}

// NewAccepter returns an Accepter serving ln, dispatching accepted
// connections through router, admitting at most one burst-limited
// stream of connections per remote IP. maxHeaderBytes bounds each
// connection's request line and header block (internal/config.Config's
// MaxHeaderBytes); <= 0 leaves it unbounded.
func NewAccepter(ln net.Listener, router *routing.Router, limiter *IPRateLimiter, keepAlive time.Duration, maxHeaderBytes int, logger *slog.Logger) *Accepter {
	return &Accepter{ln: ln, router: router, limiter: limiter, keepAlive: keepAlive, maxHeaderBytes: maxHeaderBytes, logger: logger}
}

// Serve runs the accept loop until ctx is cancelled or the listener is
// closed. Temporary Accept errors are retried with acceptBackoff;
// anything else ends the loop.
func (a *Accepter) Serve(ctx context.Context) error {
	go a.limiter.evictStale(ctx)

	b := backoff.WithContext(acceptBackoff(), ctx)

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				delay := b.NextBackOff()
				if delay == backoff.Stop {
					return err
				}
				a.logger.Warn("temporary accept error, retrying", slog.String("error", err.Error()), slog.Duration("delay", delay))
				time.Sleep(delay)
				continue
			}
			if strings.Contains(err.Error(), "use of closed network connection") {
				return nil
			}
			return err
		}
		b.Reset()

		if !a.limiter.Allow(conn.RemoteAddr().String()) {
			_ = conn.Close()
			continue
		}

		sup := NewSupervisor(conn, a.router, a.keepAlive, a.maxHeaderBytes, a.logger)
		go sup.Serve(ctx)
	}
}
