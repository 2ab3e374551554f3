package health

import (
	"context"
	"net"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines run.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck fails when a recent GC pause exceeded threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)
		for _, pause := range stats.Pause {
			if pause > threshold {
				return errors.Errorf("GC pause %s exceeds threshold %s", pause, threshold)
			}
		}
		return nil
	}
}

// Pinger is implemented by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be pinged.
func PingCheck(p Pinger) CheckFunc {
	return p.Ping
}

// DialCheck passes when at least one of addrs accepts a TCP connection. It
// is used for brokers that have no cheap ping, such as Kafka.
func DialCheck(addrs ...string) CheckFunc {
	return func(ctx context.Context) error {
		if len(addrs) == 0 {
			return errors.New("no addresses")
		}
		var d net.Dialer
		var last error
		for _, addr := range addrs {
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err == nil {
				return conn.Close()
			}
			last = err
		}
		return errors.Wrap(last, "dial")
	}
}
