package transport

import (
	"context"
	"time"
)

type Request struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// Success reports a 2xx status.
func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header returns the first value stored under name, ignoring case.
func (r Response) Header(name string) string {
	for key, value := range r.Headers {
		if equalFoldTrim(key, name) {
			return value
		}
	}
	return ""
}

// Client is what gateway and notifier code depends on for outbound calls.
type Client interface {
	Do(ctx context.Context, req Request) (Response, error)
}

type ClientFunc func(ctx context.Context, req Request) (Response, error)

func (fn ClientFunc) Do(ctx context.Context, req Request) (Response, error) {
	return fn(ctx, req)
}
