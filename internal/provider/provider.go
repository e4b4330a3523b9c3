// Package provider defines upstream data providers and their adapters.
//
// A provider fetches the raw page behind a target. Every expected failure
// (timeout, bad status, blocked page, missing credentials) is reported as
// an Err result; adapters never panic or return Go errors for these.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/result"
)

// Failure codes shared by all adapters.
const (
	CodeTimeout   = "timeout"
	CodeBadStatus = "bad_status"
	CodeTransport = "transport"
	CodeBlocked   = "blocked"
	CodeConfig    = "config"
	CodeCanceled  = "canceled"
)

// Payload is the raw page returned by a provider.
type Payload struct {
	Provider   string
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Provider fetches a target through one upstream.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, t target.Target) result.Result[Payload]
}

// Func adapts a plain function to the Provider interface.
type Func struct {
	ProviderName string
	FetchFunc    func(ctx context.Context, t target.Target) result.Result[Payload]
}

// Name implements Provider.
func (f Func) Name() string { return f.ProviderName }

// Fetch implements Provider.
func (f Func) Fetch(ctx context.Context, t target.Target) result.Result[Payload] {
	return f.FetchFunc(ctx, t)
}

// FromError classifies a transport error into a failed Result.
func FromError(ctx context.Context, err error) result.Result[Payload] {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return result.Err[Payload]("request canceled", CodeCanceled)
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return result.Err[Payload]("timeout", CodeTimeout)
	default:
		return result.Err[Payload](transportReason(err), CodeTransport)
	}
}

// transportReason describes err without the request URL, which for hosted
// APIs carries the account key in its query.
func transportReason(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Op + ": " + urlErr.Err.Error()
	}
	return err.Error()
}

// FromStatus builds the failure for a non-2xx upstream status.
func FromStatus(status int) result.Result[Payload] {
	return result.Err[Payload](fmt.Sprintf("http_%d", status), CodeBadStatus)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
