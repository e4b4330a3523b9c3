package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"

	"github.com/FranksOps/scout/internal/target"
	"github.com/FranksOps/scout/pkg/result"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestFromError(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		code string
	}{
		{"deadline", context.Background(), context.DeadlineExceeded, CodeTimeout},
		{"net timeout", context.Background(), timeoutErr{}, CodeTimeout},
		{"transport", context.Background(), errors.New("connection refused"), CodeTransport},
		{"canceled", canceled, errors.New("whatever"), CodeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromError(tt.ctx, tt.err)
			if r.IsOk() {
				t.Fatal("expected failure")
			}
			if got := r.Failure().Code; got != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, got)
			}
		})
	}
}

func TestFromError_DropsRequestURL(t *testing.T) {
	err := fmt.Errorf("do request: %w", &url.Error{
		Op:  "Get",
		URL: "http://api.example.test?api_key=secret&url=x",
		Err: errors.New("dial tcp 127.0.0.1:1: connect: connection refused"),
	})

	f := FromError(context.Background(), err).Failure()
	if f.Code != CodeTransport {
		t.Fatalf("expected transport, got %q", f.Code)
	}
	if want := "Get: dial tcp 127.0.0.1:1: connect: connection refused"; f.Reason != want {
		t.Errorf("expected %q, got %q", want, f.Reason)
	}
}

func TestFromStatus(t *testing.T) {
	f := FromStatus(503).Failure()
	if f.Reason != "http_503" || f.Code != CodeBadStatus {
		t.Errorf("unexpected failure %+v", f)
	}
}

func TestFunc(t *testing.T) {
	p := Func{
		ProviderName: "stub",
		FetchFunc: func(ctx context.Context, tg target.Target) result.Result[Payload] {
			return result.Ok(Payload{Provider: "stub", URL: tg.URL})
		},
	}
	var _ Provider = p

	if p.Name() != "stub" {
		t.Errorf("unexpected name %q", p.Name())
	}
	v, ok := p.Fetch(context.Background(), target.Target{URL: "u"}).Value()
	if !ok || v.URL != "u" {
		t.Errorf("unexpected payload %+v", v)
	}
}
