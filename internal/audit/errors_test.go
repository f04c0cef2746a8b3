package audit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyFetchError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		err    error
		want   ErrorKind
	}{
		{name: "forbidden is blocked", status: http.StatusForbidden, want: KindBlocked},
		{name: "rate limited is blocked", status: http.StatusTooManyRequests, want: KindBlocked},
		{name: "deadline exceeded is timeout", err: context.DeadlineExceeded, want: KindTimeout},
		{name: "net timeout is timeout", err: timeoutErr{}, want: KindTimeout},
		{name: "dns failure is network", err: &net.DNSError{Err: "no such host"}, want: KindNetwork},
		{
			name: "op error is network",
			err:  &net.OpError{Op: "dial", Err: errors.New("connection refused")},
			want: KindNetwork,
		},
		{name: "plain error is unknown", err: errors.New("boom"), want: KindUnknown},
		{name: "server error without transport error is unknown", status: 500, want: KindUnknown},
		{name: "clean response has no kind", status: 200, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyFetchError(tt.status, tt.err))
		})
	}
}
