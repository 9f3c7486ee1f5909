package restroute_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/restroute"
)

type echoHandler struct{}

func (echoHandler) Serve(rc restroute.RequestContext, req restroute.Request) (any, error) {
	return rc.RequestID() + ":" + req.Method(), nil
}

func TestResolveHandler(t *testing.T) {
	t.Parallel()

	factory := restroute.Handlers{"echo": echoHandler{}}

	tests := map[string]struct {
		handler any
		want    any
	}{
		"no arguments": {
			handler: func() (any, error) { return "none", nil },
			want:    "none",
		},
		"context only": {
			handler: func(rc restroute.RequestContext) (any, error) { return rc.RequestID(), nil },
			want:    "req-1",
		},
		"request only": {
			handler: func(req restroute.Request) (any, error) { return req.Method(), nil },
			want:    "PUT",
		},
		"context and request": {
			handler: func(rc restroute.RequestContext, req restroute.Request) (any, error) {
				return rc.RoutePath() + " " + req.Method(), nil
			},
			want: "/acme/v1/items PUT",
		},
		"handler func": {
			handler: restroute.HandlerFunc(func(restroute.RequestContext, restroute.Request) (any, error) { return 1, nil }),
			want:    1,
		},
		"handler value": {
			handler: echoHandler{},
			want:    "req-1:PUT",
		},
		"handler key": {
			handler: restroute.HandlerKey("echo"),
			want:    "req-1:PUT",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			fn, err := restroute.ResolveHandler(tc.handler, factory)
			require.NoError(t, err)

			req := &restroute.StaticRequest{Verb: "PUT"}
			got, err := fn(restroute.NewRequestContext(context.Background(), "req-1", "/acme/v1/items", req), req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveHandlerRejects(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		handler any
		factory restroute.HandlerFactory
		wantMsg string
	}{
		"nil": {
			wantMsg: "route handler must be callable, got nil",
		},
		"wrong signature": {
			handler: func(string) error { return nil },
			wantMsg: "route handler must be callable, got func(string) error",
		},
		"plain string": {
			handler: "articles.list",
			wantMsg: "route handler must be callable, got string",
		},
		"key without factory": {
			handler: restroute.HandlerKey("list"),
			wantMsg: `handler "list" requires a handler factory`,
		},
		"unknown key": {
			handler: restroute.HandlerKey("list"),
			factory: restroute.Handlers{},
			wantMsg: `handler "list" is not registered`,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := restroute.ResolveHandler(tc.handler, tc.factory)
			var ce *restroute.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.wantMsg, ce.Message)
		})
	}
}
