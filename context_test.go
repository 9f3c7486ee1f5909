package restroute_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bjaus/restroute"
)

func TestRequestContextAttributes(t *testing.T) {
	t.Parallel()

	req := &restroute.StaticRequest{}
	base := restroute.NewRequestContext(context.Background(), "req-1", "/acme/v1/things", req)

	first := base.WithAttribute("user", "alice")
	second := first.WithAttribute("scopes", []string{"read"}).WithAttribute("user", "bob")

	_, ok := base.Attribute("user")
	assert.False(t, ok, "original context must not change")

	v, ok := first.Attribute("user")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	v, _ = second.Attribute("user")
	assert.Equal(t, "bob", v)
	assert.Equal(t, []string{"user", "scopes"}, second.AttributeKeys())
	assert.Equal(t, map[string]any{"user": "bob", "scopes": []string{"read"}}, second.Attributes())

	assert.Equal(t, "req-1", second.RequestID())
	assert.Equal(t, "/acme/v1/things", second.RoutePath())
	assert.Same(t, req, second.Request())
}

func TestGetAttribute(t *testing.T) {
	t.Parallel()

	rc := restroute.NewRequestContext(nil, "", "", nil).WithAttribute("count", 3)

	n, ok := restroute.GetAttribute[int](rc, "count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = restroute.GetAttribute[string](rc, "count")
	assert.False(t, ok)

	_, ok = restroute.GetAttribute[int](rc, "missing")
	assert.False(t, ok)
}

func TestRequestContextContext(t *testing.T) {
	t.Parallel()

	type key struct{}

	rc := restroute.NewRequestContext(nil, "", "", nil)
	assert.NotNil(t, rc.Context())

	ctx := context.WithValue(context.Background(), key{}, "v")
	derived := rc.WithContext(ctx)
	assert.Equal(t, "v", derived.Context().Value(key{}))
	assert.Nil(t, rc.Context().Value(key{}))
}
