package frontend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRootRedirectsToLogin(t *testing.T) {
	route, ok := Resolve("")
	require.True(t, ok)
	assert.Equal(t, "login", route.Path)
	assert.Equal(t, "LoginComponent", route.Component)

	// "/" and "" are the same route.
	slash, ok := Resolve("/")
	require.True(t, ok)
	assert.Equal(t, route, slash)
}

func TestResolveKnownPaths(t *testing.T) {
	cases := map[string]string{
		"login":   "LoginComponent",
		"signup":  "SignupComponent",
		"movies":  "MovieBrowserComponent",
		"/movies": "MovieBrowserComponent",
	}
	for path, component := range cases {
		route, ok := Resolve(path)
		require.True(t, ok, "expected %q to resolve", path)
		assert.Equal(t, component, route.Component)
	}
}

func TestResolveUnknownPath(t *testing.T) {
	_, ok := Resolve("profile")
	assert.False(t, ok)

	// Full-path matching: the redirect entry must not swallow prefixes.
	_, ok = Resolve("loginx")
	assert.False(t, ok)
}

func TestRouteTableShape(t *testing.T) {
	routes := Routes()
	require.Len(t, routes, 4)

	redirect := routes[0]
	assert.Empty(t, redirect.Path)
	assert.Equal(t, "login", redirect.RedirectTo)
	assert.Equal(t, "full", redirect.PathMatch)
	assert.Empty(t, redirect.Component, "redirect entries carry no component")

	for _, route := range routes[1:] {
		assert.NotEmpty(t, route.Component, "page route %q must name its component", route.Path)
		assert.Empty(t, route.RedirectTo)
	}
}
