// Package frontend describes the single-page app's routing contract: the
// static table the UI resolves paths against. The page components themselves
// live in the Angular project; the backend only needs the table to stay in
// sync with it.
package frontend

import "strings"

type Route struct {
	Path       string `json:"path"`
	Component  string `json:"component,omitempty"`
	RedirectTo string `json:"redirectTo,omitempty"`
	// PathMatch only matters for redirect entries; "full" means the whole
	// remaining path must equal Path.
	PathMatch string `json:"pathMatch,omitempty"`
}

// Routes returns the app's route table. Resolution is order-independent:
// every path is distinct, so no entry shadows another.
func Routes() []Route {
	return []Route{
		{Path: "", RedirectTo: "login", PathMatch: "full"},
		{Path: "login", Component: "LoginComponent"},
		{Path: "signup", Component: "SignupComponent"},
		{Path: "movies", Component: "MovieBrowserComponent"},
	}
}

// Resolve looks up a path (with or without a leading slash) and follows a
// redirect entry to its target. The second result is false when no route
// matches; the framework's not-found behavior takes over from there.
func Resolve(path string) (Route, bool) {
	path = strings.TrimPrefix(path, "/")
	for _, route := range Routes() {
		if route.Path != path {
			continue
		}
		if route.RedirectTo != "" {
			return Resolve(route.RedirectTo)
		}
		return route, true
	}
	return Route{}, false
}
