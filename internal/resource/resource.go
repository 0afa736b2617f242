// Package resource implements the resource cache and loader. It fetches
// external resources (stylesheets, images, scripts, data), caches them by
// URL and deduplicates concurrent requests: the first request for a URL
// performs the transport operation while later ones wait on that URL's
// FIFO waitlist and receive the same value when it settles.
package resource

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Kind classifies what a request fetches and how its payload is handled.
type Kind string

const (
	// KindStylesheet fetches a stylesheet as text.
	KindStylesheet Kind = "stylesheet"
	// KindImage fetches an image as raw bytes.
	KindImage Kind = "image"
	// KindScript fetches an executable script as raw bytes.
	KindScript Kind = "script"
	// KindData performs a generic data exchange (GET/POST/JSONP) and decodes
	// the response.
	KindData Kind = "data"
)

// Request describes one resource to load. URL is the cache identity;
// IgnoreCache bypasses the cache entirely for this call.
type Request struct {
	URL         string
	Context     any
	Method      string
	Params      map[string]any
	Attr        map[string]any
	IgnoreCache bool
	Type        Kind
}

// Stylesheet is the resolved value of a stylesheet request.
type Stylesheet struct {
	URL  string
	Text string
}

// Image is the resolved value of an image request. Attr carries through the
// request attributes for the rendering collaborator.
type Image struct {
	URL  string
	Data []byte
	Attr map[string]any
}

// Script is the resolved value of a script request.
type Script struct {
	URL  string
	Data []byte
}

// LoadError reports a transport failure while loading a resource. A failed
// branch is never retried by the loader itself.
type LoadError struct {
	URL string
	Err error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.URL, e.Err)
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// kindOf returns the explicit request type when set, otherwise infers the
// kind from the URL suffix. Anything unrecognized falls back to data
// exchange.
func kindOf(req *Request) Kind {
	if req.Type != "" {
		return req.Type
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return KindData
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".css":
		return KindStylesheet
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp":
		return KindImage
	case ".js", ".wasm":
		return KindScript
	default:
		return KindData
	}
}
