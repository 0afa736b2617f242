package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// prevPlaceholder marks where a chain step wants the previous step's result
// substituted before the request is issued.
const prevPlaceholder = "$prev"

// requestOf normalizes a chain step into a Request. Steps may be *Request
// values, plain URL strings, or maps mirroring the descriptor wire form.
// The previous chain result replaces the $prev placeholder in the URL and
// in parameter values.
func requestOf(raw any, prev any) (*Request, error) {
	var req *Request
	switch step := raw.(type) {
	case *Request:
		cp := *step
		req = &cp
	case string:
		req = &Request{URL: step}
	case map[string]any:
		req = &Request{
			URL:         str(step["url"]),
			Method:      str(step["method"]),
			IgnoreCache: step["ignore_cache"] == true,
			Type:        Kind(str(step["type"])),
		}
		if p, ok := step["params"].(map[string]any); ok {
			req.Params = p
		}
		if a, ok := step["attr"].(map[string]any); ok {
			req.Attr = a
		}
		req.Context = step["context"]
	default:
		return nil, fmt.Errorf("unsupported load step of type %T", raw)
	}

	if prev != nil {
		req.URL = strings.ReplaceAll(req.URL, prevPlaceholder, fmt.Sprint(prev))
		if len(req.Params) > 0 {
			expanded := make(map[string]any, len(req.Params))
			for k, v := range req.Params {
				if v == prevPlaceholder {
					expanded[k] = prev
				} else {
					expanded[k] = v
				}
			}
			req.Params = expanded
		}
		req.Context = prev
	}
	return req, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// fetch performs the transport operation for a request, dispatching on the
// resolved resource kind.
func (l *Loader) fetch(ctx context.Context, req *Request) (any, error) {
	switch kindOf(req) {
	case KindStylesheet:
		body, err := l.fetchRaw(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return &Stylesheet{URL: req.URL, Text: string(body)}, nil
	case KindImage:
		body, err := l.fetchRaw(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return &Image{URL: req.URL, Data: body, Attr: req.Attr}, nil
	case KindScript:
		body, err := l.fetchRaw(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return &Script{URL: req.URL, Data: body}, nil
	default:
		return l.exchange(ctx, req)
	}
}

// fetchRaw GETs a URL and returns the response payload.
func (l *Loader) fetchRaw(ctx context.Context, u string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, LoadError{URL: u, Err: err}
	}
	resp, err := l.client.Do(httpReq)
	if err != nil {
		return nil, LoadError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, LoadError{URL: u, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, LoadError{URL: u, Err: err}
	}
	return body, nil
}

// exchange runs the data-exchange sub-contract. GET and POST are ordinary
// request/response; JSONP injects a uniquely named callback parameter and
// unwraps the padded body, for endpoints that only speak the script side
// channel.
func (l *Loader) exchange(ctx context.Context, req *Request) (any, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	switch method {
	case http.MethodGet:
		body, err := l.fetchRaw(ctx, withQueryParams(req.URL, req.Params))
		if err != nil {
			return nil, err
		}
		return decodeBody(req.URL, body)

	case http.MethodPost:
		payload, err := json.Marshal(req.Params)
		if err != nil {
			return nil, LoadError{URL: req.URL, Err: err}
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(payload))
		if err != nil {
			return nil, LoadError{URL: req.URL, Err: err}
		}
		httpReq.Header.Set("Content-Type", "application/json")
		resp, err := l.client.Do(httpReq)
		if err != nil {
			return nil, LoadError{URL: req.URL, Err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, LoadError{URL: req.URL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, LoadError{URL: req.URL, Err: err}
		}
		return decodeBody(req.URL, body)

	case "JSONP":
		callback := "cb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		params := make(map[string]any, len(req.Params)+1)
		for k, v := range req.Params {
			params[k] = v
		}
		params["callback"] = callback
		body, err := l.fetchRaw(ctx, withQueryParams(req.URL, params))
		if err != nil {
			return nil, err
		}
		inner, err := unwrapPadding(callback, body)
		if err != nil {
			return nil, LoadError{URL: req.URL, Err: err}
		}
		return decodeBody(req.URL, inner)

	default:
		return nil, LoadError{URL: req.URL, Err: fmt.Errorf("unsupported exchange method %q", req.Method)}
	}
}

// withQueryParams appends params to a URL's query string.
func withQueryParams(raw string, params map[string]any) string {
	if len(params) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, fmt.Sprint(v))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// decodeBody interprets an exchange payload: JSON when it parses, otherwise
// the plain response text.
func decodeBody(u string, body []byte) (any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err == nil {
		return decoded, nil
	}
	return string(trimmed), nil
}

// unwrapPadding strips the "callback(...)" wrapper from a JSONP body.
func unwrapPadding(callback string, body []byte) ([]byte, error) {
	text := strings.TrimSpace(string(body))
	text = strings.TrimSuffix(text, ";")
	open := strings.Index(text, "(")
	end := strings.LastIndex(text, ")")
	if open < 0 || end < open {
		return nil, fmt.Errorf("response is not padded")
	}
	if !strings.HasPrefix(text, callback) {
		return nil, fmt.Errorf("padded response names callback %q, want %q", text[:open], callback)
	}
	return []byte(text[open+1 : end]), nil
}
