// Package http implements the HTTP client commands (GET, POST, PUT, PATCH,
// DELETE), session-wide request defaults, and the Http server command that
// serves script endpoints.
package http

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

const group = "http"

// ErrorType tags command errors raised for responses with status >= 400.
const ErrorType = "http"

// KeyDefaults holds the *node.Object set by "Http request defaults".
const KeyDefaults engine.SessionKey = "http.defaults"

// requestTimeout bounds one request unless the defaults set "timeout".
const requestTimeout = 30 * time.Second

// Handlers returns the HTTP commands.
func Handlers() []*engine.Handler {
	return []*engine.Handler{
		method(http.MethodGet),
		method(http.MethodPost),
		method(http.MethodPut),
		method(http.MethodPatch),
		method(http.MethodDelete),
		Defaults,
		Server,
	}
}

// Request is the object form of the request commands. Fields left empty
// are taken from the request defaults.
type Request struct {
	URL      string            `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"description=Base URL or full URL"`
	Path     string            `yaml:"path,omitempty" json:"path,omitempty" jsonschema:"description=Path appended to the URL"`
	Body     any               `yaml:"body,omitempty" json:"body,omitempty" jsonschema:"description=Request body; objects and lists are sent as JSON"`
	Headers  map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Cookies  map[string]string `yaml:"cookies,omitempty" json:"cookies,omitempty"`
	Username string            `yaml:"username,omitempty" json:"username,omitempty"`
	Password string            `yaml:"password,omitempty" json:"password,omitempty"`
	SaveAs   string            `yaml:"save as,omitempty" json:"save as,omitempty" jsonschema:"description=Write the response body to this file"`
	Timeout  string            `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"description=Go duration, default 30s"`
}

// Defaults stores request defaults for the session. The scalar form
// returns the current defaults.
var Defaults = &engine.Handler{
	Name:  "Http request defaults",
	Group: group,
	Args:  &Request{},
	Scalar: func(c *engine.Context, _ any) (any, error) {
		if d, ok := engine.SessionValue[*node.Object](c.Session, KeyDefaults); ok {
			return node.Clone(d), nil
		}
		return node.NewObject(), nil
	},
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		c.Session.Set(KeyDefaults, node.Clone(arg).(*node.Object))
		return nil, nil
	},
}

// method builds the request command for one HTTP method. The scalar form
// is a URL, or a path when it starts with "/" and the defaults name a URL.
func method(name string) *engine.Handler {
	return &engine.Handler{
		Name:  name,
		Group: group,
		Args:  &Request{},
		Scalar: func(c *engine.Context, arg any) (any, error) {
			target := node.Text(arg)
			req := node.ObjectOf("url", target)
			if strings.HasPrefix(target, "/") {
				req = node.ObjectOf("path", target)
			}
			return Do(c, name, req)
		},
		Object: func(c *engine.Context, arg *node.Object) (any, error) {
			return Do(c, name, arg)
		},
	}
}

// Do sends one request built from the session defaults overlaid with arg.
// A JSON or YAML response body is returned parsed; other bodies are
// returned as text and an empty body as nil.
func Do(c *engine.Context, method string, arg *node.Object) (any, error) {
	req, err := merge(c, arg)
	if err != nil {
		return nil, err
	}
	target, err := join(req.URL, req.Path)
	if err != nil {
		return nil, engine.FormatError("%s: %v", method, err)
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, engine.FormatError("%s: %v", method, err)
	}

	timeout := requestTimeout
	if req.Timeout != "" {
		if timeout, err = time.ParseDuration(req.Timeout); err != nil {
			return nil, engine.FormatError("%s: timeout: %v", method, err)
		}
	}

	hr, err := http.NewRequestWithContext(c.Context(), method, target, body)
	if err != nil {
		return nil, engine.FormatError("%s: %v", method, err)
	}
	if contentType != "" {
		hr.Header.Set("Content-Type", contentType)
	}
	hr.Header.Set("Accept", "application/json, application/yaml, text/plain, */*")
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}
	for k, v := range req.Cookies {
		hr.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	if req.Username != "" {
		hr.SetBasicAuth(req.Username, req.Password)
	}

	client := &http.Client{Timeout: timeout}
	res, err := client.Do(hr)
	if err != nil {
		return nil, engine.InternalError(err, "%s %s", method, target)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, engine.InternalError(err, "%s %s: read body", method, target)
	}

	if res.StatusCode >= 400 {
		payload := decodeBody(data)
		errData := node.ObjectOf("status", res.StatusCode, "url", target)
		if payload != nil {
			errData.Set("body", payload)
		}
		return nil, engine.TypedError(ErrorType, errData, "%s %s: %s", method, target, res.Status)
	}

	if req.SaveAs != "" {
		file := req.SaveAs
		if !filepath.IsAbs(file) {
			file = filepath.Join(c.WorkingDir, file)
		}
		if err := os.WriteFile(file, data, 0o644); err != nil {
			return nil, engine.InternalError(err, "%s: save as", method)
		}
		return nil, nil
	}
	return decodeBody(data), nil
}

// merge overlays arg on the session defaults. Headers and cookies merge
// key by key; other fields replace.
func merge(c *engine.Context, arg *node.Object) (Request, error) {
	var base, over Request
	if d, ok := engine.SessionValue[*node.Object](c.Session, KeyDefaults); ok {
		if err := node.Decode(d, &base); err != nil {
			return Request{}, engine.FormatError("Http request defaults: %v", err)
		}
		base.Body = nil
		base.SaveAs = ""
	}
	if err := node.Decode(arg.Without("body"), &over); err != nil {
		return Request{}, engine.FormatError("http request: %v", err)
	}
	over.Body, _ = arg.Get("body")

	out := base
	if over.URL != "" {
		out.URL = over.URL
	}
	if over.Path != "" {
		out.Path = over.Path
	}
	out.Body = over.Body
	out.SaveAs = over.SaveAs
	if over.Username != "" {
		out.Username, out.Password = over.Username, over.Password
	}
	if over.Timeout != "" {
		out.Timeout = over.Timeout
	}
	out.Headers = mergeStrings(base.Headers, over.Headers)
	out.Cookies = mergeStrings(base.Cookies, over.Cookies)
	if out.URL == "" && out.Path == "" {
		return Request{}, engine.FormatError("http request: no url given and no Http request defaults set")
	}
	return out, nil
}

func mergeStrings(a, b map[string]string) map[string]string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func join(base, path string) (string, error) {
	if path == "" {
		return base, nil
	}
	if base == "" {
		return path, nil
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("url: %w", err)
	}
	return u.String(), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch v := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(v), "text/plain; charset=utf-8", nil
	default:
		data, err := node.JSON(v, false)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func decodeBody(data []byte) any {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil
	}
	return node.ParseIfPossible(text)
}
