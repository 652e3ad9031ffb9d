package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ormasoftchile/specscript/pkg/files"
	"github.com/ormasoftchile/specscript/pkg/kernel/engine"
	"github.com/ormasoftchile/specscript/pkg/kernel/node"
)

// RequestVariable holds the incoming request while an endpoint runs:
// {method, path, headers, pathParameters, query, queryParameters, body,
// cookies}.
const RequestVariable = "request"

// KeyServers holds the *servers registry of the session.
const KeyServers engine.SessionKey = "http.servers"

const shutdownTimeout = 2 * time.Second

// ServerOptions is the argument of the Http server command. Each endpoint
// maps a path to handlers per method (get, post, put, patch, delete). A
// handler is a script file name or {output | script | file}.
type ServerOptions struct {
	Port      int            `yaml:"port" json:"port" jsonschema:"required"`
	Stop      bool           `yaml:"stop,omitempty" json:"stop,omitempty"`
	Endpoints map[string]any `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
}

// Server starts an HTTP server on a port, or adds endpoints to the one
// already running there. With stop: true the server on the port is shut
// down. Endpoint bodies are resolved per request, not when registered.
var Server = &engine.Handler{
	Name:    "Http server",
	Group:   group,
	Args:    &ServerOptions{},
	Delayed: true,
	Object: func(c *engine.Context, arg *node.Object) (any, error) {
		rawPort, ok := arg.Get("port")
		if !ok {
			return nil, engine.FormatError("Http server: expected field 'port'")
		}
		port, err := resolveInt(c, rawPort)
		if err != nil {
			return nil, err
		}

		if rawStop, ok := arg.Get("stop"); ok {
			stop, err := c.Resolve(rawStop)
			if err != nil {
				return nil, err
			}
			if node.Truthy(stop) {
				return nil, StopServer(c, port)
			}
		}

		raw, _ := arg.Get("endpoints")
		endpoints, ok := raw.(*node.Object)
		if !ok {
			return nil, engine.FormatError("Http server: expected field 'endpoints' with an object of paths")
		}

		srv, err := serverFor(c, port)
		if err != nil {
			return nil, engine.InternalError(err, "Http server")
		}
		base := c.Clone()
		for path, methods := range endpoints.All() {
			if err := srv.addEndpoint(base, path, methods); err != nil {
				return nil, err
			}
		}
		return nil, nil
	},
}

// StopServer shuts down the server on port, if one is running.
func StopServer(c *engine.Context, port int) error {
	if err := engine.ServicesOf(c.Session).Stop(serviceName(port)); err != nil {
		return engine.InternalError(err, "Http server")
	}
	return nil
}

func resolveInt(c *engine.Context, raw any) (int, error) {
	v, err := c.Resolve(raw)
	if err != nil {
		return 0, err
	}
	n, ok := node.Number(v)
	if !ok || n != float64(int(n)) {
		return 0, engine.FormatError("Http server: port must be an integer, got %s", node.Text(v))
	}
	return int(n), nil
}

func serviceName(port int) string {
	return fmt.Sprintf("http server :%d", port)
}

// servers is the registry of running endpoint servers by port.
type servers struct {
	mu     sync.Mutex
	byPort map[int]*endpointServer
}

func serverFor(c *engine.Context, port int) (*endpointServer, error) {
	reg := c.Session.Shared(KeyServers, func() any {
		return &servers{byPort: make(map[int]*endpointServer)}
	}).(*servers)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if s, ok := reg.byPort[port]; ok {
		return s, nil
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	s := &endpointServer{routes: make(map[string]http.Handler)}
	s.mux.Store(http.NewServeMux())
	s.srv = &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(c.Stdout, "Http server on port %d stopped: %v\n", port, err)
		}
	}()
	reg.byPort[port] = s

	engine.ServicesOf(c.Session).Serve(serviceName(port), func() error {
		reg.mu.Lock()
		delete(reg.byPort, port)
		reg.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(ctx)
	})
	return s, nil
}

// endpointServer routes requests through a mux that is rebuilt whenever
// endpoints are added, so re-registering a path replaces its handler.
type endpointServer struct {
	srv *http.Server

	mu     sync.Mutex
	routes map[string]http.Handler
	mux    atomic.Pointer[http.ServeMux]
}

func (s *endpointServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.Load().ServeHTTP(w, r)
}

var methodNames = map[string]string{
	"get":    http.MethodGet,
	"post":   http.MethodPost,
	"put":    http.MethodPut,
	"patch":  http.MethodPatch,
	"delete": http.MethodDelete,
}

var colonParam = regexp.MustCompile(`:(\w+)`)
var braceParam = regexp.MustCompile(`\{(\w+)\}`)

func (s *endpointServer) addEndpoint(base *engine.Context, rawPath string, methods any) error {
	obj, ok := methods.(*node.Object)
	if !ok {
		return engine.FormatError("Http server: endpoint %s must map methods to handlers", rawPath)
	}
	path := colonParam.ReplaceAllString(rawPath, "{$1}")
	var params []string
	for _, m := range braceParam.FindAllStringSubmatch(path, -1) {
		params = append(params, m[1])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	routes := maps.Clone(s.routes)
	for name, body := range obj.All() {
		m, ok := methodNames[strings.ToLower(name)]
		if !ok {
			return engine.FormatError("Http server: unsupported HTTP method: %s", name)
		}
		routes[m+" "+path] = &endpoint{base: base, body: body, params: params}
	}
	mux, err := buildMux(routes)
	if err != nil {
		return engine.FormatError("Http server: endpoint %s: %v", rawPath, err)
	}
	s.routes = routes
	s.mux.Store(mux)
	return nil
}

// buildMux registers routes on a fresh mux. ServeMux panics on
// conflicting patterns; the panic is returned as an error.
func buildMux(routes map[string]http.Handler) (mux *http.ServeMux, err error) {
	defer func() {
		if r := recover(); r != nil {
			mux, err = nil, fmt.Errorf("%v", r)
		}
	}()
	mux = http.NewServeMux()
	for pattern, h := range routes {
		mux.Handle(pattern, h)
	}
	return mux, nil
}

// endpoint runs its handler body in a clone of the registering context.
type endpoint struct {
	base   *engine.Context
	body   any
	params []string
}

func (e *endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	local := e.base.Clone().WithContext(r.Context())
	request := requestNode(r, data, e.params)
	local.Variables[RequestVariable] = request
	local.Variables[engine.InputVariable] = inputOf(r, data)

	result, err := e.run(local)
	if err != nil {
		writeError(w, err)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	out, err := node.JSON(result, false)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (e *endpoint) run(c *engine.Context) (any, error) {
	switch body := e.body.(type) {
	case string:
		return files.RunValue(c, body)
	case *node.Object:
		if out, ok := body.Get("output"); ok {
			return c.Resolve(out)
		}
		if raw, ok := body.Get("script"); ok {
			return files.RunValue(c, raw)
		}
		if raw, ok := body.Get("file"); ok {
			return files.RunValue(c, node.Text(raw))
		}
	}
	return nil, engine.FormatError("Http server: endpoint handler needs output, script or file")
}

// inputOf is the parsed request body, else the query parameters.
func inputOf(r *http.Request, body []byte) any {
	if text := strings.TrimSpace(string(body)); text != "" {
		if n, err := node.Parse(text); err == nil {
			return n
		}
		return text
	}
	return valuesNode(r.URL.Query())
}

// valuesNode turns multi-valued headers or query parameters into an
// object with sorted keys and comma-joined values.
func valuesNode(values map[string][]string) *node.Object {
	out := node.NewObject()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		out.Set(k, strings.Join(values[k], ","))
	}
	return out
}

func requestNode(r *http.Request, body []byte, params []string) *node.Object {
	pathParams := node.NewObject()
	for _, p := range params {
		pathParams.Set(p, r.PathValue(p))
	}
	cookies := node.NewObject()
	for _, ck := range r.Cookies() {
		cookies.Set(ck.Name, ck.Value)
	}
	return node.ObjectOf(
		"method", r.Method,
		"headers", valuesNode(r.Header),
		"path", r.URL.Path,
		"pathParameters", pathParams,
		"query", r.URL.RawQuery,
		"queryParameters", valuesNode(r.URL.Query()),
		"body", string(body),
		"cookies", cookies,
	)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	payload := node.ObjectOf("message", err.Error())
	if ce, ok := engine.AsCommandError(err); ok {
		status = http.StatusBadRequest
		payload = ce.Node()
	}
	out, _ := node.JSON(payload, false)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(out)
}
