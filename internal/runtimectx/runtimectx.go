// Package runtimectx binds the registry, shutdown coordinator, timer and
// network services, monitor, configuration, HTTP client and environment
// map into a single process-wide instance (the logger is not held here;
// the launcher installs it with slog.SetDefault), and exposes a
// debug HTTP control surface over them — grounded on the teacher's
// internal/evaluator.System package-level singleton for the single-bound-
// instance idea, and on internal/privileged/control_plane.go's
// handleActors/handleSend for the debug HTTP surface (folded in here
// rather than kept as a separate duplicate-kernel generation; see
// DESIGN.md).
package runtimectx

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"actorkit/internal/config"
	"actorkit/internal/dbsvc"
	"actorkit/internal/envelope"
	"actorkit/internal/fssvc"
	"actorkit/internal/httpclient"
	"actorkit/internal/monitor"
	"actorkit/internal/netsvc"
	"actorkit/internal/registry"
	"actorkit/internal/sandbox"
	"actorkit/internal/shutdown"
	"actorkit/internal/timer"
)

// Context is the global binding point main() constructs once and threads
// through actor spawns and native service callbacks.
type Context struct {
	Registry *registry.Registry
	Shutdown *shutdown.Coordinator
	Timer    *timer.Service
	Net      *netsvc.Service
	Monitor  *monitor.Monitor
	Config   *config.Store
	Cache    *sandbox.Cache
	HTTP     *httpclient.Service
	FS       *fssvc.Service

	envMu  sync.Mutex
	envMap map[string]string
}

// New wires every component together; scriptLoader resolves a script path
// to a sandbox.EntryPoint for the shared script cache.
func New(cfg *config.Store, scriptLoader func(path string) (sandbox.EntryPoint, error)) (*Context, error) {
	reg := registry.New()
	sd := shutdown.New(reg)
	ts := timer.New(reg)
	ns := netsvc.New(reg)

	cache, err := sandbox.NewCache(256, scriptLoader)
	if err != nil {
		return nil, err
	}

	c := &Context{
		Registry: reg,
		Shutdown: sd,
		Timer:    ts,
		Net:      ns,
		Config:   cfg,
		Cache:    cache,
		envMap:   make(map[string]string),
	}
	c.Monitor = monitor.New(reg, 5*time.Second, 5*time.Second)

	httpSvc, err := httpclient.Register(reg, reg.NextNetFD())
	if err != nil {
		return nil, err
	}
	c.HTTP = httpSvc

	fsSvc, err := fssvc.Register(reg, reg.NextNetFD())
	if err != nil {
		return nil, err
	}
	c.FS = fsSvc

	return c, nil
}

// Start launches the monitor scan loop and platform signal handling.
func (c *Context) Start() {
	go c.Monitor.Run()
	c.Shutdown.WatchSignals()
}

// Stop tears down the network service, timers and monitor.
func (c *Context) Stop() {
	c.Net.Close()
	c.Timer.Shutdown()
	c.Monitor.Stop()
	_ = c.Cache.Close()
}

// SetEnv/GetEnv implement the script-visible process-wide environment map
// (spec §6): last-write-wins, mutex-guarded.
func (c *Context) SetEnv(key, value string) {
	c.envMu.Lock()
	defer c.envMu.Unlock()
	c.envMap[key] = value
}

func (c *Context) GetEnv(key string) (string, bool) {
	c.envMu.Lock()
	defer c.envMu.Unlock()
	v, ok := c.envMap[key]
	return v, ok
}

// OpenDB opens a new SQL connection actor under the given driver/dsn and
// returns its net-fd address.
func (c *Context) OpenDB(driver, dsn string) (int64, error) {
	id, _, err := dbsvc.Open(c.Registry, driver, dsn)
	return id, err
}

// DebugMux returns an http.ServeMux exposing /debug/actors (list every
// registered actor id) and /debug/send (inject an envelope as if from a
// given actor), the admin surface folded in from the teacher's HTTP
// control plane.
func (c *Context) DebugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/actors", c.handleActors)
	mux.HandleFunc("/debug/send", c.handleSend)
	mux.HandleFunc("/debug/websocket", func(w http.ResponseWriter, r *http.Request) {
		if _, err := c.Net.UpgradeAndAccept(w, r); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	})
	return mux
}

func (c *Context) handleActors(w http.ResponseWriter, r *http.Request) {
	ids := c.Registry.Snapshot()
	w.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(w).Encode(ids)
}

type sendRequest struct {
	From    int64  `json:"from"`
	To      int64  `json:"to"`
	Session int64  `json:"session"`
	Text    string `json:"text"`
}

func (c *Context) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	env := envelope.New(envelope.TEXT, req.From, req.To, req.Session, envelope.StringPayload(req.Text))
	if err := c.Registry.Send(env); err != nil {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
