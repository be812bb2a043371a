package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/keepmind9/pandabot/internal/logger"
	"github.com/keepmind9/pandabot/internal/usage"
)

// HealthResponse is served by GET /healthz
type HealthResponse struct {
	Status string   `json:"status"`
	Uptime string   `json:"uptime"`
	Bots   []string `json:"bots"`
}

// UsageResponse is served by GET /usage
type UsageResponse struct {
	Total    uint64        `json:"total"`
	Commands []usage.Entry `json:"commands"`
}

// CommandInfo describes one registered command for GET /commands
type CommandInfo struct {
	Name        string   `json:"name"`
	Invocation  string   `json:"invocation"`
	Aliases     []string `json:"aliases,omitempty"`
	Group       string   `json:"group,omitempty"`
	Bucket      string   `json:"bucket,omitempty"`
	Description string   `json:"description,omitempty"`
}

// StatusHandler returns the router served by the status server
func (e *Engine) StatusHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", e.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/usage", e.handleUsage).Methods(http.MethodGet)
	r.HandleFunc("/commands", e.handleCommands).Methods(http.MethodGet)
	return r
}

// startStatusServer serves StatusHandler in the background until Stop shuts it down
func (e *Engine) startStatusServer() {
	addr := fmt.Sprintf(":%d", e.config.StatusServer.Port)

	e.statusServer = &http.Server{
		Addr:              addr,
		Handler:           e.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	server := e.statusServer
	go func() {
		logger.WithField("address", addr).Info("status-server-listening")

		// Shutdown makes ListenAndServe return ErrServerClosed
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("status-server-error: %v", err)
		}

		logger.Info("status-server-stopped")
	}()
}

func (e *Engine) handleHealth(w http.ResponseWriter, r *http.Request) {
	bots := make([]string, 0, len(e.activeBots))
	for _, name := range []string{"discord", "telegram", "feishu", "dingtalk"} {
		if _, ok := e.activeBots[name]; ok {
			bots = append(bots, name)
		}
	}

	writeJSON(w, HealthResponse{
		Status: "ok",
		Uptime: time.Since(e.startedAt).Round(time.Second).String(),
		Bots:   bots,
	})
}

func (e *Engine) handleUsage(w http.ResponseWriter, r *http.Request) {
	entries := e.counter.Snapshot()

	var total uint64
	for _, entry := range entries {
		total += entry.Count
	}

	writeJSON(w, UsageResponse{Total: total, Commands: entries})
}

func (e *Engine) handleCommands(w http.ResponseWriter, r *http.Request) {
	registry := e.fw.Registry()
	cmds := registry.Commands()

	infos := make([]CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		infos = append(infos, CommandInfo{
			Name:        cmd.Name,
			Invocation:  registry.InvocationOf(cmd),
			Aliases:     cmd.Aliases,
			Group:       cmd.Group,
			Bucket:      cmd.Bucket,
			Description: cmd.Description,
		})
	}

	writeJSON(w, infos)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithField("error", err).Warn("failed-to-write-status-response")
	}
}
