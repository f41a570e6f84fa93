package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/chatwarden/controlplane"
	"github.com/onnwee/chatwarden/moderation"
)

func (h *Handlers) publishCommand(w http.ResponseWriter, cmdType controlplane.CommandType, name string) {
	if h.publisher == nil {
		http.Error(w, "control plane not configured", http.StatusServiceUnavailable)
		return
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if err := h.publisher.Publish(controlplane.Command{Type: cmdType, Name: name}); err != nil {
		slog.Error("failed to publish control command", slog.String("type", string(cmdType)), slog.String("name", name), slog.Any("err", err))
		http.Error(w, "failed to publish command", http.StatusBadGateway)
		return
	}
	// Applied asynchronously by the control-plane consumer.
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "type": string(cmdType), "name": name})
}

// HandleChannels lists moderated channels (GET) or requests joining a new one (POST).
func (h *Handlers) HandleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"channels": h.state.ChannelNames()})
	case http.MethodPost:
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		h.publishCommand(w, controlplane.CommandNewChannel, body.Name)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleChannelByName removes a channel: DELETE /admin/channels/{name}.
func (h *Handlers) HandleChannelByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/admin/channels/")
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.publishCommand(w, controlplane.CommandDeleteChannel, name)
}

// HandleSpambotByName flags (POST) or unflags (DELETE) a known spambot:
// /admin/spambots/{name}.
func (h *Handlers) HandleSpambotByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/admin/spambots/")
	switch r.Method {
	case http.MethodPost:
		h.publishCommand(w, controlplane.CommandNewSpambot, name)
	case http.MethodDelete:
		h.publishCommand(w, controlplane.CommandDeleteSpambot, name)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRules lists banned-word rules (GET) or creates one (POST). Rule
// changes apply immediately: the store is mutated, then the in-memory rule
// set is recompiled.
func (h *Handlers) HandleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := h.rules.ListBannedWords(r.Context())
		if err != nil {
			slog.Error("failed to list rules", slog.Any("err", err))
			http.Error(w, "failed to list rules", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
	case http.MethodPost:
		var body struct {
			Pattern string `json:"pattern"`
			Regex   bool   `json:"regex"`
			Channel string `json:"channel"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if body.Pattern == "" {
			http.Error(w, "pattern is required", http.StatusBadRequest)
			return
		}
		// Reject patterns that would be skipped at load time.
		if _, err := moderation.CompileRule(body.Pattern, body.Regex); err != nil {
			http.Error(w, "invalid pattern: "+err.Error(), http.StatusBadRequest)
			return
		}
		if body.Channel != "" && !h.state.HasChannel(strings.ToLower(body.Channel)) {
			http.Error(w, "unknown channel", http.StatusNotFound)
			return
		}
		rule, err := h.rules.InsertBannedWord(r.Context(), body.Pattern, body.Regex, strings.ToLower(body.Channel))
		if err != nil {
			slog.Error("failed to insert rule", slog.Any("err", err))
			http.Error(w, "failed to insert rule", http.StatusInternalServerError)
			return
		}
		if err := h.reloader.ReloadRules(r.Context()); err != nil {
			slog.Error("failed to reload rules", slog.Any("err", err))
			http.Error(w, "rule stored but reload failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, rule)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleRuleByID deletes a rule: DELETE /admin/rules/{id}.
func (h *Handlers) HandleRuleByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/admin/rules/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}
	if err := h.rules.DeleteBannedWord(r.Context(), id); err != nil {
		slog.Error("failed to delete rule", slog.Int64("id", id), slog.Any("err", err))
		http.Error(w, "failed to delete rule", http.StatusInternalServerError)
		return
	}
	if err := h.reloader.ReloadRules(r.Context()); err != nil {
		slog.Error("failed to reload rules", slog.Any("err", err))
		http.Error(w, "rule deleted but reload failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
