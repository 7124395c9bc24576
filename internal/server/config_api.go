package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/joshp123/unisenza-bridge/internal/hass"
)

// EntryView is the public view of a config entry. Entry data is never
// returned since it carries credentials.
type EntryView struct {
	EntryID        string `json:"entry_id"`
	Domain         string `json:"domain"`
	Title          string `json:"title"`
	Source         string `json:"source"`
	State          string `json:"state"`
	Reason         string `json:"reason,omitempty"`
	ReauthRequired bool   `json:"reauth_required,omitempty"`
}

// FlowStartRequest starts a config flow.
type FlowStartRequest struct {
	Handler string         `json:"handler"`
	Source  string         `json:"source,omitempty"`
	Input   map[string]any `json:"user_input,omitempty"`
}

// ConfigAPI exposes config flows and config entries over HTTP.
type ConfigAPI struct {
	hass   *hass.HomeAssistant
	logger *logrus.Logger
}

func NewConfigAPI(h *hass.HomeAssistant, logger *logrus.Logger) *ConfigAPI {
	if logger == nil {
		logger = h.Logger()
	}
	return &ConfigAPI{hass: h, logger: logger}
}

func (a *ConfigAPI) RegisterHTTP(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/config/flow", a.startFlow)
	mux.HandleFunc("POST /api/config/flow/{flow_id}", a.configureFlow)
	mux.HandleFunc("DELETE /api/config/flow/{flow_id}", a.abortFlow)
	mux.HandleFunc("GET /api/config/entries", a.listEntries)
	mux.HandleFunc("GET /api/config/entries/{entry_id}", a.getEntry)
	mux.HandleFunc("DELETE /api/config/entries/{entry_id}", a.removeEntry)
	mux.HandleFunc("POST /api/config/entries/{entry_id}/reload", a.reloadEntry)
}

func (a *ConfigAPI) startFlow(w http.ResponseWriter, r *http.Request) {
	var req FlowStartRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Handler == "" {
		writeError(w, http.StatusBadRequest, "handler is required")
		return
	}
	result, err := a.hass.Flows.Init(r.Context(), req.Handler, req.Source, req.Input)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicResult(result))
}

func (a *ConfigAPI) configureFlow(w http.ResponseWriter, r *http.Request) {
	var input map[string]any
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.hass.Flows.Configure(r.Context(), r.PathValue("flow_id"), input)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, publicResult(result))
}

func (a *ConfigAPI) abortFlow(w http.ResponseWriter, r *http.Request) {
	if err := a.hass.Flows.AbortFlow(r.PathValue("flow_id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ConfigAPI) listEntries(w http.ResponseWriter, r *http.Request) {
	entries := a.hass.ConfigEntries.Entries(r.URL.Query().Get("domain"))
	out := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, viewEntry(entry))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *ConfigAPI) getEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := a.hass.ConfigEntries.Get(r.PathValue("entry_id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEntry(entry))
}

func (a *ConfigAPI) removeEntry(w http.ResponseWriter, r *http.Request) {
	if err := a.hass.ConfigEntries.Remove(r.Context(), r.PathValue("entry_id")); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *ConfigAPI) reloadEntry(w http.ResponseWriter, r *http.Request) {
	entryID := r.PathValue("entry_id")
	if err := a.hass.ConfigEntries.Reload(r.Context(), entryID); err != nil {
		a.fail(w, err)
		return
	}
	entry, err := a.hass.ConfigEntries.Get(entryID)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewEntry(entry))
}

func (a *ConfigAPI) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, hass.ErrUnknownEntry),
		errors.Is(err, hass.ErrUnknownFlow),
		errors.Is(err, hass.ErrUnknownIntegration):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, hass.ErrNotSupported):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.WithError(err).Warn("config api request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func viewEntry(entry *hass.ConfigEntry) EntryView {
	return EntryView{
		EntryID:        entry.EntryID,
		Domain:         entry.Domain,
		Title:          entry.Title,
		Source:         entry.Source,
		State:          string(entry.State()),
		Reason:         entry.Reason(),
		ReauthRequired: entry.ReauthRequired(),
	}
}

// Created entries are reported by id only.
func publicResult(result hass.FlowResult) hass.FlowResult {
	result.Data = nil
	return result
}

func decodeBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
