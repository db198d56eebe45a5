package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"github.com/tidwall/gjson"
	"io"
	"net/http"
)

const MaximumBodySize = 64 * 1024

type accessoryController struct {
	registry state.SwitchRegistry
	logger   logwrap.Logger
}

type messageResponse struct {
	Message string `json:"message"`
}

type listResponse struct {
	Accessories []state.Switch `json:"accessories"`
}

type stateResponse struct {
	State state.SwitchState `json:"state"`
}

var okResponse = messageResponse{Message: "OK"}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError resolves a registry error into its status code and message body.
func (a *accessoryController) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()

	switch {
	case errors.Is(err, state.ErrNotFound):
		status = http.StatusNotFound
		message = state.ErrNotFound.Error()
	case errors.Is(err, state.ErrDuplicateId):
		status = http.StatusConflict
	case errors.Is(err, state.ErrMalformedInput):
		status = http.StatusBadRequest
	default:
		a.logger.LogError(ctx, "Accessory request failed.", logwrap.Err(err))
	}

	writeJSON(w, status, messageResponse{Message: message})
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaximumBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %s", state.ErrMalformedInput, err.Error())
	}

	return body, nil
}

func parseSwitchConfig(body []byte) (state.SwitchConfig, error) {
	if !gjson.ValidBytes(body) {
		return state.SwitchConfig{}, fmt.Errorf("%w: body is not valid JSON", state.ErrMalformedInput)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return state.SwitchConfig{}, fmt.Errorf("%w: body must be a JSON object", state.ErrMalformedInput)
	}

	for _, key := range []string{"id", "name", "on_url", "off_url"} {
		if doc.Get(key).Type != gjson.String {
			return state.SwitchConfig{}, fmt.Errorf("%w: '%s' must be a string", state.ErrMalformedInput, key)
		}
	}

	cfg := state.SwitchConfig{
		Identifier: doc.Get("id").String(),
		Name:       doc.Get("name").String(),
		OnURL:      doc.Get("on_url").String(),
		OffURL:     doc.Get("off_url").String(),
	}

	return cfg, cfg.Validate()
}

func parseSwitchState(body []byte) (state.SwitchState, error) {
	if !gjson.ValidBytes(body) {
		return state.SwitchState{}, fmt.Errorf("%w: body is not valid JSON", state.ErrMalformedInput)
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return state.SwitchState{}, fmt.Errorf("%w: body must be a JSON object", state.ErrMalformedInput)
	}

	on := doc.Get("on")
	if on.Type != gjson.True && on.Type != gjson.False {
		return state.SwitchState{}, fmt.Errorf("%w: 'on' must be a boolean", state.ErrMalformedInput)
	}

	return state.SwitchState{On: on.Bool()}, nil
}

func (a *accessoryController) createAccessory(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	cfg, err := parseSwitchConfig(body)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	if _, err := a.registry.Create(cfg); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse)
}

func (a *accessoryController) listAccessories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, listResponse{Accessories: a.registry.List()})
}

func (a *accessoryController) getAccessory(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sw, err := a.registry.Find(id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, sw)
}

func (a *accessoryController) deleteAccessory(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := a.registry.Delete(id); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse)
}

func (a *accessoryController) getAccessoryState(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	s, err := a.registry.State(id)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{State: s})
}

func (a *accessoryController) setAccessoryState(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)

	id, ok := params["identifier"]
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	s, err := parseSwitchState(body)
	if err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	if err := a.registry.SetState(id, s); err != nil {
		a.writeError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse)
}
