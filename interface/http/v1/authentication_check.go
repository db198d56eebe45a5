package v1

import (
	"encoding/json"
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"net/http"
)

type AuthenticationCheckPayload struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity,omitempty"`
}

func authenticationCheck(w http.ResponseWriter, r *http.Request) {
	identity, authenticated := auth.Identity(r.Context())

	data, err := json.Marshal(AuthenticationCheckPayload{
		Authenticated: authenticated,
		Identity:      identity,
	})
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("content-type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
