package v1

import (
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"net/http"
)

// ConstructRouter builds the accessory API. Event streaming routes are only mounted when an eventbus is
// provided.
func ConstructRouter(registry state.SwitchRegistry, eventbus state.EventSubscriber, ap auth.AuthenticationProvider, l logwrap.Logger) http.Handler {
	protected := mux.NewRouter()

	ac := accessoryController{
		registry: registry,
		logger:   l,
	}

	protected.HandleFunc("/accessory", ac.createAccessory).Methods("POST")
	protected.HandleFunc("/accessory", ac.listAccessories).Methods("GET")
	protected.HandleFunc("/accessory/{identifier}", ac.getAccessory).Methods("GET")
	protected.HandleFunc("/accessory/{identifier}", ac.deleteAccessory).Methods("DELETE")
	protected.HandleFunc("/accessory/{identifier}/state", ac.getAccessoryState).Methods("GET")
	protected.HandleFunc("/accessory/{identifier}/state", ac.setAccessoryState).Methods("PUT")

	if eventbus != nil {
		ec := eventsController{
			eventbus:    eventbus,
			eventMapper: eventMapper{registry: registry},
			logger:      l,
		}

		protected.HandleFunc("/events", ec.serveWebsocket).Methods("GET")
		protected.HandleFunc("/events/stream", ec.serveServerSideEvent).Methods("GET")
	}

	apiRoot := mux.NewRouter()
	apiRoot.HandleFunc("/health", health).Methods("GET")
	apiRoot.Handle("/auth/type", auth.TypeHandler(ap)).Methods("GET")
	apiRoot.Handle("/auth/check", ap.AuthenticationMiddleware(http.HandlerFunc(authenticationCheck))).Methods("GET")
	apiRoot.PathPrefix("/auth").Handler(ap.AuthenticationRouter())
	apiRoot.PathPrefix("/").Handler(ap.AuthenticationMiddleware(protected))

	return apiRoot
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("content-type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
