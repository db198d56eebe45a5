package pprof

import (
	"github.com/gorilla/mux"
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"net/http"
	"net/http/pprof"
)

// ConstructRouter serves the runtime profiles behind the authentication provider. It expects to be mounted
// with /debug/pprof stripped from the path.
func ConstructRouter(ap auth.AuthenticationProvider) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/cmdline", pprof.Cmdline)
	r.HandleFunc("/profile", pprof.Profile)
	r.HandleFunc("/symbol", pprof.Symbol)
	r.HandleFunc("/trace", pprof.Trace)
	r.HandleFunc("/{profile}", func(w http.ResponseWriter, req *http.Request) {
		pprof.Handler(mux.Vars(req)["profile"]).ServeHTTP(w, req)
	})
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		req.URL.Path = "/debug/pprof/"
		pprof.Index(w, req)
	})

	return ap.AuthenticationMiddleware(r)
}
