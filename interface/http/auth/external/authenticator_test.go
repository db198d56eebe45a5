package external

import (
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"github.com/stretchr/testify/assert"
	"net/http"
	"net/http/httptest"
	"testing"
)

const userHeader = "X-Remote-User"

func TestAuthenticator_AuthenticationMiddleware(t *testing.T) {
	t.Run("attaches the user named by the proxy header", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/", nil)
		if err != nil {
			t.Fatal(err)
		}

		expectedUser := "doctor"
		req.Header.Add(userHeader, expectedUser)

		a := Authenticator{UserHeader: userHeader}

		handler := a.AuthenticationMiddleware(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity, _ := auth.Identity(request.Context())
			assert.Equal(t, expectedUser, identity)
			writer.WriteHeader(200)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("returns 401 when the proxy header is missing", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/", nil)
		if err != nil {
			t.Fatal(err)
		}

		a := Authenticator{UserHeader: userHeader}

		handler := a.AuthenticationMiddleware(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			t.Fatal("Downstream handler called, and should not have been.")
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
