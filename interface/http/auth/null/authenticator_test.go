package null

import (
	"github.com/shimmeringbee/httpkit/interface/http/auth"
	"github.com/stretchr/testify/assert"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthenticator_AuthenticationMiddleware(t *testing.T) {
	t.Run("attaches the anonymous identity to every request", func(t *testing.T) {
		req, err := http.NewRequest("GET", "/", nil)
		if err != nil {
			t.Fatal(err)
		}

		a := Authenticator{}

		handler := a.AuthenticationMiddleware(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			identity, ok := auth.Identity(request.Context())
			assert.True(t, ok)
			assert.Equal(t, Identity, identity)
			writer.WriteHeader(200)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestAuthenticator_AuthenticationType(t *testing.T) {
	t.Run("reports the null type", func(t *testing.T) {
		assert.Equal(t, auth.AuthenticatorType{Type: "null"}, Authenticator{}.AuthenticationType())
	})
}
