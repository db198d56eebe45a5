package main

import (
	"github.com/shimmeringbee/httpkit/config"
	"github.com/shimmeringbee/httpkit/interface/http/auth/external"
	"github.com/shimmeringbee/httpkit/interface/http/auth/jwt"
	"github.com/shimmeringbee/httpkit/interface/http/auth/null"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/discard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func Test_loadInterfaceConfigurations(t *testing.T) {
	t.Run("loads multiple interface configurations from fixtures", func(t *testing.T) {
		cfgs, err := loadInterfaceConfigurations(filepath.Join("test_fixtures", "config", "interfaces"))
		require.NoError(t, err)
		require.Len(t, cfgs, 2)

		assert.Equal(t, "api", cfgs[0].Name)
		assert.IsType(t, &config.HTTPInterfaceConfig{}, cfgs[0].Config)

		assert.Equal(t, "broker", cfgs[1].Name)
		assert.IsType(t, &config.MQTTInterfaceConfig{}, cfgs[1].Config)
	})

	t.Run("creates the directory if missing and returns nothing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "interfaces")

		cfgs, err := loadInterfaceConfigurations(dir)
		assert.NoError(t, err)
		assert.Empty(t, cfgs)
		assert.DirExists(t, dir)
	})

	t.Run("errors on an invalid configuration", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"Type":"carrier-pigeon"}`), 0600))

		_, err := loadInterfaceConfigurations(dir)
		assert.Error(t, err)
	})
}

func Test_topicPrefixes(t *testing.T) {
	t.Run("prefixes topics when a prefix is configured", func(t *testing.T) {
		assert.Equal(t, "httpkit/switches/sw1/state", prefixTopic("httpkit", "switches/sw1/state"))
		assert.Equal(t, "switches/sw1/state", prefixTopic("", "switches/sw1/state"))
	})

	t.Run("strips the prefix and separator from incoming topics", func(t *testing.T) {
		assert.Equal(t, "switches/sw1/state/set", stripPrefixTopic("httpkit", "httpkit/switches/sw1/state/set"))
		assert.Equal(t, "switches/sw1/state/set", stripPrefixTopic("", "switches/sw1/state/set"))
	})
}

func Test_constructAuthenticator(t *testing.T) {
	t.Run("constructs the configured provider", func(t *testing.T) {
		ap, err := constructAuthenticator("api", config.AuthenticationConfig{}, t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, null.Authenticator{}, ap)

		ap, err = constructAuthenticator("api", config.AuthenticationConfig{Type: "external", Config: &config.ExternalAuthentication{UserHeader: "X-User"}}, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, external.Authenticator{UserHeader: "X-User"}, ap)

		ap, err = constructAuthenticator("api", config.AuthenticationConfig{Type: "jwt", Config: &config.JWTAuthentication{TTL: "1h", KeyFile: "jwt.pem"}}, t.TempDir())
		require.NoError(t, err)
		assert.IsType(t, &jwt.Authenticator{}, ap)
	})

	t.Run("errors on an invalid jwt TTL", func(t *testing.T) {
		_, err := constructAuthenticator("api", config.AuthenticationConfig{Type: "jwt", Config: &config.JWTAuthentication{TTL: "soon", KeyFile: "jwt.pem"}}, t.TempDir())
		assert.Error(t, err)
	})
}

func Test_loadOrGenerateJWTKey(t *testing.T) {
	t.Run("generates a key once and reuses it", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jwt.pem")

		first, err := loadOrGenerateJWTKey(path)
		require.NoError(t, err)
		assert.FileExists(t, path)

		second, err := loadOrGenerateJWTKey(path)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func Test_issueToken(t *testing.T) {
	jwtInterface := config.InterfaceConfig{
		Name: "api",
		Type: "http",
		Config: &config.HTTPInterfaceConfig{
			Authentication: config.AuthenticationConfig{Type: "jwt", Config: &config.JWTAuthentication{TTL: "1h", KeyFile: "jwt.pem"}},
		},
	}

	t.Run("issues a token the running interface accepts", func(t *testing.T) {
		directories := Directories{Data: t.TempDir()}

		token, err := issueToken([]config.InterfaceConfig{jwtInterface}, directories, "alice")
		require.NoError(t, err)

		ap, err := constructAuthenticator("api", jwtInterface.Config.(*config.HTTPInterfaceConfig).Authentication, interfaceDataDirectory(directories, "api"))
		require.NoError(t, err)

		subject, err := ap.(*jwt.Authenticator).Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "alice", subject)
	})

	t.Run("errors if no interface uses jwt", func(t *testing.T) {
		_, err := issueToken([]config.InterfaceConfig{config.DefaultHTTPInterface()}, Directories{Data: t.TempDir()}, "alice")
		assert.Error(t, err)
	})

	t.Run("errors without a subject", func(t *testing.T) {
		_, err := issueToken([]config.InterfaceConfig{jwtInterface}, Directories{Data: t.TempDir()}, "")
		assert.Error(t, err)
	})
}

func Test_constructHTTPRouter(t *testing.T) {
	serve := func(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
		req, err := http.NewRequest("GET", path, nil)
		if err != nil {
			t.Fatal(err)
		}

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	t.Run("the default interface serves the accessory API without authentication", func(t *testing.T) {
		msr := &state.MockSwitchRegistry{}
		defer msr.AssertExpectations(t)

		msr.On("List").Return([]state.Switch{})

		cfg := config.DefaultHTTPInterface()

		h, err := constructHTTPRouter(cfg.Name, *cfg.Config.(*config.HTTPInterfaceConfig), interfaceDependencies{registry: msr, eventbus: state.NewEventBus()}, t.TempDir(), logwrap.New(discard.Discard()))
		require.NoError(t, err)

		assert.Equal(t, "OK", serve(t, h, "/health").Body.String())
		assert.Equal(t, `{"accessories":[]}`, serve(t, h, "/accessory").Body.String())
		assert.Equal(t, http.StatusNotFound, serve(t, h, "/debug/pprof/").Code)
		assert.Equal(t, http.StatusNotFound, serve(t, h, "/events/stream").Code)
	})

	t.Run("mounts pprof when enabled", func(t *testing.T) {
		cfg := config.HTTPInterfaceConfig{EnabledAPIs: []string{"pprof"}}

		h, err := constructHTTPRouter("debug", cfg, interfaceDependencies{registry: &state.MockSwitchRegistry{}, eventbus: state.NewEventBus()}, t.TempDir(), logwrap.New(discard.Discard()))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, serve(t, h, "/debug/pprof/").Code)
	})
}
