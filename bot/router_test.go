package bot_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rso-iota/rso-bots/bot"
	"github.com/rso-iota/rso-bots/bot/application"
	"github.com/rso-iota/rso-bots/bot/handler"
)

type emptyControl struct{}

func (emptyControl) Add(context.Context, string, application.Spec) error { return nil }
func (emptyControl) Remove(context.Context, string) error                 { return nil }
func (emptyControl) Get(context.Context, string) (application.HandleInfo, bool, error) {
	return application.HandleInfo{}, false, nil
}
func (emptyControl) List(context.Context) ([]application.HandleInfo, error) { return nil, nil }

func TestRoute(t *testing.T) {
	ready := true
	srv := httptest.NewServer(bot.Route(emptyControl{}, handler.Defaults{}, func() bool { return ready }, nil))
	defer srv.Close()

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/health/ready", http.StatusOK},
		{http.MethodGet, "/api/bots", http.StatusOK},
		{http.MethodGet, "/api/bots/nope", http.StatusNotFound},
		{http.MethodDelete, "/api/bots/nope", http.StatusNoContent},
		{http.MethodPut, "/api/bots", http.StatusMethodNotAllowed},
		{http.MethodGet, "/ws", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, srv.URL+tc.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
