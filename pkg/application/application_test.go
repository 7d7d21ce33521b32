package application

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type fakeService struct{ name string }

type fakeController struct{ key string }

func (c *fakeController) Key() string { return c.key }

func (c *fakeController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(w http.ResponseWriter, r *http.Request) {})
}

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	svc := &fakeService{name: "imports"}
	app.RegisterServices(svc)

	got := app.Service(fakeService{}).(*fakeService)
	require.Same(t, svc, got)
	require.Len(t, app.Services(), 1)

	require.Panics(t, func() { app.Service(struct{}{}) })
}

func TestApplication_ControllersOrderedByKey(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(
		&fakeController{key: "/b"},
		&fakeController{key: "/a"},
		&fakeController{key: "/b"},
	)

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "/a", controllers[0].Key())
	require.Equal(t, "/b", controllers[1].Key())
}
