package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"simulex/internal/model"
)

// EngineView is the read-only slice of *engine.Engine the inspector needs.
// Defined here rather than imported as the concrete type so this package
// never has to import internal/engine, keeping the dependency direction
// the same one-way shape runtime.Deps already establishes (spec §9
// id-indexed lookups over cross-package cycles).
type EngineView interface {
	WorkingOrders() []*model.Order
	Order(clientOrderID string) (*model.Order, bool)
}

// Inspector is a read-only HTTP surface over engine state, the
// generalization of the teacher's internal/net wire query path (the
// client CLI's "log" action) into proper chi-routed JSON endpoints.
type Inspector struct {
	engine EngineView
}

func NewInspector(engine EngineView) *Inspector {
	return &Inspector{engine: engine}
}

// Routes returns a chi.Router exposing GET /orders, GET /orders/{cid},
// and GET /healthz.
func (ins *Inspector) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", ins.handleHealthz)
	r.Get("/orders", ins.handleWorkingOrders)
	r.Get("/orders/{cid}", ins.handleOrder)
	return r
}

func (ins *Inspector) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (ins *Inspector) handleWorkingOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ins.engine.WorkingOrders())
}

func (ins *Inspector) handleOrder(w http.ResponseWriter, r *http.Request) {
	cid := chi.URLParam(r, "cid")
	order, ok := ins.engine.Order(cid)
	if !ok {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, order)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
