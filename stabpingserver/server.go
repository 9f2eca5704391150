// Package stabpingserver serves the HTTP API and live measurement
// feed for a managed target.
package stabpingserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
	errgo "gopkg.in/errgo.v1"
	"gopkg.in/httprequest.v1"

	"github.com/netwninja/stabping/probedata"
	"github.com/netwninja/stabping/targetstore"
)

// Params holds the parameters for a call to New.
type Params struct {
	// Manager holds the manager for the served target.
	Manager *targetstore.Manager
}

var reqServer = &httprequest.Server{
	ErrorMapper: errorMapper,
}

// errorBody defines the JSON body of error responses.
type errorBody struct {
	Message string `json:"message"`
}

func errorMapper(ctx context.Context, err error) (int, interface{}) {
	status := http.StatusInternalServerError
	if errgo.Cause(err) == targetstore.ErrInvalidAddr {
		status = http.StatusBadRequest
	}
	return status, &errorBody{
		Message: err.Error(),
	}
}

// Server serves a target's configuration API and its live feed.
type Server struct {
	manager *targetstore.Manager
	router  *httprouter.Router

	// mu guards clients.
	mu      sync.Mutex
	clients map[*client]bool
}

// New returns a Server exposing the given manager.
func New(p Params) (*Server, error) {
	if p.Manager == nil {
		return nil, errgo.New("no manager set")
	}
	srv := &Server{
		manager: p.Manager,
		clients: make(map[*client]bool),
	}
	router := httprouter.New()
	for _, h := range reqServer.Handlers(srv.apiHandler) {
		router.Handle(h.Method, h.Path, h.Handle)
	}
	router.HandlerFunc("GET", "/live", srv.serveLive)
	srv.router = router
	return srv, nil
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	srv.router.ServeHTTP(w, req)
}

func (srv *Server) apiHandler(p httprequest.Params) (apiHandler, context.Context, error) {
	return apiHandler{srv}, p.Context, nil
}

type apiHandler struct {
	srv *Server
}

type targetGetRequest struct {
	httprequest.Route `httprequest:"GET /api/target"`
}

// targetGetResponse describes the served target: its kind, every
// indexed address (position is the address's id) and the current
// options.
type targetGetResponse struct {
	Kind    string              `json:"kind"`
	Addrs   []string            `json:"addrs"`
	Options targetstore.Options `json:"options"`
}

func (h apiHandler) GetTarget(*targetGetRequest) (*targetGetResponse, error) {
	return &targetGetResponse{
		Kind:    h.srv.manager.Kind().Name,
		Addrs:   h.srv.manager.Addrs(),
		Options: h.srv.manager.Options(),
	}, nil
}

type optionsGetRequest struct {
	httprequest.Route `httprequest:"GET /api/options"`
}

func (h apiHandler) GetOptions(*optionsGetRequest) (*targetstore.Options, error) {
	opts := h.srv.manager.Options()
	return &opts, nil
}

type optionsPutRequest struct {
	httprequest.Route `httprequest:"PUT /api/options"`
	Options           targetstore.Options `httprequest:",body"`
}

func (h apiHandler) PutOptions(req *optionsPutRequest) error {
	return errgo.Mask(
		h.srv.manager.SetOptions(req.Options),
		errgo.Is(targetstore.ErrInvalidAddr),
	)
}

type addrsGetRequest struct {
	httprequest.Route `httprequest:"GET /api/addrs"`
}

type addrsGetResponse struct {
	Addrs []string `json:"addrs"`
}

func (h apiHandler) GetAddrs(*addrsGetRequest) (*addrsGetResponse, error) {
	return &addrsGetResponse{
		Addrs: h.srv.manager.Addrs(),
	}, nil
}

type addrAddRequest struct {
	httprequest.Route `httprequest:"POST /api/addrs"`
	Body              struct {
		Addr string `json:"addr"`
	} `httprequest:",body"`
}

type addrAddResponse struct {
	ID probedata.AddrID `json:"id"`
}

// AddAddr registers a new address in the target's index and returns
// its id, so a following options update can refer to it.
func (h apiHandler) AddAddr(req *addrAddRequest) (*addrAddResponse, error) {
	if req.Body.Addr == "" {
		return nil, errgo.WithCausef(nil, targetstore.ErrInvalidAddr, "empty address")
	}
	id, err := h.srv.manager.AddAddr(req.Body.Addr)
	if err != nil {
		return nil, errgo.Mask(err)
	}
	return &addrAddResponse{
		ID: id,
	}, nil
}
