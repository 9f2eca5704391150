package stabpingserver

import (
	"log"
	"math"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/netwninja/stabping/probedata"
)

var upgrader = websocket.Upgrader{
	// The live feed is read-only telemetry; any origin may watch.
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// liveRound defines the JSON frame pushed to live-feed clients for
// each completed round.
type liveRound struct {
	Time    uint32       `json:"time"`
	Results []liveResult `json:"results"`
}

type liveResult struct {
	ID   probedata.AddrID `json:"id"`
	Addr string           `json:"addr"`
	// Millis holds the measured latency; nil marks a failed probe.
	Millis *float32 `json:"ms"`
}

// client is one live-feed websocket connection.
type client struct {
	conn *websocket.Conn
	send chan *liveRound
}

// BroadcastRound pushes one completed round to every connected
// live-feed client. A client too slow to drain its queue is
// disconnected rather than allowed to stall the broadcast.
func (srv *Server) BroadcastRound(pkg *probedata.TimePackage) {
	round := srv.liveRound(pkg)
	srv.mu.Lock()
	defer srv.mu.Unlock()
	for c := range srv.clients {
		select {
		case c.send <- round:
		default:
			delete(srv.clients, c)
			close(c.send)
		}
	}
}

func (srv *Server) liveRound(pkg *probedata.TimePackage) *liveRound {
	points := pkg.Points()
	round := &liveRound{
		Results: make([]liveResult, 0, len(points)),
	}
	if len(points) > 0 {
		round.Time = points[0].Time
	}
	for _, p := range points {
		r := liveResult{
			ID: p.Index,
		}
		r.Addr, _ = srv.manager.Addr(p.Index)
		if !math.IsNaN(float64(p.Value)) {
			v := p.Value
			r.Millis = &v
		}
		round.Results = append(round.Results, r)
	}
	return round
}

func (srv *Server) serveLive(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Printf("cannot upgrade live-feed connection: %v", err)
		return
	}
	c := &client{
		conn: conn,
		send: make(chan *liveRound, 8),
	}
	srv.mu.Lock()
	srv.clients[c] = true
	srv.mu.Unlock()
	go c.writeLoop()
	go c.readLoop(srv)
}

func (c *client) writeLoop() {
	for round := range c.send {
		if err := c.conn.WriteJSON(round); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}

// readLoop discards incoming frames; its only job is to notice the
// peer going away.
func (c *client) readLoop(srv *Server) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			srv.removeClient(c)
			return
		}
	}
}

func (srv *Server) removeClient(c *client) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.clients[c] {
		delete(srv.clients, c)
		close(c.send)
	}
}
