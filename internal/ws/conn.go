package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const sendBufferSize = 32

// Conn wraps a websocket connection with a buffered outbound queue so fan-out
// never writes to the socket from more than one goroutine.
type Conn struct {
	ws        *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

func newConn(wsConn *websocket.Conn) *Conn {
	return &Conn{
		ws:   wsConn,
		send: make(chan []byte, sendBufferSize),
	}
}

// writePump drains the send queue onto the socket. It exits when the queue
// closes or a write fails; the read loop notices the closed socket and
// performs cleanup.
func (c *Conn) writePump() {
	for payload := range c.send {
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error: %v", err)
			c.Close()
			return
		}
	}
	_ = c.ws.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
	c.ws.Close()
}

// enqueue hands a frame to the write pump. A full queue means the client is
// not keeping up; the connection is dropped rather than blocking fan-out.
func (c *Conn) enqueue(payload []byte) bool {
	defer func() {
		// send may already be closed by a concurrent Close.
		recover()
	}()
	select {
	case c.send <- payload:
		return true
	default:
		log.Printf("websocket send queue full, dropping connection")
		c.Close()
		return false
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}
