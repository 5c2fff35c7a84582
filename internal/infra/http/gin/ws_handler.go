package ginserver

import (
	gin "github.com/gin-gonic/gin"

	"homedesk/internal/infra/ws"
)

// WSHTTP upgrades authenticated requests to the realtime socket.
type WSHTTP interface {
	Serve(c *gin.Context)
}

// WSHandler hands authenticated connections to the socket gateway.
type WSHandler struct {
	Gateway *ws.Gateway
}

func (h WSHandler) Serve(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	h.Gateway.Serve(c.Writer, c.Request, p)
}

var _ WSHTTP = (*WSHandler)(nil)
