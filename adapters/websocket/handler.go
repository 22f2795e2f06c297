package websocket

import (
	"github.com/labstack/echo/v4"

	"github.com/yuvalro/ivan/domain"
)

// Handler upgrades "/ws" requests and wires a conversation controller to
// the connection. The connection id doubles as the chat update routing
// origin; clients pass it as X-Conn-ID on voice uploads.
func (s *Server) Handler(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	userID, _ := c.Get("user_id").(string)
	connID := s.ids.NewID()

	client := NewClient(conn, connID, userID)
	conversation := NewConversation(client, s.store, s.svc, connID)
	client.OnCommand(conversation.HandleCommand)

	s.hub.Register(client)
	client.Run()

	defer s.hub.Unregister(client)

	// Tell the client its connection id and the model catalog up front.
	conversation.sendEvent(Event{Type: EventHello, ConnID: connID, Models: domain.Models})

	<-client.Context().Done()

	return nil
}
