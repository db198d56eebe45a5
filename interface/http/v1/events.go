package v1

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/gorilla/websocket"
	"github.com/shimmeringbee/httpkit/state"
	"github.com/shimmeringbee/logwrap"
	"net/http"
	"time"
)

type eventsController struct {
	eventbus    state.EventSubscriber
	eventMapper EventExporter
	logger      logwrap.Logger
}

const ConnectionEventBufferSize = 16

func (z *eventsController) serveServerSideEvent(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", "Content-Type")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventsCh := make(chan any, ConnectionEventBufferSize)

	z.eventbus.Subscribe(eventsCh)
	defer z.eventbus.Unsubscribe(eventsCh)

	z.sendLoop(func(b []byte) error {
		data := fmt.Sprintf("data: %s\n\n", b)
		if n, err := w.Write([]byte(data)); err != nil {
			return err
		} else if len(data) != n {
			return fmt.Errorf("failed to send full event: %d != %d", len(data), n)
		}

		flusher.Flush()
		return nil
	}, eventsCh, r.Context().Done())
}

var wsUpgrader = websocket.Upgrader{}

func (z *eventsController) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	c, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		z.logger.LogWarn(r.Context(), "Failed to upgrade connection to websocket.", logwrap.Err(err))
		return
	}
	defer c.Close()

	if err := z.serveWebsocketConnection(c); err != nil {
		z.logger.LogDebug(r.Context(), "Websocket connection ended with error.", logwrap.Err(err))
	}
}

func (z *eventsController) serveWebsocketConnection(c *websocket.Conn) error {
	eventsCh := make(chan any, ConnectionEventBufferSize)
	shutdownCh := make(chan struct{})

	z.eventbus.Subscribe(eventsCh)

	defer func() {
		z.eventbus.Unsubscribe(eventsCh)
		close(shutdownCh)
	}()

	go z.sendLoop(func(b []byte) error {
		return c.WriteMessage(websocket.TextMessage, b)
	}, eventsCh, shutdownCh)

	return z.serviceIncoming(c)
}

func (z *eventsController) sendLoop(publish func([]byte) error, ch chan any, shutCh <-chan struct{}) {
	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	events, err := z.eventMapper.InitialEvents(initCtx)
	cancel()
	if err != nil {
		z.logger.LogError(context.Background(), "Failed to construct initial events.", logwrap.Err(err))
		return
	}

	if !z.send(publish, events) {
		return
	}

	for {
		select {
		case event := <-ch:
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			es, err := z.eventMapper.MapEvent(ctx, event)
			cancel()

			if err != nil {
				z.logger.LogWarn(context.Background(), "Failed to map event to stream message.", logwrap.Err(err), logwrap.Datum("event", event))
				continue
			}

			if !z.send(publish, es) {
				return
			}
		case <-shutCh:
			return
		}
	}
}

func (z *eventsController) send(publish func([]byte) error, events []any) bool {
	for _, e := range events {
		d, err := json.Marshal(e)
		if err != nil {
			z.logger.LogError(context.Background(), "Failed to marshal stream message.", logwrap.Err(err))
			return false
		}

		if err := publish(d); err != nil {
			z.logger.LogDebug(context.Background(), "Failed to send stream message.", logwrap.Err(err))
			return false
		}
	}

	return true
}

func (z *eventsController) serviceIncoming(c *websocket.Conn) error {
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if _, ok := err.(*websocket.CloseError); ok {
				z.logger.LogDebug(context.Background(), "Websocket closed.", logwrap.Err(err))
				return nil
			}

			return err
		}
	}
}
