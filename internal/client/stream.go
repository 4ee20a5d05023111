package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/researcher/pkg/protocol"
)

// Stream runs query over the websocket endpoint, calling onEvent for each
// progress event until the final result arrives. Cancelling ctx sends an
// abort frame and closes the connection.
func (c *Client) Stream(ctx context.Context, query string, onEvent func(protocol.AgentEvent)) (*protocol.AgentResponse, error) {
	target, err := c.wsURL()
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		fe := &FetchError{Err: err}
		if resp != nil {
			fe.Status = resp.StatusCode
		}
		return nil, fe
	}
	defer conn.Close()

	id := uuid.NewString()[:8]
	if err := conn.WriteJSON(protocol.Frame{Type: protocol.FrameTypeRequest, ID: id, Query: query}); err != nil {
		return nil, &FetchError{Err: fmt.Errorf("send request: %w", err)}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteJSON(protocol.Frame{Type: protocol.FrameTypeAbort, ID: id})
		_ = conn.Close()
	})
	defer stop()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, &FetchError{Err: errors.Join(ctx.Err(), err)}
			}
			return nil, &FetchError{Err: fmt.Errorf("read: %w", err)}
		}
		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, &FetchError{Err: fmt.Errorf("decode frame: %w", err)}
		}
		if f.ID != id {
			continue
		}

		switch f.Type {
		case protocol.FrameTypeEvent:
			if f.Event != nil && onEvent != nil {
				onEvent(*f.Event)
			}
		case protocol.FrameTypeResult:
			if f.Result == nil {
				return nil, &FetchError{Err: errors.New("empty result frame")}
			}
			return f.Result, nil
		case protocol.FrameTypeError:
			return nil, &FetchError{Status: http.StatusOK, Shape: f.Error}
		}
	}
}
