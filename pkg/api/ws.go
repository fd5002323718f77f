package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/websocket"

	"github.com/aisu-run/aisu-core/pkg/terminal"
	"github.com/aisu-run/aisu-core/pkg/types"
)

const (
	// closePolicyViolation is the closure code sent on auth failure
	closePolicyViolation = 1008

	// readyTimeout bounds the wait for a freshly provisioned container
	readyTimeout = 5 * time.Second

	// settleDelay gives a new container a moment before the shell
	// attaches
	settleDelay = 500 * time.Millisecond
)

// wsFrame is one message off the transport with its payload type
// preserved, so binary data and JSON control frames can be told apart.
type wsFrame struct {
	payloadType byte
	data        []byte
}

var frameCodec = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		f, ok := v.(*wsFrame)
		if !ok {
			return nil, 0, fmt.Errorf("unsupported frame type %T", v)
		}
		return f.data, f.payloadType, nil
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		f, ok := v.(*wsFrame)
		if !ok {
			return fmt.Errorf("unsupported frame type %T", v)
		}
		f.payloadType = payloadType
		f.data = append([]byte(nil), data...)
		return nil
	},
}

// controlFrame is a JSON text message from the client
type controlFrame struct {
	Type string `json:"type"`
	Rows uint   `json:"rows"`
	Cols uint   `json:"cols"`
}

func sendStatus(ws *websocket.Conn, status string) {
	_ = websocket.JSON.Send(ws, map[string]string{"type": "status", "status": status})
}

func sendError(ws *websocket.Conn, message string) {
	_ = websocket.JSON.Send(ws, map[string]string{"type": "error", "message": message})
}

func (s *Server) terminalHandler() http.Handler {
	return websocket.Server{
		// default handshake rejects cross-origin; the browser client
		// connects from the app origin with a token instead
		Handshake: func(_ *websocket.Config, _ *http.Request) error { return nil },
		Handler:   func(ws *websocket.Conn) { s.serveTerminal(ws) },
	}
}

func (s *Server) serveTerminal(ws *websocket.Conn) {
	defer ws.Close()

	token := ws.Request().URL.Query().Get("token")
	user, err := s.auth.Authenticate(token)
	if err != nil {
		_ = ws.WriteClose(closePolicyViolation)
		return
	}
	logger := s.logger.With().Str("user_id", user.ID).Logger()

	ctx, cancel := context.WithCancel(ws.Request().Context())
	defer cancel()

	sendStatus(ws, "starting-container")
	result, err := s.manager.Start(ctx, user)
	if err != nil {
		sendError(ws, "Failed to start container")
		return
	}
	if result.Provisioned {
		if err := s.manager.WaitRunning(ctx, user.ID, readyTimeout); err != nil {
			sendError(ws, "Container did not become ready")
			return
		}
		time.Sleep(settleDelay)
	}

	session, err := terminal.NewSession(ctx, s.rt, user.ID)
	if err != nil {
		sendError(ws, "Failed to start terminal session")
		return
	}
	defer session.Close()

	_ = websocket.JSON.Send(ws, map[string]string{"type": "ready", "sessionId": session.ID()})
	logger.Info().Str("session_id", session.ID()).Msg("Terminal attached")

	done := make(chan struct{}, 2)
	go func() {
		s.pumpContainerToTransport(ctx, ws, session, user.ID)
		done <- struct{}{}
	}()
	go func() {
		s.pumpTransportToContainer(ws, session)
		done <- struct{}{}
	}()

	// the first pump to finish tears the session down; closing the
	// session and the socket unblocks the other pump
	<-done
	cancel()
	session.Close()
	ws.Close()
	<-done

	logger.Info().Str("session_id", session.ID()).Msg("Terminal detached")
}

// pumpContainerToTransport copies shell output to the client as binary
// frames. On EOF it inspects the container to attribute the closure.
func (s *Server) pumpContainerToTransport(ctx context.Context, ws *websocket.Conn, session *terminal.Session, userID string) {
	buf := make([]byte, 4096)
	for {
		n, err := session.Read(buf)
		if n > 0 {
			if sendErr := websocket.Message.Send(ws, buf[:n]); sendErr != nil {
				return
			}
		}
		if err != nil {
			s.attributeEOF(ctx, ws, userID)
			return
		}
	}
}

// attributeEOF tells the client why the stream ended when the
// container is no longer running.
func (s *Server) attributeEOF(ctx context.Context, ws *websocket.Conn, userID string) {
	inspectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 300*time.Millisecond)
	defer cancel()

	status, _, err := s.manager.LiveStatus(inspectCtx, userID)
	if err != nil || status == types.ContainerStatusRunning {
		return
	}

	tail, _ := s.rt.Logs(inspectCtx, types.ContainerName(userID), 3)
	message := fmt.Sprintf("Container stopped (%s)", status)
	if tail = strings.TrimSpace(tail); tail != "" {
		message += ": " + tail
	}
	sendError(ws, message)
}

// pumpTransportToContainer routes client messages: binary frames are
// raw input, JSON text frames are control, any other text is typed
// input.
func (s *Server) pumpTransportToContainer(ws *websocket.Conn, session *terminal.Session) {
	for {
		var frame wsFrame
		if err := frameCodec.Receive(ws, &frame); err != nil {
			return
		}

		if frame.payloadType == websocket.BinaryFrame {
			if _, err := session.Write(frame.data); err != nil {
				return
			}
			continue
		}

		var control controlFrame
		if err := json.Unmarshal(frame.data, &control); err == nil && control.Type != "" {
			s.dispatchControl(ws, session, control)
			continue
		}

		if utf8.Valid(frame.data) {
			if _, err := session.Write(frame.data); err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchControl(ws *websocket.Conn, session *terminal.Session, control controlFrame) {
	switch control.Type {
	case "resize":
		// resize is lossy: only the latest matters, no acknowledgement
		if err := session.Resize(ws.Request().Context(), control.Rows, control.Cols); err != nil {
			s.logger.Debug().Err(err).Msg("PTY resize failed")
		}
	default:
		s.logger.Debug().Str("type", control.Type).Msg("Unknown control frame")
	}
}
