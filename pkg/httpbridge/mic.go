package httpbridge

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/soypete/safesound/pkg/metrics"
	"github.com/soypete/safesound/pkg/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 << 10,
	WriteBufferSize: 4 << 10,
}

// micMessage is a control message on the microphone socket.
type micMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Bytes      int    `json:"bytes,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleMic receives microphone audio. The browser sends a JSON "start"
// message with the capture format, then binary PCM16LE frames which are
// appended to the session buffer up to the upload size limit. A "clear"
// message drops the buffer.
func (s *Server) handleMic(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(session.CookieName)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Open the page before recording")
		return
	}
	sess := s.sessions.Lookup(c.Value)
	if sess == nil {
		respondError(w, http.StatusBadRequest, "Session expired, reload the page")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(1 << 20)

	s.logger.Debug("Microphone connected", "session", sess.ID)

	var sampleRate, channels int
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Microphone connection closed", "session", sess.ID, "error", err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			var msg micMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.sendMic(conn, micMessage{Type: "error", Error: "invalid control message"})
				continue
			}
			switch msg.Type {
			case "start":
				if msg.SampleRate <= 0 || msg.Channels <= 0 {
					s.sendMic(conn, micMessage{Type: "error", Error: "sample_rate and channels are required"})
					continue
				}
				sampleRate, channels = msg.SampleRate, msg.Channels
				s.sendMic(conn, micMessage{Type: "started", SampleRate: sampleRate, Channels: channels, Bytes: sess.BufferedBytes()})
			case "clear":
				sess.ClearPCM()
				s.sendMic(conn, micMessage{Type: "buffered", Bytes: 0})
			default:
				s.sendMic(conn, micMessage{Type: "error", Error: "unknown message type " + msg.Type})
			}

		case websocket.BinaryMessage:
			if sampleRate == 0 {
				s.sendMic(conn, micMessage{Type: "error", Error: "send a start message first"})
				continue
			}
			if len(data)%(2*channels) != 0 {
				s.sendMic(conn, micMessage{Type: "error", Error: "frames must be whole 16-bit samples"})
				continue
			}
			if err := sess.AppendPCM(data, sampleRate, channels, int(s.maxUpload)); err != nil {
				s.logger.Warn("Microphone buffer full", "session", sess.ID, "bytes", sess.BufferedBytes())
				s.sendMic(conn, micMessage{
					Type:  "error",
					Error: fmt.Sprintf("recording limit of %d MB reached, transcribe or clear to continue", s.maxUpload>>20),
					Bytes: sess.BufferedBytes(),
				})
				continue
			}
			metrics.MicBytesTotal.Add(float64(len(data)))
			s.sendMic(conn, micMessage{Type: "buffered", Bytes: sess.BufferedBytes()})
		}
	}
}

func (s *Server) sendMic(conn *websocket.Conn, msg micMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		s.logger.Debug("WebSocket write error", "error", err)
	}
}
