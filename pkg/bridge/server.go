// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/spiadc/pkg/simhost"
	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// Server answers bridge requests against one simulated device
type Server struct {
	dev    *simhost.Device
	logger *log.Logger

	// Username and Password enable HTTP Basic auth on ServeHTTP when both are set
	Username string
	Password string

	upgrader websocket.Upgrader

	requests atomic.Uint64
	rejected atomic.Uint64
	clients  atomic.Int64
}

// NewServer creates a server for dev. A nil logger discards diagnostics.
func NewServer(dev *simhost.Device, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Server{
		dev:    dev,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Requests returns the number of requests handled and rejected
func (s *Server) Requests() (handled, rejected uint64) {
	return s.requests.Load(), s.rejected.Load()
}

// Clients returns the number of connected stream clients
func (s *Server) Clients() int64 {
	return s.clients.Load()
}

// Handle executes one request and returns its response
func (s *Server) Handle(req *Message) *Message {
	s.requests.Add(1)
	resp := s.handle(req)
	if resp.Type == MsgError {
		s.rejected.Add(1)
		s.logger.Printf("bridge: %s rejected: %s", TypeName(req.Type), ParseError(resp).Message)
	}
	if seq, ok := req.Payload[KeySeq]; ok {
		if resp.Payload == nil {
			resp.Payload = make(map[int]interface{})
		}
		resp.Payload[KeySeq] = seq
	}
	return resp
}

func (s *Server) handle(req *Message) *Message {
	switch req.Type {
	case MsgSetPin:
		pin, ok1 := GetMapUint(req.Payload, KeyPin)
		level, ok2 := GetMapUint(req.Payload, KeyLevel)
		if !ok1 || !ok2 {
			return ErrorResponse(ErrCodeInvalidArgument, "pin and level required")
		}
		if pin > uint64(spiadc.PinReset) || level > uint64(spiadc.High) {
			return ErrorResponse(ErrCodeInvalidArgument, "invalid pin %d level %d", pin, level)
		}
		s.dev.SetPin(spiadc.Pin(pin), spiadc.Level(level))
		return AckResponse()

	case MsgTransfer:
		mosi, ok := GetMapBytes(req.Payload, KeyData)
		if !ok {
			return ErrorResponse(ErrCodeInvalidArgument, "transfer data required")
		}
		miso, err := s.dev.Exchange(mosi)
		switch {
		case errors.Is(err, simhost.ErrNoTransfer):
			return ErrorResponse(ErrCodeNoTransfer, "%v", err)
		case errors.Is(err, simhost.ErrFrameLength):
			return ErrorResponse(ErrCodeFrameLength, "%v", err)
		case err != nil:
			return ErrorResponse(ErrCodeInternal, "%v", err)
		}
		return NewMessage(MsgTransferResult, map[int]interface{}{KeyData: miso})

	case MsgSetAnalog:
		ch, ok1 := GetMapUint(req.Payload, KeyChannel)
		value, ok2 := GetMapFloat(req.Payload, KeyValue)
		if !ok1 || !ok2 {
			return ErrorResponse(ErrCodeInvalidArgument, "channel and value required")
		}
		if ch >= uint64(s.dev.Config().Channels) {
			return ErrorResponse(ErrCodeInvalidArgument, "channel %d out of range", ch)
		}
		s.dev.SetAnalog(int(ch), value)
		return AckResponse()

	case MsgAdvance:
		micros, ok := GetMapUint(req.Payload, KeyMicros)
		if !ok {
			return ErrorResponse(ErrCodeInvalidArgument, "duration required")
		}
		if micros > math.MaxInt64/uint64(time.Microsecond) {
			return ErrorResponse(ErrCodeInvalidArgument, "advance of %d us out of range", micros)
		}
		d := time.Duration(micros) * time.Microsecond
		if d > math.MaxInt64-s.dev.Now() {
			return ErrorResponse(ErrCodeInvalidArgument, "advance of %d us overflows the device clock", micros)
		}
		s.dev.Advance(d)
		return AckResponse()

	case MsgPulseReset:
		s.dev.PulseReset()
		return AckResponse()

	case MsgReadRegisters:
		return RegistersResponse(s.dev.Registers())

	case MsgGetStats:
		return StatsResponse(s.dev.Stats(), s.dev.Now())

	case MsgResetStats:
		s.dev.ResetStats()
		return AckResponse()

	case MsgPing:
		return NewMessage(MsgPong, map[int]interface{}{KeyMicros: uint64(s.dev.Now().Microseconds())})

	default:
		return ErrorResponse(ErrCodeInvalidMessage, "unsupported message type %s", TypeName(req.Type))
	}
}

// ServeStream answers framed requests on conn until it fails or ctx is done.
// Closing conn unblocks a pending read.
func (s *Server) ServeStream(ctx context.Context, conn io.ReadWriter) error {
	s.clients.Add(1)
	defer s.clients.Add(-1)

	dec := NewDecoder()
	buf := make([]byte, 256)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			req, derr := dec.DecodeByte(b)
			var resp *Message
			switch {
			case derr != nil:
				s.rejected.Add(1)
				s.logger.Printf("bridge: decode error: %v", derr)
				resp = ErrorResponse(ErrCodeInvalidMessage, "%v", derr)
			case req != nil:
				resp = s.Handle(req)
			default:
				continue
			}

			frame, ferr := EncodeFrame(resp)
			if ferr != nil {
				s.logger.Printf("bridge: encode error: %v", ferr)
				continue
			}
			if _, werr := conn.Write(frame); werr != nil {
				return werr
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves frames on it
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.Username != "" && s.Password != "" {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(s.Username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(s.Password)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="spiadc"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("bridge: upgrade failed: %v", err)
		return
	}
	ws := NewWebSocketConn(conn)
	defer ws.Close()

	s.logger.Printf("bridge: client connected from %s", r.RemoteAddr)
	if err := s.ServeStream(r.Context(), ws); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Printf("bridge: client %s: %v", r.RemoteAddr, err)
	}
	s.logger.Printf("bridge: client disconnected from %s", r.RemoteAddr)
}
