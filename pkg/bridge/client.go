// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/spiadc/pkg/spiadc"
)

// DefaultTimeout bounds one request/response round trip
const DefaultTimeout = 2 * time.Second

// ErrTimeout is returned when no response arrives in time
var ErrTimeout = errors.New("timed out waiting for response")

// Client issues bridge requests over a framed byte stream.
// Requests are serialized; one is outstanding at a time. Each request
// carries a sequence number and only the response echoing it is accepted.
type Client struct {
	conn    Conn
	Timeout time.Duration

	mu        sync.Mutex
	seq       uint64
	responses chan *Message
	done      chan struct{}
	readErr   error
	closeOnce sync.Once
}

// NewClient starts reading responses from conn
func NewClient(conn Conn) *Client {
	c := &Client{
		conn:      conn,
		Timeout:   DefaultTimeout,
		responses: make(chan *Message, 4),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)

	dec := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := c.conn.Read(buf)
		for _, b := range buf[:n] {
			m, derr := dec.DecodeByte(b)
			if derr != nil || m == nil {
				continue
			}
			select {
			case c.responses <- m:
			default:
				// Nobody is waiting; drop the stale response
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Call sends req and waits for the response. MsgError responses are
// returned as *RemoteError.
func (c *Client) Call(req *Message) (*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Discard anything left over from a timed out call
drain:
	for {
		select {
		case <-c.responses:
		default:
			break drain
		}
	}

	c.seq++
	seq := c.seq
	payload := make(map[int]interface{}, len(req.Payload)+1)
	for k, v := range req.Payload {
		payload[k] = v
	}
	payload[KeySeq] = seq

	frame, err := EncodeFrame(NewMessage(req.Type, payload))
	if err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(frame); err != nil {
		return nil, fmt.Errorf("write failed: %w", err)
	}

	timer := time.NewTimer(c.Timeout)
	defer timer.Stop()

	for {
		select {
		case resp := <-c.responses:
			if got, ok := GetMapUint(resp.Payload, KeySeq); !ok || got != seq {
				continue // Late answer to an earlier request
			}
			delete(resp.Payload, KeySeq)
			if resp.Type == MsgError {
				return nil, ParseError(resp)
			}
			return resp, nil
		case <-c.done:
			if c.readErr != nil {
				return nil, fmt.Errorf("connection lost: %w", c.readErr)
			}
			return nil, ErrConnectionClosed
		case <-timer.C:
			return nil, fmt.Errorf("%s: %w", TypeName(req.Type), ErrTimeout)
		}
	}
}

// Close closes the underlying connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}

// Done is closed when the connection stops delivering data
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) expect(req *Message, want uint8) (*Message, error) {
	resp, err := c.Call(req)
	if err != nil {
		return nil, err
	}
	if resp.Type != want {
		return nil, fmt.Errorf("unexpected response %s to %s", TypeName(resp.Type), TypeName(req.Type))
	}
	return resp, nil
}

// Ping returns the device clock
func (c *Client) Ping() (time.Duration, error) {
	resp, err := c.expect(PingRequest(), MsgPong)
	if err != nil {
		return 0, err
	}
	us, _ := GetMapUint(resp.Payload, KeyMicros)
	return time.Duration(us) * time.Microsecond, nil
}

// SetPin drives CS or RESET
func (c *Client) SetPin(pin spiadc.Pin, level spiadc.Level) error {
	_, err := c.expect(SetPinRequest(pin, level), MsgAck)
	return err
}

// Select drives CS low
func (c *Client) Select() error {
	return c.SetPin(spiadc.PinCS, spiadc.Low)
}

// Deselect drives CS high
func (c *Client) Deselect() error {
	return c.SetPin(spiadc.PinCS, spiadc.High)
}

// Transfer clocks one frame and returns the chip's output
func (c *Client) Transfer(mosi []byte) ([]byte, error) {
	resp, err := c.expect(TransferRequest(mosi), MsgTransferResult)
	if err != nil {
		return nil, err
	}
	miso, ok := GetMapBytes(resp.Payload, KeyData)
	if !ok {
		return nil, fmt.Errorf("transfer result missing data")
	}
	return miso, nil
}

// SetAnalog sets an external analog input
func (c *Client) SetAnalog(channel int, value float64) error {
	_, err := c.expect(SetAnalogRequest(channel, value), MsgAck)
	return err
}

// Advance moves the device clock forward
func (c *Client) Advance(d time.Duration) error {
	_, err := c.expect(AdvanceRequest(d), MsgAck)
	return err
}

// PulseReset asserts and releases RESET
func (c *Client) PulseReset() error {
	_, err := c.expect(PulseResetRequest(), MsgAck)
	return err
}

// ReadRegisters returns a register bank snapshot
func (c *Client) ReadRegisters() ([spiadc.NumRegisters]uint16, error) {
	resp, err := c.expect(ReadRegistersRequest(), MsgRegisters)
	if err != nil {
		return [spiadc.NumRegisters]uint16{}, err
	}
	return ParseRegisters(resp)
}

// Stats returns the chip counters and the device clock
func (c *Client) Stats() (spiadc.Statistics, time.Duration, error) {
	resp, err := c.expect(GetStatsRequest(), MsgStats)
	if err != nil {
		return spiadc.Statistics{}, 0, err
	}
	s, now := ParseStats(resp)
	return s, now, nil
}

// ResetStats zeroes the chip counters
func (c *Client) ResetStats() error {
	_, err := c.expect(ResetStatsRequest(), MsgAck)
	return err
}

// Command sends one command frame followed by a null frame and decodes the
// response that carries the command's result. The chip must be selected.
func (c *Client) Command(v spiadc.Variant, channels int, cmd, value uint16) (*spiadc.Response, error) {
	if _, err := c.Transfer(spiadc.EncodeCommand(v, channels, cmd, value)); err != nil {
		return nil, err
	}
	miso, err := c.Transfer(spiadc.EncodeCommand(v, channels, spiadc.CmdNull, 0))
	if err != nil {
		return nil, err
	}
	return spiadc.DecodeResponse(v, channels, miso)
}
