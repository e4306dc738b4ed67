// Package obs controls the capture application over its websocket
// remote-control protocol (obs-websocket v5). The pipeline only uses the
// narrow connect/start/stop/disconnect surface; encoding is entirely the
// recorder's business.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Protocol opcodes (obs-websocket v5).
const (
	opHello      = 0
	opIdentify   = 1
	opIdentified = 2
	opRequest    = 6
	opResponse   = 7
)

const rpcVersion = 1

// Recorder is the per-job control channel to the capture application.
// Not safe for concurrent use; the pipeline owns it for one job at a
// time.
type Recorder struct {
	host     string
	port     int
	password string
	timeout  time.Duration
	logger   *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	recording bool
	reqID     int
}

// NewRecorder creates a recorder client for the control channel at
// host:port.
func NewRecorder(host string, port int, password string, logger *slog.Logger) *Recorder {
	return &Recorder{
		host:     host,
		port:     port,
		password: password,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Connected reports whether the control channel is open.
func (r *Recorder) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// Recording reports whether this client owns an active recording.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

type message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type helloData struct {
	RPCVersion     int `json:"rpcVersion"`
	Authentication *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication"`
}

type requestData struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData"`
}

// Connect opens the control channel and completes the identify
// handshake.
func (r *Recorder) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connected {
		return nil
	}

	url := fmt.Sprintf("ws://%s:%d", r.host, r.port)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("obs: dial %s: %w", url, err)
	}

	if err := r.identify(conn); err != nil {
		conn.Close()
		return err
	}

	r.conn = conn
	r.connected = true
	r.logger.Info("connected to OBS", "host", r.host, "port", r.port)
	return nil
}

// identify performs the Hello/Identify/Identified exchange, answering
// the SHA256 challenge when the server requires authentication.
func (r *Recorder) identify(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(r.timeout))

	var hello message
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("obs: read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("obs: expected hello, got op %d", hello.Op)
	}

	var h helloData
	if err := json.Unmarshal(hello.D, &h); err != nil {
		return fmt.Errorf("obs: decode hello: %w", err)
	}

	identify := map[string]interface{}{"rpcVersion": rpcVersion}
	if h.Authentication != nil {
		if r.password == "" {
			return fmt.Errorf("obs: server requires authentication but no password is configured")
		}
		identify["authentication"] = authResponse(r.password, h.Authentication.Salt, h.Authentication.Challenge)
	}

	if err := conn.WriteJSON(message{Op: opIdentify, D: mustMarshal(identify)}); err != nil {
		return fmt.Errorf("obs: send identify: %w", err)
	}

	var identified message
	if err := conn.ReadJSON(&identified); err != nil {
		return fmt.Errorf("obs: read identified: %w", err)
	}
	if identified.Op != opIdentified {
		return fmt.Errorf("obs: identify rejected (op %d)", identified.Op)
	}

	conn.SetReadDeadline(time.Time{})
	return nil
}

// authResponse computes base64(sha256(base64(sha256(password+salt)) +
// challenge)) per the protocol spec.
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

// StartRecord asks the recorder to start capturing. If a recording is
// already active the client adopts it instead of issuing a duplicate
// start command.
func (r *Recorder) StartRecord() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return fmt.Errorf("obs: cannot start recording, not connected")
	}

	active, err := r.recordActiveLocked()
	if err != nil {
		return err
	}
	if active {
		r.logger.Warn("OBS is already recording, adopting the in-progress recording")
		r.recording = true
		return nil
	}

	if _, err := r.callLocked("StartRecord", nil); err != nil {
		return err
	}
	r.recording = true
	r.logger.Info("OBS recording started")
	return nil
}

// StopRecord asks the recorder to stop capturing. A recorder that is not
// actually recording is not an error.
func (r *Recorder) StopRecord() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return fmt.Errorf("obs: cannot stop recording, not connected")
	}

	active, err := r.recordActiveLocked()
	if err != nil {
		return err
	}
	if !active {
		r.logger.Warn("OBS was not recording")
		r.recording = false
		return nil
	}

	if _, err := r.callLocked("StopRecord", nil); err != nil {
		return err
	}
	r.recording = false
	r.logger.Info("OBS recording stopped")
	return nil
}

// Disconnect closes the control channel.
func (r *Recorder) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.connected {
		return nil
	}

	err := r.conn.Close()
	r.conn = nil
	r.connected = false
	r.recording = false
	r.logger.Info("disconnected from OBS")
	return err
}

func (r *Recorder) recordActiveLocked() (bool, error) {
	resp, err := r.callLocked("GetRecordStatus", nil)
	if err != nil {
		return false, err
	}
	var status struct {
		OutputActive bool `json:"outputActive"`
	}
	if err := json.Unmarshal(resp, &status); err != nil {
		return false, fmt.Errorf("obs: decode record status: %w", err)
	}
	return status.OutputActive, nil
}

// callLocked issues one request and waits for its response, skipping
// unrelated event messages.
func (r *Recorder) callLocked(requestType string, data interface{}) (json.RawMessage, error) {
	r.reqID++
	id := fmt.Sprintf("%s-%d", requestType, r.reqID)

	req := requestData{RequestType: requestType, RequestID: id, RequestData: data}
	if err := r.conn.WriteJSON(message{Op: opRequest, D: mustMarshal(req)}); err != nil {
		return nil, fmt.Errorf("obs: send %s: %w", requestType, err)
	}

	r.conn.SetReadDeadline(time.Now().Add(r.timeout))
	defer r.conn.SetReadDeadline(time.Time{})

	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return nil, fmt.Errorf("obs: read response to %s: %w", requestType, err)
		}
		if msg.Op != opResponse {
			continue
		}

		var resp responseData
		if err := json.Unmarshal(msg.D, &resp); err != nil {
			return nil, fmt.Errorf("obs: decode response: %w", err)
		}
		if resp.RequestID != id {
			continue
		}
		if !resp.RequestStatus.Result {
			return nil, fmt.Errorf("obs: %s failed: code %d (%s)",
				requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return resp.ResponseData, nil
	}
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
