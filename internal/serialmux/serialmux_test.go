package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// TestSerialPort implements SerialPorter for testing SerialMux operations
type TestSerialPort struct {
	readData    []byte
	readIndex   int
	writtenData bytes.Buffer
	writeErr    error
	closeErr    error
	closed      bool
	mu          sync.Mutex
}

func NewTestSerialPort(data []byte) *TestSerialPort {
	return &TestSerialPort{readData: data}
}

func (p *TestSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}
	if p.readIndex >= len(p.readData) {
		// Block until closed to simulate waiting for more data
		time.Sleep(10 * time.Millisecond)
		if p.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, p.readData[p.readIndex:])
	p.readIndex += n
	return n, nil
}

func (p *TestSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.writtenData.Write(data)
}

func (p *TestSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *TestSerialPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *TestSerialPort) WrittenData() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writtenData.Bytes()
}

// pipeSplit frames on '|' so tests can exercise non-newline framing without
// depending on a real device protocol.
func pipeSplit(data []byte, atEOF bool) (int, []byte, error) {
	if i := bytes.IndexByte(data, '|'); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func TestNewSerialMux(t *testing.T) {
	port := NewTestSerialPort(nil)
	mux := NewSerialMux(port, nil)

	if mux == nil {
		t.Fatal("NewSerialMux returned nil")
	}
	if mux.port != port {
		t.Error("SerialMux port not set correctly")
	}
	if mux.subscribers == nil {
		t.Error("SerialMux subscribers map not initialized")
	}
}

func TestSerialMux_Subscribe(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(nil), nil)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()

	if id1 == "" || id2 == "" {
		t.Error("subscription returned empty ID")
	}
	if id1 == id2 {
		t.Error("subscription IDs should be unique")
	}
	if ch1 == nil || ch2 == nil {
		t.Error("subscription returned nil channel")
	}
	if len(mux.subscribers) != 2 {
		t.Errorf("expected 2 subscribers, got %d", len(mux.subscribers))
	}
}

func TestSerialMux_Unsubscribe(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(nil), nil)

	id, ch := mux.Subscribe()
	mux.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	if len(mux.subscribers) != 0 {
		t.Errorf("expected 0 subscribers, got %d", len(mux.subscribers))
	}

	// Unsubscribing an unknown ID is a no-op
	mux.Unsubscribe("does-not-exist")
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestSerialPort(nil)
	mux := NewSerialMux(port, nil)

	if err := mux.SendCommand([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := port.WrittenData(); !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("written data = %x, want 010203", got)
	}
}

func TestSerialMux_SendCommandWriteError(t *testing.T) {
	port := NewTestSerialPort(nil)
	mux := NewSerialMux(port, nil)

	wantErr := errors.New("device unplugged")
	port.SetWriteError(wantErr)
	if err := mux.SendCommand([]byte{0x01}); !errors.Is(err, wantErr) {
		t.Errorf("SendCommand error = %v, want %v", err, wantErr)
	}
}

func TestSerialMux_MonitorFanOut(t *testing.T) {
	port := NewTestSerialPort([]byte("frame1|frame2|frame3|"))
	mux := NewSerialMux(port, pipeSplit)

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	var got []string
	for len(got) < 3 {
		select {
		case frame := <-ch:
			got = append(got, string(frame))
		case <-ctx.Done():
			t.Fatalf("timed out after %d frames", len(got))
		}
	}
	if strings.Join(got, ",") != "frame1,frame2,frame3" {
		t.Errorf("frames = %v", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Monitor returned %v, want context.Canceled", err)
	}
}

func TestSerialMux_MonitorSlowSubscriberDropped(t *testing.T) {
	port := NewTestSerialPort([]byte("a|b|c|d|e|"))
	mux := NewSerialMux(port, pipeSplit)

	// Subscribed but never read: Monitor must still drain the port.
	_, slow := mux.Subscribe()
	_ = slow

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := mux.Monitor(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Monitor returned %v, want deadline exceeded", err)
	}
}

func TestSerialMux_MonitorEOF(t *testing.T) {
	port := NewTestSerialPort([]byte("only|"))
	mux := NewSerialMux(port, pipeSplit)
	port.Close()

	if err := mux.Monitor(context.Background()); err != nil {
		t.Errorf("Monitor after close returned %v, want nil", err)
	}
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestSerialPort(nil)
	mux := NewSerialMux(port, nil)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Close")
	}
	if !port.closed {
		t.Error("underlying port should be closed")
	}
}

func TestSerialMux_DefaultSplitIsLines(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(nil), nil)
	// Spot check: the fallback splitter behaves like bufio.ScanLines.
	adv, token, err := mux.split([]byte("hello\nworld\n"), false)
	if err != nil || adv != 6 || string(token) != "hello" {
		t.Errorf("split = (%d, %q, %v)", adv, token, err)
	}
}

func TestAttachAdminRoutes_SendCommand(t *testing.T) {
	port := NewTestSerialPort(nil)
	mux := NewSerialMux(port, nil)

	handler := http.NewServeMux()
	mux.AttachAdminRoutes(handler)

	form := url.Values{"command": {"aa5501ff"}}
	req := httptest.NewRequest(http.MethodPost, "/debug/send-command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := port.WrittenData(); !bytes.Equal(got, []byte{0xAA, 0x55, 0x01, 0xFF}) {
		t.Errorf("written = %x", got)
	}
}

func TestAttachAdminRoutes_SendCommandRejectsBadHex(t *testing.T) {
	mux := NewSerialMux(NewTestSerialPort(nil), nil)
	handler := http.NewServeMux()
	mux.AttachAdminRoutes(handler)

	form := url.Values{"command": {"not-hex"}}
	req := httptest.NewRequest(http.MethodPost, "/debug/send-command", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

var _ bufio.SplitFunc = pipeSplit
