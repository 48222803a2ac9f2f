package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/fpaludi/SatelliteTraker/internal/metrics"
)

const writeTimeout = 30 * time.Second

// client writes SSE frames to one connection.
type client struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ip     string
	logger *slog.Logger

	messagesSent int
	bytesSent    int
}

func newClient(w http.ResponseWriter, ip string, logger *slog.Logger) *client {
	return &client{
		w:      w,
		rc:     http.NewResponseController(w),
		ip:     ip,
		logger: logger,
	}
}

// sendJSON writes v as a "data:" frame.
func (c *client) sendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	n, err := c.write("data: " + string(data) + "\n\n")
	if err != nil {
		return err
	}
	c.messagesSent++
	metrics.IncStreamMessages()
	metrics.AddStreamBytes(n)
	return nil
}

// sendRetry tells the browser how long to wait before reconnecting.
func (c *client) sendRetry(d time.Duration) error {
	n, err := c.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
	metrics.AddStreamBytes(n)
	return err
}

// sendKeepalive writes an SSE comment line.
func (c *client) sendKeepalive() error {
	n, err := c.write(":\n\n")
	metrics.AddStreamBytes(n)
	return err
}

func (c *client) write(frame string) (int, error) {
	// Long-lived connection: push the deadline forward on every write.
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.logger.Debug("could not set write deadline", "error", err)
	}
	n, err := fmt.Fprint(c.w, frame)
	c.bytesSent += n
	if err != nil {
		return n, fmt.Errorf("write: %w", err)
	}
	if err := c.rc.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	return n, nil
}
