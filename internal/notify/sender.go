package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Sender delivers one notification to an agent endpoint.
type Sender interface {
	Send(ctx context.Context, endpoint string, n Notification) error
}

// HTTPSender posts the notification as JSON to the agent's delivery URL.
// Any transport error or non-2xx response is a failed delivery.
type HTTPSender struct {
	Client *http.Client
}

func NewHTTPSender() *HTTPSender {
	return &HTTPSender{Client: &http.Client{}}
}

func (h *HTTPSender) Send(ctx context.Context, endpoint string, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("delivery endpoint returned %s", resp.Status)
	}
	return nil
}
