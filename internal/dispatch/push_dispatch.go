package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/ride-booking/internal/events"
)

// PushDispatcher posts events to an external push-notification endpoint
// (the consumer uses it to fan events out to user devices).
type PushDispatcher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewPushDispatcher(endpoint, key string) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *PushDispatcher) Notify(userID string, ev events.Event) error {
	body := map[string]any{"user_id": userID, "event": ev}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, p.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Key != "" {
		req.Header.Set("Authorization", "Bearer "+p.Key)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint returned %d", resp.StatusCode)
	}
	return nil
}
