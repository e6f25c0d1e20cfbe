package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/veikko/twitch-harvester/internal/model"
)

// Ntfy sends notifications to an ntfy topic. The message body is plain text;
// metadata rides in headers per the ntfy publish protocol.
type Ntfy struct {
	baseNotifier
	url        string
	topic      string
	token      string
	priority   int
	httpClient *http.Client
}

// Send publishes the message to the configured topic.
func (n *Ntfy) Send(ctx context.Context, _ model.Event, title, message string) error {
	endpoint := strings.TrimRight(n.url, "/") + "/" + n.topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("ntfy: create request: %w", err)
	}
	req.Header.Set("Title", title)
	if n.priority > 0 {
		req.Header.Set("Priority", strconv.Itoa(n.priority))
	}
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ntfy: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("ntfy: unexpected status %d", resp.StatusCode)
	}

	return nil
}
