package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// WatchCart follows the server's cart-changed stream and republishes each
// notification to local subscribers. It blocks until ctx is done or the
// stream ends.
func (c *Client) WatchCart(ctx context.Context) error {
	s := c.Session()
	if s == nil || s.Token == "" {
		return ErrAuthRequired
	}

	resp, err := c.stream.R().
		SetContext(ctx).
		SetAuthToken(s.Token).
		SetHeader("Accept", "text/event-stream").
		SetDoNotParseResponse(true).
		Get("/cart/events")
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return transportError(http.MethodGet, "/cart/events", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return &APIError{Status: resp.StatusCode(), Code: codeForStatus(resp.StatusCode()), Message: "cart stream refused"}
	}

	scanner := bufio.NewScanner(body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			event = ""
		case strings.HasPrefix(line, ":"):
			// comment or heartbeat
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && event == "cart-changed":
			var ev CartChanged
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
				log.Warn().Err(err).Msg("client: malformed cart event")
				continue
			}
			c.hub.PublishCartChanged(ctx, ev.UserID)
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("client: read cart stream: %w", err)
	}
	return nil
}
