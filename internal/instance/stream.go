// pattern: Imperative Shell
package instance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/coder/websocket"
)

// StreamOutput follows a surface over the instance's websocket endpoint,
// calling fn for every line, existing ones first. It returns nil when ctx
// is cancelled or the instance ends the stream normally.
func (c *Client) StreamOutput(ctx context.Context, name string, fn func(line string)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/api/output/stream?name=" + url.QueryEscape(name)

	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dmnexplorer returned status %d for stream of %s", resp.StatusCode, name)
		}
		return fmt.Errorf("failed to connect to dmnexplorer: %w", err)
	}
	defer func() { _ = conn.CloseNow() }()

	conn.SetReadLimit(-1)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("output stream: %w", err)
		}
		fn(string(data))
	}
}
