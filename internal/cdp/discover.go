package cdp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Version is the browser's /json/version document.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	UserAgent            string `json:"User-Agent"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Discover asks the DevTools HTTP endpoint (for example
// http://127.0.0.1:9222) for the browser-level websocket URL. A ws:// or
// wss:// address is returned unchanged.
func Discover(ctx context.Context, endpoint string) (Version, error) {
	if strings.HasPrefix(endpoint, "ws://") || strings.HasPrefix(endpoint, "wss://") {
		return Version{WebSocketDebuggerURL: endpoint}, nil
	}

	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(250*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second)

	var v Version
	resp, err := client.R().
		SetContext(ctx).
		SetResult(&v).
		Get(strings.TrimRight(endpoint, "/") + "/json/version")
	if err != nil {
		return Version{}, fmt.Errorf("query devtools endpoint: %w", err)
	}
	if resp.IsError() {
		return Version{}, fmt.Errorf("query devtools endpoint: unexpected status %s", resp.Status())
	}
	if v.WebSocketDebuggerURL == "" {
		return Version{}, fmt.Errorf("devtools endpoint %s reported no websocket URL", endpoint)
	}
	return v, nil
}
