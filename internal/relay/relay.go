// pattern: Imperative Shell

package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"dmnexplorer/internal/logging"
)

// ResponsePrefix starts every line of relayed response text.
const ResponsePrefix = "bodyResponse: "

const chunkSize = 32 * 1024

// Config addresses the validation service.
type Config struct {
	Host                string
	Port                int
	ValidatePath        string
	ValidateContentType string
	EvaluatePath        string
	EvaluateContentType string
	Timeout             time.Duration // 0 means none
}

func DefaultConfig() Config {
	return Config{
		Host:                "127.0.0.1",
		Port:                8080,
		ValidatePath:        "/jitdmn/validate",
		ValidateContentType: "application/xml",
		EvaluatePath:        "/jitdmn",
		EvaluateContentType: "application/json",
	}
}

// Sink receives the display text of one relay run.
type Sink interface {
	Begin()
	AppendLine(line string)
	Finish(err error)
}

// Client forwards decision files to the validation service. Each call
// sends exactly one request; nothing is retried.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.ScopedLogger
}

func New(cfg Config, logger *logging.ScopedLogger) *Client {
	def := DefaultConfig()
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.ValidatePath == "" {
		cfg.ValidatePath = def.ValidatePath
	}
	if cfg.ValidateContentType == "" {
		cfg.ValidateContentType = def.ValidateContentType
	}
	if cfg.EvaluatePath == "" {
		cfg.EvaluatePath = def.EvaluatePath
	}
	if cfg.EvaluateContentType == "" {
		cfg.EvaluateContentType = def.EvaluateContentType
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// BaseURL returns the scheme and address of the validation service.
func (c *Client) BaseURL() string {
	return "http://" + net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Validate reads the decision file at path and posts it verbatim to the
// validate endpoint, appending the response to sink as it arrives.
//
// Only a failure to read the file is returned. Transport errors are
// written to the sink, which then finishes errored.
func (c *Client) Validate(ctx context.Context, path string, sink Sink) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read decision file: %w", err)
	}

	c.logger.Info("validating decision file", "path", path, "bytes", len(data))
	c.send(ctx, path, c.cfg.ValidatePath, c.cfg.ValidateContentType, data, sink)
	return nil
}

// Evaluate posts the model at modelPath together with the JSON object in
// contextPath to the evaluate endpoint.
func (c *Client) Evaluate(ctx context.Context, modelPath, contextPath string, sink Sink) error {
	model, err := os.ReadFile(modelPath)
	if err != nil {
		return fmt.Errorf("read decision file: %w", err)
	}
	rawContext, err := os.ReadFile(contextPath)
	if err != nil {
		return fmt.Errorf("read context file: %w", err)
	}

	body, err := BuildEnvelope(model, rawContext)
	if err != nil {
		return fmt.Errorf("%s: %w", contextPath, err)
	}

	c.logger.Info("evaluating decision file", "path", modelPath, "context", contextPath)
	c.send(ctx, modelPath, c.cfg.EvaluatePath, c.cfg.EvaluateContentType, body, sink)
	return nil
}

func (c *Client) send(ctx context.Context, target, path, contentType string, body []byte, sink Sink) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	sink.Begin()
	err := c.do(ctx, path, contentType, body, sink)
	if err != nil {
		sink.AppendLine("error: " + err.Error())
		c.logger.Warn("relay failed", "target", target, "endpoint", path, "error", err)
	} else {
		c.logger.Debug("relay complete", "target", target, "endpoint", path)
	}
	sink.Finish(err)
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte, sink Sink) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("response received", "endpoint", path, "status", resp.StatusCode)
	return streamChunks(resp.Body, sink)
}

// streamChunks appends each chunk read from r as one prefixed line.
func streamChunks(r io.Reader, sink Sink) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			sink.AppendLine(ResponsePrefix + string(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
