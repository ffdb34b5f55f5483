package providers

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/jurni-app/planner/core/protocol"
	"github.com/jurni-app/planner/core/response"
)

const maxFrameSize = 1 << 20

// HTTPProvider streams turns from a backend speaking newline-delimited JSON
// frames over a POST response body.
type HTTPProvider struct {
	*BaseProvider
	cfg    Config
	client *http.Client
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.client = c
	}
}

// NewHTTPProvider creates an HTTPProvider from configuration.
func NewHTTPProvider(cfg *Config, opts ...HTTPOption) (*HTTPProvider, error) {
	merged := DefaultConfig()
	merged.Merge(cfg)
	if merged.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base_url is required", merged.Name)
	}

	p := &HTTPProvider{
		BaseProvider: NewBaseProvider(merged.Name, strings.TrimRight(merged.BaseURL, "/")),
		cfg:          merged,
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: merged.ConnectTimeout,
			},
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	body, err := p.Marshal(NewTurnData(req, p.cfg.Options))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL()+p.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, classify(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		detail := fmt.Sprintf("%s: status %d: %s", p.Name(), resp.StatusCode, strings.TrimSpace(string(msg)))
		switch {
		case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w: %s", ErrTimeout, detail)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, detail)
		default:
			return nil, fmt.Errorf("%w: %s", ErrRejected, detail)
		}
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &httpStream{body: resp.Body, scanner: scanner, name: p.Name()}, nil
}

type httpStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	name    string
	done    bool
	once    sync.Once
}

func (s *httpStream) Recv(ctx context.Context) (protocol.Chunk, error) {
	if s.done {
		return protocol.Chunk{}, io.EOF
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		chunk, err := response.ParseFrame(line)
		if err != nil {
			s.done = true
			return protocol.Chunk{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, s.name, err)
		}
		if chunk.IsTerminal() {
			s.done = true
		}
		return chunk, nil
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return protocol.Chunk{}, classify(ctx, err)
	}
	return protocol.Chunk{}, fmt.Errorf("%w: %s: stream ended without a terminal frame", ErrUnavailable, s.name)
}

func (s *httpStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.body.Close()
	})
	return err
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
