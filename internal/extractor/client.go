// Package extractor talks to the external bill and voice analyzer and
// turns its free-text answer into validated expense candidates.
package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"rupee/internal/cache"
	"rupee/internal/core"
	"rupee/internal/log"
	"rupee/internal/middleware/ratelimit"
)

// MaxImageBytes is the largest upload the analyzer accepts.
const MaxImageBytes = 10 << 20

var (
	ErrRateLimited = errors.New("too many extraction requests, try again in a minute")
	ErrEmptyInput  = errors.New("nothing to analyze")
	ErrTooLarge    = errors.New("input too large")
)

type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerMinute int
	CacheSize     int
	CacheTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:       60 * time.Second,
		RatePerMinute: 10,
		CacheSize:     64,
		CacheTTL:      time.Hour,
	}
}

type Client struct {
	baseURL string
	http    *http.Client
	results *cache.LRUCache[Parsed]
	limiter *ratelimit.Limiter
	logger  *log.Logger
	now     func() time.Time
}

func New(cfg Config, logger *log.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = def.RatePerMinute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		results: cache.NewLRUCache[Parsed](cfg.CacheSize, cfg.CacheTTL),
		limiter: ratelimit.NewLimiter(ratelimit.PerMinute(cfg.RatePerMinute)),
		logger:  logger.WithComponent(log.ComponentExtractor),
		now:     time.Now,
	}
}

// Results exposes the result cache so it can be swept periodically.
func (c *Client) Results() cache.Cleaner {
	return c.results
}

func (c *Client) Close() {
	c.limiter.Stop()
}

// AnalyzeImage sends a bill photo to the analyzer. Identical uploads are
// answered from the cache without counting against the rate limit.
func (c *Client) AnalyzeImage(ctx context.Context, principalID, filename, contentType string, data []byte) (Parsed, error) {
	if len(data) == 0 {
		return Parsed{}, ErrEmptyInput
	}
	if len(data) > MaxImageBytes {
		return Parsed{}, fmt.Errorf("%w: %s, max %s", ErrTooLarge,
			humanize.IBytes(uint64(len(data))), humanize.IBytes(MaxImageBytes))
	}
	key := cacheKey("image", data)
	return c.analyze(ctx, principalID, key, func() (*http.Request, error) {
		return imageRequest(ctx, c.baseURL+"/analyze", filename, contentType, data)
	})
}

// AnalyzeTranscript sends a voice transcript to the analyzer.
func (c *Client) AnalyzeTranscript(ctx context.Context, principalID, transcript string) (Parsed, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return Parsed{}, ErrEmptyInput
	}
	key := cacheKey("voice", []byte(transcript))
	return c.analyze(ctx, principalID, key, func() (*http.Request, error) {
		body, err := json.Marshal(map[string]string{"transcript": transcript})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/voice", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
}

// ParseText validates JSON pasted by the user. It never calls the
// analyzer.
func (c *Client) ParseText(text string) (Parsed, error) {
	return Parse(text, core.DateOf(c.now()))
}

func (c *Client) analyze(ctx context.Context, principalID, key string, build func() (*http.Request, error)) (Parsed, error) {
	if cached, ok := c.results.Get(key); ok {
		c.logger.DebugContext(ctx, "Extraction served from cache", log.FieldPrincipalID, principalID)
		return cached, nil
	}
	if !c.limiter.Allow(principalID) {
		return Parsed{}, ErrRateLimited
	}

	start := time.Now()
	req, err := build()
	if err != nil {
		return Parsed{}, fmt.Errorf("build analyzer request: %w", err)
	}
	text, err := c.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Parsed{}, ctx.Err()
		}
		c.logger.WarnContext(ctx, "Analyzer call failed",
			log.FieldPrincipalID, principalID,
			log.FieldError, err,
			log.FieldOperation, log.OpExtract)
		return Parsed{}, err
	}

	parsed, err := Parse(text, core.DateOf(c.now()))
	if err != nil {
		return Parsed{}, err
	}
	c.results.Set(key, parsed)

	c.logger.InfoContext(ctx, "Extraction completed",
		log.FieldPrincipalID, principalID,
		"candidates", len(parsed.Candidates),
		"rejected", len(parsed.Rejected),
		log.FieldDuration, time.Since(start).Milliseconds())
	return parsed, nil
}

type analyzerResponse struct {
	Analysis string `json:"analysis"`
	Error    string `json:"error"`
}

// do sends the request and returns the analysis text. Transport failures
// and 5xx answers are unavailable, other refusals are rejected.
func (c *Client) do(req *http.Request) (string, error) {
	const op = "extractor.analyze"
	resp, err := c.http.Do(req)
	if err != nil {
		return "", core.Unavailable(op, err)
	}
	defer resp.Body.Close()

	var body analyzerResponse
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", core.Unavailable(op, err)
	}
	_ = json.Unmarshal(raw, &body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode >= 500:
		return "", core.Unavailable(op, fmt.Errorf("status %d: %s", resp.StatusCode, body.Error))
	case resp.StatusCode >= 400:
		return "", core.Rejected(op, fmt.Errorf("status %d: %s", resp.StatusCode, body.Error))
	}
	if body.Error != "" {
		// Structured refusals sometimes come back as 200 with an error.
		return `{"error":` + quote(body.Error) + `}`, nil
	}
	return body.Analysis, nil
}

func imageRequest(ctx context.Context, url, filename, contentType string, data []byte) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if filename == "" {
		filename = "bill"
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func cacheKey(kind string, data []byte) string {
	sum := sha256.Sum256(data)
	return kind + ":" + hex.EncodeToString(sum[:])
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
