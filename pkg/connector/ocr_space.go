package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

var (
	ErrCircuitOpen = errors.New("ocr: circuit open")
	ErrProcessing  = errors.New("ocr: processing failed")
)

type OCRResult struct {
	ParsedResults []struct {
		TextOverlay struct {
			Lines []struct {
				LineText string `json:"LineText"`
			} `json:"Lines"`
			HasOverlay bool `json:"HasOverlay"`
		} `json:"TextOverlay"`
		FileParseExitCode int    `json:"FileParseExitCode"`
		ParsedText        string `json:"ParsedText"`
		ErrorMessage      string `json:"ErrorMessage"`
		ErrorDetails      string `json:"ErrorDetails"`
	} `json:"ParsedResults"`
	OCRExitCode                  int         `json:"OCRExitCode"`
	IsErroredOnProcessing        bool        `json:"IsErroredOnProcessing"`
	ErrorMessage                 interface{} `json:"ErrorMessage"`
	ProcessingTimeInMilliseconds string      `json:"ProcessingTimeInMilliseconds"`
}

// Text joins the parsed text of every page into one line.
func (r *OCRResult) Text() string {
	parts := make([]string, 0, len(r.ParsedResults))
	for _, p := range r.ParsedResults {
		if text := strings.Join(strings.Fields(p.ParsedText), " "); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

type OCROptions struct {
	APIKey   string
	Endpoint string
	Rate     float64
	Burst    int
	Timeout  time.Duration
	Logger   *slog.Logger
}

// OCRClient talks to the OCR.space parse API. Calls are rate limited and
// guarded by a circuit breaker so that an outage does not stall ingestion.
type OCRClient struct {
	rest     *resty.Client
	apiKey   string
	endpoint string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*OCRResult]
	logger   *slog.Logger
}

func NewOCRClient(rest *resty.Client, opts OCROptions) *OCRClient {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rate <= 0 {
		opts.Rate = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Timeout > 0 {
		rest.SetTimeout(opts.Timeout)
	}

	c := &OCRClient{
		rest:     rest,
		apiKey:   opts.APIKey,
		endpoint: opts.Endpoint,
		limiter:  rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst),
		logger:   opts.Logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*OCRResult](gobreaker.Settings{
		Name:        "ocr-space",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return c
}

func contentType(fileType string) string {
	switch strings.ToLower(fileType) {
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "webm":
		return "video/webm"
	}
	return "application/octet-stream"
}

// Recognize uploads one image and returns the text found on it.
func (c *OCRClient) Recognize(ctx context.Context, file io.Reader, filename, fileType string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(func() (*OCRResult, error) {
		return c.parse(ctx, file, filename, fileType)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", ErrCircuitOpen, err)
		}
		return "", err
	}
	return result.Text(), nil
}

func (c *OCRClient) parse(ctx context.Context, file io.Reader, filename, fileType string) (*OCRResult, error) {
	result := &OCRResult{}

	response, err := c.rest.R().
		SetContext(ctx).
		SetResult(result).
		SetHeader("apikey", c.apiKey).
		SetFormData(map[string]string{
			"language":          "eng",
			"isOverlayRequired": "false",
			"FileType":          ".Auto",
			"detectOrientation": "false",
			"scale":             "true",
			"OCREngine":         "2",
		}).
		SetMultipartField("file", filename, contentType(fileType), file).
		Post(c.endpoint)
	if err != nil {
		return nil, err
	}

	if response.StatusCode() >= 400 {
		return nil, fmt.Errorf("error processing ocr: status %d: %s", response.StatusCode(), string(response.Body()))
	}
	if result.IsErroredOnProcessing {
		return nil, fmt.Errorf("%w: %v", ErrProcessing, result.ErrorMessage)
	}
	return result, nil
}

// Download fetches a file, typically a sticker from the Telegram file API.
func Download(ctx context.Context, rest *resty.Client, url string) ([]byte, error) {
	response, err := rest.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, err
	}
	if response.StatusCode() >= 400 {
		return nil, fmt.Errorf("error downloading file: status %d", response.StatusCode())
	}
	return response.Body(), nil
}
