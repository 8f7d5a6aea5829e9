package genai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"veobatch/internal/domain"
	"veobatch/internal/infra"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	syntheticScheme = "synthetic://"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
	// SyntheticPolls is the number of unfinished polls a synthetic operation
	// reports before completing. Only used without an API key.
	SyntheticPolls int
}

// Client talks to the Veo long-running video endpoints of the Gemini API.
// Without an API key it runs synthetic operations that complete after a
// fixed number of polls and download placeholder bytes, which keeps the batch
// pipeline exercisable in local and CI environments.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger

	syntheticPolls int
	mu             sync.Mutex
	synthetic      map[string]*syntheticOperation
	syntheticSeq   uint64
}

// InlineImage is a conditioning image sent with the request body.
type InlineImage struct {
	Data []byte
	MIME string
}

// VideoRequest represents the information required to start a video operation.
type VideoRequest struct {
	Prompt      string
	Image       *InlineImage
	Model       string
	AspectRatio string
}

// Operation is the observed state of a long-running video operation.
type Operation struct {
	Name     string
	Done     bool
	VideoURI string
	// Error carries the remote failure or content filter reason when the
	// operation finished without a video.
	Error string
}

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.StatusCode)
	}
	return fmt.Sprintf("gemini status %d: %s", e.StatusCode, e.Message)
}

// Quota reports whether the response signals an exhausted quota.
func (e *APIError) Quota() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED" {
		return true
	}
	return isQuotaMessage(e.Message)
}

// Is lets callers match quota failures against domain.ErrQuotaExceeded.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrQuotaExceeded && e.Quota()
}

type veoInstance struct {
	Prompt string    `json:"prompt"`
	Image  *veoImage `json:"image,omitempty"`
}

type veoImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

type veoParameters struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	SampleCount int    `json:"sampleCount,omitempty"`
}

type veoPredictRequest struct {
	Instances  []veoInstance `json:"instances"`
	Parameters veoParameters `json:"parameters"`
}

type operationStatus struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

type operationResponse struct {
	Name     string           `json:"name"`
	Done     bool             `json:"done"`
	Error    *operationStatus `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
			RAIMediaFilteredReasons []string `json:"raiMediaFilteredReasons,omitempty"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

type geminiErrorResponse struct {
	Error operationStatus `json:"error"`
}

// maxSyntheticOperations bounds the operations a synthetic client tracks;
// the oldest is evicted when a submit would exceed it.
const maxSyntheticOperations = 256

type syntheticOperation struct {
	seed    string
	prompt  string
	polls   int
	seq     uint64
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := opts.Model
	if model == "" {
		model = domain.DefaultVideoModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	polls := opts.SyntheticPolls
	if polls < 0 {
		polls = 0
	}

	return &Client{
		apiKey:         strings.TrimSpace(opts.APIKey),
		baseURL:        baseURL,
		model:          model,
		httpClient:     client,
		logger:         logger,
		syntheticPolls: polls,
		synthetic:      make(map[string]*syntheticOperation),
	}, nil
}

// Model returns the default Veo model identifier.
func (c *Client) Model() string {
	return c.model
}

// Synthetic reports whether the client runs without a real API key.
func (c *Client) Synthetic() bool {
	return c.apiKey == ""
}

// SubmitVideo starts a video operation and returns its name.
func (c *Client) SubmitVideo(ctx context.Context, req VideoRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	if c.Synthetic() {
		return c.submitSynthetic(model, req), nil
	}

	instance := veoInstance{Prompt: req.Prompt}
	if req.Image != nil && len(req.Image.Data) > 0 {
		instance.Image = &veoImage{
			BytesBase64Encoded: base64.StdEncoding.EncodeToString(req.Image.Data),
			MimeType:           req.Image.MIME,
		}
	}
	payload := veoPredictRequest{
		Instances:  []veoInstance{instance},
		Parameters: veoParameters{AspectRatio: req.AspectRatio, SampleCount: 1},
	}

	var out operationResponse
	path := fmt.Sprintf("/models/%s:predictLongRunning", url.PathEscape(model))
	if err := c.invoke(ctx, http.MethodPost, path, payload, &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", errors.New("gemini returned an operation without a name")
	}

	c.logger.Debug().
		Str("model", model).
		Str("operation", out.Name).
		Bool("image", instance.Image != nil).
		Msg("genai: submitted video operation")
	return out.Name, nil
}

// GetOperation fetches the current state of a video operation.
func (c *Client) GetOperation(ctx context.Context, name string) (*Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Synthetic() {
		return c.pollSynthetic(name)
	}

	var out operationResponse
	if err := c.invoke(ctx, http.MethodGet, "/"+strings.TrimLeft(name, "/"), nil, &out); err != nil {
		return nil, err
	}

	op := &Operation{Name: name, Done: out.Done}
	if out.Error != nil && out.Error.Message != "" {
		op.Done = true
		op.Error = out.Error.Message
		if isQuotaMessage(out.Error.Message) || out.Error.Status == "RESOURCE_EXHAUSTED" {
			return nil, &APIError{StatusCode: out.Error.Code, Status: out.Error.Status, Message: out.Error.Message}
		}
		return op, nil
	}
	if !out.Done || out.Response == nil {
		return op, nil
	}
	resp := out.Response.GenerateVideoResponse
	for _, sample := range resp.GeneratedSamples {
		if uri := strings.TrimSpace(sample.Video.URI); uri != "" {
			op.VideoURI = uri
			return op, nil
		}
	}
	if len(resp.RAIMediaFilteredReasons) > 0 {
		op.Error = strings.Join(resp.RAIMediaFilteredReasons, "; ")
	}
	return op, nil
}

// Download fetches the bytes behind a video URI returned by GetOperation.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if strings.HasPrefix(uri, syntheticScheme) {
		return c.downloadSynthetic(uri)
	}
	return c.downloadFile(ctx, uri)
}

func (c *Client) invoke(ctx context.Context, method, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	req.URL.RawQuery = q.Encode()
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var parsed geminiErrorResponse
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Status = parsed.Error.Status
		apiErr.Message = parsed.Error.Message
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	return apiErr
}

func (c *Client) downloadFile(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) submitSynthetic(model string, req VideoRequest) string {
	var imageDigest string
	if req.Image != nil {
		sum := sha256.Sum256(req.Image.Data)
		imageDigest = hex.EncodeToString(sum[:8])
	}
	c.mu.Lock()
	c.syntheticSeq++
	seq := c.syntheticSeq
	seed := operationSeed(model, req.Prompt, req.AspectRatio, imageDigest, time.Now().UnixNano(), seq)
	name := fmt.Sprintf("models/%s/operations/synthetic-%s", url.PathEscape(model), seed)
	if len(c.synthetic) >= maxSyntheticOperations {
		c.evictOldestSyntheticLocked()
	}
	c.synthetic[name] = &syntheticOperation{seed: seed, prompt: req.Prompt, seq: seq}
	c.mu.Unlock()

	c.logger.Debug().
		Str("model", model).
		Str("operation", name).
		Msg("genai: started synthetic video operation")
	return name
}

func (c *Client) pollSynthetic(name string) (*Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	op, ok := c.synthetic[name]
	if !ok {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "operation " + name + " not found"}
	}
	op.polls++
	if op.polls <= c.syntheticPolls {
		return &Operation{Name: name}, nil
	}
	return &Operation{Name: name, Done: true, VideoURI: syntheticScheme + op.seed}, nil
}

func (c *Client) evictOldestSyntheticLocked() {
	var (
		oldest string
		seq    uint64
	)
	for name, op := range c.synthetic {
		if oldest == "" || op.seq < seq {
			oldest, seq = name, op.seq
		}
	}
	delete(c.synthetic, oldest)
}

// downloadSynthetic renders the video and forgets the operation; each
// synthetic video can be fetched once.
func (c *Client) downloadSynthetic(uri string) ([]byte, string, error) {
	seed := strings.TrimPrefix(uri, syntheticScheme)
	c.mu.Lock()
	var (
		prompt string
		found  bool
	)
	for name, op := range c.synthetic {
		if op.seed == seed {
			prompt, found = op.prompt, true
			delete(c.synthetic, name)
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return nil, "", fmt.Errorf("download file: unknown synthetic video %s", seed)
	}
	return renderSyntheticVideo(seed, prompt), "video/mp4", nil
}

func isQuotaMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "quota") || strings.Contains(msg, "resource_exhausted") || strings.Contains(msg, "rate limit")
}

func renderSyntheticVideo(seed, prompt string) []byte {
	lines := []string{
		"Synthetic Veo video placeholder",
		fmt.Sprintf("Seed: %s", seed),
		fmt.Sprintf("Prompt: %s", strings.TrimSpace(prompt)),
		"",
		"Configure GEMINI_API_KEY to render real videos.",
	}
	return []byte(strings.Join(lines, "\n"))
}

// operationSeed hashes the request with its submit time into a short id.
func operationSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
