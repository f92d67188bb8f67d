package connector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/katakuxiko/assistgw/internal/model"
	"github.com/katakuxiko/assistgw/internal/util"
)

// Local talks to a local inference server with the Ollama chat API.
type Local struct {
	baseURL string
	client  *http.Client
}

// NewLocal creates a local-inference connector. The HTTP client has no
// overall timeout: streams are bounded by the caller's context.
func NewLocal(baseURL string, dialTimeout time.Duration) *Local {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if dialTimeout <= 0 {
		dialTimeout = 30 * time.Second
	}
	return &Local{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Transport: sharedTransport(dialTimeout)},
	}
}

// Коннекторы создаются на каждый запрос, а транспорт с пулом соединений общий.
var (
	transportsMu sync.Mutex
	transports   = make(map[time.Duration]*http.Transport)
)

func sharedTransport(headerTimeout time.Duration) *http.Transport {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	if t, ok := transports[headerTimeout]; ok {
		return t
	}
	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ResponseHeaderTimeout: headerTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
	transports[headerTimeout] = t
	return t
}

type localMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type localChatRequest struct {
	Model    string         `json:"model"`
	Messages []localMessage `json:"messages"`
	Stream   bool           `json:"stream"`
}

type localChatResponse struct {
	Model           string       `json:"model"`
	Message         localMessage `json:"message"`
	Done            bool         `json:"done"`
	DoneReason      string       `json:"done_reason"`
	PromptEvalCount int          `json:"prompt_eval_count"`
	EvalCount       int          `json:"eval_count"`
	Error           string       `json:"error"`
}

func (r localChatResponse) usage() *model.Usage {
	if !r.Done {
		return nil
	}
	return &model.Usage{
		PromptTokens:     r.PromptEvalCount,
		CompletionTokens: r.EvalCount,
		TotalTokens:      r.PromptEvalCount + r.EvalCount,
	}
}

func (l *Local) Complete(ctx context.Context, name string, messages []model.Message) (*Response, error) {
	resp, err := l.do(ctx, name, messages, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out localChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, newError(KindTransient, err, "decoding response: %v", err)
	}
	if out.Error != "" {
		return nil, newError(KindTransient, nil, "%s", l.redact(out.Error))
	}
	return &Response{
		Model:        out.Model,
		Content:      out.Message.Content,
		FinishReason: finishReason(out.DoneReason),
		Usage:        out.usage(),
	}, nil
}

func (l *Local) Stream(ctx context.Context, name string, messages []model.Message) (Stream, error) {
	resp, err := l.do(ctx, name, messages, true)
	if err != nil {
		return nil, err
	}
	return &localStream{body: resp.Body, scanner: bufio.NewScanner(resp.Body), owner: l}, nil
}

func (l *Local) do(ctx context.Context, name string, messages []model.Message, stream bool) (*http.Response, error) {
	reqBody := localChatRequest{Model: name, Messages: toLocalMessages(messages), Stream: stream}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, newError(KindTransient, err, "%s", l.redact(err.Error()))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		if e.Error == "" {
			e.Error = http.StatusText(resp.StatusCode)
		}
		return nil, newError(classifyStatus(resp.StatusCode), nil, "status %d: %s", resp.StatusCode, l.redact(e.Error))
	}
	return resp, nil
}

func (l *Local) redact(msg string) string {
	return util.Redact(msg, secretsOf("", l.baseURL)...)
}

type localStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	owner   *Local
	done    bool
}

func (s *localStream) Recv() (Chunk, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				if errors.Is(err, context.Canceled) {
					return Chunk{}, err
				}
				return Chunk{}, newError(KindTransient, err, "%s", s.owner.redact(err.Error()))
			}
			return Chunk{}, newError(KindTransient, io.ErrUnexpectedEOF, "stream ended without done marker")
		}
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var part localChatResponse
		if err := json.Unmarshal(line, &part); err != nil {
			continue // битые строки пропускаем
		}
		if part.Error != "" {
			return Chunk{}, newError(KindTransient, nil, "%s", s.owner.redact(part.Error))
		}
		if part.Done {
			s.done = true
			return Chunk{DeltaText: part.Message.Content, FinishReason: finishReason(part.DoneReason), Usage: part.usage()}, nil
		}
		return Chunk{DeltaText: part.Message.Content}, nil
	}
	return Chunk{}, io.EOF
}

func (s *localStream) Close() error {
	return s.body.Close()
}

func finishReason(doneReason string) string {
	switch doneReason {
	case "", "stop":
		return "stop"
	case "length":
		return "length"
	}
	return doneReason
}

// toLocalMessages flattens parts. Ollama takes raw base64 images only, so
// data URLs lose their prefix and remote URLs are dropped.
func toLocalMessages(messages []model.Message) []localMessage {
	out := make([]localMessage, 0, len(messages))
	for _, m := range messages {
		lm := localMessage{Role: m.Role, Content: m.Text()}
		for _, img := range m.Images() {
			if data, ok := localImage(img.ImageURL); ok {
				lm.Images = append(lm.Images, data)
			} else {
				util.Debugf("local connector: dropping non-inline image %q", util.TruncateRunes(img.ImageURL, 64))
			}
		}
		out = append(out, lm)
	}
	return out
}

// localImage returns the base64 payload of a data URL, or of bare base64.
func localImage(url string) (string, bool) {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		i := strings.Index(rest, ";base64,")
		if i < 0 {
			return "", false
		}
		return rest[i+len(";base64,"):], true
	}
	if strings.Contains(url, "://") || url == "" {
		return "", false
	}
	return url, true
}
