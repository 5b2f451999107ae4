// Package lumenapi binds the remote scene-description service over HTTP.
package lumenapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"lumen/internal/domain"
	"lumen/internal/metrics"
	"lumen/internal/ports"
)

const (
	pathCapture       = "/api/capture"
	pathQuestion      = "/api/question"
	pathQuestionAudio = "/api/question-audio"
	pathHistory       = "/api/history"
	pathTTS           = "/api/tts"

	audioField    = "audio"
	audioFilename = "question.wav"

	// maxErrorBody caps how much of a failed response is kept for logging.
	maxErrorBody = 4096
)

// Config controls the HTTP binding.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ports.RemoteService against the lumen HTTP API.
type Client struct {
	base    string
	timeout time.Duration
	http    *http.Client
	player  ports.AudioPlayer
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg Config, player ports.AudioPlayer, logger zerolog.Logger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Timeout: cfg.Timeout},
		player:  player,
		logger:  logger.With().Str("component", "lumenapi").Logger(),
		metrics: m,
	}
}

type captureResponse struct {
	Description string `json:"description"`
	ImageB64    string `json:"image_b64"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type questionRequest struct {
	Question string `json:"question"`
}

type ttsRequest struct {
	Text string `json:"text"`
}

type historyResponse struct {
	History []historyItem `json:"history"`
}

type historyItem struct {
	Description string `json:"description"`
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	ImageB64    string `json:"image_b64"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CaptureScene asks the device to take a picture and describe it.
func (c *Client) CaptureScene(ctx context.Context) (scene domain.Scene, err error) {
	defer c.observe("capture", time.Now(), &err)

	var out captureResponse
	if err := c.doJSON(ctx, http.MethodPost, pathCapture, nil, &out); err != nil {
		return domain.Scene{}, err
	}
	image, err := decodeImage(out.ImageB64)
	if err != nil {
		return domain.Scene{}, remoteErr("capture", err)
	}
	return domain.Scene{Description: out.Description, Image: image}, nil
}

// AnswerAudioQuestion uploads a recorded question as a multipart file and returns the answer.
func (c *Client) AnswerAudioQuestion(ctx context.Context, audio domain.AudioPayload) (answer string, err error) {
	defer c.observe("question_audio", time.Now(), &err)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, audioField, audioFilename))
	contentType := audio.ContentType
	if contentType == "" {
		contentType = domain.AudioContentType
	}
	header.Set("Content-Type", contentType)

	part, err := writer.CreatePart(header)
	if err != nil {
		return "", remoteErr("question_audio", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return "", remoteErr("question_audio", err)
	}
	if err := writer.Close(); err != nil {
		return "", remoteErr("question_audio", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathQuestionAudio, &body)
	if err != nil {
		return "", remoteErr("question_audio", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	raw, err := c.send(req)
	if err != nil {
		return "", err
	}
	var out answerResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return "", remoteErr("question_audio", fmt.Errorf("decode response: %w", err))
	}
	return out.Answer, nil
}

// AnswerTextQuestion asks a typed question about the last captured image.
func (c *Client) AnswerTextQuestion(ctx context.Context, question string) (answer string, err error) {
	defer c.observe("question_text", time.Now(), &err)

	var out answerResponse
	if err := c.doJSON(ctx, http.MethodPost, pathQuestion, questionRequest{Question: question}, &out); err != nil {
		return "", err
	}
	return out.Answer, nil
}

// FetchHistory returns the complete interaction history in the order the service keeps it.
func (c *Client) FetchHistory(ctx context.Context) (entries []domain.HistoryEntry, err error) {
	defer c.observe("history", time.Now(), &err)

	var out historyResponse
	if err := c.doJSON(ctx, http.MethodGet, pathHistory, nil, &out); err != nil {
		return nil, err
	}

	entries = make([]domain.HistoryEntry, 0, len(out.History))
	for i, item := range out.History {
		image, err := decodeImage(item.ImageB64)
		if err != nil {
			// one corrupt thumbnail should not hide the rest of the history
			c.logger.Warn().Err(err).Int("index", i).Msg("history image dropped")
			image = nil
		}
		entries = append(entries, domain.HistoryEntry{
			Description: item.Description,
			Question:    item.Question,
			Answer:      item.Answer,
			ImageData:   image,
		})
	}
	return entries, nil
}

// Speak synthesizes text remotely and plays the returned clip locally.
// Only the synthesis request is bounded by the client timeout; playback
// runs to completion unless ctx is cancelled.
func (c *Client) Speak(ctx context.Context, text string) error {
	clip, err := c.synthesize(ctx, text)
	if err != nil {
		return err
	}
	if c.player == nil {
		return nil
	}
	if err := c.player.Play(ctx, clip); err != nil {
		return fmt.Errorf("play synthesized speech: %w", err)
	}
	return nil
}

func (c *Client) synthesize(ctx context.Context, text string) (clip []byte, err error) {
	defer c.observe("tts", time.Now(), &err)

	payload, err := sonic.Marshal(ttsRequest{Text: text})
	if err != nil {
		return nil, remoteErr("tts", err)
	}
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := c.newRequest(rctx, http.MethodPost, pathTTS, bytes.NewReader(payload))
	if err != nil {
		return nil, remoteErr("tts", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := sonic.Marshal(in)
		if err != nil {
			return remoteErr(path, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return remoteErr(path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.send(req)
	if err != nil {
		return err
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return remoteErr(path, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequestWithContext(ctx, method, c.base+path, body)
}

// send performs one request without retry and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, error) {
	path := req.URL.Path

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, remoteErr(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		reason := strings.TrimSpace(string(raw))
		var decoded errorResponse
		if sonic.Unmarshal(raw, &decoded) == nil && decoded.Error != "" {
			reason = decoded.Error
		}
		c.logger.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("reason", reason).
			Msg("remote service rejected request")
		return nil, remoteErr(path, fmt.Errorf("http status %d: %s", resp.StatusCode, reason))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, remoteErr(path, fmt.Errorf("read response: %w", err))
	}
	return raw, nil
}

func (c *Client) observe(operation string, started time.Time, err *error) {
	c.metrics.ObserveRemote(operation, started, *err)
}

func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	// tolerate data URLs
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return image, nil
}

func remoteErr(op string, err error) error {
	if errors.Is(err, domain.ErrRemoteUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrRemoteUnavailable, op, err)
}

var _ ports.RemoteService = (*Client)(nil)
