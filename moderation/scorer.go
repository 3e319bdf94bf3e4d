// Copyright 2026 The AI Moderator Authors
// SPDX-License-Identifier: Apache-2.0

package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/williamkray/maubot-aimoderator/lib/config"
	"github.com/williamkray/maubot-aimoderator/lib/netutil"
	"github.com/williamkray/maubot-aimoderator/messaging"
)

// scoringPrompt instructs the classifier to return the strict JSON
// shape RiskAssessment parses. The wording is part of the contract:
// models drift into prose without the explicit format demand.
const scoringPrompt = `You are a content moderation engine. It is critical that you consistently respond with valid JSON.
assess the included message content and identify whether it is a potential scam or spam message,
or is otherwise inappropriate content. rate the message based
on offensive or vitriolic content, inclusion of questionable links, etc. return ONLY the following json format:

{
  "categories": {
      "sexual": int,
      "harassment": int,
      "self-harm": int,
      "violence": int,
      "hate": int,
      "scam": int
    },
  "max": int,
  "analysis": string,
  "comment": string
}

all integers are on a scale between 0-10.
"max" should be equal to the value of the highest-rated category. the "comment" string should be concise summaries with
score included, such as "likely scam (8)" or "offensive content (9)". "analysis" should be one or two brief sentences
that explain how the score was reached. It is imperative that you return a response in this exact format for the
programmatic content moderation system to work.`

// refusalPhrases mark a classifier response that declined to analyze
// the content. A refusal on moderation input is itself a strong signal
// the content is unsafe, so it maps to the maximum score.
var refusalPhrases = []string{
	"can't assist",
	"unable to assist",
	"can't help",
	"unable to help",
	"i'm unable to",
	"i can't",
}

const (
	// maxScoreAttempts bounds the parse-failure retry loop.
	maxScoreAttempts = 3

	// defaultAttemptTimeout caps each classifier call so one slow
	// request cannot stall the pipeline for a message indefinitely.
	defaultAttemptTimeout = 15 * time.Second
)

// RiskAssessment is the classifier's verdict on one message.
type RiskAssessment struct {
	// Categories maps category names to 0-10 risk scores.
	Categories map[string]int `json:"categories"`
	// Max is the highest category score.
	Max int `json:"max"`
	// Analysis explains how the score was reached.
	Analysis string `json:"analysis"`
	// Comment is a short summary suitable for a redaction reason.
	Comment string `json:"comment"`
}

// OpenAI-compatible chat-completions wire shapes. Content is
// polymorphic: a plain string for text, an array of typed parts for
// multimodal input.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type contentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLPart `json:"image_url,omitempty"`
}

type imageURLPart struct {
	URL string `json:"url"`
}

// ScorerConfig configures a ContentScorer.
type ScorerConfig struct {
	// Config supplies the endpoint, model, key, and media policy. Read
	// live per call.
	Config *config.Config
	// Transport downloads media attachments for multimodal scoring.
	Transport Transport
	// HTTPClient is used for classifier calls. If nil, http.DefaultClient.
	HTTPClient *http.Client
	// AttemptTimeout is the per-attempt classifier deadline. If zero,
	// 15 seconds.
	AttemptTimeout time.Duration
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// ContentScorer calls the configured classifier endpoint and parses its
// verdict. Safe for concurrent use.
type ContentScorer struct {
	cfg            *config.Config
	transport      Transport
	httpClient     *http.Client
	attemptTimeout time.Duration
	logger         *slog.Logger
}

// NewContentScorer creates a ContentScorer.
func NewContentScorer(scorerConfig ScorerConfig) (*ContentScorer, error) {
	if scorerConfig.Config == nil {
		return nil, fmt.Errorf("moderation: scorer requires a config")
	}
	if scorerConfig.Transport == nil {
		return nil, fmt.Errorf("moderation: scorer requires a transport")
	}
	httpClient := scorerConfig.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	attemptTimeout := scorerConfig.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = defaultAttemptTimeout
	}
	logger := scorerConfig.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentScorer{
		cfg:            scorerConfig.Config,
		transport:      scorerConfig.Transport,
		httpClient:     httpClient,
		attemptTimeout: attemptTimeout,
		logger:         logger,
	}, nil
}

// Score asks the classifier to assess one message.
//
// A (nil, nil) return means scoring was skipped or softly failed and
// the caller must take no action: media with file moderation disabled,
// media that could not be downloaded, or a classifier that never
// produced parseable output within the retry budget. A non-nil error
// means the classifier itself failed hard (non-2xx, transport error,
// or timeout) and is wrapped with ErrScoringUnavailable.
func (s *ContentScorer) Score(ctx context.Context, message *messaging.MessageEvent) (*RiskAssessment, error) {
	if message.IsMedia() && !s.cfg.ModerateFiles {
		return nil, nil
	}

	content, ok := s.buildContent(ctx, message)
	if !ok {
		return nil, nil
	}

	payload, err := json.Marshal(chatRequest{
		Model: s.cfg.APIModel,
		Messages: []chatMessage{
			{Role: "system", Content: scoringPrompt},
			{Role: "user", Content: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("moderation: encoding classifier request: %w", err)
	}

	for attempt := 1; attempt <= maxScoreAttempts; attempt++ {
		verdict, err := s.callClassifier(ctx, payload)
		if err != nil {
			// Hard failures are terminal: retrying a down or refusing
			// endpoint only multiplies load.
			return nil, err
		}

		var assessment RiskAssessment
		if err := json.Unmarshal([]byte(verdict), &assessment); err == nil {
			scorerCalls.WithLabelValues(scoreResultOK).Inc()
			return &assessment, nil
		}

		if isRefusal(verdict) {
			scorerCalls.WithLabelValues(scoreResultRefusal).Inc()
			s.logger.Debug("classifier declined to analyze, treating as high risk",
				"event_id", message.EventID,
			)
			return &RiskAssessment{
				Categories: map[string]int{"unsafe": 10},
				Max:        10,
				Analysis:   verdict,
				Comment:    "LLM indicated content blocking",
			}, nil
		}

		scorerCalls.WithLabelValues(scoreResultParseError).Inc()
		s.logger.Warn("classifier returned unparseable verdict",
			"event_id", message.EventID,
			"attempt", attempt,
		)
	}

	s.logger.Error("classifier never produced valid JSON, abandoning event",
		"event_id", message.EventID,
		"attempts", maxScoreAttempts,
	)
	return nil, nil
}

// buildContent assembles the user message for the classifier: plain
// text for text messages, multimodal parts with an inline data URI for
// media. Returns ok=false when the media bytes cannot be fetched.
func (s *ContentScorer) buildContent(ctx context.Context, message *messaging.MessageEvent) (any, bool) {
	switch message.MsgType {
	case "m.image", "m.video", "m.sticker":
		if message.Media == nil {
			return message.Body, true
		}
		data, err := s.transport.DownloadMedia(ctx, message.Media.URL)
		if err != nil {
			s.logger.Error("could not fetch media for scoring",
				"event_id", message.EventID,
				"url", message.Media.URL,
				"error", fmt.Errorf("%w: %w", ErrMediaFetchFailed, err),
			)
			return nil, false
		}
		mimeType := message.Media.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
		return []contentPart{
			{Type: "text", Text: "Analyze this image and return the resulting JSON of its scores:"},
			{Type: "image_url", ImageURL: &imageURLPart{URL: dataURI}},
		}, true
	default:
		return message.Body, true
	}
}

// callClassifier performs one classifier HTTP call under the
// per-attempt deadline and extracts the verdict text.
func (s *ContentScorer) callClassifier(ctx context.Context, payload []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	request, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.cfg.APIEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("moderation: building classifier request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || attemptCtx.Err() != nil {
			scorerCalls.WithLabelValues(scoreResultTimeout).Inc()
		} else {
			scorerCalls.WithLabelValues(scoreResultHTTPError).Inc()
		}
		return "", fmt.Errorf("moderation: classifier call: %w: %w", ErrScoringUnavailable, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		scorerCalls.WithLabelValues(scoreResultHTTPError).Inc()
		return "", fmt.Errorf("moderation: reading classifier response: %w: %w", ErrScoringUnavailable, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		scorerCalls.WithLabelValues(scoreResultHTTPError).Inc()
		return "", fmt.Errorf("moderation: classifier returned %d: %s: %w",
			response.StatusCode, string(body), ErrScoringUnavailable)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		scorerCalls.WithLabelValues(scoreResultHTTPError).Inc()
		return "", fmt.Errorf("moderation: malformed classifier response envelope: %w: %w", ErrScoringUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		scorerCalls.WithLabelValues(scoreResultHTTPError).Inc()
		return "", fmt.Errorf("moderation: classifier response has no choices: %w", ErrScoringUnavailable)
	}
	return parsed.Choices[0].Message.Content, nil
}

// isRefusal scans a verdict for phrases indicating the model declined
// to analyze the content.
func isRefusal(verdict string) bool {
	lowered := strings.ToLower(verdict)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}
