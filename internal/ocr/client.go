// Package ocr is a thin client for an external OCR service that returns
// recognized words with normalized bounding boxes. The service is treated
// as a black box behind a fixed JSON contract; when no endpoint is
// configured, callers get ErrUnavailable and degrade gracefully.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agext/levenshtein"
	"github.com/pkg/errors"

	apperrors "trade-validation-service/pkg/errors"
	"trade-validation-service/pkg/logger"
)

// ErrUnavailable is returned when no OCR endpoint is configured. Callers
// treat it as a degraded-capability signal, not a failure.
var ErrUnavailable = errors.New("ocr service not configured")

// Word is a recognized word or line with its bounding box. Coordinates are
// normalized to [0,1] with a top-left origin.
type Word struct {
	Text       string  `json:"text"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Result is the OCR output for one document page.
type Result struct {
	Words       []Word `json:"words"`
	FullText    string `json:"full_text"`
	ImageWidth  int    `json:"image_width"`
	ImageHeight int    `json:"image_height"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

// FieldCoordinate locates one extracted field value on the rendered page.
type FieldCoordinate struct {
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	MatchedText string  `json:"matched_text"`
	Confidence  float64 `json:"confidence"`
	FieldValue  string  `json:"field_value"`
}

// Client calls the OCR service over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates an OCR client for the given endpoint. An empty endpoint
// yields a client whose Process always returns ErrUnavailable.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("ocr"),
	}
}

// Available reports whether an OCR endpoint is configured.
func (c *Client) Available() bool {
	return c.endpoint != ""
}

type processRequest struct {
	FilePath     string `json:"file_path"`
	Page         int    `json:"page"`
	IncludeImage bool   `json:"include_image"`
}

// Process runs OCR over one page of the given file. includeImage asks the
// service to return the rendered page as base64 for the document viewer.
func (c *Client) Process(ctx context.Context, filePath string, page int, includeImage bool) (*Result, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	payload, err := json.Marshal(processRequest{
		FilePath:     filePath,
		Page:         page,
		IncludeImage: includeImage,
	})
	if err != nil {
		return nil, apperrors.InternalError("encode ocr request", err)
	}

	url := c.endpoint + "/ocr"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.InternalError("build ocr request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logger.Fields{
		"file": filePath,
		"page": page,
	}).Debug("Calling OCR service")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, url, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, url,
			fmt.Errorf("ocr service returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, apperrors.NetworkError(apperrors.CodeConnectionFailed, url, err)
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// matchValueToBox finds the OCR word best matching a field value. Exact
// equality scores 1.0, containment 0.95, otherwise the edit-similarity
// ratio above the threshold.
func matchValueToBox(value string, words []Word, fuzzyThreshold float64) *FieldCoordinate {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return nil
	}

	var best *Word
	bestScore := 0.0

	for i := range words {
		wordText := strings.ToLower(strings.TrimSpace(words[i].Text))

		var score float64
		if strings.Contains(wordText, needle) || strings.Contains(needle, wordText) {
			score = 0.95
			if needle == wordText {
				score = 1.0
			}
		} else {
			ratio := levenshtein.Similarity(needle, wordText, nil)
			if ratio <= fuzzyThreshold {
				continue
			}
			score = ratio
		}

		if score > bestScore {
			bestScore = score
			best = &words[i]
		}
	}

	if best == nil {
		return nil
	}
	return &FieldCoordinate{
		X:           best.X,
		Y:           best.Y,
		Width:       best.Width,
		Height:      best.Height,
		MatchedText: best.Text,
		Confidence:  bestScore,
	}
}

// FieldCoordinates locates each extracted field value among the OCR words,
// returning coordinates for the fields that could be placed on the page.
func FieldCoordinates(fieldValues map[string]string, words []Word) map[string]FieldCoordinate {
	coordinates := make(map[string]FieldCoordinate)

	for fieldName, value := range fieldValues {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if coord := matchValueToBox(value, words, 0.8); coord != nil {
			coord.FieldValue = value
			coordinates[fieldName] = *coord
		}
	}
	return coordinates
}
