package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

/* ─── Request / Response types ───────────────────────────────────────── */

type estimateRequest struct {
	Description string `json:"description"`
}

// foodEstimate is the structured nutrition data returned by the model for one
// serving. MacroConsistent is filled in by the handler, not the model.
type foodEstimate struct {
	Name            string  `json:"name"`
	ServingSize     float64 `json:"serving_size"`
	ServingUnit     string  `json:"serving_unit"`
	Calories        int     `json:"calories"`
	ProteinG        float64 `json:"protein_g"`
	CarbsG          float64 `json:"carbs_g"`
	FatG            float64 `json:"fat_g"`
	Confidence      int     `json:"confidence"`
	MacroConsistent bool    `json:"macro_consistent"`
}

const estimateSystemPrompt = `You are a nutrition assistant. Parse the food description and return a JSON object for ONE serving with:
- "name" (string, cleaned up title case)
- "serving_size" (number)
- "serving_unit" (one of: each, g, ml, cup, tbsp, slice)
- "calories" (integer)
- "protein_g" (number)
- "carbs_g" (number)
- "fat_g" (number)
- "confidence" (integer 1-5: 5=exact known nutritional data, 1=very uncertain)

Always provide your best estimate. Only return {"error": "unrecognized"} if the input is not food at all.
Return only valid JSON, no explanation.`

var errEstimatorDisabled = errors.New("food estimation is not configured")

/* ─── OpenAI-compatible client ───────────────────────────────────────── */

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format"`
}

// foodEstimator calls an OpenAI-compatible chat completions endpoint.
type foodEstimator struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

func newFoodEstimator(cfg config) *foodEstimator {
	return &foodEstimator{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		apiKey:  cfg.OpenAIAPIKey,
		model:   cfg.OpenAIModel,
	}
}

// complete sends the messages and returns choices[0].message.content.
func (e *foodEstimator) complete(ctx context.Context, messages []chatMessage) (string, error) {
	if e == nil || e.apiKey == "" {
		return "", errEstimatorDisabled
	}

	body, err := json.Marshal(chatRequest{
		Model:          e.model,
		Messages:       messages,
		Temperature:    0,
		ResponseFormat: map[string]any{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	if !gjson.ValidBytes(respBytes) {
		return "", errors.New("upstream returned invalid JSON")
	}
	content := gjson.GetBytes(respBytes, "choices.0.message.content")
	if !content.Exists() {
		return "", errors.New("no choices in response")
	}
	return content.String(), nil
}

// estimate asks the model for one serving of description. ok is false when
// the model did not recognise the description as food.
func (e *foodEstimator) estimate(ctx context.Context, description string) (est foodEstimate, ok bool, err error) {
	content, err := e.complete(ctx, []chatMessage{
		{Role: "system", Content: estimateSystemPrompt},
		{Role: "user", Content: description},
	})
	if err != nil {
		return est, false, err
	}

	var refusal struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &refusal); err != nil {
		return est, false, fmt.Errorf("parse content: %w", err)
	}
	if refusal.Error != "" {
		return est, false, nil
	}
	if err := json.Unmarshal([]byte(content), &est); err != nil {
		return est, false, fmt.Errorf("parse estimate: %w", err)
	}
	if est.Name == "" || est.Calories <= 0 {
		return est, false, nil
	}
	est.MacroConsistent = checkMacroConsistency(est.Calories, est.ProteinG, est.CarbsG, est.FatG) == nil
	return est, true, nil
}

/* ─── Handler ────────────────────────────────────────────────────────── */

// estimateFood handles POST /api/foods/estimate. The result is a suggestion
// only; the client still submits it through POST /api/foods.
func (h *Handler) estimateFood(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		apiError(c, http.StatusBadRequest, "description is required")
		return
	}

	est, ok, err := h.estimator.estimate(c.Request.Context(), description)
	switch {
	case errors.Is(err, errEstimatorDisabled):
		apiError(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		h.log.Error("food estimate failed", zap.Error(err))
		apiError(c, http.StatusBadGateway, "estimate request failed")
		return
	case !ok:
		c.JSON(http.StatusOK, gin.H{"error": "unrecognized"})
		return
	}
	c.JSON(http.StatusOK, est)
}
