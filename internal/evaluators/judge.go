package evaluators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/evalcraft/evalcraft/internal/models"
)

// JudgeRequest carries everything a judge needs to form a verdict.
type JudgeRequest struct {
	Criteria    string
	ModifiedDir string
	AgentLog    *models.StandardLog
}

// Verdict is the strict output schema every judge must produce.
type Verdict struct {
	Score     float64 `json:"score"`
	Passed    bool    `json:"passed"`
	Reasoning string  `json:"reasoning"`
}

// Judge is the injected capability backing the judge evaluator. It decouples
// scoring logic from subprocess and text-parsing plumbing.
type Judge interface {
	Judge(ctx context.Context, req JudgeRequest) (*Verdict, error)
}

const judgeSystemPrompt = `You are a strict code-change reviewer. Evaluate the change against the
given criteria. Respond with a single JSON object containing exactly these
fields: "score" (number between 0 and 1), "passed" (boolean), and
"reasoning" (short string). No other fields, no prose.`

// OpenAIJudge scores changes with a chat-completion model, forcing JSON
// output and rejecting any response that strays from the verdict schema.
type OpenAIJudge struct {
	client *openai.Client
	model  string
}

// NewOpenAIJudge builds a judge backed by the OpenAI chat API.
func NewOpenAIJudge(apiKey, model string) *OpenAIJudge {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIJudge{client: openai.NewClient(apiKey), model: model}
}

func (j *OpenAIJudge) Judge(ctx context.Context, req JudgeRequest) (*Verdict, error) {
	if strings.TrimSpace(req.Criteria) == "" {
		return nil, fmt.Errorf("judge request has no criteria")
	}

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildJudgePrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("judge model call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("judge model returned no choices")
	}

	return ParseVerdict([]byte(resp.Choices[0].Message.Content))
}

// ParseVerdict decodes a verdict, rejecting unknown fields and
// out-of-range scores.
func ParseVerdict(data []byte) (*Verdict, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var v Verdict
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("judge verdict does not match schema: %w", err)
	}
	if v.Score < 0 || v.Score > 1 {
		return nil, fmt.Errorf("judge verdict score %v outside [0,1]", v.Score)
	}
	return &v, nil
}

func buildJudgePrompt(req JudgeRequest) string {
	var b strings.Builder
	b.WriteString("Criteria:\n")
	b.WriteString(req.Criteria)
	b.WriteString("\n\nWorkspace: ")
	b.WriteString(req.ModifiedDir)
	if req.AgentLog != nil && req.AgentLog.Summary != "" {
		b.WriteString("\n\nAgent execution summary:\n")
		b.WriteString(req.AgentLog.Summary)
	}
	return b.String()
}
