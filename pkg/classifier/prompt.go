package classifier

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	defaultConfidence = 0.8

	systemPrompt = "Ты - эксперт по классификации сообщений.\n" +
		"Твоя задача - определить категорию сообщения пользователя.\n" +
		"Отвечай только в формате JSON без дополнительного текста.\n" +
		"Используй русский язык для объяснений.\n" +
		"Будь точным и объективным в классификации."

	replyFormat = "Ответь в формате JSON:\n" +
		"{\n" +
		"  \"categoryId\": \"id_категории\",\n" +
		"  \"confidence\": 0.95,\n" +
		"  \"reasoning\": \"краткое объяснение\"\n" +
		"}"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// ParseError means the model answered but the reply could not be used.
type ParseError struct {
	Reply  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse classification reply: %s: %v", e.Reason, e.Err)
	}
	return "parse classification reply: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type llmReply struct {
	CategoryID string   `json:"categoryId"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

func (r llmReply) confidence() float64 {
	if r.Confidence == nil {
		return defaultConfidence
	}
	return clamp(*r.Confidence)
}

func buildPrompt(categories []Category, text string, cctx Context) string {
	var b strings.Builder
	b.WriteString("Классифицируй следующее сообщение по одной из категорий:\n\n")
	for _, category := range categories {
		fmt.Fprintf(&b, "%s: %s - %s\n", category.ID, category.Name, category.Description)
	}
	fmt.Fprintf(&b, "\nСообщение: %q\n\n", text)

	if len(cctx.UserHistory) > 0 {
		fmt.Fprintf(&b, "История пользователя: %s\n\n", strings.Join(cctx.UserHistory, "; "))
	}

	b.WriteString(replyFormat)
	return b.String()
}

func parseReply(content string) (llmReply, error) {
	span := jsonObject.FindString(content)
	if span == "" {
		return llmReply{}, &ParseError{Reply: content, Reason: "no JSON object"}
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(span), &reply); err != nil {
		return llmReply{}, &ParseError{Reply: content, Reason: "malformed JSON", Err: err}
	}
	reply.CategoryID = strings.TrimSpace(reply.CategoryID)
	if reply.CategoryID == "" {
		return llmReply{}, &ParseError{Reply: content, Reason: "missing categoryId"}
	}
	return reply, nil
}

func clamp(v float64) float64 {
	return min(max(v, 0), 1)
}
