package genai

import (
	"encoding/json"
	"errors"
	"strings"

	"listingprep/internal/domain"
)

// SystemInstruction tells the model which four fields to produce.
const SystemInstruction = `You are an SEO expert and sales specialist for tourist equipment on Avito.
Analyze the image provided.
1) Write a selling title (title, max 50 chars).
2) Write a VERY SHORT SEO filename for the alt-tag (alt_text, strictly 3-5 key words separated by spaces, transliterated friendly, no prepositions). Example: "palatka-turisticheskaya-red-fox".
3) Write a detailed selling description (description, with emojis and a list of benefits).
4) Estimate the price in RUB (price_guess).
Return ONLY valid JSON.`

// UserPrompt accompanies the inline image.
const UserPrompt = "Analyze this image for an Avito listing."

func descriptorSchema() *geminiSchema {
	str := func(desc string) *geminiSchema {
		return &geminiSchema{Type: "STRING", Description: desc}
	}
	return &geminiSchema{
		Type: "OBJECT",
		Properties: map[string]*geminiSchema{
			"title":       str("Selling title, at most 50 characters"),
			"alt_text":    str("3-5 transliterated keywords separated by spaces"),
			"description": str("Detailed selling description"),
			"price_guess": str("Estimated price in RUB"),
		},
		Required: []string{"title", "alt_text", "description", "price_guess"},
	}
}

func parseDescriptor(raw string) (domain.Descriptor, error) {
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return domain.Descriptor{}, errors.New("empty payload")
	}
	var desc domain.Descriptor
	if err := json.Unmarshal([]byte(cleaned), &desc); err != nil {
		return domain.Descriptor{}, err
	}
	if desc.IsEmpty() {
		return domain.Descriptor{}, errors.New("payload has none of the expected fields")
	}
	return desc, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
