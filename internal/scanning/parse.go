package scanning

import "strings"

// transcriptionPrompt is the shared prompt used by all LLM providers for
// transcribing a receipt page
const transcriptionPrompt = `You are transcribing a photographed or scanned store receipt.

Return the text of the receipt exactly as printed, one printed line per output line, top to bottom.

Important:
- Keep each product name and its price on the same line, as they appear on the receipt
- Keep numbers exactly as printed, including comma decimal separators
- Do not translate, summarize, reorder or correct anything
- Do not add any text before or after the transcription
- Do not use markdown code blocks`

// cleanTranscription strips markdown fences and surrounding whitespace that
// vision models tend to add around a transcription
func cleanTranscription(text string) string {
	text = strings.TrimSpace(text)

	// Remove opening markdown code blocks
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl != -1 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	return strings.TrimSpace(text)
}
