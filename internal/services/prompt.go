package services

import (
	"fmt"

	"github.com/yungbote/pdfrag-backend/internal/platform/openai"
)

const ragSystemPrompt = "このシステムは、ドキュメントを管理するためのシステムです。ユーザから入力された内容に該当するドキュメントを検索し、要約してその内容をユーザに提供します。"

const ragUserPromptFormat = "\"\"\" %s \"\"\" \n\nこちらのドキュメントの中から \"%s\" に関して説明している箇所を抜き出してください。"

// BuildRAGMessages asks the model to extract the part of documentText that explains
// input.
func BuildRAGMessages(documentText, input string) []openai.ChatMessage {
	return []openai.ChatMessage{
		{Role: "system", Content: ragSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(ragUserPromptFormat, documentText, input)},
	}
}
