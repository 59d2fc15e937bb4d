package chat

import (
	"strconv"
	"strings"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
	domdoc "github.com/Haoxincode/coursechat/internal/domain/document"
	"github.com/Haoxincode/coursechat/internal/domain/idmap"
)

const systemInstructions = `You are a teaching assistant for a course. Answer the user's questions using only the course documents below.

Reply with a single JSON object and nothing else, with these keys in this order:
  "reasoning": string, how the documents support your answer
  "answer": string, the answer shown to the user (markdown allowed)
  "sources": array of {"document_id": integer, "document_name": string, "section": string or null}
  "confidence": one of "high", "medium", "low"

Cite documents by their integer id exactly as given. Name the section (chapter or heading) you used when there is one.
If the documents do not cover the question, say so in the answer, return an empty sources array and use "low" confidence.`

// BuildPrompt renders the system prompt over docs using the mapper's integer ids.
// Documents the mapper does not know are left out.
func BuildPrompt(docs []domdoc.Document, ids *idmap.Mapper[string], msgs []chat.Message) domain.Prompt {
	var sb strings.Builder
	sb.WriteString(systemInstructions)
	sb.WriteString("\n\nCourse documents:\n")

	for i := range docs {
		n, ok := ids.ToInt(docs[i].ID())
		if !ok {
			continue
		}
		sb.WriteString("\n<document id=\"")
		sb.WriteString(strconv.Itoa(n))
		sb.WriteString("\" name=\"")
		sb.WriteString(escapeAttr(docs[i].Name()))
		sb.WriteString("\">\n")
		sb.WriteString(strings.TrimSpace(docs[i].Content()))
		sb.WriteString("\n</document>\n")
	}

	return domain.Prompt{System: sb.String(), Messages: msgs}
}

var attrEscaper = strings.NewReplacer(`"`, "&quot;", "<", "&lt;", ">", "&gt;", "\n", " ")

func escapeAttr(s string) string { return attrEscaper.Replace(s) }
