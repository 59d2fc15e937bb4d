// Package coursechat is a Go client for the coursechat API.
//
// Chat streams an answer grounded on the course documents and reports every
// intermediate snapshot:
//
//	client, _ := coursechat.New("http://localhost:8080", coursechat.WithAPIKey(key))
//	reply, err := client.Chat(ctx, coursechat.ChatRequest{
//	    SessionID: "demo",
//	    Messages:  []coursechat.Message{coursechat.UserMessage("How large should teams be?")},
//	}, func(r coursechat.Response) {
//	    fmt.Print("\r", r.Answer)
//	})
//
// Follow-up questions replay earlier answers with AssistantMessage(reply).
//
// Documents are managed with CreateDocument, ListDocuments and friends.
package coursechat
