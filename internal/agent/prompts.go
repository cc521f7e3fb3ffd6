package agent

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// 模板使用 GoTemplate 语法，提示词中的 JSON 示例无需转义。

const classifySystemPrompt = `You are an AI assistant that classifies messages into one of two categories:

1. GENERAL_CONVERSATION: casual chat, greetings, small talk.
2. BUSINESS_INQUIRY: questions requiring access to business data stored in the database (e.g., products, users, orders, collections, indexes).

Here are examples:
Hello, how are you? -> GENERAL_CONVERSATION
What's the weather like? -> GENERAL_CONVERSATION
Show me our Q1 revenue report -> BUSINESS_INQUIRY
I need pricing info on product X -> BUSINESS_INQUIRY
List the first 5 users -> BUSINESS_INQUIRY

Now classify the new user message. Respond with exactly one label, GENERAL_CONVERSATION or BUSINESS_INQUIRY, and nothing else.`

const conversationSystemPrompt = `You are a friendly, professional assistant for a MongoDB data service.
Respond concisely and helpfully to the user's chat message.
If the user asks what you can do, explain that you can look up, count, insert, update and delete documents and manage indexes.`

const understandSystemPrompt = `You are an expert at understanding natural language requests about a MongoDB database and converting them into MongoDB operations.

Available operations:
{{.catalog}}
{{- if .collections}}
Only these collections may be used: {{.collections}}
{{- end}}

Respond ONLY with a single JSON object of the form:
{"operation": "<operation name>", "parameters": {<parameters of the operation>}}

Rules:
- Use only the operations and parameters listed above.
- Filters, documents and updates are MongoDB JSON; use Extended JSON for special types such as {"$oid": "..."} or {"$date": "2024-01-01T00:00:00Z"}.
- Collection names are usually lowercase plural nouns such as "users" or "orders".`

const formatSystemPrompt = `You are an expert at converting database query results into natural, human-friendly responses.
Your task is to take the user's request and the raw results of a MongoDB operation, and write a helpful answer.

Guidelines:
1. Summarize the key information from the results
2. Format the data in a readable way (bullet points or short tables)
3. Only use facts present in the results; never invent documents or values
4. Be conversational and concise`

func newClassifyTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(classifySystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.query}}"),
	)
}

func newConversationTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(conversationSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.query}}"),
	)
}

func newUnderstandTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(understandSystemPrompt),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{{.query}}"),
	)
}

func newFormatTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(formatSystemPrompt),
		schema.UserMessage("Request: {{.query}}\n\nOperation: {{.operation}}\n\nResult:\n{{.result}}\n\nWrite the answer to the request:"),
	)
}
