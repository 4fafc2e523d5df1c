package models

const (
	// IndexFormatVersion is bumped whenever the persisted index layout changes
	IndexFormatVersion = 1
	ContextSeparator   = "\n\n"
)

var (
	RAGPromptTemplate = `Human: Use the following pieces of context to provide a concise
answer to the question at the end but use at least 250 words with
detailed explanations. If you don't know the answer, just say that
you don't know, don't try to make up an answer.
<context>
{context}
</context>

Question: {question}

Assistant:`
)
