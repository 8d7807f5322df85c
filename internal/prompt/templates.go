package prompt

// SystemPrompt is the default system message for answer generation.
const SystemPrompt = `You are a helpful AI assistant that answers questions based on internal company documentation.

Your role is to:
1. Provide accurate, concise answers based ONLY on the provided context
2. Cite specific sources when answering
3. Admit when you don't have enough information to answer
4. Be professional and helpful

Guidelines:
- Always base your answers on the provided context
- If the context doesn't contain the answer, say so clearly
- Include relevant source references in your answer
- Be conversational but maintain professionalism
- Keep answers focused and to the point
`

const queryTemplate = `Context information is below:
---------------------
%s
---------------------

Given the context information above, please answer the following question.
If you cannot answer the question based on the context, say "I don't have enough information to answer this question."

Always cite the sources you used (by filename) when providing an answer.

Question: %s

Answer: `

const chatTemplate = `Context information is below:
---------------------
%s
---------------------

Chat History:
%s

Given the context information and chat history above, please answer the following question.
If you cannot answer based on the context, say so clearly.

Question: %s

Answer: `

// TruncationMarker is appended to a context block cut at the length bound.
const TruncationMarker = "\n...(truncated)"

// NoHistoryMarker stands in for an empty chat history.
const NoHistoryMarker = "No previous conversation."
