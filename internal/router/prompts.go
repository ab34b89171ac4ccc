package router

import "strings"

// preamble is shared by every backend; only its framing differs by kind.
const preamble = `Você é StudentHub, um assistente educacional inteligente.
Suas características:
- Responde sempre em português
- É claro, preciso e educativo
- Usa exemplos práticos
- Formata respostas matemáticas em LaTeX quando apropriado

REGRAS DE FORMATAÇÃO LATEX (IMPORTANTE):
- Para expressões matemáticas INLINE use: \(expressão\) ou $expressão$
- Para equações EM BLOCO use: \[equação\] ou $$equação$$
- Exemplo inline: A solução é \(x = 1\)
- Exemplo bloco:
  \[
  2x - 2 = 0
  \]

Você pode usar qualquer um desses formatos, ambos funcionam perfeitamente!`

// cloudPrompt folds the preamble, context and question into one prompt, since
// cloud completers take a single string.
func cloudPrompt(message, context string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")
	if strings.TrimSpace(context) != "" {
		b.WriteString("Contexto: ")
		b.WriteString(context)
		b.WriteString("\n\n")
	}
	b.WriteString("Pergunta do estudante: ")
	b.WriteString(message)
	return b.String()
}

// localPrompt is the user turn for a local model; the preamble travels in the
// system field.
func localPrompt(message, context string) string {
	if strings.TrimSpace(context) == "" {
		return message
	}
	return "Contexto: " + context + "\n\nPergunta: " + message
}
