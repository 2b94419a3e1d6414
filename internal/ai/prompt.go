package ai

const systemPrompt = `You are a senior software delivery lead helping a team write the documents of a gated software lifecycle. Answer with JSON only.`

// DefaultPhaseTemplate is the prompt used when ai.template is not configured.
// It is rendered with a PhaseRequest.
const DefaultPhaseTemplate = `Project: {{.ProjectName}}
{{- if .ProjectDescription}}
Description: {{.ProjectDescription}}
{{- end}}

Draft the document of phase {{.PhaseNumber}} ({{.PhaseName}}).
{{- if .PriorPhases}}

Approved documents of earlier phases:
{{- range .PriorPhases}}
### Phase {{.Number}} - {{.Name}}
{{.Content}}
{{- end}}
{{- end}}
{{- if .CurrentContent}}

Current draft of this phase:
{{.CurrentContent}}
{{- end}}

Request: {{.Request}}

Answer with a single JSON object of the form
{"content": <the phase document as a JSON object>, "confidence": <number between 0 and 1>, "reasoning": "<one or two sentences>"}
`
