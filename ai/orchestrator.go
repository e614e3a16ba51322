package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"discussion-lab/contract"
	"discussion-lab/persona"
)

// Factory builds one orchestrator per session over a shared chat client.
// An optional transcript limit bounds the context sent to the model; nil
// means unbounded.
type Factory struct {
	client          ChatClient
	transcriptLimit *int
}

func NewFactory(client ChatClient, transcriptLimit *int) *Factory {
	return &Factory{client: client, transcriptLimit: transcriptLimit}
}

func (f *Factory) New() contract.DiscussionOrchestrator {
	return &Orchestrator{client: f.client, transcriptLimit: f.transcriptLimit}
}

// Orchestrator keeps its own transcript of the session, independent of the
// coordinator's history. The coordinator serializes calls per session, so
// no locking is needed here.
type Orchestrator struct {
	client          ChatClient
	transcriptLimit *int

	topic      string
	background string
	personas   []persona.Descriptor
	transcript []string
}

type turnPayload struct {
	Responses []struct {
		Agent   string `json:"agent"`
		Message string `json:"message"`
	} `json:"responses"`
	Progress float64 `json:"progress"`
}

type summaryPayload struct {
	Summary string         `json:"summary"`
	Metrics map[string]any `json:"metrics"`
}

func (o *Orchestrator) Initialize(ctx context.Context, topic string, personas []persona.Descriptor, background string) (string, error) {
	o.topic = topic
	o.background = background
	o.personas = personas

	opening, err := o.client.Complete(ctx, systemPrompt(topic, background, personas), openingPrompt(topic))
	if err != nil {
		return "", fmt.Errorf("opening statement: %w", err)
	}
	opening = strings.TrimSpace(opening)
	o.record("moderator", opening)
	return opening, nil
}

func (o *Orchestrator) ProcessHumanTurn(ctx context.Context, message, focusPersona string) (contract.TurnResult, error) {
	raw, err := o.client.Complete(ctx, o.system(), turnPrompt(o.renderTranscript(), message, focusPersona))
	if err != nil {
		return contract.TurnResult{}, fmt.Errorf("human turn: %w", err)
	}

	var payload turnPayload
	if err := json.Unmarshal(extractJSON(raw), &payload); err != nil {
		return contract.TurnResult{}, fmt.Errorf("malformed turn response: %w", err)
	}

	o.record("user", message)
	now := time.Now().UTC()
	replies := make([]contract.PersonaReply, 0, len(payload.Responses))
	for _, r := range payload.Responses {
		reply := contract.PersonaReply{
			Persona:     r.Agent,
			DisplayName: displayName(r.Agent),
			Message:     r.Message,
			At:          now,
		}
		replies = append(replies, reply)
		o.record(r.Agent, r.Message)
	}

	return contract.TurnResult{Replies: replies, Progress: clamp01(payload.Progress)}, nil
}

func (o *Orchestrator) AskPersona(ctx context.Context, personaType, question string) (contract.PersonaReply, error) {
	answer, err := o.client.Complete(ctx, o.system(), askPrompt(o.renderTranscript(), personaType, question))
	if err != nil {
		return contract.PersonaReply{}, fmt.Errorf("ask persona: %w", err)
	}
	answer = strings.TrimSpace(answer)

	o.record("user", question)
	o.record(personaType, answer)
	return contract.PersonaReply{
		Persona:     personaType,
		DisplayName: displayName(personaType),
		Message:     answer,
		At:          time.Now().UTC(),
	}, nil
}

func (o *Orchestrator) AnalyzeConsensus(ctx context.Context) (string, error) {
	analysis, err := o.client.Complete(ctx, o.system(), consensusPrompt(o.renderTranscript()))
	if err != nil {
		return "", fmt.Errorf("consensus analysis: %w", err)
	}
	return strings.TrimSpace(analysis), nil
}

func (o *Orchestrator) Summarize(ctx context.Context) (contract.Summary, error) {
	raw, err := o.client.Complete(ctx, o.system(), summaryPrompt(o.renderTranscript()))
	if err != nil {
		return contract.Summary{}, fmt.Errorf("summarize: %w", err)
	}

	var payload summaryPayload
	if err := json.Unmarshal(extractJSON(raw), &payload); err != nil {
		return contract.Summary{}, fmt.Errorf("malformed summary response: %w", err)
	}
	return contract.Summary{Text: payload.Summary, Metrics: payload.Metrics}, nil
}

func (o *Orchestrator) Close(ctx context.Context) (string, error) {
	report, err := o.client.Complete(ctx, o.system(), closePrompt(o.renderTranscript()))
	if err != nil {
		return "", fmt.Errorf("final report: %w", err)
	}
	o.transcript = nil
	return strings.TrimSpace(report), nil
}

func (o *Orchestrator) system() string {
	return systemPrompt(o.topic, o.background, o.personas)
}

func (o *Orchestrator) record(speaker, message string) {
	o.transcript = append(o.transcript, fmt.Sprintf("%s: %s", speaker, message))
	if o.transcriptLimit != nil && len(o.transcript) > *o.transcriptLimit {
		o.transcript = o.transcript[len(o.transcript)-*o.transcriptLimit:]
	}
}

func (o *Orchestrator) renderTranscript() string {
	if len(o.transcript) == 0 {
		return "(no contributions yet)"
	}
	return strings.Join(o.transcript, "\n")
}

func displayName(personaType string) string {
	if d, ok := persona.Lookup(persona.Type(personaType)); ok {
		return d.Name
	}
	return personaType
}

// extractJSON tolerates models wrapping their JSON in markdown fences or
// surrounding prose by slicing from the first '{' to the last '}'.
func extractJSON(raw string) []byte {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return []byte(raw)
	}
	return []byte(raw[start : end+1])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
