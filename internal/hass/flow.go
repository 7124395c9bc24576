package hass

import (
	"context"
	"fmt"
	"sync"
)

// FlowResultType is the kind of step result a flow returns.
type FlowResultType string

const (
	FlowResultForm        FlowResultType = "form"
	FlowResultCreateEntry FlowResultType = "create_entry"
	FlowResultAbort       FlowResultType = "abort"
)

// FlowResult is the outcome of one flow step.
type FlowResult struct {
	Type        FlowResultType    `json:"type"`
	FlowID      string            `json:"flow_id"`
	Handler     string            `json:"handler"`
	StepID      string            `json:"step_id,omitempty"`
	DataSchema  []string          `json:"data_schema,omitempty"`
	Errors      map[string]string `json:"errors,omitempty"`
	Title       string            `json:"title,omitempty"`
	Data        map[string]any    `json:"data,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	EntryID     string            `json:"entry_id,omitempty"`
	Description string            `json:"description,omitempty"`
}

// ShowForm returns a form result for stepID. A nil errs is reported as an
// empty error map.
func ShowForm(stepID string, schema []string, errs map[string]string) FlowResult {
	if errs == nil {
		errs = map[string]string{}
	}
	return FlowResult{Type: FlowResultForm, StepID: stepID, DataSchema: schema, Errors: errs}
}

// CreateEntry returns a result that creates a config entry.
func CreateEntry(title string, data map[string]any) FlowResult {
	return FlowResult{Type: FlowResultCreateEntry, Title: title, Data: data}
}

// Abort returns a result that ends the flow without an entry.
func Abort(reason string) FlowResult {
	return FlowResult{Type: FlowResultAbort, Reason: reason}
}

// ConfigFlow drives the interactive creation of a config entry. Step runs
// the named step with the submitted input, or with nil to show it.
type ConfigFlow interface {
	Step(ctx context.Context, stepID string, input map[string]any) (FlowResult, error)
}

type flowProgress struct {
	mu      sync.Mutex
	id      string
	domain  string
	source  string
	stepID  string
	handler ConfigFlow
}

// FlowManager tracks config flows in progress.
type FlowManager struct {
	hass *HomeAssistant

	mu    sync.Mutex
	flows map[string]*flowProgress
}

func newFlowManager(h *HomeAssistant) *FlowManager {
	return &FlowManager{hass: h, flows: make(map[string]*flowProgress)}
}

// Init starts a flow for domain. The first step is named after source.
func (m *FlowManager) Init(ctx context.Context, domain, source string, input map[string]any) (FlowResult, error) {
	integration, err := m.hass.Integration(domain)
	if err != nil {
		return FlowResult{}, err
	}
	if source == "" {
		source = SourceUser
	}
	flow := &flowProgress{
		id:      randomHex(16),
		domain:  domain,
		source:  source,
		stepID:  source,
		handler: integration.NewConfigFlow(),
	}

	m.mu.Lock()
	m.flows[flow.id] = flow
	m.mu.Unlock()

	return m.run(ctx, flow, input)
}

// Configure submits input to the current step of a flow.
func (m *FlowManager) Configure(ctx context.Context, flowID string, input map[string]any) (FlowResult, error) {
	m.mu.Lock()
	flow, ok := m.flows[flowID]
	m.mu.Unlock()
	if !ok {
		return FlowResult{}, fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}
	return m.run(ctx, flow, input)
}

// AbortFlow discards a flow in progress.
func (m *FlowManager) AbortFlow(flowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[flowID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlow, flowID)
	}
	delete(m.flows, flowID)
	return nil
}

// InProgress lists the ids of flows waiting for input.
func (m *FlowManager) InProgress() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.flows))
	for id := range m.flows {
		out = append(out, id)
	}
	return out
}

func (m *FlowManager) run(ctx context.Context, flow *flowProgress, input map[string]any) (FlowResult, error) {
	flow.mu.Lock()
	defer flow.mu.Unlock()

	result, err := flow.handler.Step(ctx, flow.stepID, input)
	if err != nil {
		m.finish(flow.id)
		return FlowResult{}, err
	}
	result.FlowID = flow.id
	result.Handler = flow.domain

	switch result.Type {
	case FlowResultForm:
		flow.stepID = result.StepID
	case FlowResultCreateEntry:
		m.finish(flow.id)
		entry, err := m.hass.ConfigEntries.Add(ctx, EntryRecord{
			Domain: flow.domain,
			Title:  result.Title,
			Source: flow.source,
			Data:   result.Data,
		})
		if err != nil {
			return FlowResult{}, err
		}
		result.EntryID = entry.EntryID
	case FlowResultAbort:
		m.finish(flow.id)
	default:
		m.finish(flow.id)
		return FlowResult{}, fmt.Errorf("flow %s returned unknown result type %q", flow.id, result.Type)
	}
	return result, nil
}

func (m *FlowManager) finish(flowID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, flowID)
}
