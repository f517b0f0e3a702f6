package llmprovider

import (
	"strings"

	"go.uber.org/zap"
)

// ToolCallAccumulator buffers streamed tool-call argument fragments per call id
// and emits a ToolUseBlock once the provider signals the end of that call.
//
// Malformed accumulated JSON never fails the stream: a DecodeWarning is logged
// and recorded, and the block is emitted with an empty Input and the raw text
// in RawInput. Not safe for concurrent use; one accumulator serves one stream.
type ToolCallAccumulator struct {
	logger   *zap.Logger
	calls    map[string]*pendingToolCall
	order    []string
	warnings []*DecodeWarning
}

type pendingToolCall struct {
	id   string
	name string
	args strings.Builder
}

// NewToolCallAccumulator creates an empty accumulator.
func NewToolCallAccumulator(logger *zap.Logger) *ToolCallAccumulator {
	return &ToolCallAccumulator{
		logger: orNop(logger),
		calls:  make(map[string]*pendingToolCall),
	}
}

// Start registers a new call. Starting an id twice keeps the first registration
// but fills in a name that was missing.
func (a *ToolCallAccumulator) Start(id, name string) {
	if call, ok := a.calls[id]; ok {
		if call.name == "" {
			call.name = name
		}
		return
	}
	a.calls[id] = &pendingToolCall{id: id, name: name}
	a.order = append(a.order, id)
}

// Append adds an argument fragment to the call with the given id.
// Fragments for unknown ids start an unnamed call.
func (a *ToolCallAccumulator) Append(id, fragment string) {
	call, ok := a.calls[id]
	if !ok {
		a.Start(id, "")
		call = a.calls[id]
	}
	call.args.WriteString(fragment)
}

// Finish completes the call with the given id and returns its block.
// The second return is false when no such call is pending.
func (a *ToolCallAccumulator) Finish(id string) (ToolUseBlock, bool) {
	call, ok := a.calls[id]
	if !ok {
		return ToolUseBlock{}, false
	}
	delete(a.calls, id)
	for i, pendingID := range a.order {
		if pendingID == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return a.complete(call), true
}

// FinishAll completes every pending call in start order. Providers that only
// signal the end of the whole message use this.
func (a *ToolCallAccumulator) FinishAll() []ToolUseBlock {
	blocks := make([]ToolUseBlock, 0, len(a.order))
	for _, id := range a.order {
		blocks = append(blocks, a.complete(a.calls[id]))
	}
	a.calls = make(map[string]*pendingToolCall)
	a.order = nil
	return blocks
}

// Pending returns the number of calls still accumulating.
func (a *ToolCallAccumulator) Pending() int {
	return len(a.order)
}

// Warnings returns the decoding warnings raised so far.
func (a *ToolCallAccumulator) Warnings() []*DecodeWarning {
	return a.warnings
}

func (a *ToolCallAccumulator) complete(call *pendingToolCall) ToolUseBlock {
	raw := call.args.String()
	block := ToolUseBlock{ID: call.id, Name: call.name, RawInput: raw}

	input, err := DecodeToolInput(strings.TrimSpace(raw))
	if err != nil {
		warning := &DecodeWarning{ToolCallID: call.id, Raw: raw, Err: err}
		a.warnings = append(a.warnings, warning)
		a.logger.Warn("malformed tool call arguments",
			zap.String("tool_call_id", call.id),
			zap.String("tool_name", call.name),
			zap.Int("raw_bytes", len(raw)),
			zap.Error(err),
		)
		block.Input = map[string]any{}
		return block
	}

	block.Input = input
	return block
}

// ParseToolUse decodes a tool call delivered in one piece (non-streaming
// responses). Malformed input is handled as in ToolCallAccumulator.
func ParseToolUse(logger *zap.Logger, id, name, rawInput string) ToolUseBlock {
	acc := NewToolCallAccumulator(logger)
	acc.Start(id, name)
	acc.Append(id, rawInput)
	block, _ := acc.Finish(id)
	return block
}
