package agent

// EventType classifies loop progress events.
type EventType string

const (
	EventIteration  EventType = "iteration"
	EventToolStart  EventType = "tool_start"
	EventToolResult EventType = "tool_result"
)

// Event is one progress notification from a running loop. Streaming
// surfaces forward these to live clients.
type Event struct {
	Type      EventType
	Iteration int
	ToolName  string
	IsError   bool
	Preview   string
}

// Sink receives loop events. Implementations must not block.
type Sink func(Event)

func (s Sink) emit(evt Event) {
	if s != nil {
		s(evt)
	}
}

const toolResultPreviewMax = 200

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= toolResultPreviewMax {
		return text
	}
	return string(runes[:toolResultPreviewMax]) + "..."
}
