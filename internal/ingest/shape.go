package ingest

// payloadShape identifies which nesting convention carries the entry list.
type payloadShape int

const (
	shapeEmpty payloadShape = iota
	// {"entry": [...]}
	shapeEntries
	// {"metaData": {"entry": [...]}}, the older export layout
	shapeWrappedEntries
)

func (s payloadShape) String() string {
	switch s {
	case shapeEntries:
		return "entries"
	case shapeWrappedEntries:
		return "wrapped_entries"
	default:
		return "empty"
	}
}

// classifyPayload resolves the entry list once so that the walker never
// probes layouts itself. The wrapped layout wins when both are present.
func classifyPayload(payload map[string]any) (payloadShape, []any) {
	if wrapped := object(payload, "metaData"); wrapped != nil {
		if entries, ok := wrapped["entry"].([]any); ok {
			return shapeWrappedEntries, entries
		}
	}
	if entries, ok := payload["entry"].([]any); ok {
		return shapeEntries, entries
	}
	return shapeEmpty, nil
}

// changeValue unwraps changes[i].value, falling back to the change itself.
func changeValue(change any) (map[string]any, bool) {
	ch, ok := change.(map[string]any)
	if !ok {
		return nil, false
	}
	if value := object(ch, "value"); value != nil {
		return value, true
	}
	return ch, true
}

// isSingularStatus reports whether a change value is itself one status event.
func isSingularStatus(value map[string]any) bool {
	return truthy(value["status"]) && truthy(value["id"])
}
