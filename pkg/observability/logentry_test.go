package observability

import "encoding/json"

// LogEntry decodes one slog JSON log line for assertions. slog emits
// "level" and "msg" plus attributes flat at the top level; everything
// other than level, msg, and time is collected into Fields.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

func (e *LogEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["level"].(string); ok {
		e.Level = v
	}
	if v, ok := raw["msg"].(string); ok {
		e.Message = v
	}
	delete(raw, "level")
	delete(raw, "msg")
	delete(raw, "time")
	e.Fields = raw
	return nil
}
