package intent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fentz26/taskchat/internal/models"
)

// ErrNoJSON indicates the reply contained no recoverable JSON object.
var ErrNoJSON = errors.New("no JSON object in reply")

// Parse recovers one Intent from free-form model output. On failure it
// returns Neutral() and a non-nil error.
func Parse(raw string) (Intent, error) {
	obj, ok := ExtractJSONObject(raw)
	if !ok {
		return Neutral(), ErrNoJSON
	}
	in, err := Decode([]byte(obj))
	if err != nil {
		return Neutral(), fmt.Errorf("decode intent: %w", err)
	}
	return in, nil
}

// ExtractJSONObject returns the first balanced, valid {...} span in text.
// Markdown code fences are stripped first and a bare JSON reply is taken whole.
func ExtractJSONObject(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", false
	}
	for _, candidate := range []string{stripFence(trimmed), trimmed} {
		if strings.HasPrefix(candidate, "{") && json.Valid([]byte(candidate)) {
			return candidate, true
		}
		if obj, ok := findJSONObject(candidate); ok {
			return obj, true
		}
	}
	return "", false
}

func stripFence(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return s
	}
	rest := s[start+3:]
	end := strings.Index(rest, "```")
	if end == -1 {
		return s
	}
	content := rest[:end]
	// Drop the language tag line.
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[idx+1:]
	}
	return strings.TrimSpace(content)
}

// findJSONObject scans for a balanced object, honouring string literals and
// escapes inside it. Spans that are balanced but not valid JSON are skipped.
func findJSONObject(input string) (string, bool) {
	for from := 0; from < len(input); {
		rel := strings.IndexByte(input[from:], '{')
		if rel == -1 {
			return "", false
		}
		start := from + rel
		if end, ok := matchBrace(input, start); ok {
			span := input[start : end+1]
			if json.Valid([]byte(span)) {
				return span, true
			}
		}
		from = start + 1
	}
	return "", false
}

// matchBrace returns the index of the brace closing the one at start.
func matchBrace(input string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch ch {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// Decode builds an Intent from a JSON object, coercing loosely typed values:
// ids may be numbers or numeric strings, tags may be a list.
func Decode(data []byte) (Intent, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Intent{}, err
	}
	if m == nil {
		return Intent{}, errors.New("intent is not a JSON object")
	}

	in := Intent{
		Action:             NormalizeAction(asString(m["action"])),
		TaskID:             asID(m["taskId"]),
		ProjectID:          asID(m["projectId"]),
		ProjectName:        asString(m["projectName"]),
		Title:              asString(m["title"]),
		Description:        asString(m["description"]),
		Status:             models.NormalizeStatus(asString(m["status"])),
		Priority:           models.NormalizePriority(asString(m["priority"])),
		Tags:               asTags(m["tags"]),
		StartDate:          asString(m["startDate"]),
		DueDate:            asString(m["dueDate"]),
		Assignee:           asString(m["assignee"]),
		AssigneeUserID:     asID(m["assigneeUserId"]),
		DeleteReason:       asString(m["deleteReason"]),
		NeedsClarification: asBool(m["needsClarification"]),
		FollowUpQuestion:   asString(m["followUpQuestion"]),
	}
	if fields, ok := m["updatedFields"].(map[string]any); ok && len(fields) > 0 {
		in.UpdatedFields = fields
	}
	return in, nil
}

// UnmarshalJSON applies the same lenient decoding to intents echoed back by
// clients.
func (in *Intent) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*in = decoded
	return nil
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []any:
		return asTags(x)
	}
	return ""
}

func asTags(v any) string {
	list, ok := v.([]any)
	if !ok {
		return asString(v)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		if s := asString(item); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

// AsString coerces a loosely typed JSON value to trimmed text.
func AsString(v any) string {
	return asString(v)
}

// AsTags joins a tag list, or returns a tag string unchanged.
func AsTags(v any) string {
	return asTags(v)
}

// AsID coerces a JSON id (number, numeric string, "#12") to an integer.
// Non-positive and unparseable values yield nil.
func AsID(v any) *int64 {
	return asID(v)
}

func asID(v any) *int64 {
	var id int64
	switch x := v.(type) {
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil || f != float64(int64(f)) {
				return nil
			}
			n = int64(f)
		}
		id = n
	case float64:
		if x != float64(int64(x)) {
			return nil
		}
		id = int64(x)
	case int64:
		id = x
	case int:
		id = int64(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(x), "#"), 10, 64)
		if err != nil {
			return nil
		}
		id = n
	default:
		return nil
	}
	if id <= 0 {
		return nil
	}
	return &id
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	}
	return false
}
