package treelog

import "fmt"

// validateScalarMap checks that every value in m is one of the scalar types
// a LogEntry/metadata map is allowed to carry: string, integer, floating
// point, or boolean. fieldName is used only to build a useful error.
func validateScalarMap(fieldName string, m map[string]any) error {
	for key, value := range m {
		switch value.(type) {
		case string, int, int32, int64, float32, float64, bool:
			continue
		default:
			return &ValidationError{
				Field:  fieldName,
				Reason: fmt.Sprintf("value for key %q must be string, int, float, or bool, got %T", key, value),
			}
		}
	}
	return nil
}

// dedupTags returns tags with duplicates removed, preserving first-seen
// order. Input duplicates are allowed; the result never contains any.
func dedupTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// validateLogCall validates the arguments to Log/Branch.Log and normalizes
// message_type to a MessageType value.
func validateLogCall(message string, messageType any, entryMetadata map[string]any) (MessageType, error) {
	var mt MessageType
	switch v := messageType.(type) {
	case MessageType:
		if !v.valid() {
			return "", &ValidationError{Field: "message_type", Reason: fmt.Sprintf("unknown message type %q", v)}
		}
		mt = v
	case string:
		parsed, err := ParseMessageType(v)
		if err != nil {
			return "", err
		}
		mt = parsed
	default:
		return "", &ValidationError{Field: "message_type", Reason: fmt.Sprintf("must be a MessageType or string, got %T", messageType)}
	}

	if entryMetadata != nil {
		if err := validateScalarMap("entry_metadata", entryMetadata); err != nil {
			return "", err
		}
	}

	_ = message // message is always a string at the Go type level; kept for symmetry with the original API.

	return mt, nil
}

// validateTagsAndMetadata normalizes a set of positional tag lists /
// metadata maps plus explicit tags/metadata arguments the way Apply/Fork
// accept them: tags are unioned across every source, metadata dictionaries
// are merged left-to-right with last-write-wins.
func validateTagsAndMetadata(combinables []any, tags []string, metadata map[string]any) ([]string, map[string]any, error) {
	mergedTags := append([]string{}, tags...)
	mergedMetadata := make(map[string]any, len(metadata))
	for k, v := range metadata {
		mergedMetadata[k] = v
	}

	for _, c := range combinables {
		switch v := c.(type) {
		case []string:
			mergedTags = append(mergedTags, v...)
		case map[string]any:
			for k, val := range v {
				mergedMetadata[k] = val
			}
		default:
			return nil, nil, &ValidationError{
				Field:  "combinables",
				Reason: fmt.Sprintf("each argument must be []string or map[string]any, got %T", c),
			}
		}
	}

	mergedTags = dedupTags(mergedTags)

	if len(mergedMetadata) > 0 {
		if err := validateScalarMap("metadata", mergedMetadata); err != nil {
			return nil, nil, err
		}
	}

	if len(mergedTags) == 0 {
		mergedTags = nil
	}
	if len(mergedMetadata) == 0 {
		mergedMetadata = nil
	}

	return mergedTags, mergedMetadata, nil
}
