package messagequeue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope wraps every unit of work enqueued onto the dispatcher. The ID
// identifies the unit across redeliveries.
type Envelope struct {
	ID      string          `json:"id"`
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload"`
}

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	if strings.HasPrefix(subject, SubjectTaskPrefix+".") {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if env.Task == "" {
			return fmt.Errorf("missing task name on subject %s", subject)
		}
	}
	return nil
}
