package storage

import (
	"encoding/json"
	"time"
)

// Report defines the structure of records stored for every failed case
type Report struct {
	Case                     string          `json:"case"`                                 // Case name from the configuration
	Method                   string          `json:"method"`                               // HTTP method
	Endpoint                 string          `json:"endpoint"`                             // Endpoint after placeholder substitution
	Route                    string          `json:"route"`                                // Formatted route (METHOD:/path)
	ComparisonType           string          `json:"comparison_type"`                      // "shape_diff", "transport_error", "serialization_error"
	Path                     string          `json:"path,omitempty"`                       // JSON pointer of the first divergence
	ClientValue              json.RawMessage `json:"client_value,omitempty"`               // Candidate value at Path
	ReferenceValue           json.RawMessage `json:"reference_value,omitempty"`            // Reference value at Path
	Error                    string          `json:"error"`                                // Rendered failure
	RequestBody              *string         `json:"request_body,omitempty"`               // Request body (if StoreReqBody is enabled)
	CandidateStatusCode      int             `json:"candidate_status_code,omitempty"`
	ReferenceStatusCode      int             `json:"reference_status_code,omitempty"`
	CandidateResponsePayload *string         `json:"candidate_response_payload,omitempty"` // Raw reply (if StoreRespBodies is enabled)
	ReferenceResponsePayload *string         `json:"reference_response_payload,omitempty"`
	Timestamp                time.Time       `json:"@timestamp"`
}
