// pkg/registry/schema.go
package registry

const (
	KindInspection = "inspection"
	KindReport     = "report"
)

// FormRegistry is the on-disk list of form templates served by the gateway.
type FormRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated,omitempty"`
	Templates   []Template `json:"templates"`
}

// Template describes one dynamic form: the JSON schema its documents must
// satisfy, the document a new draft starts from, and the backend endpoint
// that receives submitted documents.
type Template struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	Kind        string                 `json:"kind"`
	Version     string                 `json:"version"`
	Schema      map[string]interface{} `json:"schema"`
	Defaults    map[string]interface{} `json:"defaults"`
	SubmitPath  string                 `json:"submitPath"`
	Tags        []string               `json:"tags,omitempty"`
}
