package types

// Category represents service categories
type Category string

const (
	CategoryCredentials Category = "credentials"
	CategoryAdblock     Category = "adblock"
	CategoryPageScript  Category = "pagescript"
	CategorySystem      Category = "system"
)

// Service represents a service definition
type Service struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Category     Category `json:"category"`
	Capabilities []string `json:"capabilities"`
	Tools        []Tool   `json:"tools"`
}

// Tool represents a service tool
type Tool struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Returns     string      `json:"returns"`
}

// Parameter represents a tool parameter
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Context provides execution context for tool calls. TabID identifies the
// originating webview/tab when the call is made on behalf of a page.
type Context struct {
	TabID  *string `json:"tab_id,omitempty"`
	UserID *string `json:"user_id,omitempty"`
}

// Result represents a service execution result
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *string                `json:"error,omitempty"`
}

// Success builds a successful result.
func Success(data map[string]interface{}) (*Result, error) {
	return &Result{Success: true, Data: data}, nil
}

// Failure builds a failed result without a Go-level error.
func Failure(message string) (*Result, error) {
	return &Result{Success: false, Error: &message}, nil
}
