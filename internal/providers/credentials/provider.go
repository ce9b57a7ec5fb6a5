package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/velabrowser/vela/backend/internal/infrastructure/monitoring"
	"github.com/velabrowser/vela/backend/internal/shared/types"
)

// Provider exposes the credential manager to UI collaborators.
type Provider struct {
	store   *Store
	ctrl    *Controller
	icons   *IconFetcher
	metrics *monitoring.Metrics
}

// NewProvider wires the credentials provider.
func NewProvider(store *Store, ctrl *Controller, icons *IconFetcher, metrics *monitoring.Metrics) *Provider {
	p := &Provider{store: store, ctrl: ctrl, icons: icons, metrics: metrics}
	if metrics != nil {
		metrics.VaultRecords.Set(float64(store.Count()))
	}
	return p
}

// Controller exposes the page-message handler for channel routing.
func (p *Provider) Controller() *Controller {
	return p.ctrl
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:          "credentials",
		Name:        "Credential Manager",
		Description: "Encrypted password storage with authenticated autofill",
		Category:    types.CategoryCredentials,
		Capabilities: []string{
			"save",
			"check",
			"delete",
			"list",
			"never_save",
			"autofill",
		},
		Tools: []types.Tool{
			{
				ID:          "credentials.list",
				Name:        "List Credentials",
				Description: "List saved credentials without secrets, most recent first",
				Parameters:  []types.Parameter{},
				Returns:     "array",
			},
			{
				ID:          "credentials.check",
				Name:        "Check Existing",
				Description: "Classify a candidate secret as none/same/different",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
					{Name: "username", Type: "string", Description: "Username", Required: true},
					{Name: "secret", Type: "string", Description: "Candidate secret", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "credentials.save",
				Name:        "Save Credential",
				Description: "Insert or overwrite a credential for an origin",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
					{Name: "username", Type: "string", Description: "Username", Required: true},
					{Name: "secret", Type: "string", Description: "Secret", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "credentials.delete",
				Name:        "Delete Credential",
				Description: "Remove one credential record",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
					{Name: "username", Type: "string", Description: "Username", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "credentials.delete_origin",
				Name:        "Delete Origin",
				Description: "Remove all credentials for an origin",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
				},
				Returns: "object",
			},
			{
				ID:          "credentials.never_save",
				Name:        "Mark Never Save",
				Description: "Suppress save prompts for an origin",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "credentials.allow_save",
				Name:        "Allow Save",
				Description: "Re-enable save prompts for an origin",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "credentials.never_save_list",
				Name:        "List Never-Save Sites",
				Description: "List origins with save prompts suppressed",
				Parameters:  []types.Parameter{},
				Returns:     "array",
			},
			{
				ID:          "credentials.prompt_response",
				Name:        "Answer Prompt",
				Description: "Apply a save/never/dismiss action to the pending prompt",
				Parameters: []types.Parameter{
					{Name: "prompt_id", Type: "string", Description: "Prompt identifier", Required: true},
					{Name: "action", Type: "string", Description: "save, never or dismiss", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "credentials.autofill_select",
				Name:        "Select Autofill Entry",
				Description: "Fill the selected credential after re-authentication",
				Parameters: []types.Parameter{
					{Name: "tab_id", Type: "string", Description: "Tab identifier", Required: true},
					{Name: "username", Type: "string", Description: "Selected username", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "credentials.icon",
				Name:        "Site Icon",
				Description: "Resolve a favicon data URI for display",
				Parameters: []types.Parameter{
					{Name: "origin", Type: "string", Description: "Site origin", Required: true},
				},
				Returns: "object",
			},
		},
	}
}

// Execute routes tool calls
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "credentials.list":
		return p.list()
	case "credentials.check":
		return p.check(params)
	case "credentials.save":
		return p.save(params)
	case "credentials.delete":
		return p.delete(params)
	case "credentials.delete_origin":
		return p.deleteOrigin(params)
	case "credentials.never_save":
		return p.neverSave(params)
	case "credentials.allow_save":
		return p.allowSave(params)
	case "credentials.never_save_list":
		return types.Success(map[string]interface{}{"origins": p.store.NeverSaveList()})
	case "credentials.prompt_response":
		return p.promptResponse(params)
	case "credentials.autofill_select":
		return p.autofillSelect(ctx, params)
	case "credentials.icon":
		return p.icon(ctx, params)
	default:
		return types.Failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func requireString(params map[string]interface{}, name string) (string, bool) {
	v, ok := params[name].(string)
	return v, ok && v != ""
}

func (p *Provider) list() (*types.Result, error) {
	entries := p.store.List()
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"origin":     e.Origin,
			"username":   e.Username,
			"created_at": e.CreatedAt,
			"updated_at": e.UpdatedAt,
		})
	}
	return types.Success(map[string]interface{}{"credentials": out, "count": len(out)})
}

func (p *Provider) check(params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}
	username, ok := requireString(params, "username")
	if !ok {
		return types.Failure("username parameter required")
	}
	secret, ok := requireString(params, "secret")
	if !ok {
		return types.Failure("secret parameter required")
	}

	match := p.store.CheckExisting(origin, username, secret)
	return types.Success(map[string]interface{}{"match": string(match)})
}

func (p *Provider) save(params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}
	username, _ := params["username"].(string)
	secret, _ := params["secret"].(string)

	err := p.store.Save(origin, username, secret)
	p.countOp("save", err)
	if err != nil {
		if errors.Is(err, ErrInvalidCredential) {
			return types.Failure("username and secret must be non-empty")
		}
		return types.Failure(fmt.Sprintf("save failed: %v", err))
	}

	if p.metrics != nil {
		p.metrics.VaultRecords.Set(float64(p.store.Count()))
	}
	return types.Success(map[string]interface{}{"saved": true})
}

func (p *Provider) delete(params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}
	username, ok := requireString(params, "username")
	if !ok {
		return types.Failure("username parameter required")
	}

	removed, err := p.store.Delete(origin, username)
	p.countOp("delete", err)
	if err != nil {
		return types.Failure(fmt.Sprintf("delete failed: %v", err))
	}
	if p.metrics != nil {
		p.metrics.VaultRecords.Set(float64(p.store.Count()))
	}
	return types.Success(map[string]interface{}{"removed": removed})
}

func (p *Provider) deleteOrigin(params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}

	n, err := p.store.DeleteOrigin(origin)
	p.countOp("delete_origin", err)
	if err != nil {
		return types.Failure(fmt.Sprintf("delete failed: %v", err))
	}
	if p.metrics != nil {
		p.metrics.VaultRecords.Set(float64(p.store.Count()))
	}
	return types.Success(map[string]interface{}{"removed": n})
}

func (p *Provider) neverSave(params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}
	if err := p.store.MarkNeverSave(origin); err != nil {
		return types.Failure(fmt.Sprintf("persist failed: %v", err))
	}
	return types.Success(map[string]interface{}{"marked": true})
}

func (p *Provider) allowSave(params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}
	if err := p.store.AllowSave(origin); err != nil {
		return types.Failure(fmt.Sprintf("persist failed: %v", err))
	}
	return types.Success(map[string]interface{}{"allowed": true})
}

func (p *Provider) promptResponse(params map[string]interface{}) (*types.Result, error) {
	promptID, ok := requireString(params, "prompt_id")
	if !ok {
		return types.Failure("prompt_id parameter required")
	}
	action, ok := requireString(params, "action")
	if !ok {
		return types.Failure("action parameter required")
	}

	switch PromptAction(action) {
	case ActionSave, ActionNever, ActionDismiss:
	default:
		return types.Failure(fmt.Sprintf("unknown action: %s", action))
	}

	if err := p.ctrl.ResolvePrompt(promptID, PromptAction(action)); err != nil {
		return types.Failure(fmt.Sprintf("prompt action failed: %v", err))
	}
	return types.Success(map[string]interface{}{"applied": true})
}

func (p *Provider) autofillSelect(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	tabID, ok := requireString(params, "tab_id")
	if !ok {
		return types.Failure("tab_id parameter required")
	}
	username, ok := requireString(params, "username")
	if !ok {
		return types.Failure("username parameter required")
	}

	if p.metrics != nil {
		p.metrics.AutofillEvents.WithLabelValues("select").Inc()
	}
	if err := p.ctrl.RequestAutofill(ctx, tabID, username); err != nil {
		return types.Failure(fmt.Sprintf("autofill failed: %v", err))
	}
	return types.Success(map[string]interface{}{"requested": true})
}

func (p *Provider) icon(ctx context.Context, params map[string]interface{}) (*types.Result, error) {
	origin, ok := requireString(params, "origin")
	if !ok {
		return types.Failure("origin parameter required")
	}
	if p.icons == nil {
		return types.Success(map[string]interface{}{"icon": ""})
	}
	return types.Success(map[string]interface{}{"icon": p.icons.Fetch(ctx, origin)})
}

func (p *Provider) countOp(op string, err error) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.metrics.VaultOps.WithLabelValues(op, outcome).Inc()
}
