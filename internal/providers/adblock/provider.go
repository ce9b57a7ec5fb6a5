package adblock

import (
	"context"
	"fmt"

	"github.com/velabrowser/vela/backend/internal/shared/types"
)

// Provider exposes the blocking engine and cosmetic filter payloads.
type Provider struct {
	engine      *Engine
	cosmeticCSS string
	cosmeticJS  string
}

// NewProvider wires the adblock provider. The cosmetic payloads are built
// once at startup by the pagescript package and served verbatim.
func NewProvider(engine *Engine, cosmeticCSS, cosmeticJS string) *Provider {
	return &Provider{engine: engine, cosmeticCSS: cosmeticCSS, cosmeticJS: cosmeticJS}
}

// Engine exposes the decision engine for the network interception point.
func (p *Provider) Engine() *Engine {
	return p.engine
}

// Definition returns service metadata
func (p *Provider) Definition() types.Service {
	return types.Service{
		ID:          "adblock",
		Name:        "Ad Blocker",
		Description: "Request-level ad and tracker blocking with cosmetic filtering",
		Category:    types.CategoryAdblock,
		Capabilities: []string{
			"check",
			"toggle",
			"stats",
			"whitelist",
			"cosmetic",
		},
		Tools: []types.Tool{
			{
				ID:          "adblock.check",
				Name:        "Check Request",
				Description: "Decide whether an outbound request should be blocked",
				Parameters: []types.Parameter{
					{Name: "url", Type: "string", Description: "Request URL", Required: true},
					{Name: "page_url", Type: "string", Description: "Referring page URL", Required: false},
					{Name: "tab_id", Type: "string", Description: "Tab identifier", Required: false},
					{Name: "top_level", Type: "boolean", Description: "True for top-level navigations", Required: false},
				},
				Returns: "object",
			},
			{
				ID:          "adblock.toggle",
				Name:        "Toggle Blocking",
				Description: "Flip the global enabled flag",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
			{
				ID:          "adblock.stats",
				Name:        "Blocking Stats",
				Description: "Aggregate session/total/per-tab block counters",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
			{
				ID:          "adblock.whitelist",
				Name:        "List Whitelist",
				Description: "List hostnames exempt from blocking",
				Parameters:  []types.Parameter{},
				Returns:     "array",
			},
			{
				ID:          "adblock.whitelist_add",
				Name:        "Whitelist Host",
				Description: "Exempt a hostname from blocking",
				Parameters: []types.Parameter{
					{Name: "host", Type: "string", Description: "Hostname", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "adblock.whitelist_remove",
				Name:        "Unwhitelist Host",
				Description: "Remove a hostname exemption",
				Parameters: []types.Parameter{
					{Name: "host", Type: "string", Description: "Hostname", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "adblock.tab_closed",
				Name:        "Tab Closed",
				Description: "Discard per-tab counters for a closed tab",
				Parameters: []types.Parameter{
					{Name: "tab_id", Type: "string", Description: "Tab identifier", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "adblock.tab_navigated",
				Name:        "Tab Navigated",
				Description: "Reset the per-tab counter on navigation",
				Parameters: []types.Parameter{
					{Name: "tab_id", Type: "string", Description: "Tab identifier", Required: true},
				},
				Returns: "boolean",
			},
			{
				ID:          "adblock.cosmetic_css",
				Name:        "Cosmetic CSS",
				Description: "CSS payload hiding known ad elements, for page injection",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
			{
				ID:          "adblock.cosmetic_script",
				Name:        "Cosmetic Script",
				Description: "Behavioral script payload for page injection",
				Parameters:  []types.Parameter{},
				Returns:     "object",
			},
		},
	}
}

// Execute routes tool calls
func (p *Provider) Execute(ctx context.Context, toolID string, params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	switch toolID {
	case "adblock.check":
		return p.check(params, appCtx)
	case "adblock.toggle":
		return types.Success(map[string]interface{}{"enabled": p.engine.Toggle()})
	case "adblock.stats":
		return types.Success(p.engine.Stats())
	case "adblock.whitelist":
		return types.Success(map[string]interface{}{"hosts": p.engine.Whitelist()})
	case "adblock.whitelist_add":
		return p.whitelistAdd(params)
	case "adblock.whitelist_remove":
		return p.whitelistRemove(params)
	case "adblock.tab_closed":
		return p.tabClosed(params)
	case "adblock.tab_navigated":
		return p.tabNavigated(params)
	case "adblock.cosmetic_css":
		return types.Success(map[string]interface{}{"css": p.cosmeticCSS})
	case "adblock.cosmetic_script":
		return types.Success(map[string]interface{}{"script": p.cosmeticJS})
	default:
		return types.Failure(fmt.Sprintf("unknown tool: %s", toolID))
	}
}

func (p *Provider) check(params map[string]interface{}, appCtx *types.Context) (*types.Result, error) {
	url, ok := params["url"].(string)
	if !ok || url == "" {
		return types.Failure("url parameter required")
	}
	pageURL, _ := params["page_url"].(string)
	topLevel, _ := params["top_level"].(bool)

	tabID, _ := params["tab_id"].(string)
	if tabID == "" && appCtx != nil && appCtx.TabID != nil {
		tabID = *appCtx.TabID
	}

	blocked := p.engine.ShouldBlock(url, pageURL, tabID, topLevel)
	return types.Success(map[string]interface{}{"block": blocked})
}

func (p *Provider) whitelistAdd(params map[string]interface{}) (*types.Result, error) {
	host, ok := params["host"].(string)
	if !ok || host == "" {
		return types.Failure("host parameter required")
	}
	p.engine.WhitelistAdd(host)
	return types.Success(map[string]interface{}{"added": true})
}

func (p *Provider) whitelistRemove(params map[string]interface{}) (*types.Result, error) {
	host, ok := params["host"].(string)
	if !ok || host == "" {
		return types.Failure("host parameter required")
	}
	p.engine.WhitelistRemove(host)
	return types.Success(map[string]interface{}{"removed": true})
}

func (p *Provider) tabClosed(params map[string]interface{}) (*types.Result, error) {
	tabID, ok := params["tab_id"].(string)
	if !ok || tabID == "" {
		return types.Failure("tab_id parameter required")
	}
	p.engine.TabClosed(tabID)
	return types.Success(map[string]interface{}{"cleared": true})
}

func (p *Provider) tabNavigated(params map[string]interface{}) (*types.Result, error) {
	tabID, ok := params["tab_id"].(string)
	if !ok || tabID == "" {
		return types.Failure("tab_id parameter required")
	}
	p.engine.TabNavigated(tabID)
	return types.Success(map[string]interface{}{"reset": true})
}
