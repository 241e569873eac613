package provider

import (
	"net/url"
	"sort"
	"strings"

	"smallbiznis-rewards/pkg/celengine"
	"smallbiznis-rewards/pkg/config"
	"smallbiznis-rewards/pkg/errutil"
	"smallbiznis-rewards/pkg/signature"

	"go.uber.org/zap"
)

// AcceptAttrs is the typed shape of the normalized postback record that
// acceptance expressions are compiled against.
var AcceptAttrs = map[string]any{
	"provider":       "",
	"user_id":        "",
	"offer_id":       "",
	"transaction_id": "",
	"currency":       "",
	"status":         "",
	"amount":         float64(0),
	"reward":         int64(0),
}

// Registry is built once from configuration and never mutated afterwards.
type Registry struct {
	providers map[string]*Provider
}

func NewRegistry(cfg *config.Config) (*Registry, error) {
	env, err := celengine.BuildEnv(AcceptAttrs)
	if err != nil {
		return nil, err
	}

	r := &Registry{providers: make(map[string]*Provider, len(cfg.Providers))}
	for name, pc := range cfg.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		p := &Provider{
			Name:                name,
			Enabled:             pc.Enabled,
			Mode:                strings.ToLower(pc.Mode),
			Verify:              strings.ToLower(pc.Verify),
			Secret:              pc.Secret,
			SignatureHeader:     pc.SignatureHeader,
			RedirectURLTemplate: pc.RedirectURL,
			FetchURL:            pc.FetchURL,
			APIKey:              pc.APIKey,
		}
		if p.Mode == "" {
			p.Mode = ModeIframe
		}
		if p.Verify == "" {
			p.Verify = VerifyNone
		}
		if p.SignatureHeader == "" {
			p.SignatureHeader = DefaultSignatureHeader
		}

		nets, invalid := signature.ParseCIDRs(pc.AllowedIPs)
		if len(invalid) > 0 {
			zap.L().Warn("[Provider] ignoring invalid allowlist entries", zap.String("provider", name), zap.Strings("entries", invalid))
		}
		p.AllowedCIDRs = nets

		if expr := strings.TrimSpace(pc.AcceptExpr); expr != "" {
			pred, err := celengine.Compile(env, expr)
			if err != nil {
				zap.L().Error("[Provider] invalid accept expression, provider disabled", zap.String("provider", name), zap.Error(err))
				p.Enabled = false
			} else {
				p.Accept = pred
			}
		}

		if p.Enabled {
			if reason := missingConfig(p); reason != "" {
				zap.L().Error("[Provider] configuration error, provider disabled", zap.String("provider", name), zap.String("reason", reason))
				p.Enabled = false
			}
		}
		if p.Enabled && p.Verify == VerifyNone {
			zap.L().Warn("[Provider] postbacks are not verified", zap.String("provider", name))
		}

		r.providers[name] = p
	}

	zap.L().Info("[Provider] registry ready", zap.Strings("enabled", r.enabledNames()))
	return r, nil
}

func missingConfig(p *Provider) string {
	switch p.Verify {
	case VerifyHMAC, VerifyMD5:
		if p.Secret == "" {
			return "verification secret is missing"
		}
	case VerifyIP:
		if len(p.AllowedCIDRs) == 0 {
			return "ip allowlist is empty"
		}
	case VerifyNone:
	default:
		return "unknown verification method " + p.Verify
	}
	return ""
}

func (r *Registry) enabledNames() []string {
	var out []string
	for name, p := range r.providers {
		if p.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Get returns the provider by name, enabled or not.
func (r *Registry) Get(name string) (*Provider, bool) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (r *Registry) IsEnabled(name string) bool {
	p, ok := r.Get(name)
	return ok && p.Enabled
}

func (r *Registry) SupportsAPI(name string) bool {
	p, ok := r.Get(name)
	return ok && p.Enabled && p.Mode == ModeAPI
}

// APIProviders lists the enabled API-mode providers ordered by name.
func (r *Registry) APIProviders() []*Provider {
	var out []*Provider
	for _, name := range r.enabledNames() {
		if p := r.providers[name]; p.Mode == ModeAPI {
			out = append(out, p)
		}
	}
	return out
}

// BuildRedirectURL substitutes {user_id} into the provider's iframe template.
func (r *Registry) BuildRedirectURL(name, userID string) (string, error) {
	p, ok := r.Get(name)
	if !ok || !p.Enabled {
		return "", errutil.NotFound("provider not found", nil)
	}
	if p.Mode != ModeIframe {
		return "", errutil.BadRequest("provider does not support iframe mode", nil)
	}
	if p.RedirectURLTemplate == "" {
		return "", errutil.Unavailable("provider redirect url is not configured", nil)
	}
	if strings.TrimSpace(userID) == "" {
		return "", errutil.BadRequest("user_id is required", nil)
	}
	return strings.ReplaceAll(p.RedirectURLTemplate, "{user_id}", url.QueryEscape(userID)), nil
}
