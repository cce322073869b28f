package engine

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const denyQuery = "data.hancock.create.deny"

// Default creation policy. Extra modules in package hancock.create may add deny rules.
const defaultRegoPolicy = `package hancock.create

max_title_length := 512

max_declaration_length := 65536

deny contains msg if {
	count(input.config.redirect_allowed_hosts) > 0
	not redirect_host_allowed
	msg := sprintf("redirect_uri host %q is not allowed", [input.redirect.host])
}

redirect_host_allowed if {
	some h in input.config.redirect_allowed_hosts
	h == input.redirect.host
}

redirect_host_allowed if {
	some h in input.config.redirect_allowed_hosts
	startswith(h, ".")
	endswith(input.redirect.host, h)
}

deny contains msg if {
	count(input.details.title) > max_title_length
	msg := sprintf("title exceeds %d characters", [max_title_length])
}

deny contains msg if {
	count(input.details.declaration) > max_declaration_length
	msg := sprintf("declaration exceeds %d characters", [max_declaration_length])
}
`

// OPAEvaluator evaluates the session creation policy with OPA Rego.
type OPAEvaluator struct {
	query        rego.PreparedEvalQuery
	allowedHosts []string
}

// NewOPAEvaluator compiles the default policy plus any extra modules.
// allowedHosts restricts redirect_uri hosts; a leading dot matches subdomains.
func NewOPAEvaluator(ctx context.Context, allowedHosts []string, extraModules ...string) (*OPAEvaluator, error) {
	modules := map[string]string{"policy_0.rego": defaultRegoPolicy}
	for i, m := range extraModules {
		modules[fmt.Sprintf("policy_%d.rego", i+1)] = m
	}
	compiler, err := ast.CompileModules(modules)
	if err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}
	pq, err := rego.New(
		rego.Query(denyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare policy query: %w", err)
	}
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &OPAEvaluator{query: pq, allowedHosts: hosts}, nil
}

// HealthCheck evaluates the policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateCreate(ctx, CreateInput{})
	return err
}

// EvaluateCreate returns Allow=false with the fired deny messages when any deny rule matches.
func (e *OPAEvaluator) EvaluateCreate(ctx context.Context, in CreateInput) (Decision, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.buildInput(in)))
	if err != nil {
		return Decision{}, fmt.Errorf("eval creation policy: %w", err)
	}
	var reasons []string
	if len(rs) > 0 && len(rs[0].Expressions) > 0 {
		set, ok := rs[0].Expressions[0].Value.([]interface{})
		if !ok {
			return Decision{}, fmt.Errorf("creation policy: unexpected deny value %T", rs[0].Expressions[0].Value)
		}
		for _, v := range set {
			if s, ok := v.(string); ok {
				reasons = append(reasons, s)
			}
		}
	}
	sort.Strings(reasons)
	return Decision{Allow: len(reasons) == 0, Reasons: reasons}, nil
}

func (e *OPAEvaluator) buildInput(in CreateInput) map[string]interface{} {
	redirect := map[string]interface{}{"scheme": "", "host": ""}
	if u, err := url.Parse(strings.TrimSpace(in.Details.RedirectURI)); err == nil {
		redirect["scheme"] = strings.ToLower(u.Scheme)
		redirect["host"] = strings.ToLower(u.Hostname())
	}
	hosts := make([]interface{}, len(e.allowedHosts))
	for i, h := range e.allowedHosts {
		hosts[i] = h
	}
	return map[string]interface{}{
		"organization": in.Organization,
		"exists":       in.Exists,
		"details": map[string]interface{}{
			"title":        in.Details.Title,
			"declaration":  in.Details.Declaration,
			"signee_email": in.Details.SigneeEmail,
			"redirect_uri": in.Details.RedirectURI,
		},
		"redirect": redirect,
		"config": map[string]interface{}{
			"redirect_allowed_hosts": hosts,
		},
	}
}
