package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"resource-graph/pkg/api"
	"resource-graph/pkg/platform"
)

// HTTPCollaborator reaches every enrichment collaborator through one JSON
// endpoint, laid out as {base}/{area}/{collection}. A 404 means the
// collaborator has nothing for that resource, which is a normal outcome
// and yields an empty result rather than an error.
type HTTPCollaborator struct {
	base   string
	client *platform.HTTPClient
}

func NewHTTPCollaborator(base string, client *platform.HTTPClient) *HTTPCollaborator {
	return &HTTPCollaborator{base: base, client: client}
}

var (
	_ TagService           = (*HTTPCollaborator)(nil)
	_ EventSource          = (*HTTPCollaborator)(nil)
	_ ObservabilityService = (*HTTPCollaborator)(nil)
	_ DetailService        = (*HTTPCollaborator)(nil)
	_ ComplianceService    = (*HTTPCollaborator)(nil)
)

func (c *HTTPCollaborator) get(ctx context.Context, path string, out any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	resp, err := c.client.GetJSON(c.base + path)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("collaborator returned %s for %s", resp.Status, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode collaborator response: %w", err)
	}
	return true, nil
}

func (c *HTTPCollaborator) Tags(ctx context.Context, nativeID string) (map[string]string, error) {
	var body struct {
		Tags map[string]string `json:"tags"`
	}
	if ok, err := c.get(ctx, "/tags/"+url.PathEscape(nativeID), &body); !ok {
		return nil, err
	}
	return body.Tags, nil
}

func (c *HTTPCollaborator) Bindings(ctx context.Context) ([]EventBinding, error) {
	var body struct {
		Bindings []struct {
			SourceRef string `json:"sourceRef"`
			TargetRef string `json:"targetRef"`
			Kind      string `json:"kind"`
		} `json:"bindings"`
	}
	if ok, err := c.get(ctx, "/events/bindings", &body); !ok {
		return nil, err
	}
	out := make([]EventBinding, 0, len(body.Bindings))
	for _, b := range body.Bindings {
		out = append(out, EventBinding{
			SourceRef: b.SourceRef,
			TargetRef: b.TargetRef,
			Kind:      api.RelationshipType(b.Kind),
		})
	}
	return out, nil
}

func (c *HTTPCollaborator) Routes(ctx context.Context) ([]Route, error) {
	var body struct {
		Routes []struct {
			Caller string `json:"caller"`
			Callee string `json:"callee"`
		} `json:"routes"`
	}
	if ok, err := c.get(ctx, "/observability/routes", &body); !ok {
		return nil, err
	}
	out := make([]Route, 0, len(body.Routes))
	for _, r := range body.Routes {
		out = append(out, Route{CallerRef: r.Caller, CalleeRef: r.Callee})
	}
	return out, nil
}

func (c *HTTPCollaborator) Alarms(ctx context.Context) ([]Alarm, error) {
	var body struct {
		Alarms []struct {
			Name      string `json:"name"`
			Metric    string `json:"metric"`
			TargetRef string `json:"targetRef"`
		} `json:"alarms"`
	}
	if ok, err := c.get(ctx, "/observability/alarms", &body); !ok {
		return nil, err
	}
	out := make([]Alarm, 0, len(body.Alarms))
	for _, a := range body.Alarms {
		out = append(out, Alarm{Name: a.Name, Metric: a.Metric, TargetRef: a.TargetRef})
	}
	return out, nil
}

func (c *HTTPCollaborator) Details(ctx context.Context, nativeID string) (map[string]any, error) {
	var body struct {
		Details map[string]any `json:"details"`
	}
	if ok, err := c.get(ctx, "/details/"+url.PathEscape(nativeID), &body); !ok {
		return nil, err
	}
	return body.Details, nil
}

func (c *HTTPCollaborator) DNSRecords(ctx context.Context) ([]DNSRecord, error) {
	var body struct {
		Records []struct {
			Name   string `json:"name"`
			Target string `json:"target"`
		} `json:"records"`
	}
	if ok, err := c.get(ctx, "/dns/records", &body); !ok {
		return nil, err
	}
	out := make([]DNSRecord, 0, len(body.Records))
	for _, r := range body.Records {
		out = append(out, DNSRecord{Name: r.Name, Target: r.Target})
	}
	return out, nil
}

func (c *HTTPCollaborator) Evaluations(ctx context.Context, nativeID string) ([]Violation, error) {
	var body struct {
		Violations []struct {
			Rule     string `json:"rule"`
			Severity string `json:"severity"`
		} `json:"violations"`
	}
	if ok, err := c.get(ctx, "/compliance/"+url.PathEscape(nativeID), &body); !ok {
		return nil, err
	}
	out := make([]Violation, 0, len(body.Violations))
	for _, v := range body.Violations {
		out = append(out, Violation{Rule: v.Rule, Severity: v.Severity})
	}
	return out, nil
}

// NewHTTPPipeline assembles the full pass set against one HTTP
// collaborator endpoint.
func NewHTTPPipeline(base string, client *platform.HTTPClient, logger *slog.Logger) *Pipeline {
	collab := NewHTTPCollaborator(base, client)
	return NewPipeline(logger,
		&TagBackfill{Service: collab, Logger: logger},
		&EventWiring{Source: collab},
		&ObservabilityOverlay{Service: collab},
		&ServiceDetail{Service: collab, Logger: logger},
		&ComplianceOverlay{Service: collab, Logger: logger},
	)
}
