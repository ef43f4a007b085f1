package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"resource-graph/pkg/platform"
)

// RESTLister fetches raw records from a JSON inventory endpoint, for
// source kinds reached over plain HTTP (ARM-style resource lists,
// cluster API proxies). The endpoint lays out collections as
// {base}/{service}/{operation} with region and pageToken query
// parameters, and signals completion by omitting nextToken.
type RESTLister struct {
	base   string
	client *platform.HTTPClient
}

func NewRESTLister(base string, client *platform.HTTPClient) *RESTLister {
	return &RESTLister{base: base, client: client}
}

// Ping verifies the inventory endpoint answers at all.
func (l *RESTLister) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := l.client.GetJSON(l.base + "/healthz")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("inventory endpoint unhealthy: %s", resp.Status)
	}
	return nil
}

func (l *RESTLister) List(ctx context.Context, desc TypeDescriptor, pageToken string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if desc.Region != "" {
		q.Set("region", desc.Region)
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", l.base, desc.Service, desc.Operation)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	resp, err := l.client.GetJSON(endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("inventory list failed: %s", resp.Status)
	}

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode inventory page: %w", err)
	}

	next, _ := body["nextToken"].(string)
	if next == "" {
		next, _ = body["nextLink"].(string)
	}
	return &Page{Body: body, NextToken: next}, nil
}
