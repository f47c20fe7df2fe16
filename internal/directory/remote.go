package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Marga-Ghale/ora-admin-console/internal/models"
	"github.com/spf13/cast"
)

// Remote talks to a directory exposed over HTTP. Responses go through
// Normalize before anything else sees them.
type Remote struct {
	baseURL string
	token   string
	client  *http.Client
	now     func() time.Time
}

func NewRemote(baseURL, token string, timeout time.Duration) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		now:     time.Now,
	}
}

// RemoteError is a non-2xx response.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("directory responded %d: %s", e.Status, e.Message)
}

func (e *RemoteError) ServiceMessage() string { return e.Message }

// Temporary reports whether retrying may help.
func (e *RemoteError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

func (r *Remote) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{Status: resp.StatusCode, Message: errorMessage(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func errorMessage(raw []byte) string {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, k := range []string{"message", "error", "detail"} {
			if v, ok := body[k]; ok {
				if s := cast.ToString(v); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// unwrap strips the {"data": ...} or {"organization": ...} envelope some
// directory versions add.
func unwrap(r Record, keys ...string) Record {
	for _, k := range keys {
		if inner, ok := r[k]; ok {
			if m, err := cast.ToStringMapE(inner); err == nil {
				return Record(m)
			}
		}
	}
	return r
}

func (r *Remote) organization(ctx context.Context, op, method, path string, body any) (*models.Organization, error) {
	var rec Record
	if err := r.do(ctx, method, path, body, &rec); err != nil {
		return nil, Fail(op, err)
	}
	org, err := Normalize(unwrap(rec, "data", "organization"), r.now())
	if err != nil {
		return nil, Fail(op, err)
	}
	return org, nil
}

func orgPath(id string, rest ...string) string {
	return "/organizations/" + url.PathEscape(id) + strings.Join(rest, "")
}

func (r *Remote) FetchOrganization(ctx context.Context, id string) (*models.Organization, error) {
	return r.organization(ctx, OpFetch, http.MethodGet, orgPath(id), nil)
}

func (r *Remote) ListOrganizations(ctx context.Context) ([]*models.Organization, error) {
	var raw json.RawMessage
	if err := r.do(ctx, http.MethodGet, "/organizations", nil, &raw); err != nil {
		return nil, Fail(OpList, err)
	}

	var items []Record
	if err := json.Unmarshal(raw, &items); err != nil {
		var env Record
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, Fail(OpList, err)
		}
		for _, k := range []string{"data", "organizations", "items"} {
			if list := env.list([]string{k}); list != nil {
				items = list
				break
			}
		}
	}

	now := r.now()
	out := make([]*models.Organization, 0, len(items))
	for _, it := range items {
		org, err := Normalize(it, now)
		if err != nil {
			return nil, Fail(OpList, err)
		}
		out = append(out, org)
	}
	return out, nil
}

func (r *Remote) UpdateOrganization(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	return r.organization(ctx, OpUpdate, http.MethodPatch, orgPath(id), patch)
}

func (r *Remote) SetOrganizationActive(ctx context.Context, id string, active bool, deactivation *models.Deactivation) error {
	if active {
		return Fail(OpSetActive, r.do(ctx, http.MethodPost, orgPath(id, "/activate"), nil, nil))
	}
	return Fail(OpSetActive, r.do(ctx, http.MethodPost, orgPath(id, "/deactivate"), deactivation, nil))
}

func (r *Remote) ExtendSubscription(ctx context.Context, id string, req models.ExtensionRequest) (*models.Organization, *models.SubscriptionExtension, error) {
	var rec Record
	if err := r.do(ctx, http.MethodPost, orgPath(id, "/subscription/extend"), req, &rec); err != nil {
		return nil, nil, Fail(OpExtend, err)
	}
	rec = unwrap(rec, "data")
	org, err := Normalize(unwrap(rec, "organization"), r.now())
	if err != nil {
		return nil, nil, Fail(OpExtend, err)
	}

	// extension details are optional; fall back to the newest history entry
	ext := extensionFrom(rec.sub([]string{"extension", "extensionDetails", "details"}))
	if ext == nil {
		if h := org.Subscription.History; len(h) > 0 {
			last := h[len(h)-1]
			ext = &last
		}
	}
	if ext == nil {
		return nil, nil, Fail(OpExtend, errors.New("directory returned no extension details"))
	}
	return org, ext, nil
}

func extensionFrom(r Record) *models.SubscriptionExtension {
	if r == nil {
		return nil
	}
	holder := Record{"history": []any{map[string]any(r)}}
	sub := normalizeSubscription(holder, time.Time{})
	if len(sub.History) == 0 {
		return nil
	}
	return &sub.History[0]
}

func (r *Remote) SaveMemberships(ctx context.Context, id string, members []models.Membership) (*models.Organization, error) {
	return r.organization(ctx, OpSaveMemberships, http.MethodPut, orgPath(id, "/members"), map[string]any{"members": members})
}
