// Package track mirrors organizations, programs and team assignments to
// the external Track tables service. The mirror is one-way: records are
// pushed out and nothing is ever written back locally.
package track

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fieldwork/pkg/config"
	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

const fingerprintCacheSize = 4096

// Client pushes records to the Track service. Each record carries an
// external_id so repeated pushes are upserts on the Track side. A
// fingerprint cache skips records that have not changed since the last
// successful push.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	fingerprints *lru.Cache[string, string]
	log          *logrus.Entry
}

// NewClient creates a Track client from configuration
func NewClient(cfg config.TrackConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("track URL not configured")
	}
	cache, err := lru.New[string, string](fingerprintCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint cache: %w", err)
	}
	return &Client{
		baseURL:      cfg.URL,
		token:        cfg.Token,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		fingerprints: cache,
		log:          logrus.WithField("component", "track"),
	}, nil
}

type orgPayload struct {
	ExternalID  int64  `json:"external_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type programPayload struct {
	ExternalID     int64  `json:"external_id"`
	OrganizationID int64  `json:"organization_external_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
}

type assignmentPayload struct {
	ExternalID   int64  `json:"external_id"`
	MembershipID int64  `json:"membership_external_id"`
	ProgramID    int64  `json:"program_external_id"`
	Role         string `json:"role"`
	PartnerOrgID int64  `json:"partner_org_external_id,omitempty"`
}

// SyncOrganization pushes one organization to Track
func (c *Client) SyncOrganization(ctx context.Context, org *workflow.Organization) error {
	payload := orgPayload{ExternalID: org.ID, Name: org.Name, Description: org.Description}
	return c.push(ctx, "organizations", fmt.Sprintf("org:%d", org.ID), payload)
}

// SyncProgram pushes one program to Track
func (c *Client) SyncProgram(ctx context.Context, p *workflow.Program) error {
	payload := programPayload{
		ExternalID:     p.ID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Description:    p.Description,
	}
	return c.push(ctx, "programs", fmt.Sprintf("program:%d", p.ID), payload)
}

// SyncTeamAssignment pushes one team assignment to Track
func (c *Client) SyncTeamAssignment(ctx context.Context, ta *workflow.TeamAssignment) error {
	payload := assignmentPayload{
		ExternalID:   ta.ID,
		MembershipID: ta.MembershipID,
		ProgramID:    ta.ProgramID,
		Role:         string(ta.Role),
		PartnerOrgID: ta.PartnerOrgID,
	}
	return c.push(ctx, "team-assignments", fmt.Sprintf("assignment:%d", ta.ID), payload)
}

// push sends one record unless its fingerprint matches the last
// successful push for the same key
func (c *Client) push(ctx context.Context, resource, key string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", resource, err)
	}

	sum := sha256.Sum256(body)
	fingerprint := hex.EncodeToString(sum[:])
	if prev, ok := c.fingerprints.Get(key); ok && prev == fingerprint {
		c.log.WithField("key", key).Debug("record unchanged, skipping push")
		return nil
	}

	url := fmt.Sprintf("%s/api/%s/", c.baseURL, resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build track request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to push %s to track: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("track rejected %s push: status %d", resource, resp.StatusCode)
	}

	c.fingerprints.Add(key, fingerprint)
	c.log.WithFields(logrus.Fields{"key": key, "status": resp.StatusCode}).Debug("pushed record to track")
	return nil
}
