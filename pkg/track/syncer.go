package track

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/fieldwork/pkg/workflow"
)

// Syncer walks the workflow store and mirrors every organization,
// program and team assignment to Track
type Syncer struct {
	store  *workflow.Store
	client *Client
	log    *logrus.Entry
}

// NewSyncer creates a new Syncer
func NewSyncer(store *workflow.Store, client *Client) *Syncer {
	return &Syncer{
		store:  store,
		client: client,
		log:    logrus.WithField("component", "track-syncer"),
	}
}

// Stats summarizes one sync run
type Stats struct {
	Organizations   int
	Programs        int
	TeamAssignments int
	Errors          int
}

// SyncAll pushes every record once. Individual push failures are counted
// and logged but do not stop the run.
func (s *Syncer) SyncAll(ctx context.Context) (Stats, error) {
	var stats Stats
	all := workflow.Filter{All: true}

	orgs, err := s.store.ListOrganizations(ctx, all)
	if err != nil {
		return stats, fmt.Errorf("failed to list organizations for sync: %w", err)
	}
	for _, org := range orgs {
		if err := s.client.SyncOrganization(ctx, org); err != nil {
			stats.Errors++
			s.log.WithError(err).WithField("org_id", org.ID).Warn("organization sync failed")
			continue
		}
		stats.Organizations++
	}

	programs, err := s.store.ListPrograms(ctx, all)
	if err != nil {
		return stats, fmt.Errorf("failed to list programs for sync: %w", err)
	}
	for _, p := range programs {
		if err := s.client.SyncProgram(ctx, p); err != nil {
			stats.Errors++
			s.log.WithError(err).WithField("program_id", p.ID).Warn("program sync failed")
			continue
		}
		stats.Programs++
	}

	assignments, err := s.store.ListTeamAssignments(ctx, all)
	if err != nil {
		return stats, fmt.Errorf("failed to list team assignments for sync: %w", err)
	}
	for _, ta := range assignments {
		if err := s.client.SyncTeamAssignment(ctx, ta); err != nil {
			stats.Errors++
			s.log.WithError(err).WithField("assignment_id", ta.ID).Warn("team assignment sync failed")
			continue
		}
		stats.TeamAssignments++
	}

	s.log.WithFields(logrus.Fields{
		"organizations":    stats.Organizations,
		"programs":         stats.Programs,
		"team_assignments": stats.TeamAssignments,
		"errors":           stats.Errors,
	}).Info("track sync completed")
	return stats, nil
}
