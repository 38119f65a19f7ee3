package main

import (
	"context"
	"log"
	"net/url"
	"strings"

	"revyze/engine/internal/bootstrap"
	"revyze/engine/internal/config"
	"revyze/engine/internal/thumbnail"
	"revyze/engine/internal/workspace"
)

// navigator adapts the bootstrap resolver's navigation surface onto the
// workspace service. In the product this drives the router; here the
// consumed parameters only exist in the process environment, so stripping
// and redirecting reduce to log lines.
type navigator struct {
	ctx context.Context
	svc *workspace.Service
	cfg config.Config
}

func (n *navigator) OpenProject(projectID, category string) {
	if err := n.svc.Open(n.ctx, projectID); err != nil {
		log.Printf("navigate: open %s: %v", projectID, err)
		return
	}
	if err := n.svc.SwitchCategory(category); err != nil {
		log.Printf("navigate: switch category %q: %v", category, err)
	}
	go n.refreshThumbnail(projectID)
}

func (n *navigator) OpenShared(projectID, token string) {
	if _, err := n.svc.OpenShared(n.ctx, projectID, token, ""); err != nil {
		log.Printf("navigate: shared link for %s: %v", projectID, err)
	}
}

func (n *navigator) ShowInterstitial(p bootstrap.Params) {
	log.Printf("navigate: invitation from %q to %q", p.InviterName, p.ProjectName)
}

func (n *navigator) StripQuery() {}

func (n *navigator) RedirectToDashboard() {
	log.Printf("navigate: redirect to %s", n.cfg.DashboardURL)
}

func (n *navigator) OnUnauthenticatedScreen() bool { return false }

// refreshThumbnail recaptures the dashboard preview for the project's
// current version. Capture is skipped quietly when Chromium is absent.
func (n *navigator) refreshThumbnail(projectID string) {
	p, ok := n.svc.Project(projectID)
	if !ok {
		return
	}
	v := p.CurrentVersion()
	if v == nil || v.FileURL == "" {
		return
	}
	png, err := thumbnail.Capture(n.ctx, v.FileURL)
	if err != nil {
		log.Printf("thumbnail: capture %s: %v", projectID, err)
		return
	}
	if err := n.svc.SaveThumbnail(n.ctx, png); err != nil {
		log.Printf("thumbnail: save %s: %v", projectID, err)
	}
}

// parseDeepLink accepts either a full URL or a bare query string.
func parseDeepLink(raw string) url.Values {
	if u, err := url.Parse(raw); err == nil && u.RawQuery != "" {
		raw = u.RawQuery
	}
	q, err := url.ParseQuery(strings.TrimPrefix(raw, "?"))
	if err != nil {
		return url.Values{}
	}
	return q
}
