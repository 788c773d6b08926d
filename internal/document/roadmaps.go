package document

import (
	"context"
	"fmt"
	"strings"

	"roadmapper/api/internal/rbac"
)

type RoadmapInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	IsPublic    bool   `json:"isPublic"`
}

// RoadmapPatch is a partial roadmap update. Title, IsPublic and Collaborators
// are owner-only; collaborators may change the description.
type RoadmapPatch struct {
	Title         *string   `json:"title"`
	Description   *string   `json:"description"`
	IsPublic      *bool     `json:"isPublic"`
	Collaborators *[]string `json:"collaborators"`
}

func (p RoadmapPatch) ownerOnly() bool {
	return p.Title != nil || p.IsPublic != nil || p.Collaborators != nil
}

// RoadmapUpdate is the result of UpdateRoadmap. Unresolved lists collaborator
// names that matched no user and were dropped.
type RoadmapUpdate struct {
	Roadmap    Roadmap  `json:"roadmap"`
	Unresolved []string `json:"unresolvedCollaborators"`
}

func (m *Model) CreateRoadmap(ctx context.Context, caller Caller, input RoadmapInput) (Roadmap, error) {
	if caller.UserID == "" {
		return Roadmap{}, fmt.Errorf("%w: sign in to create a roadmap", ErrForbidden)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return Roadmap{}, validationf("title is required")
	}
	created, err := m.repo.InsertRoadmap(ctx, Roadmap{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     caller.UserID,
		IsPublic:    input.IsPublic,
	})
	if err != nil {
		return Roadmap{}, classify("insert roadmap", err)
	}
	if created.OwnerName == "" {
		created.OwnerName = caller.Username
	}
	if created.Collaborators == nil {
		created.Collaborators = []Collaborator{}
	}
	m.publish(ctx, caller, created.ID, "roadmap.created", "roadmap", created.ID, map[string]any{"title": created.Title})
	return created, nil
}

func (m *Model) GetRoadmap(ctx context.Context, caller Caller, id string) (Roadmap, error) {
	roadmap, _, err := m.Authorize(ctx, caller, id, rbac.ActionRead)
	if err != nil {
		return Roadmap{}, err
	}
	if roadmap.Collaborators == nil {
		roadmap.Collaborators = []Collaborator{}
	}
	return roadmap, nil
}

func (m *Model) UpdateRoadmap(ctx context.Context, caller Caller, id string, patch RoadmapPatch) (RoadmapUpdate, error) {
	current, rel, err := m.Authorize(ctx, caller, id, rbac.ActionEdit)
	if err != nil {
		return RoadmapUpdate{}, err
	}
	if patch.ownerOnly() && !rbac.Can(rel, rbac.ActionManage) {
		return RoadmapUpdate{}, fmt.Errorf("%w: only the owner can change title, visibility or collaborators", ErrForbidden)
	}

	next := current
	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
		if next.Title == "" {
			return RoadmapUpdate{}, validationf("title is required")
		}
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.IsPublic != nil {
		next.IsPublic = *patch.IsPublic
	}

	unresolved := []string{}
	var collaboratorIDs []string
	if patch.Collaborators != nil {
		ids, missing, err := m.resolveCollaborators(ctx, current.OwnerID, *patch.Collaborators)
		if err != nil {
			return RoadmapUpdate{}, err
		}
		collaboratorIDs = ids
		unresolved = missing
	}

	if _, err := m.repo.UpdateRoadmap(ctx, next, collaboratorIDs); err != nil {
		return RoadmapUpdate{}, classify("update roadmap", err)
	}
	refreshed, err := m.repo.GetRoadmap(ctx, id)
	if err != nil {
		return RoadmapUpdate{}, classify("get roadmap", err)
	}
	if refreshed.Collaborators == nil {
		refreshed.Collaborators = []Collaborator{}
	}

	payload := map[string]any{}
	if patch.Title != nil {
		payload["title"] = refreshed.Title
	}
	if patch.IsPublic != nil {
		payload["isPublic"] = refreshed.IsPublic
	}
	if patch.Collaborators != nil {
		payload["collaborators"] = len(refreshed.Collaborators)
	}
	m.publish(ctx, caller, id, "roadmap.updated", "roadmap", id, payload)
	return RoadmapUpdate{Roadmap: refreshed, Unresolved: unresolved}, nil
}

// resolveCollaborators trims and dedupes names, maps them to user ids and
// drops the owner. Names matching no user come back in missing.
func (m *Model) resolveCollaborators(ctx context.Context, ownerID string, names []string) (ids, missing []string, err error) {
	cleaned := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		cleaned = append(cleaned, name)
	}

	ids = []string{}
	missing = []string{}
	if len(cleaned) == 0 {
		return ids, missing, nil
	}
	found, err := m.repo.ResolveUsernames(ctx, cleaned)
	if err != nil {
		return nil, nil, classify("resolve usernames", err)
	}
	for _, name := range cleaned {
		userID, ok := found[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		if userID == ownerID {
			continue
		}
		ids = append(ids, userID)
	}
	return ids, missing, nil
}

func (m *Model) DeleteRoadmap(ctx context.Context, caller Caller, id string) error {
	current, _, err := m.Authorize(ctx, caller, id, rbac.ActionManage)
	if err != nil {
		return err
	}
	if err := m.repo.DeleteRoadmap(ctx, id); err != nil {
		return classify("delete roadmap", err)
	}
	m.publish(ctx, caller, id, "roadmap.deleted", "roadmap", id, map[string]any{"title": current.Title})
	return nil
}

// TransferOwnership hands the roadmap to another user. The previous owner
// stays on as a collaborator.
func (m *Model) TransferOwnership(ctx context.Context, caller Caller, id, username string) (Roadmap, error) {
	current, _, err := m.Authorize(ctx, caller, id, rbac.ActionManage)
	if err != nil {
		return Roadmap{}, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return Roadmap{}, validationf("username is required")
	}
	found, err := m.repo.ResolveUsernames(ctx, []string{username})
	if err != nil {
		return Roadmap{}, classify("resolve usernames", err)
	}
	newOwner, ok := found[username]
	if !ok {
		return Roadmap{}, validationf("unknown user %q", username)
	}
	if newOwner == current.OwnerID {
		return current, nil
	}

	collaborators := []string{current.OwnerID}
	for _, c := range current.Collaborators {
		if c.ID != newOwner && c.ID != current.OwnerID {
			collaborators = append(collaborators, c.ID)
		}
	}
	next := current
	next.OwnerID = newOwner
	if _, err := m.repo.UpdateRoadmap(ctx, next, collaborators); err != nil {
		return Roadmap{}, classify("transfer roadmap", err)
	}
	refreshed, err := m.repo.GetRoadmap(ctx, id)
	if err != nil {
		return Roadmap{}, classify("get roadmap", err)
	}
	m.publish(ctx, caller, id, "roadmap.transferred", "roadmap", id, map[string]any{"owner": username})
	return refreshed, nil
}

// ListRoadmaps returns roadmaps the caller owns or collaborates on, most
// recently updated first.
func (m *Model) ListRoadmaps(ctx context.Context, caller Caller) ([]Roadmap, error) {
	if caller.UserID == "" {
		return nil, fmt.Errorf("%w: sign in to list roadmaps", ErrForbidden)
	}
	items, err := m.repo.ListRoadmapsForUser(ctx, caller.UserID)
	if err != nil {
		return nil, classify("list roadmaps", err)
	}
	for i := range items {
		if items[i].Collaborators == nil {
			items[i].Collaborators = []Collaborator{}
		}
	}
	if items == nil {
		items = []Roadmap{}
	}
	return items, nil
}

// ListPublicRoadmaps returns every public roadmap with its milestones for the
// browse view.
func (m *Model) ListPublicRoadmaps(ctx context.Context) ([]RoadmapSummary, error) {
	items, err := m.repo.ListPublicRoadmaps(ctx)
	if err != nil {
		return nil, classify("list public roadmaps", err)
	}
	out := make([]RoadmapSummary, 0, len(items))
	for _, item := range items {
		milestones, err := m.repo.ListMilestones(ctx, item.ID)
		if err != nil {
			return nil, classify("list milestones", err)
		}
		if milestones == nil {
			milestones = []Milestone{}
		}
		if item.Collaborators == nil {
			item.Collaborators = []Collaborator{}
		}
		out = append(out, RoadmapSummary{Roadmap: item, Milestones: milestones})
	}
	return out, nil
}
