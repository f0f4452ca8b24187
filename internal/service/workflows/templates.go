package workflows

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/taskflow-labs/taskflow/internal/domain"
	"github.com/taskflow-labs/taskflow/internal/platform/auth"
	"github.com/taskflow-labs/taskflow/internal/repo"
	"github.com/taskflow-labs/taskflow/internal/service/access"
)

//go:embed templates/*.yaml
var templateFS embed.FS

// Template is a named starter workflow shipped with the binary.
type Template struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	Statuses    []TemplateStatus     `yaml:"statuses"`
	Transitions []TemplateTransition `yaml:"transitions"`
}

type TemplateStatus struct {
	Name    string `yaml:"name"`
	Label   string `yaml:"label"`
	Color   string `yaml:"color"`
	Initial bool   `yaml:"initial"`
	Final   bool   `yaml:"final"`
}

type TemplateTransition struct {
	From        string              `yaml:"from"`
	To          string              `yaml:"to"`
	Name        string              `yaml:"name"`
	Guards      []domain.Guard      `yaml:"guards"`
	Automations []domain.Automation `yaml:"automations"`
}

// Templates returns the built-in templates ordered by name.
func Templates() ([]Template, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	out := make([]Template, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".yaml" {
			continue
		}
		raw, err := templateFS.ReadFile(path.Join("templates", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", entry.Name(), err)
		}
		tpl, err := ParseTemplate(raw)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", entry.Name(), err)
		}
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func LookupTemplate(name string) (Template, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	templates, err := Templates()
	if err != nil {
		return Template{}, err
	}
	for _, tpl := range templates {
		if tpl.Name == name {
			return tpl, nil
		}
	}
	return Template{}, domain.Invalid("template", fmt.Sprintf("unknown template %q", name))
}

// ParseTemplate decodes a YAML template and checks that its transitions only
// reference statuses it declares.
func ParseTemplate(raw []byte) (Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return Template{}, fmt.Errorf("decode yaml: %w", err)
	}
	tpl.Name = strings.ToLower(strings.TrimSpace(tpl.Name))
	if tpl.Name == "" {
		return Template{}, errors.New("template name is required")
	}
	if len(tpl.Statuses) == 0 {
		return Template{}, errors.New("template declares no statuses")
	}
	names := make(map[string]struct{}, len(tpl.Statuses))
	for _, st := range tpl.Statuses {
		if err := domain.ValidateStatusName(st.Name); err != nil {
			return Template{}, err
		}
		if _, dup := names[st.Name]; dup {
			return Template{}, fmt.Errorf("status %q declared twice", st.Name)
		}
		names[st.Name] = struct{}{}
	}
	for _, tr := range tpl.Transitions {
		for _, ref := range []string{tr.From, tr.To} {
			if _, ok := names[ref]; !ok {
				return Template{}, fmt.Errorf("transition %s->%s references unknown status %q", tr.From, tr.To, ref)
			}
		}
	}
	return tpl, nil
}

// InitFromTemplate seeds an empty board with the statuses and transitions of
// the named template in one unit of work.
func (s *Service) InitFromTemplate(ctx context.Context, actor domain.Actor, boardID, name string) (domain.Workflow, error) {
	boardID = strings.TrimSpace(boardID)
	if boardID == "" {
		return domain.Workflow{}, domain.Invalid("board_id", "board id is required")
	}
	tpl, err := LookupTemplate(name)
	if err != nil {
		return domain.Workflow{}, err
	}

	var w domain.Workflow
	err = s.store.WithinTx(ctx, func(ctx context.Context, r repo.Repos) error {
		if _, err := access.Require(ctx, r.Members, actor, boardID, auth.RoleAdmin); err != nil {
			return err
		}
		existing, err := r.Statuses.ListStatuses(ctx, boardID)
		if err != nil {
			return fmt.Errorf("list statuses: %w", err)
		}
		if len(existing) > 0 {
			return domain.Conflict("board already has a workflow")
		}

		now := s.now().UTC()
		ids := make(map[string]string, len(tpl.Statuses))
		for i, st := range tpl.Statuses {
			status := domain.Status{
				ID:        s.newID(),
				BoardID:   boardID,
				Name:      st.Name,
				Label:     st.Label,
				Color:     st.Color,
				Position:  i,
				IsInitial: st.Initial,
				IsFinal:   st.Final,
				IsActive:  true,
				CreatedAt: now,
				CreatedBy: actor.Subject,
			}
			if status.Label == "" {
				status.Label = st.Name
			}
			if err := r.Statuses.CreateStatus(ctx, status); err != nil {
				return fmt.Errorf("create status %s: %w", st.Name, err)
			}
			ids[st.Name] = status.ID
		}
		for _, tr := range tpl.Transitions {
			transition := domain.Transition{
				ID:           s.newID(),
				BoardID:      boardID,
				FromStatusID: ids[tr.From],
				ToStatusID:   ids[tr.To],
				Name:         tr.Name,
				Guards:       normalizeGuards(tr.Guards),
				Automations:  normalizeAutomations(tr.Automations),
				CreatedAt:    now,
				CreatedBy:    actor.Subject,
			}
			if err := transition.Validate(); err != nil {
				return fmt.Errorf("template transition %s->%s: %w", tr.From, tr.To, err)
			}
			if err := r.Transitions.CreateTransition(ctx, transition); err != nil {
				return fmt.Errorf("create transition %s->%s: %w", tr.From, tr.To, err)
			}
		}
		w, err = Load(ctx, r, boardID)
		return err
	})
	if err != nil {
		return domain.Workflow{}, err
	}
	s.logger.Info("workflow initialized from template", "board_id", boardID, "template", tpl.Name, "statuses", len(w.Statuses), "transitions", len(w.Transitions), "actor", actor.Subject)
	return w, nil
}
