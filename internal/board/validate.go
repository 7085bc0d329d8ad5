package board

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kazz187/prepboard/pkg/cerr"
)

const maxTitleLength = 100

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return "", cerr.InvalidField("title", "length", fmt.Sprintf("board title is required and must be 1-%d characters", maxTitleLength))
	}
	return title, nil
}

// normalizeColumns validates caller supplied columns and assigns ids and a
// dense display order.
func normalizeColumns(cols []Column) ([]Column, error) {
	out := make([]Column, len(cols))
	for i, c := range cols {
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			return nil, cerr.InvalidField(fmt.Sprintf("columns[%d].title", i), "required", "column title is required")
		}
		if c.Type == "" {
			c.Type = ColumnTodo
		}
		if !c.Type.Valid() {
			return nil, cerr.InvalidField(fmt.Sprintf("columns[%d].type", i), "in", fmt.Sprintf("unknown column type %q", c.Type))
		}
		if c.WIPLimit < 0 {
			return nil, cerr.InvalidField(fmt.Sprintf("columns[%d].wipLimit", i), "gte", "wip limit must not be negative")
		}
		if c.ID == "" {
			c.ID = newID()
		}
		c.Order = i
		out[i] = c
	}
	return out, nil
}

func normalizeLabels(labels []Label) ([]Label, error) {
	out := make([]Label, len(labels))
	for i, l := range labels {
		l.Name = strings.TrimSpace(l.Name)
		if l.Name == "" {
			return nil, cerr.InvalidField(fmt.Sprintf("labels[%d].name", i), "required", "label name is required")
		}
		if l.ID == "" {
			l.ID = newID()
			l.Active = true
		}
		out[i] = l
	}
	return out, nil
}

// SettingsPatch carries the settings a caller wants to change.
type SettingsPatch struct {
	AllowComments      *bool `json:"allowComments,omitempty"`
	AllowAttachments   *bool `json:"allowAttachments,omitempty"`
	AllowTimeTracking  *bool `json:"allowTimeTracking,omitempty"`
	EnableDueDates     *bool `json:"enableDueDates,omitempty"`
	EnableLabels       *bool `json:"enableLabels,omitempty"`
	EnableChecklists   *bool `json:"enableChecklists,omitempty"`
	EnableVoting       *bool `json:"enableVoting,omitempty"`
	EnableCustomFields *bool `json:"enableCustomFields,omitempty"`
	DefaultView        *View `json:"defaultView,omitempty"`
	CardCover          *bool `json:"cardCover,omitempty"`
}

func (p *SettingsPatch) Apply(s *Settings) error {
	if p == nil {
		return nil
	}
	if p.DefaultView != nil && !p.DefaultView.Valid() {
		return cerr.InvalidField("settings.defaultView", "in", fmt.Sprintf("unknown view %q", *p.DefaultView))
	}
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.AllowComments, p.AllowComments)
	set(&s.AllowAttachments, p.AllowAttachments)
	set(&s.AllowTimeTracking, p.AllowTimeTracking)
	set(&s.EnableDueDates, p.EnableDueDates)
	set(&s.EnableLabels, p.EnableLabels)
	set(&s.EnableChecklists, p.EnableChecklists)
	set(&s.EnableVoting, p.EnableVoting)
	set(&s.EnableCustomFields, p.EnableCustomFields)
	set(&s.CardCover, p.CardCover)
	if p.DefaultView != nil {
		s.DefaultView = *p.DefaultView
	}
	return nil
}
