// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package wsapi

import "strings"

// User is a workspace member or bot.
type User struct {
	ID     string      `json:"id"`
	Name   string      `json:"name,omitempty"`
	Type   string      `json:"type,omitempty"`
	Person *UserPerson `json:"person,omitempty"`
	Bot    *struct{}   `json:"bot,omitempty"`
}

// UserPerson carries the person-specific part of a user object.
type UserPerson struct {
	Email string `json:"email,omitempty"`
}

// RichTextSpan is one span of formatted text. Requests only need Text;
// responses additionally carry the flattened PlainText.
type RichTextSpan struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

// TextContent is the writable payload of a text span.
type TextContent struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// Link is a hyperlink attached to a text span.
type Link struct {
	URL string `json:"url"`
}

// Text builds a single-span rich text value.
func Text(s string) []RichTextSpan {
	if s == "" {
		return []RichTextSpan{}
	}
	return []RichTextSpan{{Type: "text", Text: &TextContent{Content: s}}}
}

// PlainText flattens rich text spans into a plain string.
func PlainText(spans []RichTextSpan) string {
	var b strings.Builder
	for _, span := range spans {
		if span.PlainText != "" {
			b.WriteString(span.PlainText)
			continue
		}
		if span.Text != nil {
			b.WriteString(span.Text.Content)
		}
	}
	return b.String()
}

// SelectOption is one option of a select, multi_select or status
// property.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// OptionSet is the schema payload of a select or multi_select
// property.
type OptionSet struct {
	Options []SelectOption `json:"options"`
}

// StatusGroup is one group of a status property (To-do, In progress,
// Complete).
type StatusGroup struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Color     string   `json:"color,omitempty"`
	OptionIDs []string `json:"option_ids"`
}

// StatusSet is the schema payload of a status property.
type StatusSet struct {
	Options []SelectOption `json:"options"`
	Groups  []StatusGroup  `json:"groups,omitempty"`
}

// RelationSpec is the schema payload of a relation property.
type RelationSpec struct {
	DatabaseID string `json:"database_id"`
}

// PropertyDescriptor is one column of a database schema as returned by
// the API. Only the payloads tabsync inspects are modeled; the rest of
// the object is ignored on decode.
type PropertyDescriptor struct {
	ID          string        `json:"id,omitempty"`
	Name        string        `json:"name,omitempty"`
	Type        string        `json:"type"`
	Select      *OptionSet    `json:"select,omitempty"`
	MultiSelect *OptionSet    `json:"multi_select,omitempty"`
	Status      *StatusSet    `json:"status,omitempty"`
	Relation    *RelationSpec `json:"relation,omitempty"`
}

// Options returns the option list of an option-bearing property.
func (d PropertyDescriptor) Options() []SelectOption {
	switch {
	case d.Select != nil:
		return d.Select.Options
	case d.MultiSelect != nil:
		return d.MultiSelect.Options
	case d.Status != nil:
		return d.Status.Options
	}
	return nil
}

// Parent locates an object in the workspace hierarchy.
type Parent struct {
	Type       string `json:"type,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	DatabaseID string `json:"database_id,omitempty"`
	Workspace  bool   `json:"workspace,omitempty"`
}

// Database is a collection descriptor: its identity plus the schema.
type Database struct {
	ID         string                        `json:"id"`
	URL        string                        `json:"url,omitempty"`
	Title      []RichTextSpan                `json:"title,omitempty"`
	Properties map[string]PropertyDescriptor `json:"properties"`
}

// TitleText returns the database title as a plain string.
func (d *Database) TitleText() string {
	return PlainText(d.Title)
}

// CreateDatabaseRequest creates a new collection under a parent page.
// Properties values use the schema wire shapes, e.g.
// {"title": {}} or {"select": {"options": [...]}}.
type CreateDatabaseRequest struct {
	Parent     Parent         `json:"parent"`
	Title      []RichTextSpan `json:"title"`
	Properties map[string]any `json:"properties"`
}

// UpdateDatabaseRequest patches parts of a collection schema.
type UpdateDatabaseRequest struct {
	Title      []RichTextSpan `json:"title,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PropertyValue is one cell of a fetched page. Only the payloads
// needed to identify rows are modeled.
type PropertyValue struct {
	ID       string         `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Title    []RichTextSpan `json:"title,omitempty"`
	RichText []RichTextSpan `json:"rich_text,omitempty"`
}

// Page is one row of a collection.
type Page struct {
	ID             string                   `json:"id"`
	URL            string                   `json:"url,omitempty"`
	Archived       bool                     `json:"archived,omitempty"`
	CreatedTime    string                   `json:"created_time,omitempty"`
	LastEditedTime string                   `json:"last_edited_time,omitempty"`
	Properties     map[string]PropertyValue `json:"properties,omitempty"`
}

// TitleText returns the page's key: the flattened text of its title
// property, or "" when the page has none.
func (p *Page) TitleText() string {
	for _, v := range p.Properties {
		if v.Type == "title" || len(v.Title) > 0 {
			return PlainText(v.Title)
		}
	}
	return ""
}

// QueryRequest pages through the rows of a collection.
type QueryRequest struct {
	PageSize    int            `json:"page_size,omitempty"`
	StartCursor string         `json:"start_cursor,omitempty"`
	Filter      map[string]any `json:"filter,omitempty"`
}

// QueryResult is one page of query results plus the cursor state.
type QueryResult struct {
	Results    []Page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

// CreatePageRequest adds a row to a collection. Properties values use
// the value wire shapes produced by the property coercer.
type CreatePageRequest struct {
	Parent     Parent         `json:"parent"`
	Properties map[string]any `json:"properties"`
	Icon       map[string]any `json:"icon,omitempty"`
	Cover      map[string]any `json:"cover,omitempty"`
	Children   []any          `json:"children,omitempty"`
}

// UpdatePageRequest patches an existing row. A nil Archived leaves the
// archival state alone.
type UpdatePageRequest struct {
	Properties map[string]any `json:"properties,omitempty"`
	Icon       map[string]any `json:"icon,omitempty"`
	Cover      map[string]any `json:"cover,omitempty"`
	Archived   *bool          `json:"archived,omitempty"`
}

type userList struct {
	Results    []User `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}
