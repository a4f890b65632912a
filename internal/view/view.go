// Package view renders HTML pages as templ components.
package view

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
)

// Page is the chrome shared by every rendered page.
type Page struct {
	Title    string
	Lang     string
	Viewer   string
	MemberID int64
	Flash    string
	CSRF     string
	Location *time.Location
	T        func(key string, args ...any) string
}

func (p Page) t(key string, args ...any) string {
	if p.T == nil {
		return key
	}
	return p.T(key, args...)
}

func (p Page) date(ts int64) string {
	if ts == 0 {
		return p.t("none")
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(ts, 0).In(loc).Format("Jan 2, 2006, 15:04")
}

// out accumulates the first write error so templates read top to bottom.
type out struct {
	w   io.Writer
	err error
}

func (o *out) raw(s string) {
	if o.err == nil {
		_, o.err = io.WriteString(o.w, s)
	}
}

func (o *out) text(s string) { o.raw(templ.EscapeString(s)) }

func (o *out) tag(name, s string) {
	o.raw("<" + name + ">")
	o.text(s)
	o.raw("</" + name + ">")
}

func (o *out) link(href, s string) {
	o.raw(`<a href="`)
	o.text(href)
	o.raw(`">`)
	o.text(s)
	o.raw("</a>")
}

func (o *out) row(label, value string) {
	o.raw("<tr><th>")
	o.text(label)
	o.raw("</th><td>")
	o.text(value)
	o.raw("</td></tr>")
}

// Layout wraps body in the forum chrome.
func Layout(p Page, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		o := &out{w: w}
		lang := p.Lang
		if lang == "" {
			lang = "en-US"
		}
		o.raw(`<!DOCTYPE html><html lang="`)
		o.text(lang)
		o.raw(`"><head><meta charset="utf-8"><title>`)
		if p.Title != "" {
			o.text(p.Title + " - ")
		}
		o.text(p.t("site_name"))
		o.raw(`</title>`)
		if p.CSRF != "" {
			o.raw(`<meta name="csrf-token" content="`)
			o.text(p.CSRF)
			o.raw(`">`)
		}
		o.raw(`</head><body><nav>`)
		o.link("/boards", p.t("boards"))
		if p.MemberID > 0 {
			o.raw(" ")
			o.link(fmt.Sprintf("/profile/%d", p.MemberID), p.Viewer)
			o.raw(" ")
			o.link(fmt.Sprintf("/profile/%d/alerts", p.MemberID), p.t("area_alerts"))
		} else {
			o.raw(" ")
			o.link("/login", p.t("login"))
			o.raw(" ")
			o.link("/register", p.t("register"))
		}
		o.raw(`</nav>`)
		if p.Flash != "" {
			o.raw(`<div class="flash">`)
			o.text(p.Flash)
			o.raw(`</div>`)
		}
		o.raw(`<main>`)
		if o.err != nil {
			return o.err
		}
		if body != nil {
			if err := body.Render(ctx, w); err != nil {
				return err
			}
		}
		o.raw(`</main></body></html>`)
		return o.err
	})
}

// ErrorPage shows a single translated error.
func ErrorPage(p Page, title, message string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		o := &out{w: w}
		o.raw(`<section class="error">`)
		o.tag("h1", title)
		o.tag("p", message)
		o.raw(`<p><a href="javascript:history.back()">`)
		o.text(p.t("go_back"))
		o.raw(`</a></p></section>`)
		return o.err
	})
}

// Summary renders the profile summary area.
func Summary(p Page, sp *profile.SummaryPage) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		o := &out{w: w}
		m := sp.Member
		o.raw(`<section class="profile-summary">`)
		o.tag("h1", m.DisplayName())
		if m.Avatar != "" {
			o.raw(`<img class="avatar" alt="" src="`)
			o.text(m.Avatar)
			o.raw(`">`)
		}
		if m.PersonalText != "" {
			o.tag("blockquote", m.PersonalText)
		}
		o.raw(`<table>`)
		o.row(p.t("member_name"), m.Name)
		if sp.PrimaryGroup != nil {
			o.row(p.t("primary_group"), sp.PrimaryGroup.Name)
		}
		for _, g := range sp.Groups {
			o.row(p.t("additional_groups"), g.Name)
		}
		o.row(p.t("posts_count"), strconv.Itoa(m.Posts))
		o.row(p.t("date_registered"), p.date(m.Registered))
		o.row(p.t("last_login"), p.date(m.LastLogin))
		for _, f := range sp.Fields {
			o.row(f.Name, f.Value)
		}
		if sp.Warning != nil {
			o.row(p.t("warning_level"), fmt.Sprintf("%d%% (%s)", sp.Warning.Level, p.t("warning_status_"+sp.Warning.Status)))
		}
		o.raw(`</table>`)

		o.tag("h2", p.t("characters"))
		o.raw(`<ul class="characters">`)
		for _, c := range sp.Characters {
			o.raw("<li>")
			if c.IsMain {
				o.text(c.Name)
			} else {
				o.link(fmt.Sprintf("/profile/%d/characters/%d/sheet", m.ID, c.ID), c.Name)
			}
			switch {
			case c.IsMain:
				o.raw(" <em>")
				o.text(p.t("main_character"))
				o.raw("</em>")
			case c.Retired:
				o.raw(" <em>")
				o.text(p.t("retired"))
				o.raw("</em>")
			}
			if c.ID == m.CurrentCharacter {
				o.raw(" <strong>")
				o.text(p.t("current_character"))
				o.raw("</strong>")
			}
			o.raw("</li>")
		}
		o.raw(`</ul>`)
		if m.Signature != "" {
			o.raw(`<div class="signature">`)
			o.text(m.Signature)
			o.raw(`</div>`)
		}
		o.raw(`</section>`)
		return o.err
	})
}

func (o *out) sheet(p Page, v *models.SheetVersion) {
	o.raw(`<article class="sheet"><p class="state">`)
	o.text(p.t("sheet_state_" + strconv.Itoa(v.State)))
	o.raw(` &middot; `)
	o.text(p.date(v.Created))
	o.raw(`</p><pre>`)
	o.text(v.Text)
	o.raw(`</pre></article>`)
}

// CharacterSheet renders the approved sheet and, for the owner and
// approvers, the working version with its comments.
func CharacterSheet(p Page, sp *profile.SheetPage) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		o := &out{w: w}
		o.raw(`<section class="character-sheet">`)
		o.tag("h1", sp.Character.Name)
		switch {
		case sp.Approved != nil:
			o.sheet(p, sp.Approved)
		default:
			o.tag("p", p.t("sheet_none"))
		}
		if sp.Latest != nil && (sp.Approved == nil || sp.Latest.ID != sp.Approved.ID) {
			o.sheet(p, sp.Latest)
		}
		if len(sp.Comments) > 0 {
			o.raw(`<ol class="comments">`)
			for _, c := range sp.Comments {
				o.raw("<li><strong>")
				o.text(c.AuthorName)
				o.raw("</strong> ")
				o.text(p.date(c.Posted))
				o.raw("<p>")
				o.text(c.Body)
				o.raw("</p></li>")
			}
			o.raw(`</ol>`)
		}
		o.raw(`</section>`)
		return o.err
	})
}

// Warnings renders a member's warning level and history.
func Warnings(p Page, wp *profile.WarningsPage) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		o := &out{w: w}
		o.raw(`<section class="warnings">`)
		o.tag("h1", p.t("area_view_warnings"))
		o.tag("p", fmt.Sprintf("%s: %d%% (%s)", p.t("warning_level"), wp.Level, p.t("warning_status_"+wp.Status)))
		o.raw(`<table>`)
		for _, e := range wp.Entries {
			o.raw("<tr><td>")
			o.text(p.date(e.Time))
			o.raw("</td><td>")
			o.text(e.IssuerName)
			o.raw("</td><td>")
			o.text(fmt.Sprintf("%+d", e.Counter))
			o.raw("</td><td>")
			o.text(e.Reason)
			o.raw("</td></tr>")
		}
		o.raw(`</table>`)
		if wp.Page.Pages > 1 {
			o.tag("p", p.t("page_of", wp.Page.Number, wp.Page.Pages))
		}
		o.raw(`</section>`)
		return o.err
	})
}

// ContextTable renders any page context as nested tables of its JSON form.
func ContextTable(data any) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		var tree any
		if err := json.Unmarshal(b, &tree); err != nil {
			return err
		}
		o := &out{w: w}
		o.value(tree)
		return o.err
	})
}

func (o *out) value(v any) {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		o.raw(`<table class="context">`)
		for _, k := range keys {
			o.raw("<tr><th>")
			o.text(k)
			o.raw("</th><td>")
			o.value(v[k])
			o.raw("</td></tr>")
		}
		o.raw(`</table>`)
	case []any:
		o.raw("<ol>")
		for _, item := range v {
			o.raw("<li>")
			o.value(item)
			o.raw("</li>")
		}
		o.raw("</ol>")
	case nil:
	case string:
		o.text(v)
	default:
		o.text(fmt.Sprint(v))
	}
}

// Render picks the component for a page context.
func Render(p Page, data any) templ.Component {
	var body templ.Component
	switch d := data.(type) {
	case *profile.SummaryPage:
		body = Summary(p, d)
	case *profile.SheetPage:
		body = CharacterSheet(p, d)
	case *profile.WarningsPage:
		body = Warnings(p, d)
	default:
		body = ContextTable(data)
	}
	return Layout(p, body)
}
