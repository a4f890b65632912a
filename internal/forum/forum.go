// Package forum is the board and topic surface the profile areas link into:
// the board index, topic lists, topic pages, watch toggles and posting.
package forum

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
	"github.com/StoryBB/StoryBB-sub005/internal/notify"
	"github.com/StoryBB/StoryBB-sub005/internal/permissions"
	"github.com/StoryBB/StoryBB-sub005/internal/profile"
	"github.com/StoryBB/StoryBB-sub005/pkg/models"
	"github.com/StoryBB/StoryBB-sub005/pkg/repository"
)

var logger = slog.Default()

// SetLogger replaces the package logger; nil is ignored.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Post limits.
const (
	MaxSubject = 80
	MaxBody    = 65535
)

type Service struct {
	store    repository.Store
	notifier *notify.Notifier
	now      func() int64
}

func NewService(store repository.Store, n *notify.Notifier) *Service {
	return &Service{store: store, notifier: n, now: func() int64 { return time.Now().UTC().Unix() }}
}

// BoardRow is a board on the index.
type BoardRow struct {
	models.Board
	Ignored bool `json:"ignored"`
}

// CategoryRow is a category with the boards the viewer may see.
type CategoryRow struct {
	models.Category
	Boards []BoardRow `json:"boards"`
}

// Index lists categories and visible boards, marking the viewer's ignored
// boards. Categories without visible boards are left out.
func (s *Service) Index(ctx context.Context, v *permissions.Viewer) ([]CategoryRow, error) {
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	boards, err := s.store.ListBoards(ctx)
	if err != nil {
		return nil, err
	}
	var ignored []int64
	if !v.IsGuest() {
		if ignored, err = s.store.IgnoredBoards(ctx, v.MemberID); err != nil {
			return nil, err
		}
	}
	var out []CategoryRow
	for _, c := range cats {
		row := CategoryRow{Category: c}
		for _, b := range boards {
			if b.CategoryID == c.ID && v.CanSeeBoard(b.MemberGroups) {
				row.Boards = append(row.Boards, BoardRow{Board: b, Ignored: slices.Contains(ignored, b.ID)})
			}
		}
		if len(row.Boards) > 0 {
			out = append(out, row)
		}
	}
	return out, nil
}

// board loads a board the viewer can see; hidden boards are reported as
// missing.
func (s *Service) board(ctx context.Context, v *permissions.Viewer, id int64) (*models.Board, error) {
	b, err := s.store.GetBoard(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load board %d: %w", id, err)
	}
	if b == nil || !v.CanSeeBoard(b.MemberGroups) {
		return nil, apperr.NotFound("no_board")
	}
	return b, nil
}

// visibility lets moderators see every held post and members their own.
func visibility(v *permissions.Viewer) models.Visibility {
	return models.Visibility{Moderator: v.Can(permissions.ModerateForum), MemberID: v.MemberID}
}

// topic loads a topic in a board the viewer can see. A topic whose first post
// awaits approval exists only for its starter and moderators.
func (s *Service) topic(ctx context.Context, v *permissions.Viewer, id int64) (*models.Topic, *models.Board, error) {
	t, err := s.store.GetTopic(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load topic %d: %w", id, err)
	}
	if t == nil {
		return nil, nil, apperr.NotFound("topic_gone")
	}
	b, err := s.store.GetBoard(ctx, t.BoardID)
	if err != nil {
		return nil, nil, fmt.Errorf("load board %d: %w", t.BoardID, err)
	}
	if b == nil || !v.CanSeeBoard(b.MemberGroups) {
		return nil, nil, apperr.NotFound("topic_gone")
	}
	if !t.Approved && !v.Can(permissions.ModerateForum) && (v.IsGuest() || t.StarterID != v.MemberID) {
		return nil, nil, apperr.NotFound("topic_gone")
	}
	return t, b, nil
}

// BoardPage is one page of a board's topics.
type BoardPage struct {
	Board    *models.Board  `json:"board"`
	Topics   []models.Topic `json:"topics"`
	Watching bool           `json:"watching"`
	Page     profile.Page   `json:"pagination"`
}

// Board lists a board's topics, sticky first then by last post. Topics
// awaiting approval are listed to their starter and to moderators.
func (s *Service) Board(ctx context.Context, v *permissions.Viewer, boardID int64, page int) (*BoardPage, error) {
	b, err := s.board(ctx, v, boardID)
	if err != nil {
		return nil, err
	}
	vis := visibility(v)
	total, err := s.store.CountTopics(ctx, b.ID, vis)
	if err != nil {
		return nil, err
	}
	out := &BoardPage{Board: b, Page: profile.NewPage(page, total)}
	if out.Topics, err = s.store.ListTopics(ctx, b.ID, vis, out.Page.PerPage, out.Page.Offset()); err != nil {
		return nil, err
	}
	if !v.IsGuest() {
		watched, err := s.store.WatchedBoards(ctx, v.MemberID)
		if err != nil {
			return nil, err
		}
		out.Watching = slices.ContainsFunc(watched, func(w models.Board) bool { return w.ID == b.ID })
	}
	return out, nil
}

// TopicPage is one page of a topic's messages.
type TopicPage struct {
	Board    *models.Board    `json:"board"`
	Topic    *models.Topic    `json:"topic"`
	Messages []models.Message `json:"messages"`
	Watching bool             `json:"watching"`
	Page     profile.Page     `json:"pagination"`
}

// Topic lists a topic's messages oldest first. Posts awaiting approval are
// shown to their author and to moderators.
func (s *Service) Topic(ctx context.Context, v *permissions.Viewer, topicID int64, page int) (*TopicPage, error) {
	t, b, err := s.topic(ctx, v, topicID)
	if err != nil {
		return nil, err
	}
	vis := visibility(v)
	total, err := s.store.CountMessages(ctx, t.ID, vis)
	if err != nil {
		return nil, err
	}
	out := &TopicPage{Board: b, Topic: t, Page: profile.NewPage(page, total)}
	if out.Messages, err = s.store.ListMessages(ctx, t.ID, vis, out.Page.PerPage, out.Page.Offset()); err != nil {
		return nil, err
	}
	if !v.IsGuest() {
		watched, err := s.store.WatchedTopics(ctx, v.MemberID)
		if err != nil {
			return nil, err
		}
		out.Watching = slices.ContainsFunc(watched, func(w models.Topic) bool { return w.ID == t.ID })
	}
	return out, nil
}

// WatchTopic turns reply alerts for a topic on or off.
func (s *Service) WatchTopic(ctx context.Context, v *permissions.Viewer, topicID int64, on bool) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	t, _, err := s.topic(ctx, v, topicID)
	if err != nil {
		return err
	}
	return s.store.SetTopicWatch(ctx, v.MemberID, t.ID, on)
}

// WatchBoard turns new-post alerts for a board on or off.
func (s *Service) WatchBoard(ctx context.Context, v *permissions.Viewer, boardID int64, on bool) error {
	if err := v.RequireMember(); err != nil {
		return err
	}
	b, err := s.board(ctx, v, boardID)
	if err != nil {
		return err
	}
	return s.store.SetBoardWatch(ctx, v.MemberID, b.ID, on)
}

// PostInput is a new topic (TopicID 0) or a reply.
type PostInput struct {
	BoardID int64  `json:"board"`
	TopicID int64  `json:"topic"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Post stores a message as the viewer's current character. Members under
// moderation post unapproved messages; watchers are alerted about approved
// replies.
func (s *Service) Post(ctx context.Context, v *permissions.Viewer, in PostInput) (*models.Message, error) {
	if err := v.RequireMember(); err != nil {
		return nil, err
	}
	msg := &models.Message{
		TopicID:     in.TopicID,
		MemberID:    v.MemberID,
		CharacterID: v.CurrentCharacter,
		Subject:     profile.Sanitize(in.Subject),
		Body:        profile.Sanitize(in.Body),
		Time:        s.now(),
		Approved:    !v.PostsModerated || v.Can(permissions.ModerateForum),
	}
	var topic *models.Topic
	if in.TopicID == 0 {
		b, err := s.board(ctx, v, in.BoardID)
		if err != nil {
			return nil, err
		}
		if err := v.Require(permissions.PostNew); err != nil {
			return nil, err
		}
		msg.BoardID = b.ID
	} else {
		t, _, err := s.topic(ctx, v, in.TopicID)
		if err != nil {
			return nil, err
		}
		if err := v.RequireOwnAny("post_reply", t.StarterID); err != nil {
			return nil, err
		}
		topic = t
		msg.BoardID = t.BoardID
		if msg.Subject == "" {
			msg.Subject = "Re: " + t.Subject
		}
	}

	verr := &apperr.Validation{}
	switch {
	case msg.Subject == "":
		verr.Add("subject", "field_required")
	case utf8.RuneCountInString(msg.Subject) > MaxSubject:
		verr.Add("subject", "field_too_long", MaxSubject)
	}
	switch {
	case msg.Body == "":
		verr.Add("body", "field_required")
	case utf8.RuneCountInString(msg.Body) > MaxBody:
		verr.Add("body", "field_too_long", MaxBody)
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	c, err := s.store.GetCharacter(ctx, v.CurrentCharacter)
	if err != nil {
		return nil, err
	}
	if c != nil && c.MemberID == v.MemberID {
		msg.PosterName = c.Name
	} else {
		msg.CharacterID = 0
		msg.PosterName = v.Name
	}

	topicID, msgID, err := s.store.CreatePost(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	msg.ID, msg.TopicID = msgID, topicID
	logger.Debug("post created",
		slog.Int64("msg", msgID),
		slog.Int64("topic", topicID),
		slog.Int64("member", v.MemberID),
		slog.Bool("approved", msg.Approved))

	if topic != nil && msg.Approved {
		s.alertWatchers(ctx, v, topic, msgID)
	}
	return msg, nil
}

func (s *Service) alertWatchers(ctx context.Context, v *permissions.Viewer, t *models.Topic, msgID int64) {
	watchers, err := s.store.TopicWatchers(ctx, t.ID, t.BoardID)
	if err != nil {
		logger.Error("load topic watchers", slog.Int64("topic", t.ID), slog.Any("err", err))
		return
	}
	watchers = slices.DeleteFunc(watchers, func(id int64) bool { return id == v.MemberID })
	if len(watchers) == 0 || s.notifier == nil {
		return
	}
	err = s.notifier.Notify(ctx, notify.Event{
		Pref:        notify.PrefTopicReply,
		Recipients:  watchers,
		StartedBy:   v.MemberID,
		ActorName:   v.Name,
		ContentType: "msg",
		ContentID:   msgID,
		Action:      notify.PrefTopicReply,
		Extra:       map[string]string{"topic": t.Subject},
	})
	if err != nil {
		logger.Error("queue topic reply alert", slog.Int64("topic", t.ID), slog.Any("err", err))
	}
}
