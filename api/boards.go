package api

import (
	"fmt"
	"net/http"

	"github.com/StoryBB/StoryBB-sub005/internal/forum"
)

// BoardsHandler serves the board index, topic pages and posting.
type BoardsHandler struct {
	svc *forum.Service
}

func NewBoardsHandler(svc *forum.Service) *BoardsHandler {
	return &BoardsHandler{svc: svc}
}

func (h *BoardsHandler) Index(w http.ResponseWriter, r *http.Request) {
	cats, err := h.svc.Index(r.Context(), viewerFrom(r.Context()))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "boards", cats)
}

func (h *BoardsHandler) Board(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "board", "no_board")
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Board(r.Context(), viewerFrom(r.Context()), id, pageParam(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "board", page)
}

func (h *BoardsHandler) Topic(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "topic", "topic_gone")
	if err != nil {
		renderError(w, r, err)
		return
	}
	page, err := h.svc.Topic(r.Context(), viewerFrom(r.Context()), id, pageParam(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	render(w, r, "topic", page)
}

type watchRequest struct {
	Watch bool `json:"watch"`
}

func (h *BoardsHandler) WatchBoard(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "board", "no_board")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in watchRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.WatchBoard(r.Context(), viewerFrom(r.Context()), id, in.Watch); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, fmt.Sprintf("/boards/%d", id), "saved", nil)
}

func (h *BoardsHandler) WatchTopic(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "topic", "topic_gone")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in watchRequest
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	if err := h.svc.WatchTopic(r.Context(), viewerFrom(r.Context()), id, in.Watch); err != nil {
		renderError(w, r, err)
		return
	}
	done(w, r, fmt.Sprintf("/topics/%d", id), "saved", nil)
}

// NewTopic opens a topic on a board.
func (h *BoardsHandler) NewTopic(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "board", "no_board")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in forum.PostInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	in.BoardID, in.TopicID = id, 0
	h.post(w, r, in)
}

// Reply posts to an existing topic.
func (h *BoardsHandler) Reply(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "topic", "topic_gone")
	if err != nil {
		renderError(w, r, err)
		return
	}
	var in forum.PostInput
	if err := decode(w, r, &in); err != nil {
		renderError(w, r, err)
		return
	}
	in.TopicID = id
	h.post(w, r, in)
}

func (h *BoardsHandler) post(w http.ResponseWriter, r *http.Request, in forum.PostInput) {
	msg, err := h.svc.Post(r.Context(), viewerFrom(r.Context()), in)
	if err != nil {
		renderError(w, r, err)
		return
	}
	key := "post_created"
	if !msg.Approved {
		key = "post_awaiting_approval"
	}
	done(w, r, fmt.Sprintf("/topics/%d", msg.TopicID), key, msg)
}
