package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nhle/taskflow/internal/model"
)

// === Users ===

// Register creates an account and returns its token and user.
func (c *Client) Register(ctx context.Context, in model.Registration) (*model.AuthResult, error) {
	var out model.AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/users/register", false, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for a token and user.
func (c *Client) Login(ctx context.Context, in model.Credentials) (*model.AuthResult, error) {
	var out model.AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/users/login", false, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === Boards ===

// ListBoards returns every board visible to the current identity. The
// server answers either with a bare array or with {boards: [...]}.
func (c *Client) ListBoards(ctx context.Context) ([]model.Board, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/boards", true, nil, &raw); err != nil {
		return nil, err
	}
	return decodeBoards(raw)
}

func decodeBoards(raw json.RawMessage) ([]model.Board, error) {
	if len(raw) == 0 {
		return []model.Board{}, nil
	}
	var list []model.Board
	if err := json.Unmarshal(raw, &list); err == nil {
		if list == nil {
			list = []model.Board{}
		}
		return list, nil
	}
	var wrapped struct {
		Boards []model.Board `json:"boards"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding boards: %w", err)
	}
	if wrapped.Boards == nil {
		return []model.Board{}, nil
	}
	return wrapped.Boards, nil
}

// GetBoard returns the full board detail including members and lists.
func (c *Client) GetBoard(ctx context.Context, boardID string) (*model.Board, error) {
	var out model.Board
	if err := c.do(ctx, http.MethodGet, "/api/boards/"+url.PathEscape(boardID), true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBoard creates a board owned by the current identity.
func (c *Client) CreateBoard(ctx context.Context, in model.BoardInput) (*model.Board, error) {
	var out model.Board
	if err := c.do(ctx, http.MethodPost, "/api/boards", true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBoard renames or re-describes a board.
func (c *Client) UpdateBoard(ctx context.Context, boardID string, in model.BoardInput) (*model.Board, error) {
	var out model.Board
	if err := c.do(ctx, http.MethodPut, "/api/boards/"+url.PathEscape(boardID), true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBoard removes a board.
func (c *Client) DeleteBoard(ctx context.Context, boardID string) error {
	return c.do(ctx, http.MethodDelete, "/api/boards/"+url.PathEscape(boardID), true, nil, nil)
}

// AddList appends a list to a board and returns the updated board.
func (c *Client) AddList(ctx context.Context, boardID, name string) (*model.Board, error) {
	var out model.Board
	body := map[string]string{"name": name}
	path := "/api/boards/" + url.PathEscape(boardID) + "/lists"
	if err := c.do(ctx, http.MethodPost, path, true, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteList removes a list and returns the updated board.
func (c *Client) DeleteList(ctx context.Context, boardID, listID string) (*model.Board, error) {
	var out model.Board
	path := "/api/boards/" + url.PathEscape(boardID) + "/lists/" + url.PathEscape(listID)
	if err := c.do(ctx, http.MethodDelete, path, true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// InviteMember invites a user by email with the given role.
func (c *Client) InviteMember(ctx context.Context, boardID, email string, role model.Role) error {
	body := struct {
		Email string     `json:"email"`
		Role  model.Role `json:"role"`
	}{Email: email, Role: role}
	path := "/api/boards/" + url.PathEscape(boardID) + "/invite"
	return c.do(ctx, http.MethodPost, path, true, body, nil)
}

// RemoveMember removes a user from a board. The user id travels in the
// body of the DELETE request.
func (c *Client) RemoveMember(ctx context.Context, boardID, userID string) error {
	body := map[string]string{"userId": userID}
	path := "/api/boards/" + url.PathEscape(boardID) + "/remove-user"
	return c.do(ctx, http.MethodDelete, path, true, body, nil)
}

// AcceptInvite joins the board referenced by an invite token.
func (c *Client) AcceptInvite(ctx context.Context, token string) (*model.Board, error) {
	var out model.Board
	path := "/api/boards/join?token=" + url.QueryEscape(token)
	if err := c.do(ctx, http.MethodPost, path, true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// === Tasks ===

func tasksPath(boardID string) string {
	return "/api/tasks/" + url.PathEscape(boardID) + "/tasks"
}

// ListTasks returns every task on a board.
func (c *Client) ListTasks(ctx context.Context, boardID string) ([]model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, http.MethodGet, tasksPath(boardID), true, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Task{}
	}
	return out, nil
}

// CreateTask creates a task on a board.
func (c *Client) CreateTask(ctx context.Context, boardID string, in model.TaskInput) (*model.Task, error) {
	var out model.Task
	if err := c.do(ctx, http.MethodPost, tasksPath(boardID), true, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTask applies a partial update and returns the server's task.
func (c *Client) UpdateTask(ctx context.Context, boardID, taskID string, patch model.TaskPatch) (*model.Task, error) {
	var out model.Task
	path := tasksPath(boardID) + "/" + url.PathEscape(taskID)
	if err := c.do(ctx, http.MethodPatch, path, true, patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, boardID, taskID string) error {
	path := tasksPath(boardID) + "/" + url.PathEscape(taskID)
	return c.do(ctx, http.MethodDelete, path, true, nil, nil)
}

// === Notifications ===

// ListNotifications fetches one page of the notification feed.
func (c *Client) ListNotifications(ctx context.Context, page, limit int) (*model.NotificationPage, error) {
	var out model.NotificationPage
	path := fmt.Sprintf("/api/notifications?page=%d&limit=%d", page, limit)
	if err := c.do(ctx, http.MethodGet, path, true, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkNotificationRead marks one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/"+url.PathEscape(id)+"/read", true, nil, nil)
}

// MarkAllNotificationsRead marks the whole feed as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/api/notifications/readAll", true, nil, nil)
}

// DeleteNotification removes a notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id), true, nil, nil)
}
