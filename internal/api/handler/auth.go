package handler

import (
	"context"
	"net"
	"net/http"

	"github.com/mcoot/credauth/internal/api/apierr"
	"github.com/mcoot/credauth/internal/api/middleware"
	"github.com/mcoot/credauth/internal/api/request"
	"github.com/mcoot/credauth/internal/api/response"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/services/auth"
)

// AuthController is the auth surface the handler drives
type AuthController interface {
	Handle(ctx context.Context, req auth.Request) auth.Result
	Logout(ctx context.Context, sess *model.Session) auth.Result
	Me(ctx context.Context, sess *model.Session) auth.Result
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	controller AuthController
	cookies    middleware.CookieConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(controller AuthController, cookies middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{
		controller: controller,
		cookies:    cookies,
	}
}

// Auth handles /auth for every method. Only POST with a known action succeeds.
func (h *AuthHandler) Auth(w http.ResponseWriter, r *http.Request) {
	req := auth.Request{
		Method:     r.Method,
		RemoteAddr: remoteIP(r),
		Session:    middleware.GetSession(r.Context()),
	}

	if r.Method == http.MethodPost {
		body, err := request.DecodeAuth(w, r)
		if err != nil {
			apierr.WriteError(w, apierr.NewInvalidRequestError(err.Error()))
			return
		}
		req.Action = body.Action
		req.Name = body.Name
		req.Nickname = body.Nickname
		req.Identifier = body.Identifier
		req.Email = body.Email
		req.Password = body.Password
	}

	res := h.controller.Handle(r.Context(), req)

	if res.Session != nil {
		middleware.SetSessionCookie(w, h.cookies, res.Session)
		w.Header().Set(middleware.TokenHeader, res.Session.ID)
	}
	response.Result(w, res)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	res := h.controller.Logout(r.Context(), middleware.GetSession(r.Context()))
	if res.Succeeded() {
		middleware.ClearSessionCookie(w, h.cookies)
	}
	response.Result(w, res)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	res := h.controller.Me(r.Context(), middleware.GetSession(r.Context()))
	if !res.Succeeded() {
		response.Result(w, res)
		return
	}
	response.JSON(w, res.Status, response.MeFromResult(res))
}

// remoteIP drops the port from r.RemoteAddr
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
