package request

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
)

// MaxBodyBytes caps auth request bodies
const MaxBodyBytes = 64 << 10

// ErrMalformedBody is returned when the body cannot be decoded
var ErrMalformedBody = errors.New("malformed request body")

// AuthRequest is the body of POST /auth, as a form or a JSON object.
// The identifier travels as "cpf".
type AuthRequest struct {
	Action     string `json:"action"`
	Name       string `json:"name"`
	Nickname   string `json:"nickname"`
	Identifier string `json:"cpf"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// DecodeAuth reads an AuthRequest from r. JSON is used when the content type
// says so; anything else is parsed as a form.
func DecodeAuth(w http.ResponseWriter, r *http.Request) (AuthRequest, error) {
	var req AuthRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil && !errors.Is(err, io.EOF) {
			return AuthRequest{}, ErrMalformedBody
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return AuthRequest{}, ErrMalformedBody
	}
	req = AuthRequest{
		Action:     r.PostForm.Get("action"),
		Name:       r.PostForm.Get("name"),
		Nickname:   r.PostForm.Get("nickname"),
		Identifier: r.PostForm.Get("cpf"),
		Email:      r.PostForm.Get("email"),
		Password:   r.PostForm.Get("password"),
	}
	return req, nil
}
