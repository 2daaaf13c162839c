package response

import (
	"encoding/json"
	"net/http"
)

type envelope struct {
	Error    bool        `json:"error"`
	Message  string      `json:"message,omitempty"`
	Messages []string    `json:"messages,omitempty"`
	Result   interface{} `json:"result"`
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// WriteError writes the Error as a JSON envelope with its StatusCode
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	write(w, e.StatusCode, envelope{
		Error:    true,
		Message:  e.Message,
		Messages: e.Messages,
		Result:   e.Result,
	})
}

// WriteResponse writes result as a 200 JSON envelope
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	WriteResponseWithStatus(w, r, http.StatusOK, result)
}

// WriteResponseWithStatus is WriteResponse with a caller-chosen status code
func WriteResponseWithStatus(w http.ResponseWriter, r *http.Request, status int, result interface{}) {
	write(w, status, envelope{
		Result: result,
	})
}
