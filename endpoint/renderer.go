package endpoint

import "net/http"

const defaultTextType = "text/plain; charset=utf-8"

// StringRenderer writes Body as a text response. Status defaults to 200.
// ContentType, default "text/plain; charset=utf-8", is only applied if no
// Content-Type header has been set by a processor.
type StringRenderer struct {
	Status      int
	Body        string
	ContentType string
}

func (sr *StringRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", or(sr.ContentType, defaultTextType))
	}
	return write(w, statusOr(sr.Status, http.StatusOK), []byte(sr.Body))
}

// BytesRenderer writes an already encoded body. ContentType always replaces
// any earlier value; empty means "application/octet-stream". Status defaults
// to 200.
type BytesRenderer struct {
	Status      int
	Body        []byte
	ContentType string
}

func (br *BytesRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	w.Header().Set("Content-Type", or(br.ContentType, "application/octet-stream"))
	return write(w, statusOr(br.Status, http.StatusOK), br.Body)
}

// NoContentRenderer writes a status with no body. Status defaults to 204.
type NoContentRenderer struct {
	Status int
}

func (nr *NoContentRenderer) Render(w http.ResponseWriter, _ *http.Request) error {
	return write(w, statusOr(nr.Status, http.StatusNoContent), nil)
}

func write(w http.ResponseWriter, status int, body []byte) error {
	w.WriteHeader(status)
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

func statusOr(status, def int) int {
	if status == 0 {
		return def
	}
	return status
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
