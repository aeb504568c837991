package gateway

import (
	"net/http"
)

// StreamWriter writes a chunked plain-text body, flushing after every write.
// The status line goes out with the first write, so a failure before any
// output can still be reported as a 500.
type StreamWriter struct {
	w     http.ResponseWriter
	rc    *http.ResponseController
	wrote bool
}

func NewStreamWriter(w http.ResponseWriter) *StreamWriter {
	return &StreamWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

func (s *StreamWriter) Write(p []byte) (int, error) {
	if !s.wrote {
		s.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("X-Content-Type-Options", "nosniff")
		s.w.WriteHeader(http.StatusOK)
		s.wrote = true
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, s.rc.Flush()
}

// Fail reports err to the client: as a 500 when nothing was written yet,
// otherwise as a trailing error line on the partial body.
func (s *StreamWriter) Fail(err error) {
	msg := "Error: " + err.Error()
	if !s.wrote {
		http.Error(s.w, msg, http.StatusInternalServerError)
		return
	}
	s.w.Write([]byte("\n" + msg))
	s.rc.Flush()
}

// Started reports whether the response status has been sent.
func (s *StreamWriter) Started() bool { return s.wrote }
