package server

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/pcoip-broker/broker/internal/broker/codec"
	"github.com/pcoip-broker/broker/internal/broker/protocol"
	"github.com/pcoip-broker/broker/internal/broker/transport"
	"github.com/pcoip-broker/broker/internal/logging"
)

// handleBrokerXML reads the body, decodes it, advances the protocol state
// machine under the per-key session lock, persists or destroys the
// session, and streams the response back chunked.
func (s *Server) handleBrokerXML() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.WithClientLogID(slog.Default(), r.Header.Get(s.logHeader))

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		req, err := codec.Decode(bytes.NewReader(body))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if bad, ok := req.(transport.BadMessage); ok {
			s.metrics.requestsTotal.WithLabelValues(outcomeBadMessage).Inc()
			logger.Warn("malformed request", "reason", bad.Reason)
			http.Error(w, "malformed request: "+bad.Reason, http.StatusBadRequest)
			return
		}

		// Cookie first; some PCoIP client versions never echo cookies, so
		// the header keyer catches those.
		key, hasKey := s.keyer.Key(r)
		if !hasKey && s.fallbackKeyer != nil {
			key, hasKey = s.fallbackKeyer.Key(r)
		}

		if hasKey {
			logger = logging.WithSessionKey(logger, key)
			unlock := s.store.Lock(key)
			defer unlock()
		}

		var sess *protocol.Session
		if hasKey {
			sess, err = s.store.Get(ctx, key)
			if err != nil {
				logger.Error("session store read failed", "error", err)
				http.Error(w, "session store error", http.StatusInternalServerError)
				return
			}
		}

		info := protocol.ClientInfo{Name: r.Header.Get("User-Agent")}
		newSess, resp := s.handler.Handle(ctx, req, sess, info)

		if resp == nil && newSess != nil {
			// A live session with no response means the handler itself is
			// broken; never persist that state.
			s.metrics.requestsTotal.WithLabelValues(outcomeInternalBug).Inc()
			logger.Error("protocol handler returned live session without response")
			http.Error(w, "internal protocol error", http.StatusInternalServerError)
			return
		}

		if newSess == nil {
			if hasKey {
				if err := s.store.Delete(ctx, key); err != nil {
					logger.Error("session store delete failed", "error", err)
					http.Error(w, "session store error", http.StatusInternalServerError)
					return
				}
			}
		} else {
			if !hasKey {
				key = uuid.NewString()
				logger = logging.WithSessionKey(logger, key)
			}
			if err := s.store.Set(ctx, key, newSess); err != nil {
				logger.Error("session store write failed", "error", err)
				http.Error(w, "session store error", http.StatusInternalServerError)
				return
			}
			s.keyer.Persist(w, key)
		}

		s.recordOutcome(resp)

		if resp == nil {
			// ProtocolViolation: empty body, session already destroyed above.
			logger.Warn("unexpected message for session state, session destroyed")
			w.WriteHeader(http.StatusOK)
			return
		}

		w.Header().Set("Content-Type", "application/xml")
		// Deliberately not setting Content-Length: PCoIP clients reject
		// Content-Length-framed responses, and omitting it is what makes
		// net/http's HTTP/1.1 server emit Transfer-Encoding: chunked.
		if err := codec.Encode(w, resp); err != nil {
			return
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
	}
}

func (s *Server) recordOutcome(resp transport.Response) {
	switch resp.(type) {
	case transport.HelloResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeHello).Inc()
	case transport.AuthSuccessResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeAuthSuccess).Inc()
	case transport.AuthFailedResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeAuthFailed).Inc()
	case transport.GetResourceListResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeResourceList).Inc()
	case transport.AllocateSuccessResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeAllocateSuccess).Inc()
	case transport.AllocateFailedResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeAllocateFailed).Inc()
	case transport.ByeResponse:
		s.metrics.requestsTotal.WithLabelValues(outcomeBye).Inc()
	case nil:
		s.metrics.requestsTotal.WithLabelValues(outcomeProtocolViolation).Inc()
	}
}

// handleLanding serves a minimal HTML landing page, an operational
// convenience rather than part of the protocol.
func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, landingPageTmpl, BuildVersion)
}

const landingPageTmpl = `<!DOCTYPE html>
<html>
<head><title>PCoIP Connection Broker</title></head>
<body>
<h1>PCoIP Connection Broker</h1>
<p>Version: %s</p>
<p>POST XML handshake requests to <code>/pcoip-broker/xml</code>.</p>
</body>
</html>
`
