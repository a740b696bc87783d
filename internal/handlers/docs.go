// internal/handlers/docs.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/genzdict/battlegate/internal/document"
	"github.com/genzdict/battlegate/internal/policy"
	"github.com/genzdict/battlegate/internal/store"
)

// DocsHandler serves the document API:
//
//	GET    /docs/{path}  read (any signed-in caller)
//	PUT    /docs/{path}  set (create or full replace, policy-checked)
//	DELETE /docs/{path}  delete (policy-checked)
//
// A refused write is a bare 403; policy causes go to logs and the audit
// queue, never to the caller.
func DocsHandler(g *Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := callerIdentity(r)
		if caller == "" {
			http.Error(w, "missing or invalid auth_token", http.StatusUnauthorized)
			return
		}

		docPath := strings.Trim(strings.TrimPrefix(r.URL.Path, "/docs/"), "/")
		if docPath == "" {
			http.Error(w, "missing document path", http.StatusBadRequest)
			return
		}

		switch r.Method {
		case http.MethodGet:
			g.handleRead(w, r, docPath)
		case http.MethodPut, http.MethodPost:
			g.handleWrite(w, r, caller, docPath)
		case http.MethodDelete:
			g.handleDelete(w, r, caller, docPath)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (g *Gateway) handleRead(w http.ResponseWriter, r *http.Request, docPath string) {
	doc, err := g.Store.Get(r.Context(), docPath)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if err != nil {
		g.Logger.Errorf("read %s: %v", docPath, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (g *Gateway) handleWrite(w http.ResponseWriter, r *http.Request, caller, docPath string) {
	var doc document.Doc
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "bad document payload", http.StatusBadRequest)
		return
	}
	if doc == nil {
		// A JSON null decodes to a nil document, which downstream means
		// delete; writes must carry an object.
		http.Error(w, "document body must be a JSON object", http.StatusBadRequest)
		return
	}

	decision, err := g.Store.Put(r.Context(), caller, docPath, doc)
	g.respondDecision(w, r, caller, docPath, decision, err)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request, caller, docPath string) {
	decision, err := g.Store.Delete(r.Context(), caller, docPath)
	g.respondDecision(w, r, caller, docPath, decision, err)
}

func (g *Gateway) respondDecision(w http.ResponseWriter, r *http.Request, caller, docPath string, decision policy.Decision, err error) {
	if err != nil {
		g.Logger.Errorf("write %s: %v", docPath, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !decision.Allowed {
		g.Logger.WithFields(logrus.Fields{
			"caller": caller,
			"path":   docPath,
			"cause":  decision.Cause.String(),
			"detail": decision.Detail,
		}).Info("write denied")
		http.Error(w, "permission denied", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
