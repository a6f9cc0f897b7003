package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/querl369/adobe-stock-uploader-sub000/internal/core/domain"
)

const sessionCookie = "session_token"

// maxImageBytes caps a single downloaded or inlined image.
const maxImageBytes = 20 << 20

// startBatchRequest is the submission body. Each item carries either a URL
// to fetch or inlined base64 data; fetching is deferred until a worker
// picks the item up.
type startBatchRequest struct {
	Items []struct {
		Name string `json:"name"`
		URL  string `json:"url,omitempty"`
		Data string `json:"data,omitempty"`
		MIME string `json:"mime_type,omitempty"`
	} `json:"items"`
}

type startBatchResponse struct {
	BatchID string `json:"batch_id"`
}

func (h *Handler) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	session := h.ensureSession(w, r)
	origin := clientOrigin(r)

	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	items := make([]*domain.WorkItem, 0, len(req.Items))
	for _, it := range req.Items {
		mime := it.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		var payload *domain.Payload
		switch {
		case it.Data != "":
			if base64.StdEncoding.DecodedLen(len(it.Data)) > maxImageBytes {
				h.writeError(w, fmt.Sprintf("Item %q exceeds the %d byte limit", it.Name, maxImageBytes), http.StatusBadRequest)
				return
			}
			raw, err := base64.StdEncoding.DecodeString(it.Data)
			if err != nil {
				h.writeError(w, fmt.Sprintf("Item %q has invalid base64 data", it.Name), http.StatusBadRequest)
				return
			}
			payload = domain.PayloadFromBytes(raw)
		case it.URL != "":
			url := it.URL
			payload = domain.NewPayload(func() ([]byte, error) {
				return fetchImage(url)
			})
		default:
			h.writeError(w, fmt.Sprintf("Item %q has neither url nor data", it.Name), http.StatusBadRequest)
			return
		}
		items = append(items, &domain.WorkItem{
			Name:    it.Name,
			MIME:    mime,
			Payload: payload,
		})
	}

	batchID, err := h.svc.StartBatch(r.Context(), session, origin, items)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.writeRateHeaders(w, r, session)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(startBatchResponse{BatchID: batchID})
}

func (h *Handler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	session := h.currentSession(r)
	snap, err := h.svc.BatchStatus(r.Context(), r.PathValue("id"), session)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, snap)
}

func (h *Handler) handleItemResult(w http.ResponseWriter, r *http.Request) {
	session := h.currentSession(r)
	meta, err := h.svc.ItemResult(r.Context(), r.PathValue("id"), r.PathValue("itemID"), session)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, meta)
}

func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	session := h.ensureSession(w, r)
	ctx := r.Context()
	h.writeJSON(w, map[string]any{
		"remaining": h.quota.RemainingQuota(ctx, session),
		"limit":     h.quota.SessionLimit(),
		"message":   h.quota.UsageMessage(ctx, session),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"})
}

// ensureSession returns the caller's session id, minting a fresh session
// (and cookie) on first contact or after expiry.
func (h *Handler) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		if !h.quota.IsExpired(r.Context(), c.Value) {
			return c.Value
		}
	}

	s, err := h.quota.CreateSession(r.Context())
	if err != nil {
		h.log.Error("failed to create session", "error", err)
		return ""
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s.ID
}

// currentSession returns the presented session id without minting one;
// read-only endpoints must not create state.
func (h *Handler) currentSession(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.Itoa(int(rle.RetryAfter.Seconds())+1))
		h.writeError(w, "Too many requests, please slow down and try again.", http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrQuotaExceeded):
		h.writeError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, "Batch not found", http.StatusNotFound)
	default:
		h.log.Error("request failed", "path", r.URL.Path, "error", err)
		h.writeError(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeRateHeaders(w http.ResponseWriter, r *http.Request, session string) {
	ctx := r.Context()
	w.Header().Set("X-Quota-Remaining", strconv.Itoa(h.quota.RemainingQuota(ctx, session)))
	w.Header().Set("X-Quota-Message", h.quota.UsageMessage(ctx, session))
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// clientOrigin extracts the caller's network origin for rate limiting,
// honoring the first X-Forwarded-For hop when present.
func clientOrigin(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// fetchImage downloads an item's bytes. Called lazily from inside the
// concurrency window, never at submission time.
func fetchImage(url string) ([]byte, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d byte limit", maxImageBytes)
	}
	return data, nil
}
