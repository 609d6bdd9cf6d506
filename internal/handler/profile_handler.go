package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/tracko/tracko-web/internal/middleware"
	"github.com/tracko/tracko-web/internal/model"
	"github.com/tracko/tracko-web/internal/session"
)

// ProfileMetrics はプロフィールハンドラーの計測フック。nil実装を許容する。
type ProfileMetrics interface {
	RecordProfileIncrement(category string)
}

// ProfileHandler はプロフィールAPIのHTTPハンドラー。
// 全ルートはセッションミドルウェアの内側に配置する。
type ProfileHandler struct {
	store          session.ProfileStore
	metrics        ProfileMetrics
	streamInterval time.Duration
}

// NewProfileHandler はProfileHandlerを生成する。metricsはnil可。
// streamIntervalはSSE配信のポーリング間隔で、0以下なら既定値を使う。
func NewProfileHandler(store session.ProfileStore, metrics ProfileMetrics, streamInterval time.Duration) *ProfileHandler {
	if streamInterval <= 0 {
		streamInterval = session.DefaultWatchInterval
	}
	return &ProfileHandler{
		store:          store,
		metrics:        metrics,
		streamInterval: streamInterval,
	}
}

// profileResponse はプロフィールのAPIレスポンス。
// 永続化レイアウト {totalTime, categories} に揃える。
type profileResponse struct {
	UID        string           `json:"uid"`
	TotalTime  int64            `json:"totalTime"`
	Categories map[string]int64 `json:"categories"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UID:        p.UID,
		TotalTime:  p.TotalTime,
		Categories: p.Categories,
	}
}

// incrementRequest はカテゴリ加算リクエストのボディ。
type incrementRequest struct {
	Category string `json:"category"`
	Minutes  int64  `json:"minutes"`
}

// GetProfile は現在のユーザーのプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, err := h.store.FindByUID(r.Context(), uid)
	if err != nil {
		slog.Error("failed to load profile", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	if profile == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError(uid))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(profile))
}

// Increment はカテゴリ別利用時間と合計を同じ加算量で原子的に加算する。
// POST /api/profile/increment
func (h *ProfileHandler) Increment(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req incrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if !slices.Contains(model.KnownCategories, req.Category) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidCategoryError(req.Category))
		return
	}
	if req.Minutes < 1 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidMinutesError(req.Minutes))
		return
	}

	if err := h.store.IncrementCategory(r.Context(), uid, req.Category, req.Minutes); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeProfileNotFound {
			middleware.WriteErrorResponse(w, http.StatusNotFound, apiErr)
			return
		}
		slog.Error("failed to increment category",
			slog.String("category", req.Category),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordProfileIncrement(req.Category)
	}

	profile, err := h.store.FindByUID(r.Context(), uid)
	if err != nil || profile == nil {
		slog.Error("failed to reload profile after increment", slog.Any("error", err))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(profile))
}

// Stream はプロフィールのライブ購読をServer-Sent Eventsとして配信する。
// 接続直後に現在値のスナップショットを1件配送し、以降はポーリング順に流す。
// クライアント切断で購読を解放する。
// GET /api/profile/stream
func (h *ProfileHandler) Stream(w http.ResponseWriter, r *http.Request) {
	uid, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	watcher := session.NewWatcher(h.store, uid, h.streamInterval)
	defer watcher.Stop()

	for {
		select {
		case snap, open := <-watcher.Snapshots():
			if !open {
				return
			}
			if snap.Err != nil {
				// 購読エラーはストリームを壊さずイベントとして通知する
				fmt.Fprintf(w, "event: error\ndata: {\"error\":\"subscription unavailable\"}\n\n")
				flusher.Flush()
				continue
			}
			if snap.Profile == nil {
				continue
			}
			data, err := json.Marshal(toProfileResponse(snap.Profile))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
