package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"SennaVault/internal/autopay"
	xerrors "SennaVault/internal/errors"
)

func (s *Server) handleAutopay(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		http.Error(w, "自动支付未启用", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var params autopay.SubmitParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
			return
		}
		request, err := s.payments.Submit(r.Context(), params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, request)
	case http.MethodGet:
		requests, err := s.payments.List(r.Context(), listOptionsFromQuery(r)...)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, requests)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAutopayDetail(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		http.Error(w, "自动支付未启用", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/autopay/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "payment id required"))
		return
	}
	request, err := s.payments.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleAutopayStats(w http.ResponseWriter, r *http.Request) {
	if s.payments == nil {
		http.Error(w, "自动支付未启用", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	stats, err := s.payments.Stats(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "事件归档未启用", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.archive.ListLatest(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleChainSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		http.Error(w, "链客户端未启用", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	snapshot, err := s.chain.FetchSnapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleChainGas(w http.ResponseWriter, r *http.Request) {
	if s.gas == nil {
		http.Error(w, "燃气报价未启用", http.StatusServiceUnavailable)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	quote, err := s.gas.Quote(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// listOptionsFromQuery 把查询参数转成存储层的筛选选项。
func listOptionsFromQuery(r *http.Request) []autopay.ListOption {
	var opts []autopay.ListOption
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, autopay.WithLimit(parsed))
		}
	}
	if raw := query.Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts = append(opts, autopay.WithOffset(parsed))
		}
	}
	if raw := query.Get("status"); raw != "" {
		var statuses []autopay.Status
		for _, value := range strings.Split(raw, ",") {
			statuses = append(statuses, autopay.Status(strings.TrimSpace(value)))
		}
		opts = append(opts, autopay.WithStatuses(statuses...))
	}
	if raw := query.Get("q"); raw != "" {
		opts = append(opts, autopay.WithQuery(raw))
	}
	return opts
}
