package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"SennaVault/internal/auth"
	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/observability/metrics"
	"SennaVault/internal/wallet"
)

// submitRequest 是提交转账提案的请求体。金额使用十进制 wei 字符串。
type submitRequest struct {
	Target   string        `json:"target"`
	ValueWei string        `json:"value_wei"`
	Payload  hexutil.Bytes `json:"payload,omitempty"`
}

// settingsRequest 是更新金库参数的请求体。
type settingsRequest struct {
	DailyLimit    string `json:"daily_limit"`
	PerTxLimit    string `json:"per_tx_limit"`
	RecoveryAgent string `json:"recovery_agent"`
}

// settingsView 汇总对外可见的金库配置。
type settingsView struct {
	Owners          []common.Address `json:"owners"`
	Threshold       int              `json:"threshold"`
	AutomationAgent common.Address   `json:"automation_agent"`
	Settings        wallet.Settings  `json:"settings"`
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmitTransaction(w, r)
	case http.MethodGet:
		s.handleListTransactions(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request) {
	actor, err := actingAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
		return
	}
	if !common.IsHexAddress(req.Target) {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid target address"))
		return
	}
	value, err := parseWei(req.ValueWei)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := s.engine.Submit(r.Context(), actor, common.HexToAddress(req.Target), value, req.Payload)
	observeOp("submit", err)
	if err != nil {
		writeError(w, err)
		return
	}
	tx, err := s.engine.Transaction(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.engine.Transactions(limit))
}

func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/transactions/"), "/")
	if rest == "" {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "transaction id required"))
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid transaction id"))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
			return
		}
		tx, err := s.engine.Transaction(id)
		if err != nil {
			if errors.Is(err, wallet.ErrTransactionNotFound) {
				writeJSON(w, http.StatusNotFound, struct {
					Error errorBody `json:"error"`
				}{Error: errorBody{Code: string(wallet.CodeStateConflict), Message: err.Error()}})
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tx)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	actor, err := actingAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	switch parts[1] {
	case "confirm":
		if err := requireCapability(r, auth.CapabilityConfirm); err != nil {
			writeError(w, xerrors.Wrap(xerrors.CodeUnauthorized, err, "capability check failed"))
			return
		}
		err = s.engine.Confirm(r.Context(), actor, id)
		observeOp("confirm", err)
	case "execute":
		if err := requireCapability(r, auth.CapabilityExecute); err != nil {
			writeError(w, xerrors.Wrap(xerrors.CodeUnauthorized, err, "capability check failed"))
			return
		}
		err = s.engine.Execute(r.Context(), actor, id)
		observeOp("execute", err)
	default:
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "unknown transaction action"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	tx, err := s.engine.Transaction(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, settingsView{
			Owners:          s.engine.Owners(),
			Threshold:       s.engine.Threshold(),
			AutomationAgent: s.engine.AutomationAgent(),
			Settings:        s.engine.Settings(),
		})
	case http.MethodPut:
		actor, err := actingAddress(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
			return
		}
		daily, err := parseWei(req.DailyLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		perTx, err := parseWei(req.PerTxLimit)
		if err != nil {
			writeError(w, err)
			return
		}
		var agent common.Address
		if req.RecoveryAgent != "" {
			if !common.IsHexAddress(req.RecoveryAgent) {
				writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid recovery agent address"))
				return
			}
			agent = common.HexToAddress(req.RecoveryAgent)
		}
		err = s.engine.UpdateSettings(r.Context(), actor, daily, perTx, agent)
		observeOp("update_settings", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.Settings())
	default:
		http.Error(w, "仅支持 GET/PUT", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, struct {
			Owners    []common.Address `json:"owners"`
			Threshold int              `json:"threshold"`
		}{Owners: s.engine.Owners(), Threshold: s.engine.Threshold()})
	case http.MethodPost:
		actor, err := actingAddress(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			Owner string `json:"owner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
			return
		}
		if !common.IsHexAddress(req.Owner) {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid owner address"))
			return
		}
		err = s.engine.AddOwner(r.Context(), actor, common.HexToAddress(req.Owner))
		observeOp("add_owner", err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, s.engine.Owners())
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleOwnerDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "仅支持 DELETE", http.StatusMethodNotAllowed)
		return
	}
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/owners/"), "/")
	if !common.IsHexAddress(raw) {
		writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid owner address"))
		return
	}
	actor, err := actingAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.engine.RemoveOwner(r.Context(), actor, common.HexToAddress(raw))
	observeOp("remove_owner", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Owners())
}

func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		state, ok := s.engine.PendingRecovery()
		if !ok {
			writeJSON(w, http.StatusOK, struct {
				Pending *wallet.RecoveryState `json:"pending"`
			}{})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Pending *wallet.RecoveryState `json:"pending"`
		}{Pending: &state})
	case http.MethodPost:
		actor, err := actingAddress(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req struct {
			NewOwner string `json:"new_owner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "请求体解析失败"))
			return
		}
		if !common.IsHexAddress(req.NewOwner) {
			writeError(w, xerrors.New(xerrors.CodeInvalidArgument, "invalid new owner address"))
			return
		}
		err = s.engine.InitiateRecovery(r.Context(), actor, common.HexToAddress(req.NewOwner))
		observeOp("initiate_recovery", err)
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	case http.MethodDelete:
		actor, err := actingAddress(r)
		if err != nil {
			writeError(w, err)
			return
		}
		err = s.engine.CancelRecovery(r.Context(), actor)
		observeOp("cancel_recovery", err)
		if err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "仅支持 GET/POST/DELETE", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRecoveryComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	actor, err := actingAddress(r)
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.engine.CompleteRecovery(r.Context(), actor)
	observeOp("complete_recovery", err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Owners())
}

// parseWei 解析十进制 wei 字符串，拒绝负数。
func parseWei(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "value_wei required")
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "invalid wei amount")
	}
	return value, nil
}

func observeOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(xerrors.CodeOf(err))
	}
	metrics.ObserveWalletOperation(operation, outcome)
}
