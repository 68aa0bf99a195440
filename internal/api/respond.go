package api

import (
	"encoding/json"
	"net/http"

	"SennaVault/internal/autopay"
	xerrors "SennaVault/internal/errors"
	"SennaVault/internal/wallet"
)

// errorBody 是 SDK 约定的错误信封。
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	writeJSON(w, statusForCode(code), struct {
		Error errorBody `json:"error"`
	}{Error: errorBody{Code: string(code), Message: err.Error()}})
}

// statusForCode 把错误码映射为 HTTP 状态码。
func statusForCode(code xerrors.Code) int {
	switch code {
	case wallet.CodeValidation, autopay.CodePaymentValidation, xerrors.CodeInvalidArgument:
		return http.StatusBadRequest
	case wallet.CodeUnauthorized, xerrors.CodeUnauthorized:
		return http.StatusForbidden
	case autopay.CodePaymentNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case wallet.CodeStateConflict, wallet.CodeRecoveryTiming,
		autopay.CodePaymentConflict, autopay.CodePaymentCompleted, autopay.CodePaymentExhausted,
		xerrors.CodeConflict, xerrors.CodeAlreadyCompleted:
		return http.StatusConflict
	case wallet.CodeLimitExceeded:
		return http.StatusUnprocessableEntity
	case wallet.CodeExecutionFailed, xerrors.CodeExecutorFailure:
		return http.StatusBadGateway
	case xerrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
