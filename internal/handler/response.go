package handler

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/Luckybob666/wa-bot-sub000/internal/errors"
	"github.com/Luckybob666/wa-bot-sub000/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return apperrors.ValidationError("Invalid JSON body")
	}
	return nil
}
