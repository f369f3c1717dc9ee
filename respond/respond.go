// Package respond centraliza a escrita de respostas JSON do gateway.
//
// Erros seguem o formato {"detail": "..."} em todas as camadas (gates e
// handlers), para que o cliente trate 403/429/500 da mesma forma.
package respond

import (
	"encoding/json"
	"net/http"

	"kv-gateway/apperr"
)

type ErrorBody struct {
	Detail string `json:"detail"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, detail string) {
	JSON(w, status, ErrorBody{Detail: detail})
}

// Err traduz um erro apperr em status + mensagem pública.
func Err(w http.ResponseWriter, err error) {
	Error(w, apperr.Status(apperr.KindOf(err)), apperr.PublicMessage(err))
}
