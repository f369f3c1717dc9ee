package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"kv-gateway/apperr"
	"kv-gateway/backend"
	"kv-gateway/credentials"
	"kv-gateway/kv"
	"kv-gateway/respond"
)

const (
	msgNoTTL       = "No TTL set"
	msgInvalidBody = "Invalid request body"
	maxBodyBytes   = 1 << 20
)

type kvInput struct {
	Key     string  `json:"key" validate:"required"`
	Value   *string `json:"value" validate:"required"`
	DBIndex *int    `json:"db_index" validate:"omitempty,min=0,max=15"`
	TTL     *int64  `json:"ttl" validate:"omitempty,min=1"`
}

type kvOutput struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	TTL     *int64 `json:"ttl"`
	DBIndex int    `json:"db_index"`
	Message string `json:"message"`
}

type deleteOutput struct {
	Message string `json:"message"`
	Key     string `json:"key"`
}

type ttlOutput struct {
	Key string `json:"key"`
	// int64 ou "No TTL set"
	TTL     any `json:"ttl"`
	DBIndex int `json:"db_index"`
}

type apiKeyInput struct {
	APIKey      string `json:"api_key" validate:"required"`
	Description string `json:"description"`
}

type messageOutput struct {
	Message string `json:"message"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// invalid traduz o primeiro erro do validator para a mensagem da API.
func invalid(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.InvalidArgument, msgInvalidBody, err)
	}
	fe := verrs[0]
	switch fe.Field() {
	case "db_index":
		return backend.ValidateIndex(-1)
	case "ttl":
		return apperr.New(apperr.InvalidArgument, "ttl must be greater than or equal to 1")
	default:
		return apperr.New(apperr.InvalidArgument, fe.Field()+" is required")
	}
}

func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, msgInvalidBody, err)
	}
	if err := s.validate.Struct(dst); err != nil {
		return invalid(err)
	}
	return nil
}

func (in kvInput) record() kv.Record {
	rec := kv.Record{Key: in.Key, Value: *in.Value, TTL: in.TTL}
	if in.DBIndex != nil {
		rec.DBIndex = *in.DBIndex
	}
	return rec
}

// keyQuery lê key e db_index (padrão 0) da query string.
func keyQuery(r *http.Request) (string, int, error) {
	q := r.URL.Query()
	key := q.Get("key")
	if strings.TrimSpace(key) == "" {
		return "", 0, apperr.New(apperr.InvalidArgument, "key is required")
	}
	db := 0
	if raw := q.Get("db_index"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", 0, backend.ValidateIndex(-1)
		}
		db = n
	}
	return key, db, nil
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var in kvInput
	if err := s.decode(r, &in); err != nil {
		respond.Err(w, err)
		return
	}
	rec, err := s.kv.Create(r.Context(), in.record())
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, kvOutput{Key: rec.Key, Value: rec.Value, TTL: rec.TTL, DBIndex: rec.DBIndex, Message: kv.MsgCreated})
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var in kvInput
	if err := s.decode(r, &in); err != nil {
		respond.Err(w, err)
		return
	}
	rec, err := s.kv.Update(r.Context(), in.record())
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, kvOutput{Key: rec.Key, Value: rec.Value, TTL: rec.TTL, DBIndex: rec.DBIndex, Message: kv.MsgUpdated})
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	key, db, err := keyQuery(r)
	if err != nil {
		respond.Err(w, err)
		return
	}
	rec, err := s.kv.Get(r.Context(), key, db)
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, kvOutput{Key: rec.Key, Value: rec.Value, TTL: rec.TTL, DBIndex: rec.DBIndex, Message: kv.MsgRetrieved})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	key, db, err := keyQuery(r)
	if err != nil {
		respond.Err(w, err)
		return
	}
	if err := s.kv.Delete(r.Context(), key, db); err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, deleteOutput{Message: kv.MsgDeleted, Key: key})
}

func (s *Server) ttl(w http.ResponseWriter, r *http.Request) {
	key, db, err := keyQuery(r)
	if err != nil {
		respond.Err(w, err)
		return
	}
	res, err := s.kv.TTL(r.Context(), key, db)
	if err != nil {
		respond.Err(w, err)
		return
	}
	out := ttlOutput{Key: res.Key, DBIndex: res.DBIndex, TTL: res.Seconds}
	if res.NoTTL {
		out.TTL = msgNoTTL
	}
	respond.JSON(w, http.StatusOK, out)
}

// addAPIKey aceita api_key/description na query (forma histórica) ou em JSON.
func (s *Server) addAPIKey(w http.ResponseWriter, r *http.Request) {
	in := apiKeyInput{
		APIKey:      r.URL.Query().Get("api_key"),
		Description: r.URL.Query().Get("description"),
	}
	if in.APIKey == "" && r.ContentLength != 0 {
		if err := s.decode(r, &in); err != nil {
			respond.Err(w, err)
			return
		}
	} else if err := s.validate.Struct(in); err != nil {
		respond.Err(w, invalid(err))
		return
	}

	err := credentials.Register(r.Context(), s.creds, credentials.APIKey{Value: in.APIKey, Description: in.Description})
	if err != nil {
		respond.Err(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, messageOutput{Message: credentials.MsgAdded})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
