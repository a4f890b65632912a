package api

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/gorilla/schema"

	"github.com/StoryBB/StoryBB-sub005/internal/apperr"
)

const maxBody = 1 << 20

var formDecoder = newFormDecoder()

func newFormDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.SetAliasTag("json")
	d.IgnoreUnknownKeys(true)
	// checkboxes post "on"
	d.RegisterConverter(false, func(v string) reflect.Value {
		return reflect.ValueOf(v == "1" || v == "on" || v == "true")
	})
	return d
}

// decode fills dst from a JSON body or from form values. Form fields are
// matched by their json tag and "name[key]" entries fill map fields.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			logger.Debug("decode json body", slog.Any("err", err))
			return apperr.BadRequest("invalid_request")
		}
		return nil
	}
	if err := r.ParseForm(); err != nil {
		return apperr.BadRequest("invalid_request")
	}
	form, maps := splitBracketed(r.PostForm)
	if err := formDecoder.Decode(dst, form); err != nil {
		logger.Debug("decode form", slog.Any("err", err))
		return apperr.BadRequest("invalid_request")
	}
	if len(maps) == 0 {
		return nil
	}
	raw, err := json.Marshal(maps)
	if err != nil {
		return apperr.BadRequest("invalid_request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Debug("decode form maps", slog.Any("err", err))
		return apperr.BadRequest("invalid_request")
	}
	return nil
}

// splitBracketed moves "name[key]" entries out of form into per-name maps
// holding the last value of each key.
func splitBracketed(form url.Values) (url.Values, map[string]map[string]string) {
	plain := url.Values{}
	var maps map[string]map[string]string
	for k, values := range form {
		name, key, ok := strings.Cut(k, "[")
		if !ok || name == "" || !strings.HasSuffix(key, "]") || len(values) == 0 {
			plain[k] = values
			continue
		}
		if maps == nil {
			maps = map[string]map[string]string{}
		}
		if maps[name] == nil {
			maps[name] = map[string]string{}
		}
		maps[name][strings.TrimSuffix(key, "]")] = values[len(values)-1]
	}
	return plain, maps
}
