package hostcall

import (
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"sable/internal/value"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// fnHTTPRequest performs an HTTP round trip:
// http.request(method, url [, body [, headers]]) -> Result<Response>.
func fnHTTPRequest(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	method, err := unpackStr(args, 0, "http.request")
	if err != nil {
		return nil, err
	}
	url, err := unpackStr(args, 1, "http.request")
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(args) > 2 {
		if s, ok := args[2].(*value.Str); ok && s.Value != "" {
			body = strings.NewReader(s.Value)
		}
	}

	req, rerr := http.NewRequest(strings.ToUpper(method), url, body)
	if rerr != nil {
		return value.ErrOf(errStruct("invalid request: " + rerr.Error())), nil
	}

	if len(args) > 3 {
		if headers, ok := args[3].(*value.Map); ok {
			for _, k := range headers.Keys {
				if v, ok := headers.Pairs[k].(*value.Str); ok {
					req.Header.Set(k, v.Value)
				}
			}
		}
	}

	resp, derr := httpClient.Do(req)
	if derr != nil {
		return value.ErrOf(errStruct("request failed: " + derr.Error())), nil
	}
	defer resp.Body.Close()

	data, berr := io.ReadAll(resp.Body)
	if berr != nil {
		return value.ErrOf(errStruct("failed to read response body: " + berr.Error())), nil
	}

	ctx.Effects.Record("http", "%s %s -> %d", strings.ToUpper(method), url, resp.StatusCode)

	respHeaders := value.NewMap()
	for _, k := range sortedHeaderKeys(resp.Header) {
		respHeaders.Put(k, &value.Str{Value: resp.Header.Get(k)})
	}

	out := value.NewStruct("Response").
		Set("status", &value.Int{Value: int64(resp.StatusCode)}).
		Set("headers", respHeaders).
		Set("body", &value.Str{Value: string(data)})
	return value.Ok(out), nil
}

func sortedHeaderKeys(h http.Header) []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	// Sorted so header rendering stays deterministic.
	sort.Strings(keys)
	return keys
}
