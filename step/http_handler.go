package step

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/c360studio/flowengine/flowerr"
	"github.com/c360studio/flowengine/stepmodel"
)

func (d *Dispatcher) handleHTTPRequest(ctx context.Context, inv Invocation) stepmodel.StepResult {
	reqURL := configString(inv.Step.Config, "url")
	method := configString(inv.Step.Config, "method")
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if body, ok := inv.Step.Config["body"]; ok && body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errorResult(flowerr.HTTPError, fmt.Sprintf("failed to encode request body: %v", err))
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return errorResult(flowerr.NetworkError, err.Error())
	}

	req.Header.Set("Content-Type", "application/json")
	if configHeaders, ok := inv.Step.Config["headers"].(map[string]any); ok {
		for k, v := range configHeaders {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}
	if d.headers != nil {
		for k, v := range d.headers.BuildHeaders(ctx, inv.OrgID, inv.Step, reqURL) {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return errorResult(flowerr.NetworkError, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResult(flowerr.NetworkError, err.Error())
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		data = string(raw)
	}

	output := map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"data":       data,
		"headers":    flattenHeaders(resp.Header),
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return stepmodel.StepResult{
			Success: false,
			Output:  output,
			Error:   flowerr.New(flowerr.HTTPError, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))),
		}
	}

	return stepmodel.StepResult{Success: true, Output: output}
}

func flattenHeaders(h http.Header) map[string]string {
	out := map[string]string{}
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
